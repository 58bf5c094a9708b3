// Package fling locates a Fire TV Fling SDK binding at runtime.
//
// A binding is either compiled in (a build-tagged package that calls
// Register from init) or shipped as a Go plugin exporting a FlingSDK symbol.
package fling

import (
	"errors"
	"fmt"
	"plugin"
	"strings"
	"sync"

	"go2tv.app/uniremote/internal/adapters"
)

// SymbolName is the symbol looked up in a plugin module.
const SymbolName = "FlingSDK"

// ErrUnavailable means no binding could be found.
var ErrUnavailable = errors.New("fling sdk unavailable")

var (
	registryMu sync.RWMutex
	registered adapters.FlingSDK
)

// Register installs a compiled-in binding. The last registration wins.
func Register(sdk adapters.FlingSDK) {
	registryMu.Lock()
	registered = sdk
	registryMu.Unlock()
}

func registeredSDK() adapters.FlingSDK {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registered
}

type symbolLookup interface {
	Lookup(symName string) (plugin.Symbol, error)
}

var openPlugin = func(path string) (symbolLookup, error) {
	return plugin.Open(path)
}

// Probe returns the compiled-in binding, else the one exported by the
// plugin at pluginPath. Every failure wraps ErrUnavailable.
func Probe(pluginPath string) (sdk adapters.FlingSDK, err error) {
	if sdk := registeredSDK(); sdk != nil {
		return sdk, nil
	}
	path := strings.TrimSpace(pluginPath)
	if path == "" {
		return nil, ErrUnavailable
	}

	defer func() {
		if r := recover(); r != nil {
			sdk, err = nil, fmt.Errorf("%w: plugin %s panicked: %v", ErrUnavailable, path, r)
		}
	}()

	p, err := openPlugin(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnavailable, path, err)
	}
	sym, err := p.Lookup(SymbolName)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup %s: %v", ErrUnavailable, SymbolName, err)
	}

	switch v := sym.(type) {
	case adapters.FlingSDK:
		return v, nil
	case *adapters.FlingSDK:
		if v != nil && *v != nil {
			return *v, nil
		}
	case func() adapters.FlingSDK:
		if got := v(); got != nil {
			return got, nil
		}
	}
	return nil, fmt.Errorf("%w: symbol %s has unexpected type %T", ErrUnavailable, SymbolName, sym)
}
