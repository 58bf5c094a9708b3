//go:build windows

package lifecycle

import "os"

func TerminationSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// RescanSignals is empty: Windows has no SIGHUP.
func RescanSignals() []os.Signal {
	return nil
}
