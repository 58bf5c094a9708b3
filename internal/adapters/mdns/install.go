// Package mdns implements the install-discovery receiver channel: Fire TV
// devices advertise their WhisperPlay endpoint over mDNS.
package mdns

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/mdns"

	"go2tv.app/uniremote/internal/adapters"
	"go2tv.app/uniremote/internal/domain"
)

const (
	ChannelName = "install"
	Service     = "_amzn-wplay._tcp"

	defaultWindow   = 2 * time.Second
	defaultInterval = 6 * time.Second
)

var query = mdns.Query

type installSource struct {
	window time.Duration
}

// NewInstallChannel polls mDNS for WhisperPlay receivers. window bounds
// each query.
func NewInstallChannel(window, interval time.Duration, logger *slog.Logger) *adapters.PollChannel {
	if window <= 0 {
		window = defaultWindow
	}
	if interval <= window {
		interval = defaultInterval
	}
	src := &installSource{window: window}
	return adapters.NewPollChannel(ChannelName, interval, src.snapshot, logger)
}

func (s *installSource) snapshot(ctx context.Context) ([]domain.Receiver, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	collected := make(chan []domain.Receiver, 1)
	go func() {
		seen := map[string]struct{}{}
		out := []domain.Receiver{}
		for entry := range entries {
			r, ok := receiverFromEntry(entry)
			if !ok {
				continue
			}
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			out = append(out, r)
		}
		collected <- out
	}()

	window := s.window
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < window {
			window = left
		}
	}
	params := mdns.DefaultParams(Service)
	params.Entries = entries
	params.Timeout = window
	params.DisableIPv6 = true

	err := query(params)
	close(entries)
	out := <-collected
	if err != nil {
		return nil, err
	}
	return out, nil
}

func receiverFromEntry(entry *mdns.ServiceEntry) (domain.Receiver, bool) {
	if entry == nil || entry.Name == "" {
		return domain.Receiver{}, false
	}
	fields := txtFields(entry.InfoFields)

	id := firstNonEmpty(fields["u"], fields["id"], entry.Name)
	name := firstNonEmpty(fields["n"], fields["fn"], instanceName(entry.Name))
	r := domain.Receiver{ID: id, FriendlyName: name}
	if entry.AddrV4 != nil {
		r.Address = entry.AddrV4.String()
	}
	return r, true
}

func txtFields(raw []string) map[string]string {
	out := make(map[string]string, len(raw))
	for _, field := range raw {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return out
}

// instanceName strips the service and domain labels from an mDNS instance name.
func instanceName(full string) string {
	name := strings.TrimSuffix(full, ".")
	if i := strings.Index(name, "."+Service); i > 0 {
		name = name[:i]
	}
	return strings.ReplaceAll(name, `\ `, " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
