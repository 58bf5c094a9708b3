// Package netlock holds SSDP multicast group membership for the duration
// of a discovery session.
package netlock

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/net/ipv4"
)

var ssdpGroup = net.IPv4(239, 255, 255, 250)

var openMembership = defaultMembership

// Lock is a non-reference-counted multicast lock: Acquire on a held lock
// and Release on a free one are both no-ops.
type Lock struct {
	tag    string
	logger *slog.Logger

	mu         sync.Mutex
	membership io.Closer
}

func New(tag string, logger *slog.Logger) *Lock {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Lock{tag: tag, logger: logger}
}

func (l *Lock) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.membership != nil {
		return nil
	}
	m, err := openMembership()
	if err != nil {
		return fmt.Errorf("acquire multicast lock %s: %w", l.tag, err)
	}
	l.membership = m
	l.logger.Debug("multicast_lock_acquired", slog.String("tag", l.tag))
	return nil
}

func (l *Lock) Release() error {
	l.mu.Lock()
	m := l.membership
	l.membership = nil
	l.mu.Unlock()
	if m == nil {
		return nil
	}
	l.logger.Debug("multicast_lock_released", slog.String("tag", l.tag))
	return m.Close()
}

func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.membership != nil
}

type membership struct {
	conn   net.PacketConn
	pc     *ipv4.PacketConn
	joined []net.Interface
}

func (m *membership) Close() error {
	var errs []error
	for i := range m.joined {
		if err := m.pc.LeaveGroup(&m.joined[i], &net.UDPAddr{IP: ssdpGroup}); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func defaultMembership() (io.Closer, error) {
	conn, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return nil, err
	}
	m := &membership{conn: conn, pc: ipv4.NewPacketConn(conn)}

	ifaces, _ := net.Interfaces()
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		if err := m.pc.JoinGroup(&ifi, &net.UDPAddr{IP: ssdpGroup}); err != nil {
			continue
		}
		m.joined = append(m.joined, ifi)
	}
	if len(m.joined) == 0 {
		if err := m.pc.JoinGroup(nil, &net.UDPAddr{IP: ssdpGroup}); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("join %s: %w", ssdpGroup, err)
		}
	}
	return m, nil
}
