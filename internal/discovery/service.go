// Package discovery finds Roku devices on the local network over SSDP.
package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sync/errgroup"

	"go2tv.app/uniremote/internal/domain"
	"go2tv.app/uniremote/internal/roku"
)

const (
	// SearchTarget is the ST Roku devices answer to.
	SearchTarget = "roku:ecp"

	DefaultBudget        = 3000 * time.Millisecond
	DefaultPacketTimeout = 750 * time.Millisecond
	DefaultInfoTimeout   = 1 * time.Second

	multicastAddr     = "239.255.255.250:1900"
	readBufferSize    = 2048
	enrichConcurrency = 4
)

var searchPayload = []byte("M-SEARCH * HTTP/1.1\r\n" +
	"HOST: 239.255.255.250:1900\r\n" +
	"MAN: \"ssdp:discover\"\r\n" +
	"MX: 2\r\n" +
	"ST: " + SearchTarget + "\r\n\r\n")

var (
	locationHeader = regexp.MustCompile(`(?im)^location:[ \t]*(\S[^\r\n]*)`)
	locationIP     = regexp.MustCompile(`https?://([0-9.]+):`)
)

// packetConn is the part of net.PacketConn the scan loop uses.
type packetConn interface {
	WriteTo(p []byte, addr net.Addr) (int, error)
	ReadFrom(p []byte) (int, net.Addr, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

var listenPacket = defaultListenPacket

var resolveMulticast = func() (net.Addr, error) {
	return net.ResolveUDPAddr("udp4", multicastAddr)
}

// InfoFetcher enriches a discovered location with its device-info.
type InfoFetcher interface {
	DeviceInfoAt(ctx context.Context, location string, timeout time.Duration) (*roku.DeviceInfo, error)
}

type Options struct {
	Budget        time.Duration
	PacketTimeout time.Duration
	InfoTimeout   time.Duration
	Logger        *slog.Logger
}

// Service runs active roku:ecp searches.
type Service struct {
	info          InfoFetcher
	budget        time.Duration
	packetTimeout time.Duration
	infoTimeout   time.Duration
	logger        *slog.Logger
}

func NewService(info InfoFetcher, opts Options) *Service {
	s := &Service{
		info:          info,
		budget:        opts.Budget,
		packetTimeout: opts.PacketTimeout,
		infoTimeout:   opts.InfoTimeout,
		logger:        opts.Logger,
	}
	if s.budget <= 0 {
		s.budget = DefaultBudget
	}
	if s.packetTimeout <= 0 {
		s.packetTimeout = DefaultPacketTimeout
	}
	if s.infoTimeout <= 0 {
		s.infoTimeout = DefaultInfoTimeout
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// Scan sends one M-SEARCH and collects answers until budget runs out.
// A zero budget uses the configured default. The returned slice is never
// nil; an error is only returned when the socket could not be used at all.
func (s *Service) Scan(ctx context.Context, budget time.Duration) ([]domain.RokuDevice, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if budget <= 0 {
		budget = s.budget
	}

	conn, err := listenPacket()
	if err != nil {
		return []domain.RokuDevice{}, fmt.Errorf("open ssdp socket: %w", err)
	}
	defer conn.Close()

	dst, err := resolveMulticast()
	if err != nil {
		return []domain.RokuDevice{}, fmt.Errorf("resolve ssdp group: %w", err)
	}
	if _, err := conn.WriteTo(searchPayload, dst); err != nil {
		return []domain.RokuDevice{}, fmt.Errorf("send m-search: %w", err)
	}

	started := time.Now()
	deadline := started.Add(budget)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	var (
		mu      sync.Mutex
		found   = map[string]*domain.RokuDevice{}
		skipped int
	)
	var enrich errgroup.Group
	enrich.SetLimit(enrichConcurrency)

	buf := make([]byte, readBufferSize)
	for ctx.Err() == nil {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		wait := s.packetTimeout
		if remaining < wait {
			wait = remaining
		}
		if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
			s.logger.Debug("ssdp_set_deadline_failed", slog.String("error", err.Error()))
			break
		}

		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if isReadTimeout(err) {
				continue
			}
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("ssdp_read_failed", slog.String("error", err.Error()))
			}
			break
		}

		location, address, ok := parseResponse(buf[:n])
		if !ok {
			skipped++
			s.logger.Debug("ssdp_response_skipped", slog.String("from", addrString(from)))
			continue
		}

		mu.Lock()
		dev, seen := found[location]
		if !seen {
			dev = &domain.RokuDevice{Address: address, Location: location}
			found[location] = dev
		}
		mu.Unlock()
		if seen {
			continue
		}

		if s.info != nil {
			enrich.Go(func() error {
				s.enrichDevice(ctx, &mu, dev, location)
				return nil
			})
		}
	}
	_ = enrich.Wait()

	out := make([]domain.RokuDevice, 0, len(found))
	for _, dev := range found {
		out = append(out, *dev)
	}
	sortDevices(out)

	s.logger.Info("ssdp_scan_done",
		slog.Int("devices", len(out)),
		slog.Int("skipped", skipped),
		slog.Duration("elapsed", time.Since(started)),
	)
	return out, nil
}

// enrichDevice is best effort: a device that will not answer keeps its
// address and location only.
func (s *Service) enrichDevice(ctx context.Context, mu *sync.Mutex, dev *domain.RokuDevice, location string) {
	info, err := s.info.DeviceInfoAt(ctx, location, s.infoTimeout)
	if err != nil {
		s.logger.Debug("roku_device_info_failed", slog.String("location", location), slog.String("error", err.Error()))
		return
	}
	mu.Lock()
	defer mu.Unlock()
	dev.FriendlyName = info.Name()
	dev.ModelName = strings.TrimSpace(info.ModelName)
}

// parseResponse pulls LOCATION and the bare IPv4 address out of one SSDP answer.
func parseResponse(raw []byte) (location, address string, ok bool) {
	if !bytes.HasPrefix(bytes.ToUpper(bytes.TrimSpace(raw)), []byte("HTTP/")) {
		return "", "", false
	}
	m := locationHeader.FindSubmatch(raw)
	if m == nil {
		return "", "", false
	}
	location = strings.TrimSpace(string(m[1]))
	ip := locationIP.FindStringSubmatch(location)
	if ip == nil || net.ParseIP(ip[1]) == nil {
		return "", "", false
	}
	return location, ip[1], true
}

func sortDevices(all []domain.RokuDevice) {
	sort.Slice(all, func(i, j int) bool {
		ni, nj := strings.ToLower(all[i].DisplayName()), strings.ToLower(all[j].DisplayName())
		if ni != nj {
			return ni < nj
		}
		if all[i].Address != all[j].Address {
			return all[i].Address < all[j].Address
		}
		return all[i].Location < all[j].Location
	})
}

func isReadTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}

func defaultListenPacket() (packetConn, error) {
	lc := net.ListenConfig{Control: enableBroadcast}
	conn, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return nil, err
	}
	p := ipv4.NewPacketConn(conn)
	if err := p.SetMulticastTTL(2); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}
