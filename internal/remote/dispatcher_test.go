package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"go2tv.app/uniremote/internal/adapters"
	"go2tv.app/uniremote/internal/domain"
	"go2tv.app/uniremote/internal/firetv"
	"go2tv.app/uniremote/internal/roku"
)

type spyTransport struct {
	mu     sync.Mutex
	paths  []string
	status int
}

func (s *spyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	s.paths = append(s.paths, req.Method+" "+req.URL.Host+req.URL.Path)
	status := s.status
	s.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(strings.NewReader("")),
		Header:     http.Header{},
		Request:    req,
	}, nil
}

func (s *spyTransport) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

type fakeFireTV struct {
	available bool
	target    *domain.Receiver
	calls     []string
	state     domain.PlaybackState
}

func (f *fakeFireTV) Available() bool { return f.available }

func (f *fakeFireTV) Connect(r domain.Receiver) {
	f.calls = append(f.calls, "connect:"+r.ID)
	f.target = &r
	f.state = domain.PlaybackIdle
}

func (f *fakeFireTV) Target() (domain.Receiver, bool) {
	if f.target == nil {
		return domain.Receiver{}, false
	}
	return *f.target, true
}

func (f *fakeFireTV) Play(url string) {
	if url == "" {
		f.calls = append(f.calls, "play")
	} else {
		f.calls = append(f.calls, "play:"+url)
	}
	f.state = domain.PlaybackPlaying
}

func (f *fakeFireTV) Pause() {
	f.calls = append(f.calls, "pause")
	f.state = domain.PlaybackPaused
}

func (f *fakeFireTV) Stop() {
	f.calls = append(f.calls, "stop")
	f.state = domain.PlaybackIdle
}

func (f *fakeFireTV) Playback() domain.PlaybackState { return f.state }

type fakeSink struct {
	saved []string
	err   error
}

func (s *fakeSink) SaveReceiverID(_ context.Context, id string) error {
	s.saved = append(s.saved, id)
	return s.err
}

func newTestDispatcher(status int) (*Dispatcher, *spyTransport, *fakeFireTV) {
	transport := &spyTransport{status: status}
	firetv := &fakeFireTV{available: true, state: domain.PlaybackIdle}
	client := roku.NewClient(roku.Options{Transport: transport})
	return NewDispatcher(client, firetv, &fakeSink{}, nil), transport, firetv
}

func requireKind(t *testing.T, err error, kind domain.ErrorKind) *domain.RemoteError {
	t.Helper()
	var remoteErr *domain.RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected *domain.RemoteError, got %T (%v)", err, err)
	}
	if remoteErr.Kind != kind {
		t.Fatalf("expected %s error, got %s (%s)", kind, remoteErr.Kind, remoteErr.Message)
	}
	return remoteErr
}

func TestVolumeUpEndToEnd(t *testing.T) {
	d, transport, _ := newTestDispatcher(http.StatusOK)

	out, err := d.Dispatch(context.Background(), domain.CommandVolumeUp, domain.ModeRoku, domain.Settings{RokuAddress: "10.0.0.5"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !out.OK || out.Message != "Command sent to Roku" || out.Key != "VolumeUp" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(transport.paths) != 1 || transport.paths[0] != "POST 10.0.0.5:8060/keypress/VolumeUp" {
		t.Fatalf("unexpected requests %v", transport.paths)
	}
}

func TestMissingRokuAddressMakesNoNetworkCall(t *testing.T) {
	d, transport, _ := newTestDispatcher(http.StatusOK)

	for _, mode := range []domain.Mode{domain.ModeRoku, domain.ModeFireTV} {
		_, err := d.Dispatch(context.Background(), domain.CommandVolumeUp, mode, domain.Settings{RokuAddress: "  "})
		remoteErr := requireKind(t, err, domain.KindPrecondition)
		if remoteErr.Message != "Please configure Roku IP in settings" {
			t.Fatalf("unexpected message %q", remoteErr.Message)
		}
	}
	if transport.calls() != 0 {
		t.Fatalf("expected zero network calls, got %d", transport.calls())
	}
}

func TestTVCommandsGoToRokuInFireTVMode(t *testing.T) {
	d, transport, firetv := newTestDispatcher(http.StatusOK)
	settings := domain.Settings{RokuAddress: "10.0.0.5", FireTVReceiverID: "amzn1.tv"}

	for _, cmd := range []domain.Command{domain.CommandVolumeUp, domain.CommandVolumeDown, domain.CommandPower} {
		out, err := d.Dispatch(context.Background(), cmd, domain.ModeFireTV, settings)
		if err != nil {
			t.Fatalf("%s: %v", cmd, err)
		}
		if out.Backend != domain.BackendRoku {
			t.Fatalf("%s routed to %s", cmd, out.Backend)
		}
	}
	if transport.calls() != 3 {
		t.Fatalf("expected three roku calls, got %d", transport.calls())
	}
	if len(firetv.calls) != 0 {
		t.Fatalf("expected no fire tv calls, got %v", firetv.calls)
	}
	if transport.paths[2] != "POST 10.0.0.5:8060/keypress/PowerOff" {
		t.Fatalf("power should map to PowerOff, got %s", transport.paths[2])
	}
}

func TestFireTVNavigationIsUnsupported(t *testing.T) {
	d, transport, firetv := newTestDispatcher(http.StatusOK)
	settings := domain.Settings{RokuAddress: "10.0.0.5", FireTVReceiverID: "amzn1.tv"}

	for _, cmd := range []domain.Command{domain.CommandHome, domain.CommandBack, domain.CommandUp, domain.CommandOK} {
		_, err := d.Dispatch(context.Background(), cmd, domain.ModeFireTV, settings)
		remoteErr := requireKind(t, err, domain.KindUnsupported)
		if !strings.Contains(remoteErr.Message, "not supported by Fling SDK") {
			t.Fatalf("unexpected message %q", remoteErr.Message)
		}
	}
	if transport.calls() != 0 || len(firetv.calls) != 0 {
		t.Fatalf("expected no calls, roku=%d firetv=%v", transport.calls(), firetv.calls)
	}
}

func TestFireTVPlayNeedsReceiver(t *testing.T) {
	d, _, firetv := newTestDispatcher(http.StatusOK)

	_, err := d.Dispatch(context.Background(), domain.CommandPlay, domain.ModeFireTV, domain.Settings{})
	remoteErr := requireKind(t, err, domain.KindPrecondition)
	if !strings.Contains(remoteErr.Message, "Select a Fire TV") {
		t.Fatalf("unexpected message %q", remoteErr.Message)
	}
	if len(firetv.calls) != 0 {
		t.Fatalf("expected no fire tv calls, got %v", firetv.calls)
	}
}

func TestFireTVPlayPauseConnectsLazily(t *testing.T) {
	d, transport, firetv := newTestDispatcher(http.StatusOK)
	settings := domain.Settings{FireTVReceiverID: "amzn1.tv"}

	out, err := d.Dispatch(context.Background(), domain.CommandPlay, domain.ModeFireTV, settings)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if out.Backend != domain.BackendFireTV || out.Key != "PLAY" || out.Playback != domain.PlaybackPlaying {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if _, err := d.Dispatch(context.Background(), domain.CommandPause, domain.ModeFireTV, settings); err != nil {
		t.Fatalf("pause: %v", err)
	}

	want := []string{"connect:amzn1.tv", "play", "pause"}
	if strings.Join(firetv.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", firetv.calls, want)
	}
	if transport.calls() != 0 {
		t.Fatalf("expected no roku calls, got %d", transport.calls())
	}
}

func TestFireTVUnavailableIsReported(t *testing.T) {
	d, _, firetv := newTestDispatcher(http.StatusOK)
	firetv.available = false

	_, err := d.Dispatch(context.Background(), domain.CommandPlay, domain.ModeFireTV, domain.Settings{FireTVReceiverID: "amzn1.tv"})
	requireKind(t, err, domain.KindUnsupported)
}

func TestRokuFailurePassesThrough(t *testing.T) {
	d, _, _ := newTestDispatcher(http.StatusForbidden)

	_, err := d.Dispatch(context.Background(), domain.CommandOK, domain.ModeRoku, domain.Settings{RokuAddress: "10.0.0.5"})
	remoteErr := requireKind(t, err, domain.KindProtocol)
	if !strings.Contains(remoteErr.Message, "External Control") {
		t.Fatalf("unexpected message %q", remoteErr.Message)
	}
}

func TestSendRokuKeyValidatesVocabulary(t *testing.T) {
	d, transport, _ := newTestDispatcher(http.StatusOK)
	settings := domain.Settings{RokuAddress: "10.0.0.5"}

	if _, err := d.SendRokuKey(context.Background(), settings, "select"); err == nil {
		t.Fatal("expected lowercase key to be rejected")
	}
	if _, err := d.SendRokuKey(context.Background(), settings, "VolumeMute"); err != nil {
		t.Fatalf("volume mute: %v", err)
	}
	if _, err := d.PowerOn(context.Background(), settings); err != nil {
		t.Fatalf("power on: %v", err)
	}
	if transport.calls() != 2 || transport.paths[1] != "POST 10.0.0.5:8060/keypress/PowerOn" {
		t.Fatalf("unexpected requests %v", transport.paths)
	}
}

func TestValidateRokuMessages(t *testing.T) {
	d, _, _ := newTestDispatcher(http.StatusOK)
	out, err := d.ValidateRoku(context.Background(), domain.Settings{RokuAddress: "10.0.0.5"})
	if err != nil || out.Message != "Roku connected successfully!" {
		t.Fatalf("unexpected validate result %+v %v", out, err)
	}

	d, _, _ = newTestDispatcher(http.StatusServiceUnavailable)
	_, err = d.ValidateRoku(context.Background(), domain.Settings{RokuAddress: "10.0.0.5"})
	remoteErr := requireKind(t, err, domain.KindProtocol)
	if !strings.HasPrefix(remoteErr.Message, "Roku validation failed: HTTP ") {
		t.Fatalf("unexpected message %q", remoteErr.Message)
	}
}

func TestLaunchIgnoresModeAndUsesFavoriteLabel(t *testing.T) {
	d, transport, _ := newTestDispatcher(http.StatusOK)
	settings := domain.Settings{
		RokuAddress: "10.0.0.5",
		LastMode:    domain.ModeFireTV,
		Favorites:   []domain.Favorite{{Label: "Netflix", AppID: "12"}},
	}

	out, err := d.Launch(context.Background(), settings, domain.LaunchRequest{AppID: "12"})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if out.Message != "Launching Netflix" {
		t.Fatalf("unexpected message %q", out.Message)
	}
	out, err = d.Launch(context.Background(), settings, domain.LaunchRequest{AppID: "2213"})
	if err != nil || out.Message != "Launching app" {
		t.Fatalf("unexpected fallback label %+v %v", out, err)
	}
	if transport.paths[0] != "POST 10.0.0.5:8060/launch/12" {
		t.Fatalf("unexpected request %s", transport.paths[0])
	}
}

func TestLaunchFavoriteFuzzyMatch(t *testing.T) {
	d, transport, _ := newTestDispatcher(http.StatusOK)
	settings := domain.Settings{
		RokuAddress: "10.0.0.5",
		Favorites: []domain.Favorite{
			{Label: "YouTube", AppID: "837"},
			{Label: "Fire TV HDMI", AppID: "tvinput.hdmi2"},
		},
	}

	out, err := d.LaunchFavorite(context.Background(), settings, "hdmi")
	if err != nil {
		t.Fatalf("launch favorite: %v", err)
	}
	if out.Message != "Launching Fire TV HDMI" || transport.paths[0] != "POST 10.0.0.5:8060/launch/tvinput.hdmi2" {
		t.Fatalf("unexpected result %+v %v", out, transport.paths)
	}

	_, err = d.LaunchFavorite(context.Background(), settings, "zzz")
	requireKind(t, err, domain.KindPrecondition)
}

func TestSwitchToFireTVInput(t *testing.T) {
	d, transport, _ := newTestDispatcher(http.StatusOK)

	_, err := d.SwitchToFireTVInput(context.Background(), domain.Settings{RokuAddress: "10.0.0.5"})
	remoteErr := requireKind(t, err, domain.KindPrecondition)
	if remoteErr.Message != "Set Fire TV input in Settings" {
		t.Fatalf("unexpected message %q", remoteErr.Message)
	}

	out, err := d.SwitchToFireTVInput(context.Background(), domain.Settings{RokuAddress: "10.0.0.5", FireTVInput: "tvinput.hdmi1"})
	if err != nil || out.Message != "Switched to Fire TV input" {
		t.Fatalf("unexpected result %+v %v", out, err)
	}
	if transport.calls() != 1 || transport.paths[0] != "POST 10.0.0.5:8060/launch/tvinput.hdmi1" {
		t.Fatalf("unexpected requests %v", transport.paths)
	}
}

func TestSelectReceiverConnectsAndPersists(t *testing.T) {
	firetv := &fakeFireTV{available: true}
	sink := &fakeSink{}
	d := NewDispatcher(nil, firetv, sink, nil)

	out, err := d.SelectReceiver(context.Background(), domain.Receiver{ID: "amzn1.tv", FriendlyName: "Den"})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if out.Message != "Selected Den" || len(sink.saved) != 1 || sink.saved[0] != "amzn1.tv" {
		t.Fatalf("unexpected result %+v saved=%v", out, sink.saved)
	}
	if len(firetv.calls) != 1 || firetv.calls[0] != "connect:amzn1.tv" {
		t.Fatalf("unexpected calls %v", firetv.calls)
	}

	sink.err = errors.New("disk full")
	_, err = d.SelectReceiver(context.Background(), domain.Receiver{ID: "amzn1.tv"})
	requireKind(t, err, domain.KindInternal)
}

func TestActionsEnabled(t *testing.T) {
	cases := []struct {
		settings domain.Settings
		mode     domain.Mode
		want     bool
	}{
		{domain.Settings{}, domain.ModeRoku, false},
		{domain.Settings{RokuAddress: "10.0.0.5"}, domain.ModeRoku, true},
		{domain.Settings{RokuAddress: "10.0.0.5"}, domain.ModeFireTV, false},
		{domain.Settings{FireTVReceiverID: "amzn1.tv"}, domain.ModeFireTV, true},
	}
	for _, tc := range cases {
		if got := ActionsEnabled(tc.settings, tc.mode); got != tc.want {
			t.Fatalf("ActionsEnabled(%+v, %s) = %v, want %v", tc.settings, tc.mode, got, tc.want)
		}
	}
}

type vendorPlayer struct {
	id    string
	mu    sync.Mutex
	calls []string
}

func (p *vendorPlayer) UniqueIdentifier() string { return p.id }
func (p *vendorPlayer) Name() string             { return "Living Room" }
func (p *vendorPlayer) Play() error              { p.record("play"); return nil }
func (p *vendorPlayer) Pause() error             { p.record("pause"); return nil }
func (p *vendorPlayer) Stop() error              { p.record("stop"); return nil }

func (p *vendorPlayer) SetMediaSource(string, string, bool, bool) error {
	p.record("source")
	return nil
}

func (p *vendorPlayer) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *vendorPlayer) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type vendorSDK struct {
	player adapters.RemoteMediaPlayer
}

func (s *vendorSDK) NewDiscoveryController() (adapters.DiscoveryController, error) {
	return &vendorController{player: s.player}, nil
}

func (s *vendorSDK) DefaultServiceID() string { return "" }

type vendorController struct {
	player adapters.RemoteMediaPlayer
}

func (c *vendorController) Start(_ string, l adapters.PlayerListener) error {
	l.PlayerDiscovered(c.player)
	return nil
}

func (c *vendorController) Stop() error { return nil }

// A receiver restored from settings is connected before any scan has run;
// presses after a later scan must reach it.
func TestFireTVPressAfterLaterDiscoveryReachesReceiver(t *testing.T) {
	player := &vendorPlayer{id: "amzn1.tv"}
	client := firetv.New(firetv.Options{SDK: &vendorSDK{player: player}})
	d := NewDispatcher(roku.NewClient(roku.Options{Transport: &spyTransport{}}), client, &fakeSink{}, nil)
	settings := domain.Settings{FireTVReceiverID: "amzn1.tv"}

	if _, err := d.Dispatch(context.Background(), domain.CommandPlay, domain.ModeFireTV, settings); err != nil {
		t.Fatalf("first play: %v", err)
	}
	if calls := player.recorded(); len(calls) != 0 {
		t.Fatalf("expected no vendor calls before discovery, got %v", calls)
	}

	client.StartDiscovery(context.Background(), "", nil, nil)
	client.StopDiscovery()

	if _, err := d.Dispatch(context.Background(), domain.CommandPlay, domain.ModeFireTV, settings); err != nil {
		t.Fatalf("second play: %v", err)
	}
	if _, err := d.Dispatch(context.Background(), domain.CommandPause, domain.ModeFireTV, settings); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if got := strings.Join(player.recorded(), ","); got != "play,pause" {
		t.Fatalf("vendor calls = %q, want play,pause", got)
	}
}
