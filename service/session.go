package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"devicegateway/adb"
	"devicegateway/imaging"
	"devicegateway/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotConnected means there is no usable device session
	ErrNotConnected = errors.New("device not connected")
	// ErrConnectFailure means the connect retry budget was exhausted
	ErrConnectFailure = errors.New("connect retries exhausted")
	// ErrTransport wraps underlying I/O failures
	ErrTransport = errors.New("transport failure")
	// ErrInvalidInput means an input command could not be serialized
	ErrInvalidInput = errors.New("invalid input")
)

// Transport is what a Session needs from the adb host protocol client
type Transport interface {
	Connect(ctx context.Context, host string, port int) (string, error)
	ListDevices(ctx context.Context) ([]models.DeviceEntry, error)
	State(ctx context.Context, serial string) (string, error)
	Framebuffer(ctx context.Context, serial string) (*adb.Framebuffer, error)
	Shell(ctx context.Context, serial, command string) (string, error)
	Pull(ctx context.Context, serial, remotePath string) ([]byte, error)
}

// CaptureStrategy selects how frames are pulled off the device
type CaptureStrategy string

const (
	CaptureFramebuffer CaptureStrategy = "framebuffer"
	CaptureScreencap   CaptureStrategy = "screencap"
)

type SessionOptions struct {
	Host        string
	Port        int
	HostAliases map[string]string // logical host -> locally reachable address

	Selection        []SelectionRule
	ConnectPolls     int
	ConnectPollDelay time.Duration
	CommandTimeout   time.Duration

	Capture      CaptureStrategy
	ChannelOrder imaging.ChannelOrder

	// Declared dimensions, reported until the first capture measures real ones
	DeclaredWidth  int
	DeclaredHeight int
}

func (o *SessionOptions) setDefaults() {
	if o.Port == 0 {
		o.Port = 5555
	}
	if len(o.Selection) == 0 {
		o.Selection = DefaultSelection
	}
	if o.ConnectPolls <= 0 {
		o.ConnectPolls = 10
	}
	if o.ConnectPollDelay <= 0 {
		o.ConnectPollDelay = 2 * time.Second
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 10 * time.Second
	}
	if o.Capture == "" {
		o.Capture = CaptureFramebuffer
	}
	if o.ChannelOrder == "" {
		o.ChannelOrder = imaging.OrderRGBA
	}
}

// Frame is one decoded screen capture
type Frame struct {
	Image      *image.RGBA
	Width      int
	Height     int
	BPP        int
	CapturedAt time.Time
	Sequence   uint64
}

// SessionSnapshot is a consistent copy of the session state
type SessionSnapshot struct {
	Serial       string
	State        models.SessionState
	Width        int
	Height       int
	LastActivity time.Time
}

// Session is the single managed device connection. State is guarded by mu,
// which is never held across transport I/O.
type Session struct {
	transport Transport
	opts      SessionOptions

	// Test hooks
	sleep      func(ctx context.Context, d time.Duration) error
	lookupHost func(ctx context.Context, host string) ([]string, error)

	connectMu sync.Mutex

	mu           sync.RWMutex
	serial       string
	state        models.SessionState
	width        int
	height       int
	lastActivity time.Time
	generation   uint64

	seq         atomic.Uint64
	logGeometry sync.Once
}

func NewSession(transport Transport, opts SessionOptions) *Session {
	opts.setDefaults()
	return &Session{
		transport:  transport,
		opts:       opts,
		sleep:      sleepContext,
		lookupHost: net.DefaultResolver.LookupHost,
		state:      models.SessionDisconnected,
	}
}

// Endpoint returns the configured device host and port
func (s *Session) Endpoint() (string, int) {
	return s.opts.Host, s.opts.Port
}

// Connect attaches the configured device and adopts one from the device
// list. It returns false only when no device at all is visible after the
// poll budget.
func (s *Session) Connect(ctx context.Context) bool {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.mu.Lock()
	s.state = models.SessionConnecting
	s.mu.Unlock()

	host := s.resolveHost(ctx, s.opts.Host)
	logger := log.With().Str("host", host).Int("port", s.opts.Port).Logger()

	connectCtx, cancel := s.opContext(ctx)
	msg, err := s.transport.Connect(connectCtx, host, s.opts.Port)
	cancel()
	if err != nil {
		// The device often shows up anyway, so keep polling
		logger.Warn().Err(err).Msg("adb connect call failed")
	} else {
		logger.Debug().Str("reply", msg).Msg("adb connect")
	}

	eager := Eager(s.opts.Selection)
	for poll := 1; poll <= s.opts.ConnectPolls; poll++ {
		devices, err := s.listDevices(ctx)
		if err != nil {
			logger.Warn().Err(err).Int("poll", poll).Msg("list devices failed")
		} else if d, ok := SelectDevice(devices, host, s.opts.Port, eager); ok {
			s.adopt(d)
			logger.Info().Str("serial", d.Serial).Str("state", d.State).Int("poll", poll).Msg("📱 Device selected")
			return true
		}

		if poll < s.opts.ConnectPolls {
			if err := s.sleep(ctx, s.opts.ConnectPollDelay); err != nil {
				break
			}
		}
	}

	// Last resort: the full policy, which may accept a device in any state
	devices, err := s.listDevices(ctx)
	if err == nil {
		if d, ok := SelectDevice(devices, host, s.opts.Port, s.opts.Selection); ok {
			s.adopt(d)
			logger.Warn().Str("serial", d.Serial).Str("state", d.State).Msg("⚠️ Adopted device as last resort")
			return true
		}
	}

	s.mu.Lock()
	s.serial = ""
	s.state = models.SessionDisconnected
	s.generation++
	s.mu.Unlock()

	logger.Error().Err(err).Msg("❌ No devices found")
	return false
}

func (s *Session) listDevices(ctx context.Context) ([]models.DeviceEntry, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.transport.ListDevices(ctx)
}

func (s *Session) adopt(d models.DeviceEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.Serial != s.serial {
		// measured dimensions belong to the previous device
		s.width, s.height = 0, 0
	}
	s.serial = d.Serial
	s.generation++
	if d.Online() {
		s.state = models.SessionOnline
		s.lastActivity = time.Now()
	} else {
		s.state = models.SessionOffline
	}
}

// resolveHost maps a container alias to its local address when the alias
// itself does not resolve from here.
func (s *Session) resolveHost(ctx context.Context, host string) string {
	alias, ok := s.opts.HostAliases[host]
	if !ok {
		return host
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if addrs, err := s.lookupHost(ctx, host); err == nil && len(addrs) > 0 {
		return host
	}

	log.Debug().Str("alias", host).Str("resolved", alias).Msg("host alias not resolvable, using mapped address")
	return alias
}

// Probe checks liveness of the adopted device and updates the state. A
// probe that raced with a newer Connect is discarded.
func (s *Session) Probe(ctx context.Context) bool {
	s.mu.RLock()
	serial, gen := s.serial, s.generation
	s.mu.RUnlock()

	if serial == "" {
		return false
	}

	ctx, cancel := s.opContext(ctx)
	state, err := s.transport.State(ctx, serial)
	cancel()
	online := err == nil && state == "device"

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return s.state == models.SessionOnline
	}
	if online {
		s.state = models.SessionOnline
		s.lastActivity = time.Now()
	} else {
		if s.state == models.SessionOnline {
			log.Warn().Err(err).Str("serial", serial).Str("state", state).Msg("⚠️ Liveness probe failed")
		}
		s.state = models.SessionOffline
	}
	return online
}

func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == models.SessionOnline
}

// DeviceID returns the adopted serial, if any
func (s *Session) DeviceID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serial, s.serial != ""
}

// Dimensions returns measured dimensions, falling back to declared ones
func (s *Session) Dimensions() (int, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.width > 0 && s.height > 0 {
		return s.width, s.height, true
	}
	if s.opts.DeclaredWidth > 0 && s.opts.DeclaredHeight > 0 {
		return s.opts.DeclaredWidth, s.opts.DeclaredHeight, true
	}
	return 0, 0, false
}

func (s *Session) Snapshot() SessionSnapshot {
	w, h, _ := s.Dimensions()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionSnapshot{
		Serial:       s.serial,
		State:        s.state,
		Width:        w,
		Height:       h,
		LastActivity: s.lastActivity,
	}
}

// onlineSerial returns the serial only while the session is online
func (s *Session) onlineSerial() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != models.SessionOnline || s.serial == "" {
		return "", false
	}
	return s.serial, true
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// opContext bounds an operation by CommandTimeout unless the caller
// already set a deadline.
func (s *Session) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.CommandTimeout)
}

// CaptureFrame grabs and decodes the current screen
func (s *Session) CaptureFrame(ctx context.Context) (*Frame, error) {
	serial, ok := s.onlineSerial()
	if !ok {
		return nil, ErrNotConnected
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var (
		raw           []byte
		width, height int
		bpp           int
	)

	switch s.opts.Capture {
	case CaptureScreencap:
		sc, err := s.screencap(ctx, serial)
		if err != nil {
			return nil, err
		}
		raw, width, height, bpp = sc.Data, sc.Width, sc.Height, sc.BPP
	default:
		fb, err := s.transport.Framebuffer(ctx, serial)
		if err != nil {
			return nil, fmt.Errorf("%w: framebuffer: %w", ErrTransport, err)
		}
		raw, width, height, bpp = fb.Data, fb.Width, fb.Height, fb.BPP
		s.logGeometry.Do(func() {
			log.Debug().
				Int("version", int(fb.Version)).
				Int("bpp", fb.BPP).
				Uint32("red_offset", fb.RedOffset).
				Uint32("green_offset", fb.GreenOffset).
				Uint32("blue_offset", fb.BlueOffset).
				Uint32("alpha_offset", fb.AlphaOffset).
				Hex("first_pixel", firstBytes(fb.Data, 4)).
				Str("channel_order", string(s.opts.ChannelOrder)).
				Msg("framebuffer geometry")
		})
	}

	img, err := imaging.Decode(raw, width, height, bpp, s.opts.ChannelOrder)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s.mu.Lock()
	s.width, s.height = width, height
	s.lastActivity = now
	s.mu.Unlock()

	return &Frame{
		Image:      img,
		Width:      width,
		Height:     height,
		BPP:        bpp,
		CapturedAt: now,
		Sequence:   s.seq.Add(1),
	}, nil
}

// screencap writes a raw capture to device storage, pulls it and removes it
func (s *Session) screencap(ctx context.Context, serial string) (*adb.Screencap, error) {
	remote := fmt.Sprintf("/sdcard/%s.raw", uuid.NewString())

	if _, err := s.transport.Shell(ctx, serial, "screencap "+remote); err != nil {
		return nil, fmt.Errorf("%w: screencap: %w", ErrTransport, err)
	}
	defer func() {
		rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, err := s.transport.Shell(rmCtx, serial, "rm -f "+remote); err != nil {
			log.Warn().Err(err).Str("path", remote).Msg("failed to remove remote capture")
		}
	}()

	data, err := s.transport.Pull(ctx, serial, remote)
	if err != nil {
		return nil, fmt.Errorf("%w: pull %s: %w", ErrTransport, remote, err)
	}

	sc, err := adb.ParseScreencap(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", imaging.ErrDecode, err)
	}
	return sc, nil
}

// InjectInput runs one input command on the device. Shell commands return
// their output; other kinds return whatever the input tool printed.
func (s *Session) InjectInput(ctx context.Context, cmd models.InputCommand) (string, error) {
	serial, ok := s.onlineSerial()
	if !ok {
		return "", ErrNotConnected
	}

	line, err := commandLine(cmd)
	if err != nil {
		return "", err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	out, err := s.transport.Shell(ctx, serial, line)
	if err != nil {
		log.Warn().Err(err).Str("serial", serial).Str("kind", string(cmd.Kind)).Msg("input failed")
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}

	s.touch()
	return out, nil
}

func firstBytes(b []byte, n int) []byte {
	if len(b) < n {
		return b
	}
	return b[:n]
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
