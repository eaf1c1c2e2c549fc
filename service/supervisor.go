package service

import (
	"context"
	"sync/atomic"
	"time"

	"devicegateway/models"

	"github.com/rs/zerolog/log"
)

// Phase is the lifecycle phase of the connection supervisor
type Phase int32

const (
	PhaseBooting    Phase = iota // Waiting for the device environment to boot
	PhaseConnecting              // Initial connect with retries
	PhaseOnline                  // Device connected
	PhaseOffline                 // Retries exhausted or liveness lost
)

func (p Phase) String() string {
	return [...]string{"BOOTING", "CONNECTING", "ONLINE", "OFFLINE"}[p]
}

// ManagedSession is the part of Session the supervisor drives
type ManagedSession interface {
	Connect(ctx context.Context) bool
	IsConnected() bool
	Probe(ctx context.Context) bool
	InjectInput(ctx context.Context, cmd models.InputCommand) (string, error)
}

type SupervisorOptions struct {
	BootGrace        time.Duration
	ConnectAttempts  int
	RetryDelay       time.Duration
	LivenessInterval time.Duration
	PrepSteps        []models.PrepStep
}

// Supervisor brings the session online after boot and keeps it online
type Supervisor struct {
	session ManagedSession
	opts    SupervisorOptions
	phase   atomic.Int32

	sleep func(ctx context.Context, d time.Duration) error
}

func NewSupervisor(session ManagedSession, opts SupervisorOptions) *Supervisor {
	if opts.ConnectAttempts <= 0 {
		opts.ConnectAttempts = 15
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 10 * time.Second
	}
	if opts.LivenessInterval <= 0 {
		opts.LivenessInterval = 30 * time.Second
	}
	return &Supervisor{
		session: session,
		opts:    opts,
		sleep:   sleepContext,
	}
}

func (s *Supervisor) Phase() Phase {
	return Phase(s.phase.Load())
}

func (s *Supervisor) setPhase(p Phase) {
	if old := Phase(s.phase.Swap(int32(p))); old != p {
		log.Info().Str("from", old.String()).Str("to", p.String()).Msg("🔄 Supervisor phase")
	}
}

// Run blocks until ctx is cancelled
func (s *Supervisor) Run(ctx context.Context) {
	s.setPhase(PhaseBooting)
	log.Info().Dur("grace", s.opts.BootGrace).Msg("⏳ Waiting for device to boot")
	if err := s.sleep(ctx, s.opts.BootGrace); err != nil {
		return
	}

	if s.connectWithRetries(ctx) {
		s.prepare(ctx)
	}

	ticker := time.NewTicker(s.opts.LivenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Supervisor stopped")
			return
		case <-ticker.C:
			s.checkLiveness(ctx)
		}
	}
}

// connectWithRetries tries up to ConnectAttempts times and reports whether
// the session came online.
func (s *Supervisor) connectWithRetries(ctx context.Context) bool {
	s.setPhase(PhaseConnecting)

	for attempt := 1; attempt <= s.opts.ConnectAttempts; attempt++ {
		if s.session.Connect(ctx) && s.session.IsConnected() {
			s.setPhase(PhaseOnline)
			log.Info().Int("attempt", attempt).Msg("✅ Device connected")
			return true
		}

		log.Warn().Int("attempt", attempt).Int("max", s.opts.ConnectAttempts).Msg("Connect attempt failed")
		if attempt < s.opts.ConnectAttempts {
			if err := s.sleep(ctx, s.opts.RetryDelay); err != nil {
				return false
			}
		}
	}

	s.setPhase(PhaseOffline)
	log.Error().Err(ErrConnectFailure).Int("attempts", s.opts.ConnectAttempts).
		Msg("❌ Running degraded: screenshots and input report not connected until a reconnect succeeds")
	return false
}

func (s *Supervisor) checkLiveness(ctx context.Context) {
	if s.session.Probe(ctx) {
		s.setPhase(PhaseOnline)
		return
	}

	s.setPhase(PhaseOffline)
	log.Warn().Msg("🔌 Device not reachable, reconnecting")

	if s.session.Connect(ctx) && s.session.IsConnected() {
		s.setPhase(PhaseOnline)
		log.Info().Msg("✅ Reconnected")
		// device settings may have reset with the device
		s.prepare(ctx)
	}
}

// prepare runs every preparation step; failures are logged and skipped
func (s *Supervisor) prepare(ctx context.Context) {
	ok := 0
	for _, step := range s.opts.PrepSteps {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.session.InjectInput(ctx, models.ShellCommand(step.Command)); err != nil {
			log.Warn().Err(err).Str("step", step.Name).Msg("Preparation step failed")
			continue
		}
		ok++
		log.Debug().Str("step", step.Name).Msg("Preparation step done")
	}
	log.Info().Int("ok", ok).Int("total", len(s.opts.PrepSteps)).Msg("🛠️ Device prepared")
}
