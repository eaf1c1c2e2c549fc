package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"devicegateway/imaging"
	"devicegateway/models"

	"github.com/rs/zerolog/log"
)

// FramePublisher interface to avoid import cycle with the api hub
type FramePublisher interface {
	PublishFrame(event models.FrameEvent)
	Count() int
}

// FrameSource is the part of Session the broadcaster reads from
type FrameSource interface {
	IsConnected() bool
	CaptureFrame(ctx context.Context) (*Frame, error)
}

const (
	// DefaultFPS is the streaming cadence when none is configured
	DefaultFPS = 10

	// DefaultCaptureTimeout bounds one capture when none is configured
	DefaultCaptureTimeout = 10 * time.Second
)

// Broadcaster captures, encodes and pushes one frame per tick. A tick
// either completes or is skipped; there is no frame queue.
type Broadcaster struct {
	source    FrameSource
	encoder   *imaging.Encoder
	publisher FramePublisher
	interval  time.Duration

	captureTimeout time.Duration

	framesSent atomic.Uint64
	failures   atomic.Uint64
	lastSeq    atomic.Uint64
}

func NewBroadcaster(source FrameSource, encoder *imaging.Encoder, publisher FramePublisher, fps int) *Broadcaster {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Broadcaster{
		source:    source,
		encoder:   encoder,
		publisher: publisher,
		interval:  time.Second / time.Duration(fps),

		captureTimeout: DefaultCaptureTimeout,
	}
}

// SetCaptureTimeout bounds each capture. Non-positive values keep the default.
func (b *Broadcaster) SetCaptureTimeout(d time.Duration) {
	if d > 0 {
		b.captureTimeout = d
	}
}

func (b *Broadcaster) CaptureTimeout() time.Duration {
	return b.captureTimeout
}

func (b *Broadcaster) Interval() time.Duration {
	return b.interval
}

// Run blocks until ctx is cancelled
func (b *Broadcaster) Run(ctx context.Context) {
	log.Info().Dur("interval", b.interval).Str("mime", b.encoder.MIME()).Msg("📡 Frame broadcaster started")

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Uint64("frames", b.framesSent.Load()).Msg("Frame broadcaster stopped")
			return
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

// tick runs one capture-encode-push cycle and reports whether a frame was sent
func (b *Broadcaster) tick(ctx context.Context) bool {
	if !b.source.IsConnected() {
		return false
	}

	captureCtx, cancel := context.WithTimeout(ctx, b.captureTimeout)
	defer cancel()

	frame, err := b.source.CaptureFrame(captureCtx)
	if err != nil {
		if !errors.Is(err, ErrNotConnected) && ctx.Err() == nil {
			b.failures.Add(1)
			log.Warn().Err(err).Msg("Frame capture failed")
		}
		return false
	}

	data, err := b.encoder.Encode(frame.Image)
	if err != nil {
		b.failures.Add(1)
		log.Warn().Err(err).Uint64("seq", frame.Sequence).Msg("Frame encode failed")
		return false
	}

	mime := b.encoder.MIME()
	b.publisher.PublishFrame(models.FrameEvent{
		Type:     "frame",
		Sequence: frame.Sequence,
		MIME:     mime,
		Data:     imaging.DataURL(mime, data),
	})

	sent := b.framesSent.Add(1)
	b.lastSeq.Store(frame.Sequence)
	if sent%10 == 0 {
		log.Debug().Uint64("frame", sent).Int("bytes", len(data)).Int("viewers", b.publisher.Count()).Msg("Broadcasting frame")
	}
	return true
}

func (b *Broadcaster) Stats() models.StreamStats {
	return models.StreamStats{
		FramesSent:   b.framesSent.Load(),
		Failures:     b.failures.Load(),
		LastSequence: b.lastSeq.Load(),
		Viewers:      b.publisher.Count(),
	}
}
