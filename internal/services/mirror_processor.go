package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"fintrack/internal/log"
)

var ErrProcessorRunning = errors.New("mirror processor already running")

// MirrorProcessorConfig tunes the poll loop. Zero values take the defaults
// of 30s and 10 records.
type MirrorProcessorConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// MirrorProcessor is the safety net behind event-driven mirroring: it
// reconciles once on start, then periodically retries every record still
// marked pending.
type MirrorProcessor struct {
	mirror  *Mirror
	every   time.Duration
	batch   int
	logger  *log.Logger
	slog    *log.StructuredLogger
	running atomic.Bool
}

func NewMirrorProcessor(mirror *Mirror, cfg MirrorProcessorConfig, logger *log.Logger) *MirrorProcessor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentMirror)
	return &MirrorProcessor{
		mirror: mirror,
		every:  cfg.PollInterval,
		batch:  cfg.BatchSize,
		logger: logger,
		slog:   log.NewStructuredLogger(logger),
	}
}

// Run blocks until ctx is done. A second concurrent Run fails with
// ErrProcessorRunning.
func (p *MirrorProcessor) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrProcessorRunning
	}
	defer p.running.Store(false)

	if n, err := p.mirror.Reconcile(ctx, p.batch*5); err != nil {
		p.logger.WarnContext(ctx, "Startup reconcile failed", log.FieldError, err)
	} else if n > 0 {
		p.logger.InfoContext(ctx, "Startup reconcile marked rows as mirrored", log.FieldCount, n)
	}
	p.logger.InfoContext(ctx, "Mirror poll loop running", "every", p.every, "batch", p.batch)

	tick := time.NewTicker(p.every)
	defer tick.Stop()
	for {
		p.poll(ctx)
		select {
		case <-ctx.Done():
			p.logger.Info("Mirror poll loop stopped")
			return nil
		case <-tick.C:
		}
	}
}

func (p *MirrorProcessor) Running() bool {
	return p.running.Load()
}

func (p *MirrorProcessor) poll(ctx context.Context) {
	synced, failed, err := p.mirror.ProcessPending(ctx, p.batch)
	if err != nil {
		if ctx.Err() == nil {
			p.slog.LogError(ctx, "Mirror batch failed", err, log.ComponentMirror, log.OpSync, nil)
		}
		return
	}
	if synced+failed > 0 {
		p.logger.InfoContext(ctx, "Mirror batch processed", "synced", synced, "failed", failed)
	}
}
