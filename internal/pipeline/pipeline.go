// Package pipeline wires signal intake, event classification and
// composition, the durable event log, snapshot analysis, and decision
// evaluation into a single per-stream orchestrator.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vigild/internal/advisory"
	"github.com/fyrsmithlabs/vigild/internal/decision"
	"github.com/fyrsmithlabs/vigild/internal/engine"
	"github.com/fyrsmithlabs/vigild/internal/event"
	"github.com/fyrsmithlabs/vigild/internal/logging"
	"github.com/fyrsmithlabs/vigild/internal/signal"
	"github.com/fyrsmithlabs/vigild/internal/snapshot"
	"github.com/fyrsmithlabs/vigild/internal/store"
)

// Config tunes the orchestration loop.
type Config struct {
	Stream         string
	SnapshotWindow time.Duration
	EvalInterval   time.Duration
	QueueSize      int
	ReorderWindow  time.Duration
}

// Deps are the collaborators a Pipeline coordinates. All of them must be
// non-nil; use advisory.Nop and NewMemoryAuditLog where a concern is
// disabled.
type Deps struct {
	Classifier *engine.Classifier
	Composer   *engine.Composer
	Store      store.Store
	Builder    *snapshot.Builder
	Decider    *decision.Engine
	Advisor    advisory.Advisor
	Audit      *AuditLog
	Logger     *logging.Logger
}

// Pipeline is the single-writer orchestrator for one monitored stream.
// Decision state lives here and only the Run loop mutates it; readers go
// through State and LastDecision.
type Pipeline struct {
	cfg  Config
	deps Deps

	reorder *engine.ReorderBuffer
	signals chan event.Signal

	mu            sync.Mutex
	state         decision.State
	lastDecision  *decision.Decision
	lastWindowEnd time.Time
	observed      time.Time

	advisoryWG sync.WaitGroup
}

// New builds a pipeline in the IDLE state.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if cfg.SnapshotWindow <= 0 {
		return nil, fmt.Errorf("snapshot window must be positive, got %s", cfg.SnapshotWindow)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Advisor == nil {
		deps.Advisor = advisory.Nop{}
	}
	if deps.Audit == nil {
		deps.Audit = NewMemoryAuditLog()
	}
	return &Pipeline{
		cfg:     cfg,
		deps:    deps,
		reorder: engine.NewReorderBuffer(cfg.ReorderWindow),
		signals: make(chan event.Signal, cfg.QueueSize),
		state:   decision.StateIdle,
	}, nil
}

// State returns the current decision state.
func (p *Pipeline) State() decision.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// LastDecision returns a copy of the most recent decision, if any.
func (p *Pipeline) LastDecision() *decision.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastDecision == nil {
		return nil
	}
	d := *p.lastDecision
	return &d
}

// Audit exposes the decision trail for the inspection API.
func (p *Pipeline) Audit() *AuditLog { return p.deps.Audit }

// Offer enqueues a signal without blocking. When the queue is full the
// signal is dropped and counted; intake pressure must never stall the
// evaluation loop.
func (p *Pipeline) Offer(ctx context.Context, sig event.Signal) {
	select {
	case p.signals <- sig:
	default:
		signalsDropped.Inc()
		p.deps.Logger.Warn(ctx, "signal queue full, dropping signal",
			zap.String("stream", sig.Stream),
			zap.Time("timestamp", sig.Timestamp))
	}
}

// Run consumes the source until it reports io.EOF or ctx is canceled.
// On EOF the reorder buffer is flushed and a final evaluation is run so
// bounded recordings settle to a terminal decision.
func (p *Pipeline) Run(ctx context.Context, src signal.Source) error {
	intakeDone := make(chan error, 1)
	go p.intake(ctx, src, intakeDone)

	ticker := time.NewTicker(p.evalInterval())
	defer ticker.Stop()
	defer p.advisoryWG.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-p.signals:
			p.ingest(ctx, sig)
		case <-ticker.C:
			p.mu.Lock()
			watermark := p.observed
			p.mu.Unlock()
			if !watermark.IsZero() {
				p.evaluate(ctx, watermark)
			}
		case err := <-intakeDone:
			p.drain(ctx)
			p.finish(ctx)
			return err
		}
	}
}

func (p *Pipeline) evalInterval() time.Duration {
	if p.cfg.EvalInterval > 0 {
		return p.cfg.EvalInterval
	}
	return 10 * time.Second
}

// intake pulls from the source and hands signals to Offer. Rejected
// signals are counted and skipped; the stream keeps going.
func (p *Pipeline) intake(ctx context.Context, src signal.Source, done chan<- error) {
	defer src.Close()
	for {
		sig, err := src.Next(ctx)
		switch {
		case err == nil:
			p.Offer(ctx, sig)
		case errors.Is(err, io.EOF):
			done <- nil
			return
		case errors.Is(err, event.ErrSignalRejected):
			p.deps.Logger.Warn(ctx, "rejected malformed signal", zap.Error(err))
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			done <- nil
			return
		default:
			done <- fmt.Errorf("signal source: %w", err)
			return
		}
	}
}

// drain empties whatever intake managed to enqueue before EOF.
func (p *Pipeline) drain(ctx context.Context) {
	for {
		select {
		case sig := <-p.signals:
			p.ingest(ctx, sig)
		default:
			return
		}
	}
}

// finish flushes the reorder buffer and evaluates the final window.
func (p *Pipeline) finish(ctx context.Context) {
	for _, sig := range p.reorder.Flush() {
		p.step(ctx, sig)
	}
	p.mu.Lock()
	watermark := p.observed
	p.mu.Unlock()
	if !watermark.IsZero() {
		p.evaluate(ctx, watermark)
	}
}

func (p *Pipeline) ingest(ctx context.Context, sig event.Signal) {
	released, late := p.reorder.Offer(sig)
	if late {
		p.deps.Logger.Warn(ctx, "signal behind reorder watermark, dropped",
			zap.String("stream", sig.Stream),
			zap.Time("timestamp", sig.Timestamp))
	}
	for _, s := range released {
		p.step(ctx, s)
	}
}

// step runs one signal through classify, persist, compose. An event is
// only offered for composition after its append succeeded: nothing
// becomes visible to analysis before it is durable.
func (p *Pipeline) step(ctx context.Context, sig event.Signal) {
	p.mu.Lock()
	if sig.Timestamp.After(p.observed) {
		p.observed = sig.Timestamp
	}
	p.mu.Unlock()

	ev, err := p.deps.Classifier.Classify(ctx, sig)
	if err != nil {
		p.deps.Logger.Warn(ctx, "signal rejected by classifier", zap.Error(err))
		return
	}
	if ev == nil {
		return
	}

	if !p.persist(ctx, *ev) {
		return
	}

	composites, err := p.deps.Composer.Offer(*ev)
	if err != nil {
		p.deps.Logger.Error(ctx, "pattern composition failed", zap.Error(err))
	}
	for _, comp := range composites {
		p.persist(ctx, comp)
	}

	p.evaluate(ctx, ev.Timestamp)
}

func (p *Pipeline) persist(ctx context.Context, ev event.Event) bool {
	res, err := p.deps.Store.Append(ctx, ev)
	if err != nil {
		p.deps.Logger.Error(ctx, "event append failed",
			zap.String("event_type", string(ev.Type)), zap.Error(err))
		return false
	}
	if res == store.Duplicate {
		p.deps.Logger.Debug(ctx, "duplicate event ignored", zap.String("event_id", ev.ID))
	}
	return true
}

// evaluate builds a snapshot over the trailing window ending at end and
// runs the decision engine over it. Windows are monotone: an end at or
// before the last evaluated window is skipped so ticks with no progress
// do not re-emit identical decisions.
func (p *Pipeline) evaluate(ctx context.Context, end time.Time) {
	p.mu.Lock()
	if !end.After(p.lastWindowEnd) {
		p.mu.Unlock()
		return
	}
	current := p.state
	p.mu.Unlock()

	start := end.Add(-p.cfg.SnapshotWindow)
	records, err := p.deps.Store.Range(ctx, start, end)
	if err != nil {
		p.deps.Logger.Error(ctx, "event range read failed", zap.Error(err))
		return
	}

	snap, err := p.deps.Builder.Build(records, start, end)
	if err != nil {
		p.deps.Logger.Error(ctx, "snapshot build failed", zap.Error(err))
		return
	}
	snapshotBuilds.Inc()

	dec, err := p.deps.Decider.Evaluate(snap, current)
	if err != nil {
		p.deps.Logger.Error(ctx, "decision evaluation failed",
			zap.String("snapshot_id", snap.ID), zap.Error(err))
		return
	}

	p.mu.Lock()
	p.state = dec.StateAfter
	p.lastDecision = &dec
	p.lastWindowEnd = end
	p.mu.Unlock()

	decisionsTotal.WithLabelValues(string(dec.Action)).Inc()
	observeState(string(dec.StateAfter))

	p.deps.Logger.Info(ctx, "decision",
		zap.String("snapshot_id", dec.SnapshotID),
		zap.String("action", string(dec.Action)),
		zap.String("state_before", string(dec.StateBefore)),
		zap.String("state_after", string(dec.StateAfter)),
		zap.Strings("rationale", dec.Rationale))

	if err := p.deps.Audit.RecordDecision(dec, snap.Summary); err != nil {
		p.deps.Logger.Error(ctx, "audit write failed", zap.Error(err))
	}

	p.observeAsync(ctx, snap)
}

// observeAsync hands the snapshot to the advisory reader on its own
// goroutine. The observer reads snapshots and produces commentary; it
// cannot emit events, alter snapshots, or influence the decision.
func (p *Pipeline) observeAsync(ctx context.Context, snap *snapshot.Snapshot) {
	if _, ok := p.deps.Advisor.(advisory.Nop); ok {
		return
	}
	p.advisoryWG.Add(1)
	go func() {
		defer p.advisoryWG.Done()
		text, err := p.deps.Advisor.Observe(ctx, snap)
		if err != nil {
			advisoryOutcomes.WithLabelValues("unavailable").Inc()
			p.deps.Logger.Warn(ctx, "advisory observer unavailable",
				zap.String("snapshot_id", snap.ID), zap.Error(err))
			text = advisory.Unavailable
		} else {
			advisoryOutcomes.WithLabelValues("ok").Inc()
		}
		if err := p.deps.Audit.AttachAdvisory(snap.ID, text); err != nil {
			p.deps.Logger.Error(ctx, "audit write failed", zap.Error(err))
		}
	}()
}
