package snapshot

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/vigild/internal/event"
)

// snapshotNamespace seeds deterministic (version 5) snapshot IDs: the same
// window over the same events always yields the same snapshot ID, which is
// what makes decisions replayable and comparable across runs.
var snapshotNamespace = uuid.MustParse("5b0463bc-6a0a-4f8f-9a53-0a52ad12a58a")

// Config tunes the builder. StateType is the "state" event type whose
// continuous duration is tracked; RecoveryType closes such a span.
type Config struct {
	StateType    event.Type
	RecoveryType event.Type
	// SustainReference scales the immobility hypothesis confidence: at
	// this sustained duration the hypothesis saturates.
	SustainReference time.Duration
}

// Builder converts an ordered event window into a Snapshot.
type Builder struct {
	cfg Config
}

// NewBuilder creates a builder.
func NewBuilder(cfg Config) *Builder {
	if cfg.StateType == "" {
		cfg.StateType = event.TypeLowPostureSustained
	}
	if cfg.RecoveryType == "" {
		cfg.RecoveryType = event.TypeRecovery
	}
	if cfg.SustainReference <= 0 {
		cfg.SustainReference = 30 * time.Second
	}
	return &Builder{cfg: cfg}
}

// features holds the intermediate quantities the scoring rules read.
type features struct {
	counts         map[event.Type]int
	lowDuration    time.Duration
	sinceRecovery  time.Duration // negative when no recovery observed
	recoveryConf   float64
	recoveryIDs    []string
	rapidIDs       []string
	stateIDs       []string
	fallIDs        []string
	fallConfidence float64
	confirmedFall  bool
	openLowPosture bool // a state span reaches the window end unclosed
}

// Build produces the snapshot for [windowStart, windowEnd]. The record
// sequence must be ordered and fully contained in the window; anything
// else is rejected with ErrInvalid rather than silently repaired.
func (b *Builder) Build(records []event.Record, windowStart, windowEnd time.Time) (*Snapshot, error) {
	if windowStart.After(windowEnd) {
		return nil, fmt.Errorf("%w: window_start %s after window_end %s",
			ErrInvalid, windowStart.Format(time.RFC3339Nano), windowEnd.Format(time.RFC3339Nano))
	}
	for i, r := range records {
		if r.Timestamp.Before(windowStart) || r.Timestamp.After(windowEnd) {
			return nil, fmt.Errorf("%w: event %s outside window", ErrInvalid, r.ID)
		}
		if i > 0 && r.Timestamp.Before(records[i-1].Timestamp) {
			return nil, fmt.Errorf("%w: events out of order at %s", ErrInvalid, r.ID)
		}
	}

	f := b.extract(records, windowEnd)
	hypotheses := b.score(f)

	snap := &Snapshot{
		ID:               deriveID(records, windowStart, windowEnd),
		WindowStart:      windowStart.UTC(),
		WindowEnd:        windowEnd.UTC(),
		EventCounts:      f.counts,
		TemporalPatterns: b.patterns(f),
		Hypotheses:       hypotheses,
	}
	snap.Summary = renderSummary(snap)
	return snap, nil
}

// extract walks the window once, tracking the longest continuous span of
// the state type. A span opens at the first state event after the previous
// recovery and closes at the next recovery event, or at the window end
// when no recovery follows.
func (b *Builder) extract(records []event.Record, windowEnd time.Time) *features {
	f := &features{
		counts:        make(map[event.Type]int),
		sinceRecovery: -1,
	}

	var spanStart time.Time
	spanOpen := false
	closeSpan := func(at time.Time) {
		if !spanOpen {
			return
		}
		if d := at.Sub(spanStart); d > f.lowDuration {
			f.lowDuration = d
		}
		spanOpen = false
	}

	for _, r := range records {
		f.counts[r.Type]++

		switch r.Type {
		case b.cfg.StateType:
			f.stateIDs = append(f.stateIDs, r.ID)
			if !spanOpen {
				spanOpen = true
				spanStart = r.Timestamp
			}
		case b.cfg.RecoveryType:
			closeSpan(r.Timestamp)
			f.recoveryIDs = append(f.recoveryIDs, r.ID)
			f.sinceRecovery = windowEnd.Sub(r.Timestamp)
			f.recoveryConf = r.Confidence
		}

		switch r.Type {
		case event.TypeRapidVerticalMovement:
			f.rapidIDs = append(f.rapidIDs, r.ID)
		case event.TypePotentialFall, event.TypeConfirmedFallByDuration:
			f.fallIDs = append(f.fallIDs, r.ID)
			f.fallIDs = append(f.fallIDs, r.ConstituentIDs...)
			if r.Confidence > f.fallConfidence {
				f.fallConfidence = r.Confidence
			}
			if r.Type == event.TypeConfirmedFallByDuration {
				f.confirmedFall = true
			}
		}
	}
	f.openLowPosture = spanOpen
	closeSpan(windowEnd)
	return f
}

func (b *Builder) patterns(f *features) map[string]float64 {
	p := map[string]float64{
		PatternLowPostureDuration: roundSeconds(f.lowDuration),
	}
	if f.sinceRecovery >= 0 {
		p[PatternSecondsSinceRecovery] = roundSeconds(f.sinceRecovery)
		p[PatternRecoveryConfidence] = f.recoveryConf
	}
	return p
}

// score runs the declared scoring rules in order. Hypotheses with zero
// confidence are omitted; the rest are sorted by confidence with ties
// broken by declaration order (stable sort).
func (b *Builder) score(f *features) []Hypothesis {
	rules := []struct {
		label string
		run   func(*features) (float64, []string)
	}{
		{HypothesisPossibleFall, b.scorePossibleFall},
		{HypothesisImmobility, b.scoreImmobility},
		{HypothesisInstability, b.scoreInstability},
		{HypothesisRecovery, b.scoreRecovery},
	}

	hypotheses := make([]Hypothesis, 0, len(rules))
	for _, rule := range rules {
		confidence, supporting := rule.run(f)
		if confidence <= 0 {
			continue
		}
		hypotheses = append(hypotheses, Hypothesis{
			Label:              rule.label,
			Confidence:         confidence,
			SupportingEventIDs: supporting,
		})
	}
	sort.SliceStable(hypotheses, func(i, j int) bool {
		return hypotheses[i].Confidence > hypotheses[j].Confidence
	})
	return hypotheses
}

func (b *Builder) scorePossibleFall(f *features) (float64, []string) {
	if len(f.fallIDs) == 0 {
		return 0, nil
	}
	confidence := f.fallConfidence
	if f.confirmedFall && confidence < 0.95 {
		confidence = 0.95
	}
	return confidence, f.fallIDs
}

func (b *Builder) scoreImmobility(f *features) (float64, []string) {
	if f.lowDuration <= 0 || !f.openLowPosture {
		return 0, nil
	}
	scale := f.lowDuration.Seconds() / b.cfg.SustainReference.Seconds()
	if scale > 1 {
		scale = 1
	}
	return 0.9 * scale, f.stateIDs
}

func (b *Builder) scoreInstability(f *features) (float64, []string) {
	n := len(f.rapidIDs)
	if n == 0 {
		return 0, nil
	}
	confidence := 0.3 + 0.1*float64(n)
	if confidence > 0.6 {
		confidence = 0.6
	}
	return confidence, f.rapidIDs
}

func (b *Builder) scoreRecovery(f *features) (float64, []string) {
	if len(f.recoveryIDs) == 0 {
		return 0, nil
	}
	return f.recoveryConf, f.recoveryIDs
}

// deriveID computes a deterministic version-5 UUID over the window bounds
// and the ordered event IDs.
func deriveID(records []event.Record, windowStart, windowEnd time.Time) string {
	var sb strings.Builder
	sb.WriteString(windowStart.UTC().Format(time.RFC3339Nano))
	sb.WriteByte('|')
	sb.WriteString(windowEnd.UTC().Format(time.RFC3339Nano))
	for _, r := range records {
		sb.WriteByte('|')
		sb.WriteString(r.ID)
	}
	return uuid.NewSHA1(snapshotNamespace, []byte(sb.String())).String()
}

func roundSeconds(d time.Duration) float64 {
	return float64(d.Milliseconds()) / 1000.0
}
