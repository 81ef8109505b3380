package engine

import (
	"time"

	"github.com/fyrsmithlabs/vigild/internal/event"
)

// Pattern declares a composite pattern: a set of required atomic types
// that must all occur within MaxElapsed. Ordered patterns additionally
// require the types to occur in declaration order.
type Pattern struct {
	Name          string
	RequiredTypes []event.Type
	Ordered       bool
	MaxElapsed    time.Duration
	MinConfidence float64
	EmitType      event.Type
}

// candidate is an atomic event retained in a pattern's sliding window.
type candidate struct {
	id         string
	typ        event.Type
	ts         time.Time
	confidence float64
}

// Composer runs a sliding-window matcher per pattern. Constituents are
// consumed per pattern instance; the same atomic event may still
// participate in a different pattern. Matches are monotonic in time: once
// emitted, a composite is never retracted.
type Composer struct {
	patterns []Pattern
	windows  map[string][]candidate
}

// NewComposer creates a composer over the declared patterns.
func NewComposer(patterns []Pattern) *Composer {
	c := &Composer{
		patterns: patterns,
		windows:  make(map[string][]candidate, len(patterns)),
	}
	return c
}

// Offer feeds one stored atomic event to every pattern window and returns
// the composite events satisfied by it, in pattern declaration order. The
// caller persists each composite before emitting it downstream.
func (c *Composer) Offer(ev event.Event) ([]event.Event, error) {
	if ev.IsComposite() {
		return nil, nil
	}

	var out []event.Event
	for _, p := range c.patterns {
		if !p.wants(ev.Type) || ev.Confidence < p.MinConfidence {
			continue
		}

		w := append(c.windows[p.Name], candidate{
			id:         ev.ID,
			typ:        ev.Type,
			ts:         ev.Timestamp,
			confidence: ev.Confidence,
		})
		w = prune(w, ev.Timestamp.Add(-p.MaxElapsed))

		// A single arrival can complete at most one instance per pattern,
		// but draining in a loop keeps the window clean when older
		// constituents were waiting.
		for {
			match := p.match(w)
			if match == nil {
				break
			}
			composite, err := p.emit(match)
			if err != nil {
				return out, err
			}
			out = append(out, composite)
			w = consume(w, match)
			EventsComposed.WithLabelValues(p.Name).Inc()
		}
		c.windows[p.Name] = w
	}
	return out, nil
}

func (p Pattern) wants(t event.Type) bool {
	for _, rt := range p.RequiredTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// match returns one candidate per required type forming the earliest
// satisfying instance, or nil. The window is kept in timestamp order by
// the forward-only pipeline.
func (p Pattern) match(w []candidate) []candidate {
	if p.Ordered {
		return matchOrdered(w, p.RequiredTypes, p.MaxElapsed)
	}
	return matchUnordered(w, p.RequiredTypes, p.MaxElapsed)
}

func matchOrdered(w []candidate, required []event.Type, maxElapsed time.Duration) []candidate {
	picked := make([]candidate, 0, len(required))
	i := 0
	for _, req := range required {
		found := false
		for ; i < len(w); i++ {
			if w[i].typ == req {
				picked = append(picked, w[i])
				i++
				found = true
				break
			}
		}
		if !found {
			return nil
		}
	}
	if picked[len(picked)-1].ts.Sub(picked[0].ts) > maxElapsed {
		return nil
	}
	return picked
}

func matchUnordered(w []candidate, required []event.Type, maxElapsed time.Duration) []candidate {
	byType := make(map[event.Type]*candidate, len(required))
	for i := range w {
		cand := w[i]
		if _, taken := byType[cand.typ]; !taken {
			for _, req := range required {
				if cand.typ == req {
					byType[cand.typ] = &w[i]
					break
				}
			}
		}
	}
	if len(byType) < len(required) {
		return nil
	}
	picked := make([]candidate, 0, len(required))
	for _, req := range required {
		picked = append(picked, *byType[req])
	}
	first, last := picked[0].ts, picked[0].ts
	for _, c := range picked[1:] {
		if c.ts.Before(first) {
			first = c.ts
		}
		if c.ts.After(last) {
			last = c.ts
		}
	}
	if last.Sub(first) > maxElapsed {
		return nil
	}
	return picked
}

// emit builds the composite event: constituent IDs in timestamp order,
// timestamp of the completing constituent, confidence of the weakest one.
func (p Pattern) emit(match []candidate) (event.Event, error) {
	ordered := make([]candidate, len(match))
	copy(ordered, match)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].ts.Before(ordered[j-1].ts); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}

	ids := make([]string, len(ordered))
	confidence := ordered[0].confidence
	for i, c := range ordered {
		ids[i] = c.id
		if c.confidence < confidence {
			confidence = c.confidence
		}
	}
	ts := ordered[len(ordered)-1].ts
	return event.NewComposite(p.EmitType, p.Name, ts, confidence, ids)
}

// prune drops window entries older than the cutoff.
func prune(w []candidate, cutoff time.Time) []candidate {
	i := 0
	for i < len(w) && w[i].ts.Before(cutoff) {
		i++
	}
	return w[i:]
}

// consume removes matched constituents from the window.
func consume(w []candidate, match []candidate) []candidate {
	used := make(map[string]struct{}, len(match))
	for _, m := range match {
		used[m.id] = struct{}{}
	}
	out := w[:0]
	for _, c := range w {
		if _, ok := used[c.id]; !ok {
			out = append(out, c)
		}
	}
	return out
}
