package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vigild/internal/event"
)

func fallPattern() Pattern {
	return Pattern{
		Name:          "potential_fall",
		RequiredTypes: []event.Type{event.TypeRapidVerticalMovement, event.TypeLowPostureSustained},
		Ordered:       true,
		MaxElapsed:    5 * time.Second,
		EmitType:      event.TypePotentialFall,
	}
}

func atomicAt(t *testing.T, typ event.Type, ts time.Time, confidence float64) event.Event {
	t.Helper()
	ev, err := event.NewAtomic(typ, ts, confidence, "stream-0", nil)
	require.NoError(t, err)
	return ev
}

func offerAll(t *testing.T, c *Composer, evs ...event.Event) []event.Event {
	t.Helper()
	var out []event.Event
	for _, ev := range evs {
		got, err := c.Offer(ev)
		require.NoError(t, err)
		out = append(out, got...)
	}
	return out
}

func TestComposerOrdered(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	t.Run("rapid movement then low posture within window composes", func(t *testing.T) {
		c := NewComposer([]Pattern{fallPattern()})
		rapid := atomicAt(t, event.TypeRapidVerticalMovement, base, 0.9)
		low := atomicAt(t, event.TypeLowPostureSustained, base.Add(3*time.Second), 0.8)

		out := offerAll(t, c, rapid, low)
		require.Len(t, out, 1)
		comp := out[0]
		assert.Equal(t, event.TypePotentialFall, comp.Type)
		assert.Equal(t, "potential_fall", comp.PatternName)
		assert.Equal(t, []string{rapid.ID, low.ID}, comp.ConstituentIDs)
		assert.Equal(t, low.Timestamp, comp.Timestamp, "composite carries the completing constituent's timestamp")
		assert.Equal(t, 0.8, comp.Confidence, "weakest constituent bounds the composite confidence")
	})

	t.Run("outside the window nothing composes", func(t *testing.T) {
		c := NewComposer([]Pattern{fallPattern()})
		out := offerAll(t, c,
			atomicAt(t, event.TypeRapidVerticalMovement, base, 0.9),
			atomicAt(t, event.TypeLowPostureSustained, base.Add(8*time.Second), 0.8),
		)
		assert.Empty(t, out)
	})

	t.Run("wrong order does not compose", func(t *testing.T) {
		c := NewComposer([]Pattern{fallPattern()})
		out := offerAll(t, c,
			atomicAt(t, event.TypeLowPostureSustained, base, 0.8),
			atomicAt(t, event.TypeRapidVerticalMovement, base.Add(time.Second), 0.9),
		)
		assert.Empty(t, out)
	})

	t.Run("constituents are consumed per instance", func(t *testing.T) {
		c := NewComposer([]Pattern{fallPattern()})
		out := offerAll(t, c,
			atomicAt(t, event.TypeRapidVerticalMovement, base, 0.9),
			atomicAt(t, event.TypeLowPostureSustained, base.Add(2*time.Second), 0.8),
			atomicAt(t, event.TypeLowPostureSustained, base.Add(3*time.Second), 0.8),
		)
		assert.Len(t, out, 1, "the rapid movement is consumed by the first match")
	})

	t.Run("composites never feed back into windows", func(t *testing.T) {
		c := NewComposer([]Pattern{fallPattern()})
		comp, err := event.NewComposite(event.TypePotentialFall, "potential_fall", base, 0.9, []string{"a"})
		require.NoError(t, err)
		out, err := c.Offer(comp)
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("emission is monotonic", func(t *testing.T) {
		c := NewComposer([]Pattern{fallPattern()})
		out := offerAll(t, c,
			atomicAt(t, event.TypeRapidVerticalMovement, base, 0.9),
			atomicAt(t, event.TypeLowPostureSustained, base.Add(2*time.Second), 0.8),
		)
		require.Len(t, out, 1)

		// Later unrelated events do not retract or duplicate the match.
		out = offerAll(t, c,
			atomicAt(t, event.TypeRapidVerticalMovement, base.Add(20*time.Second), 0.9),
		)
		assert.Empty(t, out)
	})
}

func TestComposerUnordered(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	unordered := Pattern{
		Name:          "fall_unordered",
		RequiredTypes: []event.Type{event.TypeRapidVerticalMovement, event.TypeLowPostureSustained},
		Ordered:       false,
		MaxElapsed:    5 * time.Second,
		EmitType:      event.TypePotentialFall,
	}

	t.Run("any arrival order composes", func(t *testing.T) {
		c := NewComposer([]Pattern{unordered})
		low := atomicAt(t, event.TypeLowPostureSustained, base, 0.8)
		rapid := atomicAt(t, event.TypeRapidVerticalMovement, base.Add(time.Second), 0.9)

		out := offerAll(t, c, low, rapid)
		require.Len(t, out, 1)
		assert.Equal(t, []string{low.ID, rapid.ID}, out[0].ConstituentIDs, "constituents ordered by timestamp")
	})
}

func TestComposerMinConfidence(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	p := fallPattern()
	p.MinConfidence = 0.5

	c := NewComposer([]Pattern{p})
	out := offerAll(t, c,
		atomicAt(t, event.TypeRapidVerticalMovement, base, 0.3), // below the bar, ignored
		atomicAt(t, event.TypeLowPostureSustained, base.Add(time.Second), 0.8),
	)
	assert.Empty(t, out)
}

func TestComposerMultiplePatterns(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	second := Pattern{
		Name:          "instability",
		RequiredTypes: []event.Type{event.TypeRapidVerticalMovement},
		Ordered:       true,
		MaxElapsed:    time.Second,
		EmitType:      event.TypePotentialFall,
	}

	// The same atomic event may satisfy several patterns independently.
	c := NewComposer([]Pattern{fallPattern(), second})
	out := offerAll(t, c,
		atomicAt(t, event.TypeRapidVerticalMovement, base, 0.9),
		atomicAt(t, event.TypeLowPostureSustained, base.Add(time.Second), 0.8),
	)
	require.Len(t, out, 2)
	assert.Equal(t, "instability", out[0].PatternName)
	assert.Equal(t, "potential_fall", out[1].PatternName)
}
