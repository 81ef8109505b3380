package event

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidEvent indicates an event that violates the base contract.
var ErrInvalidEvent = errors.New("invalid event")

// MetadataCorrects is the metadata key used to reference an earlier event
// that this event logically corrects. Stored events are never mutated or
// deleted; corrections are new events carrying this reference.
const MetadataCorrects = "corrects"

// Event is the shared contract over atomic and composite events. An event
// is immutable once created: producers build it through NewAtomic or
// NewComposite and hand it to the store.
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	Category   Category          `json:"category"`
	Timestamp  time.Time         `json:"timestamp"`
	Confidence float64           `json:"confidence"`
	Severity   Severity          `json:"severity"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	SourceRef  string            `json:"source_ref,omitempty"`

	// Set only on composite events.
	ConstituentIDs []string `json:"constituent_ids,omitempty"`
	PatternName    string   `json:"pattern_name,omitempty"`
}

// IsComposite reports whether the event was derived from a pattern over
// atomic events.
func (e Event) IsComposite() bool {
	return e.Category == CategoryComposite
}

// Validate checks the base contract shared by all events.
func (e Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if e.Type == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidEvent)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEvent)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidEvent, e.Confidence)
	}
	if e.IsComposite() && len(e.ConstituentIDs) == 0 {
		return fmt.Errorf("%w: composite event without constituents", ErrInvalidEvent)
	}
	return nil
}

// NewAtomic creates an atomic event of a registered type. The ID is
// assigned here, before the event is handed to the store.
func NewAtomic(t Type, ts time.Time, confidence float64, sourceRef string, metadata map[string]string) (Event, error) {
	def, ok := Lookup(t)
	if !ok {
		return Event{}, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, t)
	}
	e := Event{
		ID:         uuid.NewString(),
		Type:       t,
		Category:   def.Category,
		Timestamp:  ts,
		Confidence: confidence,
		Severity:   def.Severity,
		Metadata:   metadata,
		SourceRef:  sourceRef,
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// NewComposite creates a composite event referencing the ordered atomic
// events that satisfied the pattern.
func NewComposite(t Type, pattern string, ts time.Time, confidence float64, constituentIDs []string) (Event, error) {
	def, ok := Lookup(t)
	if !ok {
		return Event{}, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, t)
	}
	if def.Category != CategoryComposite {
		return Event{}, fmt.Errorf("%w: type %q is not composite", ErrInvalidEvent, t)
	}
	ids := make([]string, len(constituentIDs))
	copy(ids, constituentIDs)
	e := Event{
		ID:             uuid.NewString(),
		Type:           t,
		Category:       CategoryComposite,
		Timestamp:      ts,
		Confidence:     confidence,
		Severity:       def.Severity,
		ConstituentIDs: ids,
		PatternName:    pattern,
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Record is the stored form of an event. Seq is assigned by the store on
// append and is used only to break timestamp ties in arrival order; it
// never implies causality.
type Record struct {
	Event
	PersistedAt time.Time `json:"persisted_at"`
	Seq         uint64    `json:"sequence"`
}
