// Package event defines the behavioral event vocabulary and record types
// shared by the classification engine, the store, and the analysis layers.
package event

import (
	"fmt"
	"sync"
)

// Category groups event types by the kind of observation they describe.
type Category string

const (
	CategoryMotion      Category = "motion"
	CategoryPosture     Category = "posture"
	CategorySpatial     Category = "spatial"
	CategoryInteraction Category = "interaction"
	CategoryComposite   Category = "composite"
	CategorySystem      Category = "system"
)

// Severity is a coarse hint attached to every event type.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Type identifies a behavioral event type. The built-in vocabulary covers
// fall detection; new types can be added through Register without touching
// core logic.
type Type string

// Built-in atomic types.
const (
	TypeRapidVerticalMovement Type = "RAPID_VERTICAL_MOVEMENT"
	TypeLowPostureSustained   Type = "LOW_POSTURE_SUSTAINED"
	TypeRecovery              Type = "RECOVERY"
	TypeMotionStarted         Type = "MOTION_STARTED"
	TypeMotionStopped         Type = "MOTION_STOPPED"
	TypeImmobileUpdate        Type = "IMMOBILE_UPDATE"
)

// Built-in composite types.
const (
	TypePotentialFall           Type = "POTENTIAL_FALL"
	TypeConfirmedFallByDuration Type = "CONFIRMED_FALL_BY_DURATION"
)

// TypeHistoryGap marks a span of time during which the store was
// unavailable and events may be missing. It is emitted by the pipeline,
// never by the classifier.
const TypeHistoryGap Type = "HISTORY_GAP"

// Definition describes a registered event type.
type Definition struct {
	Category Category
	Severity Severity
}

var (
	registryMu sync.RWMutex
	registry   = map[Type]Definition{
		TypeRapidVerticalMovement:   {CategoryMotion, SeverityMedium},
		TypeLowPostureSustained:     {CategoryPosture, SeverityHigh},
		TypeRecovery:                {CategoryPosture, SeverityLow},
		TypeMotionStarted:           {CategoryMotion, SeverityLow},
		TypeMotionStopped:           {CategoryMotion, SeverityLow},
		TypeImmobileUpdate:          {CategoryPosture, SeverityMedium},
		TypePotentialFall:           {CategoryComposite, SeverityHigh},
		TypeConfirmedFallByDuration: {CategoryComposite, SeverityHigh},
		TypeHistoryGap:              {CategorySystem, SeverityLow},
	}
)

// Register adds a new event type to the vocabulary. Re-registering an
// existing type with a different definition is a configuration error.
func Register(t Type, def Definition) error {
	if t == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	if def.Category == "" {
		return fmt.Errorf("event type %q: category cannot be empty", t)
	}
	if def.Severity == "" {
		def.Severity = SeverityMedium
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if existing, ok := registry[t]; ok && existing != def {
		return fmt.Errorf("event type %q already registered with a different definition", t)
	}
	registry[t] = def
	return nil
}

// Lookup returns the definition for a type, or false if it is unknown.
func Lookup(t Type) (Definition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	def, ok := registry[t]
	return def, ok
}

// Known reports whether a type is part of the registered vocabulary.
func Known(t Type) bool {
	_, ok := Lookup(t)
	return ok
}
