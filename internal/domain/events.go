package domain

import "time"

// Event records one state change of an aggregate. Aggregates buffer events
// until the caller drains them with PullEvents.
type Event struct {
	Name          string
	AggregateType string
	AggregateID   ID
	Field         string
	OldValue      any
	NewValue      any
	OccurredAt    time.Time
}

type eventBuffer struct {
	events []Event
}

func (b *eventBuffer) record(event Event) {
	b.events = append(b.events, event)
}

// PullEvents returns the buffered events and clears the buffer.
func (b *eventBuffer) PullEvents() []Event {
	events := b.events
	b.events = nil
	return events
}

// nowFunc is the clock used by aggregate mutators.
var nowFunc = func() time.Time {
	return time.Now().UTC()
}

// versioned carries the persistence version used for optimistic concurrency.
// Repositories read it before a save and store the new value afterwards.
type versioned struct {
	version int
}

func (v *versioned) Version() int {
	return v.version
}

// SetVersion is called by repositories once a save has been accepted.
func (v *versioned) SetVersion(version int) {
	v.version = version
}
