package model

import "time"

// Occurrence is a single concrete calendar instance after recurrence
// expansion, normalized to the display timezone.
type Occurrence struct {
	PersonID int    // owner of the calendar the occurrence came from
	UID      string // iCalendar UID

	// InstanceKey identifies one occurrence of a recurring event. The same
	// UID and key seen twice (a calendar subscribed through two feeds) is
	// one booking.
	InstanceKey string

	AllDay bool

	// Transparent is set for TRANSP:TRANSPARENT events, which do not block time.
	Transparent bool
	// Cancelled is set for STATUS:CANCELLED events.
	Cancelled bool

	Start time.Time
	End   time.Time
}

// Blocks reports whether the occurrence should count as busy time.
func (o Occurrence) Blocks() bool {
	return !o.Transparent && !o.Cancelled && o.End.After(o.Start)
}
