package event

import "time"

// Patch is a partial overlay applied by Update. Nil fields leave the
// original value in place. There is deliberately no UID field: the UID is
// immutable across the whole lifecycle.
type Patch struct {
	Summary     *string
	Description *string
	Location    *string
	Start       *time.Time
	End         *time.Time
	Status      *Status
	Organizer   *Organizer
	// Attendees, if non-nil, replaces the whole list.
	Attendees []Attendee
}

// Update derives the next REQUEST revision of original: original's fields
// overridden by patch, sequence incremented by exactly one. The input is
// never mutated.
func Update(original *Event, patch Patch) (*Event, error) {
	next := original.clone()
	next.Sequence = original.Sequence + 1
	next.Method = MethodRequest

	if patch.Summary != nil {
		next.Summary = *patch.Summary
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	if patch.Location != nil {
		next.Location = *patch.Location
	}
	if patch.Start != nil {
		next.Start = *patch.Start
	}
	if patch.End != nil {
		next.End = *patch.End
	}
	if patch.Status != nil {
		next.Status = *patch.Status
	}
	if patch.Organizer != nil {
		next.Organizer = *patch.Organizer
	}
	if patch.Attendees != nil {
		next.Attendees = append([]Attendee(nil), patch.Attendees...)
	}

	if !next.Start.Before(next.End) {
		return nil, &ValidationError{Field: "end", Reason: "must be after start"}
	}
	return next, nil
}

// Cancel derives the terminal CANCEL revision of original. UID, start, end
// and organizer are carried forward unchanged — receiving clients match the
// cancellation against the original invitation on exactly those fields, so
// this copy-verbatim rule is the core correctness contract of the package.
// If original carries no organizer email, fallback is substituted: Outlook
// requires a populated ORGANIZER line even when none was recorded.
func Cancel(original *Event, fallback Organizer) *Event {
	next := original.clone()
	next.Sequence = original.Sequence + 1
	next.Method = MethodCancel
	next.Status = StatusCancelled

	if next.Organizer.Email == "" {
		next.Organizer = fallback
	}
	return next
}
