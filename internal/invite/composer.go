// Package invite composes sendable calendar invitations: it ties the event
// model, the serializer and the snapshot store together so that every
// rendered REQUEST leaves behind the record needed to cancel it later, and
// every CANCEL reproduces the original request's identity byte-for-byte.
package invite

import (
	"fmt"
	"strings"
	"time"

	"invical/internal/config"
	"invical/internal/event"
	"invical/internal/ical"
	applog "invical/internal/log"
	"invical/internal/snapshot"
)

// Invite is a fully-rendered calendar message ready to hand to the mail
// layer as a text/calendar part or .ics attachment.
type Invite struct {
	Event    *event.Event
	ICS      string
	Filename string
}

// Composer owns the configuration, the snapshot store and the clock used
// for DTSTAMP. All of its methods are safe for concurrent use; the only
// shared mutable state is the store.
type Composer struct {
	cfg   *config.Config
	store snapshot.Store
	now   func() time.Time
}

// NewComposer builds a Composer. now may be nil, in which case time.Now is
// used; tests inject a fixed clock to get deterministic DTSTAMPs.
func NewComposer(cfg *config.Config, store snapshot.Store, now func() time.Time) *Composer {
	if now == nil {
		now = time.Now
	}
	return &Composer{cfg: cfg, store: store, now: now}
}

// Defaults exposes the configured fallback organizer and UID domain in the
// form the event constructor takes.
func (c *Composer) Defaults() event.Defaults {
	return event.Defaults{
		Organizer: event.Organizer{
			Name:  c.cfg.Organizer.Name,
			Email: c.cfg.Organizer.Email,
		},
		UIDDomain: c.cfg.UIDDomain,
	}
}

// NewEvent validates p against the configured defaults and returns a fresh
// sequence-0 REQUEST event.
func (c *Composer) NewEvent(p event.Params) (*event.Event, error) {
	return event.New(p, c.Defaults())
}

func (c *Composer) renderOptions() ical.Options {
	return ical.Options{ProdID: c.cfg.ProdID, Now: c.now}
}

// ComposeRequest renders ev as a REQUEST and immediately persists its
// snapshot, so a future cancellation stays byte-faithful even across a
// process restart.
func (c *Composer) ComposeRequest(ev *event.Event) (Invite, error) {
	if ev.Method != event.MethodRequest {
		return Invite{}, fmt.Errorf("invite: ComposeRequest called with method %s", ev.Method)
	}

	ics, err := ical.Render(ev, c.renderOptions())
	if err != nil {
		return Invite{}, err
	}

	if err := c.persist(ev); err != nil {
		return Invite{}, err
	}

	applog.Info("composed request", "uid", ev.UID, "sequence", ev.Sequence, "attendees", len(ev.Attendees))
	return Invite{Event: ev, ICS: ics, Filename: AttachmentFilename(ev.Summary)}, nil
}

// ComposeUpdate derives the next REQUEST revision of original via patch,
// renders it and persists the new snapshot.
func (c *Composer) ComposeUpdate(original *event.Event, patch event.Patch) (Invite, error) {
	next, err := event.Update(original, patch)
	if err != nil {
		return Invite{}, err
	}
	return c.ComposeRequest(next)
}

// ComposeCancel derives and renders the CANCEL for an in-memory original,
// then records the incremented sequence so the store never goes backwards.
func (c *Composer) ComposeCancel(original *event.Event) (Invite, error) {
	cancelled := event.Cancel(original, c.Defaults().Organizer)

	ics, err := ical.Render(cancelled, c.renderOptions())
	if err != nil {
		return Invite{}, err
	}

	if err := c.persist(cancelled); err != nil {
		return Invite{}, err
	}

	applog.Info("composed cancel", "uid", cancelled.UID, "sequence", cancelled.Sequence)
	return Invite{Event: cancelled, ICS: ics, Filename: AttachmentFilename(cancelled.Summary)}, nil
}

// CancelNote carries the freely re-specifiable parts of a store-backed
// cancellation notice. Everything identity-bearing (UID, times, organizer,
// sequence) comes from the stored snapshot instead.
type CancelNote struct {
	Summary     string
	Description string
	Attendees   []event.Attendee
}

// ComposeCancelByUID builds a CANCEL for an event the process no longer
// holds in memory, reconstructing the identity fields from the stored
// snapshot. The stored organizer line is re-emitted verbatim. Returns a
// *snapshot.NotFoundError when no REQUEST for uid was ever persisted.
func (c *Composer) ComposeCancelByUID(uid string, note CancelNote) (Invite, error) {
	snap, err := c.store.Get(uid)
	if err != nil {
		return Invite{}, err
	}

	start, err := ical.ParseUTC(snap.DTStart)
	if err != nil {
		return Invite{}, fmt.Errorf("invite: snapshot for %s has bad dtstart: %w", uid, err)
	}
	end, err := ical.ParseUTC(snap.DTEnd)
	if err != nil {
		return Invite{}, fmt.Errorf("invite: snapshot for %s has bad dtend: %w", uid, err)
	}

	org, err := ical.ParseOrganizerLine(snap.OrganizerLine)
	if err != nil {
		return Invite{}, fmt.Errorf("invite: snapshot for %s has bad organizer line: %w", uid, err)
	}

	summary := note.Summary
	if summary == "" {
		summary = "Meeting"
	}

	cancelled := &event.Event{
		UID:         uid,
		Sequence:    snap.Sequence + 1,
		Method:      event.MethodCancel,
		Status:      event.StatusCancelled,
		Summary:     summary,
		Description: note.Description,
		Start:       start,
		End:         end,
		Organizer:   org,
		Attendees:   note.Attendees,
	}

	opts := c.renderOptions()
	opts.RawOrganizerLine = snap.OrganizerLine
	ics, err := ical.Render(cancelled, opts)
	if err != nil {
		return Invite{}, err
	}

	snap.Sequence = cancelled.Sequence
	if err := c.store.Put(uid, snap); err != nil {
		return Invite{}, err
	}

	applog.Info("composed cancel from snapshot", "uid", uid, "sequence", cancelled.Sequence)
	return Invite{Event: cancelled, ICS: ics, Filename: AttachmentFilename(summary)}, nil
}

// persist records the snapshot for ev under its UID. The organizer line is
// captured through the same function the serializer uses, so the stored
// bytes match the emitted ones.
func (c *Composer) persist(ev *event.Event) error {
	line, err := ical.OrganizerLine(ev.Organizer)
	if err != nil {
		return err
	}
	return c.store.Put(ev.UID, snapshot.Snapshot{
		UID:           ev.UID,
		DTStart:       ical.FormatUTC(ev.Start),
		DTEnd:         ical.FormatUTC(ev.End),
		Sequence:      ev.Sequence,
		OrganizerLine: line,
	})
}

// AttachmentFilename derives the .ics attachment name from a summary by
// stripping every non-alphanumeric character.
func AttachmentFilename(summary string) string {
	var b strings.Builder
	for _, r := range summary {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if name == "" {
		name = "meeting"
	}
	return name + ".ics"
}
