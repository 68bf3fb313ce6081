package invite

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	ics "github.com/arran4/golang-ical"

	"invical/internal/ical"
	applog "invical/internal/log"
	"invical/internal/snapshot"
)

// Ingest parses a previously sent REQUEST payload and records its snapshot,
// so cancellations work even for invitations that predate the snapshot
// store (or were sent by another tool). Each VEVENT in the payload becomes
// one snapshot; the count of stored snapshots is returned.
//
// An existing snapshot for a UID is only overwritten when the ingested
// SEQUENCE is not behind the stored one, so re-ingesting an old file never
// rolls a sequence counter backwards.
func (c *Composer) Ingest(body []byte) (int, error) {
	if len(body) == 0 {
		return 0, errors.New("invite: empty ICS body")
	}

	cal, err := ics.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, ve := range cal.Events() {
		snap, err := snapshotFromVEvent(ve)
		if err != nil {
			// Log and skip this event, but keep ingesting others.
			applog.Error("ingest: skipping vevent", err)
			continue
		}

		if prev, err := c.store.Get(snap.UID); err == nil && prev.Sequence > snap.Sequence {
			applog.Warn("ingest: stored sequence ahead of file, keeping store",
				"uid", snap.UID, "stored", prev.Sequence, "file", snap.Sequence)
			continue
		}

		if err := c.store.Put(snap.UID, snap); err != nil {
			return stored, err
		}
		stored++
	}

	applog.Info("ingest completed", "events", len(cal.Events()), "stored", stored)
	return stored, nil
}

func snapshotFromVEvent(ve *ics.VEvent) (snapshot.Snapshot, error) {
	var snap snapshot.Snapshot

	uidProp := ve.GetProperty(ics.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return snap, errors.New("missing UID")
	}
	snap.UID = uidProp.Value

	if seqProp := ve.GetProperty(ics.ComponentPropertySequence); seqProp != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(seqProp.Value)); err == nil {
			snap.Sequence = n
		}
	}

	// DTSTART / DTEND. The library resolves TZID parameters, so converting
	// to UTC here lands on the same instant the original client intended.
	start, err := ve.GetStartAt()
	if err != nil {
		return snap, errors.New("missing or unparseable DTSTART")
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return snap, errors.New("missing or unparseable DTEND")
	}
	snap.DTStart = ical.FormatUTC(start)
	snap.DTEnd = ical.FormatUTC(end)

	orgProp := ve.GetProperty(ics.ComponentPropertyOrganizer)
	if orgProp == nil || orgProp.Value == "" {
		return snap, errors.New("missing ORGANIZER")
	}
	snap.OrganizerLine = organizerLineFromProperty(orgProp)

	return snap, nil
}

// organizerLineFromProperty rebuilds the logical ORGANIZER content line
// from a parsed property, preserving the CN parameter when present. The
// line is stored verbatim and re-emitted as-is on cancellation.
func organizerLineFromProperty(p *ics.IANAProperty) string {
	if params := p.ICalParameters; params != nil {
		if cns, ok := params["CN"]; ok && len(cns) > 0 {
			return "ORGANIZER;CN=" + cns[0] + ":" + p.Value
		}
	}
	return "ORGANIZER:" + p.Value
}
