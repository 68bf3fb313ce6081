package invite

import (
	"strings"
	"testing"

	"invical/internal/snapshot"
)

func TestIngestRebuildsSnapshot(t *testing.T) {
	sender, _ := testComposer(t)
	ev := testEvent(t, sender)

	req, err := sender.ComposeRequest(ev)
	if err != nil {
		t.Fatalf("ComposeRequest: %v", err)
	}

	// A fresh process with an empty store receives only the .ics file.
	receiver, store := testComposer(t)
	n, err := receiver.Ingest([]byte(req.ICS + "\r\n"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n != 1 {
		t.Fatalf("ingested %d snapshots, want 1", n)
	}

	snap, err := store.Get(ev.UID)
	if err != nil {
		t.Fatalf("Get after ingest: %v", err)
	}
	if snap.DTStart != "20241215T140000Z" || snap.DTEnd != "20241215T150000Z" {
		t.Fatalf("ingested times = %q / %q", snap.DTStart, snap.DTEnd)
	}
	if snap.Sequence != 0 {
		t.Fatalf("ingested sequence = %d", snap.Sequence)
	}

	// A cancel built from the ingested snapshot matches the original
	// request's identity lines byte for byte.
	cancel, err := receiver.ComposeCancelByUID(ev.UID, CancelNote{Summary: ev.Summary})
	if err != nil {
		t.Fatalf("ComposeCancelByUID: %v", err)
	}
	for _, prefix := range []string{"UID:", "DTSTART:", "DTEND:", "ORGANIZER"} {
		if line(t, req.ICS, prefix) != line(t, cancel.ICS, prefix) {
			t.Fatalf("%s line differs after ingest round trip:\n req: %q\ncncl: %q",
				prefix, line(t, req.ICS, prefix), line(t, cancel.ICS, prefix))
		}
	}
	if got := line(t, cancel.ICS, "SEQUENCE:"); got != "SEQUENCE:1" {
		t.Fatalf("cancel sequence line = %q", got)
	}
}

func TestIngestKeepsNewerStoredSequence(t *testing.T) {
	sender, _ := testComposer(t)
	ev := testEvent(t, sender)

	req, err := sender.ComposeRequest(ev)
	if err != nil {
		t.Fatalf("ComposeRequest: %v", err)
	}

	receiver, store := testComposer(t)
	ahead := snapshot.Snapshot{
		UID:           ev.UID,
		DTStart:       "20241215T140000Z",
		DTEnd:         "20241215T150000Z",
		Sequence:      5,
		OrganizerLine: "ORGANIZER;CN=John Smith:mailto:john.smith@company.com",
	}
	if err := store.Put(ev.UID, ahead); err != nil {
		t.Fatalf("Put: %v", err)
	}

	n, err := receiver.Ingest([]byte(req.ICS + "\r\n"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n != 0 {
		t.Fatalf("ingest overwrote a newer snapshot (stored %d)", n)
	}

	snap, err := store.Get(ev.UID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Sequence != 5 {
		t.Fatalf("sequence rolled back to %d", snap.Sequence)
	}
}

func TestIngestRejectsEmptyAndSkipsBroken(t *testing.T) {
	c, _ := testComposer(t)

	if _, err := c.Ingest(nil); err == nil {
		t.Fatal("expected error for empty body")
	}

	// A VEVENT without UID is skipped, not fatal.
	broken := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//x//EN",
		"METHOD:REQUEST",
		"BEGIN:VEVENT",
		"DTSTART:20241215T140000Z",
		"DTEND:20241215T150000Z",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")
	n, err := c.Ingest([]byte(broken))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n != 0 {
		t.Fatalf("stored %d snapshots from a UID-less event", n)
	}
}
