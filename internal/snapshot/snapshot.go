// Package snapshot persists the subset of an original REQUEST needed to
// build a byte-faithful CANCEL after the original event object is gone:
// UID, the rendered start/end strings, the last sequence number, and the
// organizer line exactly as it was emitted.
package snapshot

// Snapshot is the durable record kept per UID. DTStart/DTEnd are stored in
// the rendered basic UTC form and OrganizerLine verbatim, so a later CANCEL
// re-emits all three byte-identically even if formatting rules evolve.
type Snapshot struct {
	UID           string `json:"uid"`
	DTStart       string `json:"dtstart"`
	DTEnd         string `json:"dtend"`
	Sequence      int    `json:"sequence"`
	OrganizerLine string `json:"organizer_line"`
}

// NotFoundError reports that no snapshot exists for a UID. Callers recover
// by supplying the original event directly or by surfacing a "cannot cancel
// unknown meeting" condition.
type NotFoundError struct {
	UID string
}

func (e *NotFoundError) Error() string {
	return "snapshot: no record for uid " + e.UID
}

// Store is the narrow persistence contract the core depends on. Last write
// wins per UID; no transactional guarantee beyond that is required.
type Store interface {
	Get(uid string) (Snapshot, error)
	Put(uid string, snap Snapshot) error
}
