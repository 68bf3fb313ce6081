// Package event holds the canonical in-memory representation of a calendar
// event and the pure lifecycle transitions between its revisions. An event
// is created at sequence 0 as a REQUEST, revised by further REQUESTs, and
// optionally terminated by a CANCEL; it is never deleted in-model.
package event

import (
	"strings"
	"time"

	"invical/internal/uid"
)

// Method is the iTIP operation a rendering of the event represents. It is a
// rendering mode, not part of event identity.
type Method string

const (
	MethodRequest Method = "REQUEST"
	MethodCancel  Method = "CANCEL"
)

// Status is the display status of the event.
type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusTentative Status = "TENTATIVE"
	StatusCancelled Status = "CANCELLED"
)

// Role tags an attendee's participation requirement. The serializer handles
// every role explicitly; there is no fall-through for unknown values.
type Role string

const (
	RoleRequired       Role = "REQ-PARTICIPANT"
	RoleOptional       Role = "OPT-PARTICIPANT"
	RoleNonParticipant Role = "NON-PARTICIPANT"
)

// Organizer is the authoritative sending identity of the meeting. It must be
// byte-identical between a REQUEST and its CANCEL or receiving clients will
// silently ignore the cancellation.
type Organizer struct {
	Name  string
	Email string
}

// Attendee is a single invitee. PartStat defaults to NEEDS-ACTION.
type Attendee struct {
	Name     string
	Email    string
	Role     Role
	PartStat string
}

// Person is the raw (name, email) pair accepted by the constructor for
// attendee lists; roles are assigned from which list it arrives in.
type Person struct {
	Name  string
	Email string
}

// Event is the canonical calendar event. UID is immutable once assigned and
// is the sole cross-message correlation key.
type Event struct {
	UID      string
	Sequence int
	Method   Method
	Status   Status

	Summary     string
	Description string
	Location    string

	// Start / End are instants; the serializer renders them in UTC.
	Start time.Time
	End   time.Time

	Organizer Organizer

	// Attendees preserves insertion order; the serializer emits one
	// ATTENDEE line per entry in this order.
	Attendees []Attendee
}

// Params is the raw parameter set accepted by New.
type Params struct {
	// UID, if empty, is generated from Defaults.UIDDomain.
	UID string

	Summary     string
	Description string
	Location    string

	Start time.Time
	End   time.Time

	// Organizer, if it has no email, falls back to Defaults.Organizer.
	Organizer Organizer

	// Required / Optional become REQ-PARTICIPANT / OPT-PARTICIPANT
	// attendees, in order, required first.
	Required []Person
	Optional []Person
}

// Defaults carries the process configuration the model needs: the fallback
// organizer identity and the UID domain. It is always passed explicitly,
// never read from ambient process state.
type Defaults struct {
	Organizer Organizer
	UIDDomain string
}

// New validates p and returns a fully-populated Event at sequence 0 with
// method REQUEST and status CONFIRMED. On any validation failure it returns
// a *ValidationError naming the offending field and no partial Event.
func New(p Params, d Defaults) (*Event, error) {
	org := p.Organizer
	if org.Email == "" {
		org = d.Organizer
	}
	if org.Email == "" {
		return nil, &ValidationError{Field: "organizer.email", Reason: "missing"}
	}
	if !strings.ContainsRune(org.Email, '@') {
		return nil, &ValidationError{Field: "organizer.email", Reason: "malformed address " + org.Email}
	}

	if p.Start.IsZero() {
		return nil, &ValidationError{Field: "start", Reason: "missing"}
	}
	if p.End.IsZero() {
		return nil, &ValidationError{Field: "end", Reason: "missing"}
	}
	if !p.Start.Before(p.End) {
		return nil, &ValidationError{Field: "end", Reason: "must be after start"}
	}

	attendees, err := buildAttendees(p.Required, p.Optional)
	if err != nil {
		return nil, err
	}

	id := p.UID
	if id == "" {
		id, err = uid.Generate(d.UIDDomain)
		if err != nil {
			return nil, &ValidationError{Field: "uid", Reason: err.Error()}
		}
	} else if !uid.Valid(id) {
		return nil, &ValidationError{Field: "uid", Reason: "must be <token>@<domain> with exactly one @"}
	}

	return &Event{
		UID:         id,
		Sequence:    0,
		Method:      MethodRequest,
		Status:      StatusConfirmed,
		Summary:     p.Summary,
		Description: p.Description,
		Location:    p.Location,
		Start:       p.Start,
		End:         p.End,
		Organizer:   org,
		Attendees:   attendees,
	}, nil
}

func buildAttendees(required, optional []Person) ([]Attendee, error) {
	out := make([]Attendee, 0, len(required)+len(optional))

	add := func(people []Person, role Role, field string) error {
		for _, person := range people {
			if person.Email == "" {
				return &ValidationError{Field: field, Reason: "attendee email is empty"}
			}
			if !strings.ContainsRune(person.Email, '@') {
				return &ValidationError{Field: field, Reason: "malformed address " + person.Email}
			}
			out = append(out, Attendee{
				Name:     person.Name,
				Email:    person.Email,
				Role:     role,
				PartStat: "NEEDS-ACTION",
			})
		}
		return nil
	}

	if err := add(required, RoleRequired, "required"); err != nil {
		return nil, err
	}
	if err := add(optional, RoleOptional, "optional"); err != nil {
		return nil, err
	}
	return out, nil
}

// clone returns a deep copy so transitions never alias the original's
// attendee slice.
func (e *Event) clone() *Event {
	dup := *e
	dup.Attendees = append([]Attendee(nil), e.Attendees...)
	return &dup
}
