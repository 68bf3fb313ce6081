package ical

import (
	"strconv"
	"strings"
	"time"

	"invical/internal/event"
)

// basicUTCLayout is the RFC 5545 DATE-TIME form in UTC: 20241215T140000Z.
const basicUTCLayout = "20060102T150405Z"

// cancelNotice is the fixed paragraph prepended to the description of a
// CANCEL rendering.
const cancelNotice = "This meeting has been cancelled."

// cancelSuffix is appended to the summary of a CANCEL rendering, leaving
// the original summary text otherwise untouched.
const cancelSuffix = " (Cancelled)"

// FormatUTC renders an instant in the basic UTC form with trailing Z.
func FormatUTC(t time.Time) string {
	return t.UTC().Format(basicUTCLayout)
}

// ParseUTC parses a basic UTC date-time string back into an instant.
func ParseUTC(s string) (time.Time, error) {
	return time.Parse(basicUTCLayout, s)
}

// Options carries the per-process rendering configuration. The serializer
// is a pure function of the event and these options; nothing is read from
// ambient state.
type Options struct {
	// ProdID is the PRODID property value. Empty uses a package default.
	ProdID string

	// Now supplies the DTSTAMP instant. Nil means time.Now. DTSTAMP is
	// always render-time, never the event's creation time.
	Now func() time.Time

	// RawOrganizerLine, if non-empty, is emitted verbatim (then folded)
	// in place of an organizer line derived from the event. Cancels
	// reconstructed from a stored snapshot use this so the ORGANIZER
	// output stays byte-identical to the original request even if
	// escaping rules change between versions.
	RawOrganizerLine string
}

const defaultProdID = "-//invical//Meeting Invitations//EN"

// Render serializes ev into a complete RFC 5545 document. All lines are
// joined with CRLF, long lines are folded at 75 octets, and DTSTART/DTEND
// are normalized to UTC with no TZID parameter: timezone-qualified start
// times are a known source of Outlook cancellation failures.
//
// Render is total over validated events: the only error paths are
// malformed (non-UTF-8) text fields, which the event constructor rejects
// upstream. It never emits a truncated document.
func Render(ev *event.Event, opts Options) (string, error) {
	prodID := opts.ProdID
	if prodID == "" {
		prodID = defaultProdID
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	cancelled := ev.Method == event.MethodCancel

	summary := ev.Summary
	if cancelled {
		summary += cancelSuffix
	}

	description := ev.Description
	if cancelled {
		if description == "" {
			description = cancelNotice
		} else {
			description = cancelNotice + "\n\n" + description
		}
	}

	organizerLine := opts.RawOrganizerLine
	if organizerLine == "" {
		var err error
		organizerLine, err = OrganizerLine(ev.Organizer)
		if err != nil {
			return "", err
		}
	}

	lines := make([]string, 0, 16+len(ev.Attendees))
	lines = append(lines,
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:"+prodID,
		"CALSCALE:GREGORIAN",
		"METHOD:"+string(ev.Method),
		"BEGIN:VEVENT",
		"UID:"+ev.UID,
		"SEQUENCE:"+strconv.Itoa(ev.Sequence),
		"DTSTAMP:"+FormatUTC(now()),
		"DTSTART:"+FormatUTC(ev.Start),
		"DTEND:"+FormatUTC(ev.End),
	)

	summaryEsc, err := EscapeText(summary)
	if err != nil {
		return "", err
	}
	lines = append(lines, "SUMMARY:"+summaryEsc)

	descriptionEsc, err := EscapeText(description)
	if err != nil {
		return "", err
	}
	lines = append(lines, "DESCRIPTION:"+descriptionEsc)

	if ev.Location != "" {
		locationEsc, err := EscapeText(ev.Location)
		if err != nil {
			return "", err
		}
		lines = append(lines, "LOCATION:"+locationEsc)
	}

	lines = append(lines, organizerLine)

	attendees := ev.Attendees
	if len(attendees) == 0 {
		// Some clients refuse to treat a message with no ATTENDEE as a
		// calendar object at all, so an attendee-less event gets one
		// synthesized from the organizer.
		attendees = []event.Attendee{{
			Name:     ev.Organizer.Name,
			Email:    ev.Organizer.Email,
			Role:     event.RoleRequired,
			PartStat: "ACCEPTED",
		}}
	}
	for _, a := range attendees {
		line, err := attendeeLine(a)
		if err != nil {
			return "", err
		}
		lines = append(lines, line)
	}

	lines = append(lines,
		"STATUS:"+string(ev.Status),
		"END:VEVENT",
		"END:VCALENDAR",
	)

	var b strings.Builder
	for i, line := range lines {
		folded, err := FoldLine(line)
		if err != nil {
			return "", err
		}
		if i > 0 {
			b.WriteString("\r\n")
		}
		b.WriteString(folded)
	}
	return b.String(), nil
}

// OrganizerLine renders the logical (unfolded) ORGANIZER content line for
// org. The same function feeds both rendering and snapshot capture, so the
// stored line is exactly the emitted one.
func OrganizerLine(org event.Organizer) (string, error) {
	name, err := EscapeText(org.Name)
	if err != nil {
		return "", err
	}
	return "ORGANIZER;CN=" + name + ":mailto:" + org.Email, nil
}

// attendeeLine renders a single logical ATTENDEE content line. RSVP is TRUE
// only for required participants: optional and non-participants are not
// asked to respond.
func attendeeLine(a event.Attendee) (string, error) {
	name := a.Name
	if name == "" {
		name = a.Email
	}
	nameEsc, err := EscapeText(name)
	if err != nil {
		return "", err
	}

	rsvp := "FALSE"
	if a.Role == event.RoleRequired {
		rsvp = "TRUE"
	}

	partStat := a.PartStat
	if partStat == "" {
		partStat = "NEEDS-ACTION"
	}

	return "ATTENDEE;CN=" + nameEsc +
		";ROLE=" + string(a.Role) +
		";RSVP=" + rsvp +
		";PARTSTAT=" + partStat +
		":mailto:" + a.Email, nil
}

// ParseOrganizerLine recovers the organizer identity from s, which may be a
// single ORGANIZER content line or a whole rendered document (folded or
// not). It is the inverse of OrganizerLine.
func ParseOrganizerLine(s string) (event.Organizer, error) {
	for _, line := range strings.Split(Unfold(s), "\r\n") {
		if !strings.HasPrefix(line, "ORGANIZER") {
			continue
		}
		return parseOrganizer(line)
	}
	return event.Organizer{}, &MalformedInputError{Input: s}
}

func parseOrganizer(line string) (event.Organizer, error) {
	rest := strings.TrimPrefix(line, "ORGANIZER")

	var org event.Organizer
	if strings.HasPrefix(rest, ";CN=") {
		rest = strings.TrimPrefix(rest, ";CN=")
		// The CN value may contain escaped ":" only via backslash; find
		// the first unescaped ":" which starts the value part.
		idx := indexUnescaped(rest, ':')
		if idx < 0 {
			return org, &MalformedInputError{Input: line}
		}
		org.Name = UnescapeText(rest[:idx])
		rest = rest[idx:]
	}
	if !strings.HasPrefix(rest, ":") {
		return org, &MalformedInputError{Input: line}
	}
	value := strings.TrimPrefix(rest, ":")
	org.Email = strings.TrimPrefix(value, "mailto:")
	return org, nil
}

// indexUnescaped returns the index of the first c in s not preceded by an
// odd run of backslashes, or -1.
func indexUnescaped(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] != c {
			continue
		}
		n := 0
		for i-1-n >= 0 && s[i-1-n] == '\\' {
			n++
		}
		if n%2 == 0 {
			return i
		}
	}
	return -1
}
