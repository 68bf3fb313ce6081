package ical

import (
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"

	"invical/internal/event"
)

var fixedNow = time.Date(2024, 12, 1, 9, 30, 0, 0, time.UTC)

func testOptions() Options {
	return Options{
		ProdID: "-//invical//Meeting Invitations//EN",
		Now:    func() time.Time { return fixedNow },
	}
}

func meetingEvent(t *testing.T) *event.Event {
	t.Helper()
	ev, err := event.New(event.Params{
		UID:     "test-meeting-12345@company.com",
		Summary: "Quarterly Planning",
		Start:   time.Date(2024, 12, 15, 14, 0, 0, 0, time.UTC),
		End:     time.Date(2024, 12, 15, 15, 0, 0, 0, time.UTC),
		Organizer: event.Organizer{
			Name:  "John Smith",
			Email: "john.smith@company.com",
		},
		Required: []event.Person{
			{Name: "Jane Doe", Email: "jane.doe@company.com"},
			{Name: "Bob Wilson", Email: "bob.wilson@company.com"},
		},
	}, event.Defaults{})
	if err != nil {
		t.Fatalf("event.New: %v", err)
	}
	return ev
}

func logicalLines(t *testing.T, doc string) []string {
	t.Helper()
	return strings.Split(Unfold(doc), "\r\n")
}

func findLine(t *testing.T, doc, prefix string) string {
	t.Helper()
	for _, line := range logicalLines(t, doc) {
		if strings.HasPrefix(line, prefix) {
			return line
		}
	}
	t.Fatalf("no line with prefix %q in:\n%s", prefix, doc)
	return ""
}

func TestRenderRequestStructure(t *testing.T) {
	doc, err := Render(meetingEvent(t), testOptions())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	lines := logicalLines(t, doc)
	want := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//invical//Meeting Invitations//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:REQUEST",
		"BEGIN:VEVENT",
		"UID:test-meeting-12345@company.com",
		"SEQUENCE:0",
		"DTSTAMP:20241201T093000Z",
		"DTSTART:20241215T140000Z",
		"DTEND:20241215T150000Z",
		"SUMMARY:Quarterly Planning",
		"DESCRIPTION:",
		"ORGANIZER;CN=John Smith:mailto:john.smith@company.com",
		"ATTENDEE;CN=Jane Doe;ROLE=REQ-PARTICIPANT;RSVP=TRUE;PARTSTAT=NEEDS-ACTION:mailto:jane.doe@company.com",
		"ATTENDEE;CN=Bob Wilson;ROLE=REQ-PARTICIPANT;RSVP=TRUE;PARTSTAT=NEEDS-ACTION:mailto:bob.wilson@company.com",
		"STATUS:CONFIRMED",
		"END:VEVENT",
		"END:VCALENDAR",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d logical lines, want %d:\n%s", len(lines), len(want), doc)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestRenderCRLFInvariant(t *testing.T) {
	ev := meetingEvent(t)
	ev.Description = "multi\nline\ndescription with a long tail " + strings.Repeat("x", 200)

	doc, err := Render(ev, testOptions())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if strings.Contains(strings.ReplaceAll(doc, "\r\n", ""), "\n") {
		t.Fatal("document contains a bare \\n")
	}
	if strings.HasSuffix(doc, "\r\n") {
		t.Fatal("document ends with a trailing line break")
	}
	for i, phys := range strings.Split(doc, "\r\n") {
		if len(phys) > 75 {
			t.Fatalf("physical line %d is %d octets: %q", i, len(phys), phys)
		}
	}
}

func TestRenderCancelScenario(t *testing.T) {
	ev := meetingEvent(t)
	opts := testOptions()

	reqDoc, err := Render(ev, opts)
	if err != nil {
		t.Fatalf("Render request: %v", err)
	}

	cancelled := event.Cancel(ev, event.Organizer{})
	cancelDoc, err := Render(cancelled, opts)
	if err != nil {
		t.Fatalf("Render cancel: %v", err)
	}

	// Identity fields must be byte-identical across both documents.
	for _, prefix := range []string{"UID:", "DTSTART:", "DTEND:", "ORGANIZER"} {
		reqLine := findLine(t, reqDoc, prefix)
		cancelLine := findLine(t, cancelDoc, prefix)
		if reqLine != cancelLine {
			t.Fatalf("%s line differs between REQUEST and CANCEL:\n req: %q\ncncl: %q", prefix, reqLine, cancelLine)
		}
	}

	if got := findLine(t, reqDoc, "SEQUENCE:"); got != "SEQUENCE:0" {
		t.Fatalf("request sequence line = %q", got)
	}
	if got := findLine(t, cancelDoc, "SEQUENCE:"); got != "SEQUENCE:1" {
		t.Fatalf("cancel sequence line = %q", got)
	}
	if got := findLine(t, reqDoc, "METHOD:"); got != "METHOD:REQUEST" {
		t.Fatalf("request method line = %q", got)
	}
	if got := findLine(t, cancelDoc, "METHOD:"); got != "METHOD:CANCEL" {
		t.Fatalf("cancel method line = %q", got)
	}
	if got := findLine(t, cancelDoc, "STATUS:"); got != "STATUS:CANCELLED" {
		t.Fatalf("cancel status line = %q", got)
	}
	if got := findLine(t, cancelDoc, "SUMMARY:"); got != "SUMMARY:Quarterly Planning (Cancelled)" {
		t.Fatalf("cancel summary line = %q", got)
	}
	if got := findLine(t, cancelDoc, "DESCRIPTION:"); !strings.Contains(got, "cancelled") {
		t.Fatalf("cancel description lacks the notice: %q", got)
	}

	// Every attendee from the request appears on the cancel too.
	for _, email := range []string{"jane.doe@company.com", "bob.wilson@company.com"} {
		if !strings.Contains(Unfold(cancelDoc), "mailto:"+email) {
			t.Fatalf("cancel is missing attendee %s", email)
		}
	}
}

func TestRenderDTSTAMPIsRenderTime(t *testing.T) {
	ev := meetingEvent(t)

	first, err := Render(ev, Options{Now: func() time.Time { return fixedNow }})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	second, err := Render(ev, Options{Now: func() time.Time { return fixedNow.Add(time.Hour) }})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if findLine(t, first, "DTSTAMP:") == findLine(t, second, "DTSTAMP:") {
		t.Fatal("DTSTAMP did not change between renders")
	}
	for _, prefix := range []string{"UID:", "SEQUENCE:", "DTSTART:", "DTEND:", "ORGANIZER"} {
		if findLine(t, first, prefix) != findLine(t, second, prefix) {
			t.Fatalf("%s line changed between renders", prefix)
		}
	}
}

func TestRenderUTCNormalization(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	ev := meetingEvent(t)
	ev.Start = time.Date(2024, 12, 15, 9, 0, 0, 0, loc) // 14:00 UTC
	ev.End = time.Date(2024, 12, 15, 10, 0, 0, 0, loc)

	doc, err := Render(ev, testOptions())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if got := findLine(t, doc, "DTSTART:"); got != "DTSTART:20241215T140000Z" {
		t.Fatalf("DTSTART line = %q", got)
	}
	if strings.Contains(doc, "TZID") {
		t.Fatal("output contains a TZID parameter")
	}
}

func TestRenderEmptyAttendeeFallback(t *testing.T) {
	ev := meetingEvent(t)
	ev.Attendees = nil

	doc, err := Render(ev, testOptions())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	var attendees []string
	for _, line := range logicalLines(t, doc) {
		if strings.HasPrefix(line, "ATTENDEE") {
			attendees = append(attendees, line)
		}
	}
	if len(attendees) != 1 {
		t.Fatalf("expected exactly 1 synthesized ATTENDEE line, got %d", len(attendees))
	}
	if !strings.Contains(attendees[0], "mailto:john.smith@company.com") {
		t.Fatalf("synthesized attendee is not the organizer: %q", attendees[0])
	}
}

func TestRenderRSVPByRole(t *testing.T) {
	ev := meetingEvent(t)
	ev.Attendees = []event.Attendee{
		{Name: "Req", Email: "req@company.com", Role: event.RoleRequired, PartStat: "NEEDS-ACTION"},
		{Name: "Opt", Email: "opt@company.com", Role: event.RoleOptional, PartStat: "NEEDS-ACTION"},
		{Name: "Non", Email: "non@company.com", Role: event.RoleNonParticipant, PartStat: "NEEDS-ACTION"},
	}

	doc, err := Render(ev, testOptions())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	unfolded := Unfold(doc)

	if !strings.Contains(unfolded, "ROLE=REQ-PARTICIPANT;RSVP=TRUE;PARTSTAT=NEEDS-ACTION:mailto:req@company.com") {
		t.Fatal("required attendee should have RSVP=TRUE")
	}
	if !strings.Contains(unfolded, "ROLE=OPT-PARTICIPANT;RSVP=FALSE;PARTSTAT=NEEDS-ACTION:mailto:opt@company.com") {
		t.Fatal("optional attendee should have RSVP=FALSE")
	}
	if !strings.Contains(unfolded, "ROLE=NON-PARTICIPANT;RSVP=FALSE;PARTSTAT=NEEDS-ACTION:mailto:non@company.com") {
		t.Fatal("non-participant should have RSVP=FALSE")
	}
}

func TestRenderEscapesTextFields(t *testing.T) {
	ev := meetingEvent(t)
	ev.Summary = "Budget; Q1, part\\two"
	ev.Location = "Room 4; Floor 2"

	doc, err := Render(ev, testOptions())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if got := findLine(t, doc, "SUMMARY:"); got != `SUMMARY:Budget\; Q1\, part\\two` {
		t.Fatalf("SUMMARY line = %q", got)
	}
	if got := findLine(t, doc, "LOCATION:"); got != `LOCATION:Room 4\; Floor 2` {
		t.Fatalf("LOCATION line = %q", got)
	}
}

func TestRenderOmitsEmptyLocation(t *testing.T) {
	ev := meetingEvent(t)
	ev.Location = ""

	doc, err := Render(ev, testOptions())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(doc, "LOCATION") {
		t.Fatal("empty location should be omitted entirely")
	}
}

func TestOrganizerLineRoundTrip(t *testing.T) {
	organizers := []event.Organizer{
		{Name: "John Smith", Email: "john.smith@company.com"},
		{Name: "Smith; John, Jr.", Email: "jsmith@company.com"},
		{Name: `Back\slash`, Email: "b@company.com"},
		{Name: "Jürgen Groß", Email: "jg@example.de"},
		{Name: "", Email: "anon@example.com"},
	}
	for _, org := range organizers {
		ev := meetingEvent(t)
		ev.Organizer = org

		doc, err := Render(ev, testOptions())
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		got, err := ParseOrganizerLine(doc)
		if err != nil {
			t.Fatalf("ParseOrganizerLine: %v", err)
		}
		if got != org {
			t.Fatalf("organizer round trip: got %+v, want %+v", got, org)
		}
	}
}

func TestRenderLongOrganizerFolds(t *testing.T) {
	ev := meetingEvent(t)
	ev.Organizer = event.Organizer{
		Name:  strings.Repeat("Verylongname ", 12),
		Email: "someone.with.a.long.address@subdomain.company-name.example.com",
	}

	doc, err := Render(ev, testOptions())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for i, phys := range strings.Split(doc, "\r\n") {
		if len(phys) > 75 {
			t.Fatalf("physical line %d too long: %q", i, phys)
		}
	}

	got, err := ParseOrganizerLine(doc)
	if err != nil {
		t.Fatalf("ParseOrganizerLine: %v", err)
	}
	if got != ev.Organizer {
		t.Fatalf("folded organizer round trip: got %+v", got)
	}
}

// TestRenderParsesWithIndependentLibrary feeds the rendered document to a
// separate ICS implementation to catch structural mistakes our own parser
// would be blind to.
func TestRenderParsesWithIndependentLibrary(t *testing.T) {
	ev := meetingEvent(t)
	ev.Description = "Agenda:\n- numbers; budget, hiring\n- " + strings.Repeat("detail ", 40)

	doc, err := Render(ev, testOptions())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	// The MIME layer terminates the part with CRLF; mirror that here so
	// the parser sees a terminated final line.
	cal, err := ics.ParseCalendar(strings.NewReader(doc + "\r\n"))
	if err != nil {
		t.Fatalf("independent parser rejected output: %v", err)
	}
	events := cal.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 VEVENT, got %d", len(events))
	}
	ve := events[0]

	if got := ve.GetProperty(ics.ComponentPropertyUniqueId).Value; got != ev.UID {
		t.Fatalf("parsed UID = %q, want %q", got, ev.UID)
	}
	if got := ve.GetProperty(ics.ComponentPropertySequence).Value; got != "0" {
		t.Fatalf("parsed SEQUENCE = %q", got)
	}
	start, err := ve.GetStartAt()
	if err != nil {
		t.Fatalf("GetStartAt: %v", err)
	}
	if !start.Equal(ev.Start) {
		t.Fatalf("parsed start %v, want %v", start, ev.Start)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		t.Fatalf("GetEndAt: %v", err)
	}
	if !end.Equal(ev.End) {
		t.Fatalf("parsed end %v, want %v", end, ev.End)
	}
}

func TestRenderRawOrganizerLineOverride(t *testing.T) {
	ev := meetingEvent(t)
	// A line with legacy escaping a newer version would not produce.
	raw := `ORGANIZER;CN=Old "Style" Name:mailto:john.smith@company.com`

	opts := testOptions()
	opts.RawOrganizerLine = raw

	doc, err := Render(ev, opts)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := findLine(t, doc, "ORGANIZER"); got != raw {
		t.Fatalf("raw organizer line not emitted verbatim: %q", got)
	}
}

func TestFormatParseUTC(t *testing.T) {
	in := time.Date(2024, 12, 15, 14, 0, 0, 0, time.UTC)
	s := FormatUTC(in)
	if s != "20241215T140000Z" {
		t.Fatalf("FormatUTC = %q", s)
	}
	back, err := ParseUTC(s)
	if err != nil {
		t.Fatalf("ParseUTC: %v", err)
	}
	if !back.Equal(in) {
		t.Fatalf("ParseUTC round trip: %v != %v", back, in)
	}
}
