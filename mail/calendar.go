package mail

import (
	"github.com/rykov/lure/config"

	"fmt"
	"strings"
	"time"
)

const icsTimestamp = "20060102T150405Z"

// calendarInvite renders a REQUEST-method iCalendar event for one target
func calendarInvite(c config.CalendarInviteConfig, organizer, organizerName string, t *Target, now time.Time) (string, error) {
	day, err := time.ParseInLocation("2006-01-02", c.Date, time.Local)
	if err != nil {
		return "", fmt.Errorf("calendar invite date: %w", err)
	}

	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteString("\r\n")
	}

	line("BEGIN:VCALENDAR")
	line("PRODID:-//lure//calendar invite//EN")
	line("VERSION:2.0")
	line("METHOD:REQUEST")
	line("BEGIN:VEVENT")
	line("UID:%s", t.UID)
	line("DTSTAMP:%s", now.UTC().Format(icsTimestamp))
	if c.AllDay {
		line("DTSTART;VALUE=DATE:%s", day.Format("20060102"))
		line("DTEND;VALUE=DATE:%s", day.AddDate(0, 0, 1).Format("20060102"))
	} else {
		start := day.Add(time.Duration(c.StartHour)*time.Hour + time.Duration(c.StartMinute)*time.Minute)
		end := start.Add(time.Duration(c.Duration) * time.Minute)
		line("DTSTART:%s", start.UTC().Format(icsTimestamp))
		line("DTEND:%s", end.UTC().Format(icsTimestamp))
	}
	line("SUMMARY:%s", icsEscape(c.Summary))
	if c.Location != "" {
		line("LOCATION:%s", icsEscape(c.Location))
	}
	line("ORGANIZER;CN=%s:mailto:%s", icsParam(organizerName, organizer), organizer)

	rsvp := "FALSE"
	if c.RequestRSVP {
		rsvp = "TRUE"
	}
	line("ATTENDEE;ROLE=REQ-PARTICIPANT;PARTSTAT=NEEDS-ACTION;RSVP=%s;CN=%s:mailto:%s",
		rsvp, icsParam(t.FullName(), t.Email), t.Email)
	line("STATUS:CONFIRMED")
	line("END:VEVENT")
	line("END:VCALENDAR")
	return b.String(), nil
}

var icsTextEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\n", `\n`)

func icsEscape(s string) string {
	return icsTextEscaper.Replace(s)
}

// Parameter values are quoted and may not contain quotes
func icsParam(name, fallback string) string {
	if name == "" {
		name = fallback
	}
	return `"` + strings.ReplaceAll(name, `"`, "'") + `"`
}
