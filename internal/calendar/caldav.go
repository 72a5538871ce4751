package calendar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ics "github.com/emersion/go-ical"

	"concierge-automation/internal/common/errors"
	"concierge-automation/internal/common/utils"
	"concierge-automation/internal/models"
)

// CalDAVProvider talks to a CalDAV collection with REPORT queries and PUT
// writes. One collection serves one user account.
type CalDAVProvider struct {
	client   *http.Client
	url      string
	username string
	password string
}

func NewCalDAVProvider(serverURL, username, password string) *CalDAVProvider {
	return &CalDAVProvider{
		client:   &http.Client{Timeout: 30 * time.Second},
		url:      strings.TrimSuffix(serverURL, "/"),
		username: username,
		password: password,
	}
}

func (p *CalDAVProvider) ListEvents(ctx context.Context, userID string, start, end time.Time) ([]*models.CalendarEvent, error) {
	reportBody := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8" ?>
<C:calendar-query xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:prop>
    <D:getetag/>
    <C:calendar-data/>
  </D:prop>
  <C:filter>
    <C:comp-filter name="VCALENDAR">
      <C:comp-filter name="VEVENT">
        <C:time-range start="%s" end="%s"/>
      </C:comp-filter>
    </C:comp-filter>
  </C:filter>
</C:calendar-query>`,
		start.UTC().Format("20060102T150405Z"),
		end.UTC().Format("20060102T150405Z"))

	req, err := http.NewRequestWithContext(ctx, "REPORT", p.url, strings.NewReader(reportBody))
	if err != nil {
		return nil, errors.InternalError("failed to build caldav request", err)
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	req.Header.Set("Depth", "1")
	req.SetBasicAuth(p.username, p.password)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.ConnectionError("caldav request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ConnectionError("failed to read caldav response", err)
	}
	if resp.StatusCode != http.StatusMultiStatus {
		return nil, errors.InternalError(fmt.Sprintf("unexpected caldav status %d", resp.StatusCode), nil)
	}

	events := parseMultiStatus(string(body), userID)

	var overlapping []*models.CalendarEvent
	for _, event := range events {
		if event.Status == models.EventStatusCancelled {
			continue
		}
		if event.Overlaps(start, end) {
			overlapping = append(overlapping, event)
		}
	}
	return overlapping, nil
}

func (p *CalDAVProvider) CreateEvent(ctx context.Context, event *models.CalendarEvent) (*models.CalendarEvent, error) {
	clone := *event
	if clone.ID == "" {
		clone.ID = utils.NewID()
	}
	clone.UID = clone.ID
	if clone.Status == "" {
		clone.Status = models.EventStatusConfirmed
	}
	clone.Source = "caldav"
	now := time.Now()
	clone.Created = now
	clone.Updated = now

	cal := ics.NewCalendar()
	cal.Props.SetText(ics.PropProductID, "-//concierge//automation//EN")
	cal.Props.SetText(ics.PropVersion, "2.0")

	vevent := ics.NewComponent(ics.CompEvent)
	vevent.Props.SetText(ics.PropUID, clone.UID)
	vevent.Props.SetText(ics.PropSummary, clone.Title)
	if clone.Description != "" {
		vevent.Props.SetText(ics.PropDescription, clone.Description)
	}
	if clone.Location != "" {
		vevent.Props.SetText(ics.PropLocation, clone.Location)
	}
	vevent.Props.SetDateTime(ics.PropDateTimeStamp, now.UTC())
	vevent.Props.SetDateTime(ics.PropDateTimeStart, clone.Start.UTC())
	vevent.Props.SetDateTime(ics.PropDateTimeEnd, clone.End.UTC())
	vevent.Props.SetText(ics.PropStatus, strings.ToUpper(clone.Status))
	for _, attendee := range clone.Attendees {
		prop := ics.NewProp(ics.PropAttendee)
		prop.Value = "mailto:" + attendee.Email
		if attendee.Name != "" {
			prop.Params.Set("CN", attendee.Name)
		}
		vevent.Props.Add(prop)
	}
	cal.Children = append(cal.Children, vevent)

	var buf bytes.Buffer
	if err := ics.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, errors.InternalError("failed to encode calendar event", err)
	}

	eventURL := fmt.Sprintf("%s/%s.ics", p.url, clone.UID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, eventURL, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, errors.InternalError("failed to build caldav request", err)
	}
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	req.SetBasicAuth(p.username, p.password)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.ConnectionError("caldav put failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return nil, errors.InternalError(fmt.Sprintf("unexpected caldav status %d", resp.StatusCode), nil)
	}

	clone.URL = eventURL
	return &clone, nil
}

// parseMultiStatus extracts calendar-data blocks from a WebDAV multistatus
// response and decodes each into an event.
func parseMultiStatus(xmlResponse, userID string) []*models.CalendarEvent {
	const calDataStart = "calendar-data>"
	const calDataEnd = "</"

	var events []*models.CalendarEvent
	searchFrom := 0
	for {
		start := strings.Index(xmlResponse[searchFrom:], calDataStart)
		if start == -1 {
			break
		}
		start += searchFrom + len(calDataStart)

		end := strings.Index(xmlResponse[start:], calDataEnd)
		if end == -1 {
			break
		}
		end += start

		calData := xmlResponse[start:end]
		calData = strings.ReplaceAll(calData, "&lt;", "<")
		calData = strings.ReplaceAll(calData, "&gt;", ">")
		calData = strings.ReplaceAll(calData, "&amp;", "&")
		calData = strings.ReplaceAll(calData, "&#13;", "\r")

		if event, err := decodeEvent(calData, userID); err == nil && event != nil {
			events = append(events, event)
		}
		searchFrom = end
	}
	return events
}

func decodeEvent(icalData, userID string) (*models.CalendarEvent, error) {
	cal, err := ics.NewDecoder(strings.NewReader(icalData)).Decode()
	if err != nil {
		return nil, err
	}

	for _, component := range cal.Children {
		if component.Name == ics.CompEvent {
			return convertVEvent(component, userID)
		}
	}
	return nil, errors.InternalError("no VEVENT found", nil)
}

func convertVEvent(vevent *ics.Component, userID string) (*models.CalendarEvent, error) {
	event := &models.CalendarEvent{
		UserID: userID,
		Source: "caldav",
		Status: models.EventStatusConfirmed,
	}

	if uid := vevent.Props.Get(ics.PropUID); uid != nil {
		event.UID = uid.Value
		event.ID = uid.Value
	}
	if summary := vevent.Props.Get(ics.PropSummary); summary != nil {
		event.Title = summary.Value
	}
	if desc := vevent.Props.Get(ics.PropDescription); desc != nil {
		event.Description = desc.Value
	}
	if loc := vevent.Props.Get(ics.PropLocation); loc != nil {
		event.Location = loc.Value
	}
	if status := vevent.Props.Get(ics.PropStatus); status != nil {
		event.Status = strings.ToLower(status.Value)
	}

	if dtstart := vevent.Props.Get(ics.PropDateTimeStart); dtstart != nil {
		t, err := parseICalTime(dtstart.Value)
		if err != nil {
			return nil, err
		}
		event.Start = t
	}
	if dtend := vevent.Props.Get(ics.PropDateTimeEnd); dtend != nil {
		t, err := parseICalTime(dtend.Value)
		if err != nil {
			return nil, err
		}
		event.End = t
	}

	for _, prop := range vevent.Props[ics.PropAttendee] {
		attendee := models.Attendee{Status: "needs-action"}
		if strings.HasPrefix(strings.ToUpper(prop.Value), "MAILTO:") {
			attendee.Email = prop.Value[7:]
		}
		if cn := prop.Params.Get("CN"); cn != "" {
			attendee.Name = cn
		}
		if partstat := prop.Params.Get("PARTSTAT"); partstat != "" {
			attendee.Status = strings.ToLower(partstat)
		}
		event.Attendees = append(event.Attendees, attendee)
	}

	return event, nil
}

func parseICalTime(value string) (time.Time, error) {
	utc := strings.HasSuffix(value, "Z")
	value = strings.TrimSuffix(value, "Z")

	for _, format := range []string{"20060102T150405", "20060102"} {
		if t, err := time.Parse(format, value); err == nil {
			if utc {
				return t.UTC(), nil
			}
			return t, nil
		}
	}
	return time.Time{}, errors.ValidationError(fmt.Sprintf("unable to parse datetime: %s", value))
}
