package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"lifelog/internal/core"
	"lifelog/internal/external"
	"lifelog/internal/providers"
)

type eventJSON struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Type        core.EventType `json:"type"`
	Date        string         `json:"date"`
	Time        string         `json:"time,omitempty"`
	Description string         `json:"description,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

type eventRequest struct {
	Title       *string `json:"title"`
	Type        *string `json:"type"`
	Date        *string `json:"date"`
	Time        *string `json:"time"`
	Description *string `json:"description"`
}

type calendarResponse struct {
	Year     int                   `json:"year"`
	Country  string                `json:"country"`
	Holidays []external.Holiday    `json:"holidays"`
	Weather  []external.DayWeather `json:"weather"`
	Events   []eventJSON           `json:"events"`
}

func toEventJSON(ev core.Event) eventJSON {
	return eventJSON{
		ID:          ev.ID,
		Title:       ev.Title,
		Type:        ev.Type,
		Date:        ev.Date,
		Time:        ev.Time,
		Description: ev.Description,
		CreatedAt:   ev.CreatedAt,
	}
}

// handleListEvents lists every event, or the events of one day with
// ?date=YYYY-MM-DD.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	var items []core.Event
	if day := strings.TrimSpace(r.URL.Query().Get("date")); day != "" {
		if _, err := core.ParseDay(day); err != nil {
			s.fail(w, r, err)
			return
		}
		items = s.deps.Events.EventsForDate(day)
	} else {
		items = s.deps.Events.Events()
	}
	out := make([]eventJSON, 0, len(items))
	for _, ev := range items {
		out = append(out, toEventJSON(ev))
	}
	NewResponse().JSON(out).Send(w)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := DecodeJSON(r, &req); err != nil {
		s.fail(w, r, errBadBody)
		return
	}
	in := providers.EventInput{
		Title:       optionalString(req.Title),
		Type:        core.EventType(optionalString(req.Type)),
		Date:        optionalString(req.Date),
		Time:        optionalString(req.Time),
		Description: optionalString(req.Description),
	}
	if in.Type == "" {
		in.Type = core.EventEvent
	}
	id, err := s.deps.Events.AddEvent(r.Context(), in)
	s.created(w, r, id, err)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := DecodeJSON(r, &req); err != nil {
		s.fail(w, r, errBadBody)
		return
	}
	p := providers.EventPatch{
		Title:       sanitizePtr(req.Title),
		Date:        sanitizePtr(req.Date),
		Time:        sanitizePtr(req.Time),
		Description: sanitizePtr(req.Description),
	}
	if req.Type != nil {
		t := core.EventType(sanitizeInput(*req.Type))
		p.Type = &t
	}
	s.written(w, r, s.deps.Events.UpdateEvent(r.Context(), r.PathValue("id"), p))
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	s.written(w, r, s.deps.Events.DeleteEvent(r.Context(), r.PathValue("id")))
}

// handleCalendar combines the year's holidays, the weekly forecast and the
// user's events of that year. Lookup failures degrade to fallback data.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	year := parseYear(r, now)
	loc := s.deps.Location
	if c := strings.TrimSpace(r.URL.Query().Get("country")); len(c) == 2 {
		loc.Country = strings.ToUpper(c)
	}

	resp := calendarResponse{Year: year, Country: loc.Country, Events: []eventJSON{}}
	if s.deps.External != nil {
		view := s.deps.External.Calendar(r.Context(), year, loc.Country, loc.Lat, loc.Lon)
		resp.Holidays, resp.Weather = view.Holidays, view.Weather
	} else {
		resp.Holidays = external.StaticHolidays(year)
	}

	prefix := fmt.Sprintf("%04d-", year)
	for _, ev := range s.deps.Events.Events() {
		if strings.HasPrefix(ev.Date, prefix) {
			resp.Events = append(resp.Events, toEventJSON(ev))
		}
	}
	NewResponse().JSON(resp).Send(w)
}
