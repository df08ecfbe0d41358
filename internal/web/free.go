package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"freeslots/internal/availability"
	appLog "freeslots/internal/log"
	"freeslots/internal/present"
	"freeslots/internal/slots"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

// freeRequest is the POST /api/free body. Length nil means the configured
// default; Window nil means the whole day.
type freeRequest struct {
	Date    string          `json:"date"`
	Length  *int            `json:"length"`
	Window  *slots.Interval `json:"window,omitempty"`
	Persons []slots.Person  `json:"persons"`
}

type freeResponse struct {
	Date           string         `json:"date"`
	Timezone       string         `json:"timezone"`
	MeetingMinutes int            `json:"meeting_minutes"`
	Slots          []present.Slot `json:"slots"`
	FeedErrors     int            `json:"feed_errors,omitempty"`
}

// handleFreeConfigured serves GET /api/free?date=YYYY-MM-DD&length=30 for
// the people in the config. Both parameters are optional: today and the
// configured meeting length.
func (s *Server) handleFreeConfigured(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	date, err := s.parseDate(q.Get("date"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	length := s.finder.DefaultLength()
	if v := q.Get("length"); v != "" {
		if length, err = strconv.Atoi(v); err != nil {
			s.fail(w, r, fmt.Errorf("%w: length %q is not a number", errBadRequest, v))
			return
		}
	}

	res, err := s.finder.Free(r.Context(), date, length)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.response(res))
}

// handleFreeAdHoc serves POST /api/free: a pure computation over the
// persons in the body. Nothing from the config's people is used.
func (s *Server) handleFreeAdHoc(w http.ResponseWriter, r *http.Request) {
	var req freeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.fail(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	date, err := s.parseDate(req.Date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	length := s.finder.DefaultLength()
	if req.Length != nil {
		length = *req.Length
	}
	window := slots.Day
	if req.Window != nil {
		window = slots.Window{Start: req.Window.Start, End: req.Window.End}
	}

	free, err := slots.FreeIntervalsIn(req.Persons, length, window)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.response(availability.Result{
		Date:           date,
		MeetingMinutes: length,
		Window:         window,
		Free:           free,
	}))
}

func (s *Server) response(res availability.Result) freeResponse {
	return freeResponse{
		Date:           res.Date.Format(time.DateOnly),
		Timezone:       s.finder.Location().String(),
		MeetingMinutes: res.MeetingMinutes,
		Slots:          present.Slots(res.Free, res.Date),
		FeedErrors:     res.FeedErrors,
	}
}

// parseDate reads YYYY-MM-DD in the service location; empty means today.
func (s *Server) parseDate(v string) (time.Time, error) {
	loc := s.finder.Location()
	if v == "" {
		n := s.now().In(loc)
		return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc), nil
	}
	d, err := time.ParseInLocation(time.DateOnly, v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", errBadRequest, v)
	}
	return d, nil
}

// fail maps domain errors to 400 and everything else to 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, slots.ErrInvalidMeetingLength),
		errors.Is(err, slots.ErrMalformedInterval),
		errors.Is(err, slots.ErrOutOfRangeTime),
		errors.Is(err, slots.ErrInvalidWindow):
		appLog.Debug("rejected request", "path", r.URL.Path, "reason", err.Error())
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		appLog.Error("free slots failed", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
