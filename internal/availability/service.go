package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"freeslots/internal/config"
	"freeslots/internal/ics"
	"freeslots/internal/ingest"
	appLog "freeslots/internal/log"
	"freeslots/internal/model"
	"freeslots/internal/slots"
)

// FeedFetcher is the subset of *ics.Fetcher the service needs.
type FeedFetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, []error)
}

// Result is the free time for the configured people on one day.
type Result struct {
	Date           time.Time
	MeetingMinutes int
	Window         slots.Window
	Free           []slots.Interval
	// FeedErrors counts calendar feeds that could not be read; their busy
	// time is missing from Free.
	FeedErrors int
}

type cacheKey struct {
	date   string
	length int
}

// Service computes free slots for the people in the config, combining their
// fixed bookings with their ICS calendars.
type Service struct {
	cfg     *config.Config
	loc     *time.Location
	window  slots.Window
	fetcher FeedFetcher
	cache   *lru.Cache[cacheKey, Result]
}

// New builds a Service. fetcher may be nil when no person has ICS feeds.
func New(cfg *config.Config, fetcher FeedFetcher) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("availability: config is nil")
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("availability: timezone %q: %w", cfg.Timezone, err)
	}
	window, err := cfg.Window()
	if err != nil {
		return nil, fmt.Errorf("availability: %w", err)
	}
	cache, err := lru.New[cacheKey, Result](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("availability: cache: %w", err)
	}
	return &Service{
		cfg:     cfg,
		loc:     loc,
		window:  window,
		fetcher: fetcher,
		cache:   cache,
	}, nil
}

// Location is the timezone that defines a day.
func (s *Service) Location() *time.Location {
	return s.loc
}

// DefaultLength is the configured meeting length in minutes.
func (s *Service) DefaultLength() int {
	return s.cfg.MeetingMinutes
}

// Sources lists every configured ICS feed.
func (s *Service) Sources() []ics.Source {
	var out []ics.Source
	for _, p := range s.cfg.People {
		for _, f := range p.ICS {
			if f.URL == "" {
				continue
			}
			out = append(out, ics.Source{ID: f.ID, URL: f.URL, PersonID: p.ID})
		}
	}
	return out
}

// Invalidate drops every cached result.
func (s *Service) Invalidate() {
	s.cache.Purge()
}

// Free returns the free intervals of at least length minutes on date's day.
func (s *Service) Free(ctx context.Context, date time.Time, length int) (Result, error) {
	if length <= 0 {
		return Result{}, slots.ErrInvalidMeetingLength
	}
	dayStart, dayEnd := ingest.DayRange(date, s.loc)

	key := cacheKey{date: dayStart.Format(time.DateOnly), length: length}
	if r, ok := s.cache.Get(key); ok {
		return r, nil
	}

	occs, feedErrs := s.occurrences(ctx, dayStart, dayEnd)

	members := make([]ingest.Member, 0, len(s.cfg.People))
	for _, p := range s.cfg.People {
		busy, err := p.BusyIntervals()
		if err != nil {
			return Result{}, err
		}
		members = append(members, ingest.Member{ID: p.ID, Busy: busy, Occurrences: occs[p.ID]})
	}

	free, err := slots.FreeIntervalsIn(ingest.Persons(members, dayStart, s.loc), length, s.window)
	if err != nil {
		return Result{}, err
	}

	r := Result{
		Date:           dayStart,
		MeetingMinutes: length,
		Window:         s.window,
		Free:           free,
		FeedErrors:     feedErrs,
	}
	if feedErrs == 0 {
		s.cache.Add(key, r)
	}
	appLog.Debug("free slots computed", "date", key.date, "length", length, "free_count", len(free), "feed_errors", feedErrs)
	return r, nil
}

// Prefetch downloads every feed to warm the disk cache, then drops cached
// results so the next request sees the new data.
func (s *Service) Prefetch(ctx context.Context) error {
	defer s.Invalidate()

	sources := s.Sources()
	if len(sources) == 0 || s.fetcher == nil {
		return nil
	}
	_, errs := s.fetcher.FetchAll(ctx, sources)
	return errors.Join(errs...)
}

// occurrences fetches, parses and expands every feed for the day, grouped
// by person. Unreadable feeds are counted and skipped.
func (s *Service) occurrences(ctx context.Context, dayStart, dayEnd time.Time) (map[int][]model.Occurrence, int) {
	out := make(map[int][]model.Occurrence)
	sources := s.Sources()
	if len(sources) == 0 || s.fetcher == nil {
		return out, 0
	}

	results, errs := s.fetcher.FetchAll(ctx, sources)
	failed := len(errs)

	for _, res := range results {
		if res.FromCache {
			appLog.Debug("feed served from disk cache", "id", res.Source.ID)
		}
		events, err := ics.ParseICS(res.Source, res.Body)
		if err != nil {
			failed++
			continue
		}
		occs, err := ics.Expand(events, ics.ExpandConfig{
			Location:   s.loc,
			RangeStart: dayStart,
			RangeEnd:   dayEnd,
		})
		if err != nil {
			appLog.Error("expand failed", err, "id", res.Source.ID)
			failed++
			continue
		}
		for _, o := range occs {
			out[o.PersonID] = append(out[o.PersonID], o)
		}
	}
	return out, failed
}
