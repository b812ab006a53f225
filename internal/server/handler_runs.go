package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/nightsched/pkg/model"
)

// Query parameters, also listed by the discovery endpoint.
var (
	listRunsParams = []string{"limit", "offset", "scenario"}
	timelineParams = []string{"night", "site"}
)

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	opts := model.DefaultListOptions()
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &opts.Limit}, {"offset", &opts.Offset}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			s.fail(w, r, model.NewValidationError("invalid "+p.name+": "+v))
			return
		}
		*p.dst = n
	}
	opts.Scenario = q.Get("scenario")
	opts.Clamp()

	runs, total, err := s.store.ListRuns(r.Context(), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}
	s.page(w, r, runs, opts, total)
}

// lookupRun loads the run named in the URL. It writes the error response
// and returns nil when the run cannot be served.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) *model.Run {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return nil
	}
	if run == nil {
		s.fail(w, r, model.NewNotFoundError("run", id))
		return nil
	}
	return run
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if run := s.lookupRun(w, r); run != nil {
		s.ok(w, r, run)
	}
}

func (s *Server) handleGetTimeline(w http.ResponseWriter, r *http.Request) {
	var filter model.TimelineFilter
	if v := r.URL.Query().Get("night"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.fail(w, r, model.NewValidationError("invalid night: "+v))
			return
		}
		night := model.NightIndex(n)
		filter.Night = &night
	}
	filter.Site = model.Site(r.URL.Query().Get("site"))

	run := s.lookupRun(w, r)
	if run == nil {
		return
	}
	entries, err := s.store.ListTimeline(r.Context(), run.ID, filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.EntryRecord{}
	}
	s.ok(w, r, entries)
}
