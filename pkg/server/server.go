// Package server serves a built folio site and its live layout API.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"k8s.io/klog/v2"

	"github.com/tstromberg/folio/pkg/folio"
	"github.com/tstromberg/folio/pkg/layout"
	"github.com/tstromberg/folio/pkg/probe"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrBadRequest is wrapped by every query parsing failure.
var ErrBadRequest = errors.New("bad request")

// Server is a server for a folio site.
type Server struct {
	c *folio.Config
	p probe.Prober

	mu sync.RWMutex
	a  *folio.Assembly
}

// New creates a new server.
func New(c *folio.Config, a *folio.Assembly, p probe.Prober) *Server {
	return &Server{c: c, a: a, p: p}
}

// SetAssembly swaps in a rebuilt site. Streams already open keep their images.
func (s *Server) SetAssembly(a *folio.Assembly) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.a = a
}

func (s *Server) assembly() *folio.Assembly {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.a
}

func (s *Server) descriptors() []layout.Descriptor {
	a := s.assembly()
	if a == nil {
		return nil
	}
	ds := make([]layout.Descriptor, len(a.Illustrations))
	for i, il := range a.Illustrations {
		ds[i] = il.Descriptor()
	}
	return ds
}

// Router returns the HTTP routes for the site.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(logRequests)

	r.Get("/healthz", s.HealthHandler())
	r.Route("/api", func(r chi.Router) {
		r.Get("/layout", s.LayoutHandler())
		r.Get("/layout/stream", s.StreamHandler())
	})
	r.Handle("/*", http.FileServer(http.Dir(s.c.OutDir)))
	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		klog.V(1).Infof("%s %s %d %s", r.Method, r.URL.RequestURI(), ww.Status(), time.Since(start))
	})
}

// HealthHandler reports whether a site has been assembled.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		a := s.assembly()
		if a == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":            true,
			"illustrations": len(a.Illustrations),
			"faults":        len(a.Faults),
		})
	}
}

// LayoutHandler lays out the gallery for the requested viewport and returns the finished plan.
func (s *Server) LayoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := layoutQuery{}
		v := r.URL.Query()
		for _, k := range []string{"width", "columns", "mode", "target", "limit"} {
			if v.Has(k) {
				q.set(k, v.Get(k))
			}
		}
		o, err := s.options(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		plan, err := layout.Run(r.Context(), s.descriptors(), o, s.p)
		if err != nil {
			if errors.Is(err, r.Context().Err()) {
				klog.V(1).Infof("layout request abandoned: %v", err)
				return
			}
			status := http.StatusUnprocessableEntity
			if invalidOptions(err) {
				status = http.StatusBadRequest
			}
			writeError(w, status, err)
			return
		}
		writeJSON(w, http.StatusOK, s.planResponse(plan))
	}
}

// layoutQuery is a viewport description, from query parameters or a stream message.
type layoutQuery struct {
	Width   int     `json:"width"`
	Columns int     `json:"columns,omitempty"`
	Mode    string  `json:"mode,omitempty"`
	Target  float64 `json:"target,omitempty"`
	Limit   float64 `json:"limit,omitempty"`

	err error
}

func (q *layoutQuery) set(k, v string) {
	var err error
	switch k {
	case "width":
		q.Width, err = strconv.Atoi(v)
	case "columns":
		q.Columns, err = strconv.Atoi(v)
	case "mode":
		q.Mode = v
	case "target":
		q.Target, err = strconv.ParseFloat(v, 64)
	case "limit":
		q.Limit, err = strconv.ParseFloat(v, 64)
	}
	if err != nil && q.err == nil {
		q.err = fmt.Errorf("%w: %s=%q", ErrBadRequest, k, v)
	}
}

// options turns a viewport description into layout options, starting from the site config.
func (s *Server) options(q layoutQuery) (layout.Options, error) {
	if q.err != nil {
		return layout.Options{}, q.err
	}
	mode, err := layout.ParseOrientation(q.Mode)
	if err != nil {
		return layout.Options{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	var o layout.Options
	switch mode {
	case layout.Rows:
		o = s.c.Layout.RowOptions()
		if q.Width > 0 && q.Limit == 0 {
			o.Limit = float64(q.Width)
		}
	default:
		n := q.Columns
		if n == 0 && q.Width > 0 {
			n = min(layout.ColumnsForWidth(q.Width), s.c.Layout.MaxColumns)
		}
		if n == 0 {
			n = s.c.Layout.MaxColumns
		}
		o = s.c.Layout.ColumnOptions(n)
	}
	if q.Columns != 0 {
		o.Buckets = q.Columns
	}
	if q.Target != 0 {
		o.Target = q.Target
	}
	if q.Limit != 0 {
		o.Limit = q.Limit
	}
	return o, nil
}

func invalidOptions(err error) bool {
	return errors.Is(err, layout.ErrInvalidBuckets) ||
		errors.Is(err, layout.ErrInvalidTarget) ||
		errors.Is(err, layout.ErrInvalidLimit)
}

// placement is a placed image as sent to browsers.
type placement struct {
	layout.Placed
	Thumb string `json:"thumb,omitempty"`
}

type planJSON struct {
	Orientation layout.Orientation  `json:"orientation"`
	Buckets     [][]placement       `json:"buckets"`
	Totals      []float64           `json:"totals"`
	Extent      float64             `json:"extent"`
	Faults      []layout.Fault      `json:"faults,omitempty"`
	Dropped     []layout.Descriptor `json:"dropped,omitempty"`
	Pending     int                 `json:"pending"`
}

func (s *Server) planResponse(p *layout.Plan) planJSON {
	resp := planJSON{
		Orientation: p.Orientation,
		Buckets:     make([][]placement, len(p.Buckets)),
		Totals:      p.Totals,
		Extent:      p.Extent(),
		Faults:      p.Faults,
		Dropped:     p.Dropped,
		Pending:     p.Pending,
	}
	for i, b := range p.Buckets {
		resp.Buckets[i] = make([]placement, len(b))
		for j, pl := range b {
			resp.Buckets[i][j] = s.placement(pl, p.Orientation)
		}
	}
	return resp
}

func (s *Server) placement(pl layout.Placed, o layout.Orientation) placement {
	out := placement{Placed: pl}
	if a := s.assembly(); a != nil {
		if il := a.Illustration(pl.ID); il != nil {
			name := "Column"
			if o == layout.Rows {
				name = "Row"
			}
			out.Thumb = il.ThumbURL(name)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		klog.Warningf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	klog.V(1).Infof("%d: %v", status, err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
