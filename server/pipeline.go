package server

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"go.opentelemetry.io/otel/trace"
)

// Stage is one step of a request pipeline. It returns the request the next
// stage sees, or an error that ends the pipeline and is rendered as the
// response.
type Stage func(w http.ResponseWriter, r *http.Request) (*http.Request, error)

// Handler produces the response for a request that passed every stage.
type Handler func(r *http.Request) (*Result, error)

// Result is a successful handler outcome. Status defaults to 200.
type Result struct {
	Status  int
	Message string
	Data    any
	Cookies []*http.Cookie
}

func OK(data any) *Result {
	return &Result{Status: http.StatusOK, Data: data}
}

// Pipeline runs its stages in order, then the handler. The first failure is
// rendered once and nothing after it runs.
type Pipeline struct {
	server *Server
	route  string
	stages []Stage
}

func (s *Server) Pipeline(route string, stages ...Stage) Pipeline {
	return Pipeline{server: s, route: route, stages: stages}
}

func (p Pipeline) Then(h Handler) http.HandlerFunc {
	s := p.server
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		if s.requestTimeout > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
			defer cancel()
			r = r.WithContext(ctx)
		}

		defer func() {
			if v := recover(); v != nil {
				s.logger.Error().
					Interface("panic", v).
					Bytes("stack", debug.Stack()).
					Str("route", p.route).
					Msg("recovered from handler panic")
				if !rec.wrote {
					s.writeError(rec, r, apperrors.ErrInternal)
				}
			}
			s.logRequest(r, rec.statusCode(), time.Since(start))
			s.metrics.ObserveRequest(p.route, r.Method, rec.statusCode(), time.Since(start))
		}()

		for _, stage := range p.stages {
			next, err := stage(rec, r)
			if err != nil {
				s.writeError(rec, r, err)
				return
			}
			r = next
		}

		res, err := h(r)
		if err != nil {
			s.writeError(rec, r, err)
			return
		}
		s.writeResult(rec, res)
	}
}

func (s *Server) logRequest(r *http.Request, status int, elapsed time.Duration) {
	event := s.logger.Info()
	if status >= http.StatusInternalServerError {
		event = s.logger.Error()
	}
	if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
		event = event.Str("trace_id", sc.TraceID().String())
	}
	event.
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Dur("elapsed", elapsed).
		Msg(colourStatus(status) + http.StatusText(status) + ResetColor)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.wrote {
		return
	}
	r.status = status
	r.wrote = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wrote {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
