// Package httpapi exposes dashboard sessions over a JSON HTTP API.
package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/vinodismyname/sheetboard/config"
	"github.com/vinodismyname/sheetboard/internal/dashboard"
	"github.com/vinodismyname/sheetboard/internal/workbooks"
	"github.com/vinodismyname/sheetboard/pkg/dasherr"
	"github.com/vinodismyname/sheetboard/pkg/version"
)

// multipartOverhead is the allowance for form fields around an uploaded file.
const multipartOverhead = 1 << 20

// Handler serves the dashboard API.
type Handler struct {
	svc       *dashboard.Service
	logger    zerolog.Logger
	metrics   http.Handler
	mcp       http.Handler
	guard     func(http.Handler) http.Handler
	maxUpload int64
}

// Options configures a Handler. Guard wraps API routes with request limits.
// Metrics and MCP, when set, are mounted at /metrics and /mcp.
type Options struct {
	MaxUploadBytes int64
	Metrics        http.Handler
	MCP            http.Handler
	Guard          func(http.Handler) http.Handler
}

// New builds a Handler over svc.
func New(svc *dashboard.Service, logger zerolog.Logger, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = config.DefaultMaxUploadBytes
	}
	return &Handler{
		svc:       svc,
		logger:    logger.With().Str("component", "httpapi").Logger(),
		metrics:   opts.Metrics,
		mcp:       opts.MCP,
		guard:     opts.Guard,
		maxUpload: opts.MaxUploadBytes,
	}
}

// Routes returns the router for the API, health and metrics endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(h.logger))
	r.Use(requestIDField)
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Debug().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("duration", d).Msg("request served")
	}))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	if h.mcp != nil {
		r.Handle("/mcp", h.mcp)
	}

	r.Route("/api/sessions", func(r chi.Router) {
		if h.guard != nil {
			r.Use(h.guard)
		}
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Post("/", h.open)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.state)
			r.Delete("/", h.close)
			r.Get("/view", h.view)
			r.Put("/sheet", h.selectSheet)
			r.Put("/filters", h.setFilters)
			r.Put("/chart", h.setChart)
			r.Post("/edits", h.edit)
			r.Get("/export", h.export)
		})
	})
	return r
}

// requestIDField tags the request logger with chi's request ID.
func requestIDField(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			log := zerolog.Ctx(r.Context())
			log.UpdateContext(func(c zerolog.Context) zerolog.Context { return c.Str("request_id", id) })
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"status":   "ok",
		"version":  version.Version(),
		"revision": version.Revision(),
		"sessions": strconv.Itoa(h.svc.Sessions()),
	})
}

type openRequest struct {
	Path  string `json:"path,omitempty"`
	Sheet string `json:"sheet,omitempty"`
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	var (
		src   workbooks.Source
		sheet string
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
		file, header, err := r.FormFile("file")
		if err != nil {
			h.fail(w, r, uploadError(err))
			return
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
		if err != nil {
			h.fail(w, r, uploadError(err))
			return
		}
		src = workbooks.Source{Name: header.Filename, Data: data}
		sheet = r.FormValue("sheet")
	default:
		var req openRequest
		if r.ContentLength != 0 {
			if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
				h.fail(w, r, badRequest(err))
				return
			}
		}
		src = workbooks.Source{Path: strings.TrimSpace(req.Path)}
		sheet = req.Sheet
	}

	snap, err := h.svc.Open(r.Context(), src, sheet)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, snap)
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.State(chi.URLParam(r, "id"))
	h.respond(w, r, snap, err)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := dashboard.PageRequest{Cursor: q.Get("cursor")}
	var err error
	if req.Offset, err = intParam(q.Get("offset")); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Limit, err = intParam(q.Get("limit")); err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.svc.Render(r.Context(), chi.URLParam(r, "id"), req)
	h.respond(w, r, page, err)
}

type sheetRequest struct {
	Sheet string `json:"sheet"`
}

func (h *Handler) selectSheet(w http.ResponseWriter, r *http.Request) {
	var req sheetRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.fail(w, r, badRequest(err))
		return
	}
	snap, err := h.svc.SelectSheet(r.Context(), chi.URLParam(r, "id"), req.Sheet)
	h.respond(w, r, snap, err)
}

func (h *Handler) setFilters(w http.ResponseWriter, r *http.Request) {
	var upd dashboard.FilterUpdate
	if err := render.DecodeJSON(r.Body, &upd); err != nil {
		h.fail(w, r, badRequest(err))
		return
	}
	snap, err := h.svc.SetFilters(r.Context(), chi.URLParam(r, "id"), upd)
	h.respond(w, r, snap, err)
}

func (h *Handler) setChart(w http.ResponseWriter, r *http.Request) {
	var chart dashboard.ChartSpec
	if err := render.DecodeJSON(r.Body, &chart); err != nil {
		h.fail(w, r, badRequest(err))
		return
	}
	snap, err := h.svc.SetChart(r.Context(), chi.URLParam(r, "id"), chart)
	h.respond(w, r, snap, err)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	var req dashboard.EditRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.fail(w, r, badRequest(err))
		return
	}
	snap, err := h.svc.Edit(r.Context(), chi.URLParam(r, "id"), req)
	h.respond(w, r, snap, err)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	keep, _ := strconv.ParseBool(r.URL.Query().Get("keep_hidden"))
	out, err := h.svc.Export(r.Context(), chi.URLParam(r, "id"), dashboard.ExportOptions{KeepHidden: keep})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", out.MIMEType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": out.FileName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Data); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("export write failed")
	}
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, v)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	body := dasherr.BodyFromError(err)
	status := dasherr.HTTPStatus(body.Code)
	ev := hlog.FromRequest(r).Debug()
	if status >= http.StatusInternalServerError {
		ev = hlog.FromRequest(r).Error()
	}
	ev.Err(err).Str("code", string(body.Code)).Int("status", status).Msg("request failed")
	render.Status(r, status)
	render.JSON(w, r, body)
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("upload: %w", dasherr.ErrUploadTooLarge)
	}
	return badRequest(err)
}

// requestError is a malformed request body or parameter.
type requestError struct{ err error }

func (e *requestError) Error() string { return "malformed request: " + e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return &requestError{err: err} }

func init() {
	dasherr.RegisterClassifier(func(err error) (dasherr.Code, bool) {
		var re *requestError
		if errors.As(err, &re) {
			return dasherr.Validation, true
		}
		return "", false
	})
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, badRequest(fmt.Errorf("%q is not a non-negative integer", s))
	}
	return n, nil
}
