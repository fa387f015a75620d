// Package routes exposes the cache engine over HTTP for the demo
// binary: a content endpoint with conditional-response support, tag
// invalidation, and a stats dump. The engine itself stays
// transport-agnostic; everything HTTP lives here.
package routes

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/contentops/tiercache/cache"
)

// Server routes requests through the cache facade.
type Server struct {
	Router *chi.Mux

	cache  *cache.Cache
	source Source
	ttl    time.Duration
}

// Source fetches the payload for a content id on cache miss.
type Source func(r *http.Request, id string) ([]byte, error)

// ServerOptions wires a Server.
type ServerOptions struct {
	Cache      *cache.Cache
	Source     Source
	ContentTTL time.Duration
	Logger     zerolog.Logger
}

// New builds the router with the standard middleware stack.
func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(hlog.URLHandler("url"))
	r.Use(hlog.MethodHandler("method"))
	r.Use(chimw.Recoverer)

	s := &Server{
		Router: r,
		cache:  opts.Cache,
		source: opts.Source,
		ttl:    opts.ContentTTL,
	}

	r.Get("/content/{id}", s.handleContent)
	r.Delete("/content/{id}", s.handleDelete)
	r.Post("/invalidate", s.handleInvalidate)
	r.Post("/clear", s.handleClear)
	r.Get("/stats", s.handleStats)

	return s
}

// handleContent serves a content payload through the cache, emitting
// edge caching headers and honoring If-None-Match with a 304.
func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := "content:" + id
	tags := []string{"content", key}

	body, ok := s.cache.Get(r.Context(), key)
	if !ok {
		fetched, err := s.source(r, id)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Str("id", id).Msg("source fetch failed")
			http.Error(w, "content unavailable", http.StatusBadGateway)
			return
		}
		if err := s.cache.Set(r.Context(), key, json.RawMessage(fetched),
			cache.WithTTL(s.ttl), cache.WithTags(tags...)); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Str("id", id).Msg("cache fill failed")
		}
		body = fetched
	}

	headers := cache.HeadersFor(s.ttl, tags, body)
	for name, vals := range headers {
		for _, v := range vals {
			w.Header().Add(name, v)
		}
	}

	if cond := cache.ParseConditional(r); cond.Matches(headers.Get("ETag")) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.cache.Delete(r.Context(), "content:"+id)
	w.WriteHeader(http.StatusNoContent)
}

// handleInvalidate removes every entry carrying any of the requested
// tags (comma-separated "tags" query or form value).
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("tags")
	if raw == "" {
		raw = r.FormValue("tags")
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) == 0 {
		http.Error(w, "tags required", http.StatusBadRequest)
		return
	}

	invalidated, failed := s.cache.InvalidateByTags(r.Context(), tags)
	writeJSON(w, map[string]int{"invalidated": invalidated, "failed": failed})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Clear(r.Context()); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("durable clear incomplete")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.cache.Metrics())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode response", http.StatusInternalServerError)
	}
}
