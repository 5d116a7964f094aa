// Package chat is the HTTP surface of the dialogue engine.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"npcchat/apps/server/internal/auth"
	"npcchat/apps/server/internal/codec"
	"npcchat/dialogue"
	"npcchat/persona"
)

const (
	maxBodyBytes       = 64 << 10
	defaultInitTimeout = 10 * time.Second
)

type HTTPHandler struct {
	engine      *dialogue.Engine
	personas    *persona.Registry
	guard       auth.Guard
	logger      *zap.Logger
	allowOrigin string
	initTimeout time.Duration
}

// Config carries the optional collaborators of the handler.
type Config struct {
	Personas    *persona.Registry
	Guard       auth.Guard
	Logger      *zap.Logger
	AllowOrigin string        // default "*"
	InitTimeout time.Duration // bound on the lazy Initialize in /chat
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status string `json:"status"`
	Loaded bool   `json:"loaded"`
}

type npcItem struct {
	Slug        string   `json:"slug"`
	Name        string   `json:"name,omitempty"`
	Tagline     string   `json:"tagline,omitempty"`
	DefaultPool string   `json:"defaultPool"`
	Pools       []string `json:"pools"`
}

func NewHTTPHandler(engine *dialogue.Engine, cfg Config) *HTTPHandler {
	h := &HTTPHandler{
		engine:      engine,
		personas:    cfg.Personas,
		guard:       cfg.Guard,
		logger:      cfg.Logger,
		allowOrigin: strings.TrimSpace(cfg.AllowOrigin),
		initTimeout: cfg.InitTimeout,
	}
	if h.personas == nil {
		h.personas = persona.NewRegistry()
	}
	if h.guard == nil {
		h.guard, _ = auth.NewTokenGuard("")
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.allowOrigin == "" {
		h.allowOrigin = "*"
	}
	if h.initTimeout <= 0 {
		h.initTimeout = defaultInitTimeout
	}
	return h
}

func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/chat", h.handleChat)
	mux.HandleFunc("/health", h.handleHealth)
	mux.Handle("/stats", auth.Require(h.guard, http.HandlerFunc(h.handleStats)))
	mux.HandleFunc("/npcs", h.handleNPCs)
}

func (h *HTTPHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req dialogue.LookupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := codec.ValidateRequest(&req); err != nil {
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), codec.ErrInvalidRequest.Error()+": "))
		return
	}

	if !h.engine.IsLoaded() {
		ctx, cancel := context.WithTimeout(r.Context(), h.initTimeout)
		err := h.engine.Initialize(ctx)
		cancel()
		if err != nil {
			requestLogger(h.logger, r).Warn("lazy initialize failed", zap.Error(err))
		}
	}

	res, err := h.engine.Lookup(req)
	if err != nil {
		if errors.Is(err, dialogue.ErrNotReady) {
			writeError(w, http.StatusServiceUnavailable, "engine not ready")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	requestLogger(h.logger, r).Debug("chat lookup",
		zap.String("npc", req.NPCSlug),
		zap.String("pool", req.Pool),
		zap.String("source", string(res.Source)),
		zap.String("entry", res.EntryID),
	)
	writeJSON(w, http.StatusOK, res)
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.engine.IsLoaded() {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Loaded: true})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "loading", Loaded: false})
}

func (h *HTTPHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Stats())
}

func (h *HTTPHandler) handleNPCs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	idx := h.engine.Index()
	if idx == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not ready")
		return
	}

	slugs := idx.NPCs()
	items := make([]npcItem, 0, len(slugs))
	for _, slug := range slugs {
		item := npcItem{
			Slug:        slug,
			DefaultPool: idx.DefaultPoolFor(slug),
			Pools:       idx.Pools(slug),
		}
		if p := h.personas.Get(slug); p != nil {
			item.Name, item.Tagline = p.Name, p.Tagline
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version": idx.Version(),
		"items":   items,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
