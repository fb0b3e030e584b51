// Package api provides the HTTP surface for the sprite: touch events,
// identification, the agent's pending-touch queue, the spatial cache, the
// presence record, and the peripheral room/weather/status endpoints.
// GET endpoints are public; mutating room endpoints require a bearer token.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rcfox/spritekeeper/internal/identity"
	"github.com/rcfox/spritekeeper/internal/persistence"
	"github.com/rcfox/spritekeeper/internal/presence"
	"github.com/rcfox/spritekeeper/internal/rooms"
	"github.com/rcfox/spritekeeper/internal/spatial"
	"github.com/rcfox/spritekeeper/internal/touch"
	"github.com/rcfox/spritekeeper/internal/weather"
)

// Server serves the sprite state over HTTP.
type Server struct {
	Engine   *touch.Engine
	Presence *presence.Store
	Identity *identity.Resolver
	Spatial  *spatial.Resolver
	Rooms    *rooms.Store
	DB       *persistence.DB
	Weather  *weather.Client // nil = weather disabled

	Port         int
	AdminKey     string // Bearer token for room mutations. Empty = disabled.
	DashboardDir string // Static dashboard root. Empty = no static serving.

	started time.Time
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	handler := s.Handler()

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr,
		"admin_auth", s.AdminKey != "", "dashboard", s.DashboardDir != "")

	go func() {
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Handler builds the full handler; exposed separately for tests.
func (s *Server) Handler() http.Handler {
	if s.started.IsZero() {
		s.started = time.Now()
	}

	mux := http.NewServeMux()

	// Core touch surface.
	mux.HandleFunc("/touch", s.handleTouch)
	mux.HandleFunc("/identify", s.handleIdentify)
	mux.HandleFunc("/pending-touches", s.handlePendingTouches)
	mux.HandleFunc("/spatial-cache", s.handleSpatialCache)
	mux.HandleFunc("/presence", s.handlePresence)

	// Peripherals.
	mux.HandleFunc("/rooms", s.handleRooms)
	mux.HandleFunc("/rooms/", s.handleRoomRoutes)
	mux.HandleFunc("/weather", s.handleWeather)
	mux.HandleFunc("/status", s.handleStatus)

	if s.DashboardDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.DashboardDir)))
	}

	return corsMiddleware(mux)
}

// corsMiddleware adds CORS headers for allowed dashboard origins. Set
// CORS_ORIGINS to a comma-separated list; localhost dev servers are always
// allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientAddr extracts the caller's address for identity resolution:
// first X-Forwarded-For hop when present, else the RemoteAddr host.
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			xff = xff[:idx]
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// checkBearerToken returns true if the request carries the admin token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly guards a mutating handler with bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no SPRITE_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleTouch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Kind     string   `json:"kind"`
		X        *float64 `json:"x"`
		Y        *float64 `json:"y"`
		OnTarget bool     `json:"onTarget"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	kind := touch.Kind(req.Kind)
	if !touch.ValidKind(kind) {
		http.Error(w, "kind must be tap or doubletap", http.StatusBadRequest)
		return
	}
	if req.X == nil || req.Y == nil || *req.X < 0 || *req.X > 1 || *req.Y < 0 || *req.Y > 1 {
		http.Error(w, "x and y must be in [0,1]", http.StatusBadRequest)
		return
	}

	res, err := s.Engine.HandleTouch(clientAddr(r), kind, *req.X, *req.Y, req.OnTarget)
	if err != nil {
		slog.Error("touch handling failed", "error", err)
		http.Error(w, "presence state unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Identity string `json:"identity"`
		Emoji    string `json:"emoji,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	res, err := s.Engine.Identify(clientAddr(r), identity.ID(req.Identity))
	if err != nil {
		if errors.Is(err, touch.ErrBadIdentity) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("identify failed", "error", err)
		http.Error(w, "presence state unavailable", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{"ok": true, "identity": res.Who})
}

func (s *Server) handlePendingTouches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	events, err := s.DB.DrainPending()
	if err != nil {
		// Corrupt queue degrades to an empty batch; the agent just sees a
		// quiet sprite.
		slog.Error("pending queue drain failed", "error", err)
		events = nil
	}
	if events == nil {
		events = []touch.Event{}
	}
	writeJSON(w, map[string]any{"events": events})
}

func (s *Server) handleSpatialCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Room        string `json:"room"`
		Cell        string `json:"cell"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Room == "" || req.Cell == "" || req.Description == "" {
		http.Error(w, "room, cell and description are required", http.StatusBadRequest)
		return
	}
	if !spatial.ValidCellKey(req.Cell) {
		http.Error(w, "cell must look like \"3_4\" (0-9 each)", http.StatusBadRequest)
		return
	}

	if err := s.Spatial.CacheSet(req.Room, req.Cell, req.Description); err != nil {
		slog.Error("spatial cache write failed", "error", err)
		http.Error(w, "cache write failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "room": req.Room, "cell": req.Cell, "cached": true})
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rec, err := s.Presence.Read()
	if err != nil {
		slog.Error("presence read failed", "error", err)
		http.Error(w, "presence unreadable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rec)
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, map[string]any{"rooms": s.Rooms.All()})
	case http.MethodPost:
		s.adminOnly(s.handleRoomCreate)(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRoomCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string           `json:"name"`
		Wallpaper string           `json:"wallpaper"`
		Locations []rooms.Location `json:"locations,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	if err := s.Rooms.Put(req.Name, rooms.Room{Wallpaper: req.Wallpaper, Locations: req.Locations}); err != nil {
		slog.Error("room save failed", "error", err)
		http.Error(w, "room save failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "room": req.Name})
}

// handleRoomRoutes dispatches /rooms/{name} and /rooms/{name}/locations.
func (s *Server) handleRoomRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/rooms/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "missing room name", http.StatusBadRequest)
		return
	}
	name := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		s.adminOnly(func(w http.ResponseWriter, r *http.Request) {
			if err := s.Rooms.Delete(name); err != nil {
				if errors.Is(err, rooms.ErrRoomNotFound) {
					http.Error(w, "room not found", http.StatusNotFound)
					return
				}
				slog.Error("room delete failed", "error", err)
				http.Error(w, "room delete failed", http.StatusInternalServerError)
				return
			}
			writeJSON(w, map[string]any{"ok": true, "deleted": name})
		})(w, r)

	case len(parts) == 1 && r.Method == http.MethodGet:
		room, ok := s.Rooms.Get(name)
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		writeJSON(w, room)

	case len(parts) == 2 && parts[1] == "locations" && r.Method == http.MethodPost:
		s.adminOnly(func(w http.ResponseWriter, r *http.Request) {
			var loc rooms.Location
			if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
			if loc.Name == "" || loc.X < 0 || loc.X > 1 || loc.Y < 0 || loc.Y > 1 {
				http.Error(w, "location needs a name and x,y in [0,1]", http.StatusBadRequest)
				return
			}
			if err := s.Rooms.PutLocation(name, loc); err != nil {
				if errors.Is(err, rooms.ErrRoomNotFound) {
					http.Error(w, "room not found", http.StatusNotFound)
					return
				}
				slog.Error("location save failed", "error", err)
				http.Error(w, "location save failed", http.StatusInternalServerError)
				return
			}
			writeJSON(w, map[string]any{"ok": true, "room": name, "location": loc.Name})
		})(w, r)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var conditions *weather.Conditions
	if s.Weather != nil {
		c, err := s.Weather.Fetch()
		if err != nil {
			slog.Warn("weather fetch failed", "error", err)
		} else {
			conditions = c
		}
	}

	writeJSON(w, map[string]any{
		"conditions": conditions,
		"ambient":    weather.Ambient(conditions, time.Now().Hour()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	eventCount := 0
	if s.DB != nil {
		if n, err := s.DB.EventCount(); err == nil {
			eventCount = n
		}
	}

	status := map[string]any{
		"name":           "spritekeeper",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"known_visitors": s.Identity.Count(),
		"reacting":       s.Engine.SessionActive(),
		"touch_events":   eventCount,
		"rooms":          len(s.Rooms.All()),
		"weather":        s.Weather != nil,
	}
	if rec, err := s.Presence.Read(); err == nil {
		status["presence"] = rec
	}
	writeJSON(w, status)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
