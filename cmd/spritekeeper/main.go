// Command spritekeeper runs the backend for the on-screen wizard sprite:
// presence record, touch reactions, agent hand-offs, and the dashboard API.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rcfox/spritekeeper/internal/agent"
	"github.com/rcfox/spritekeeper/internal/api"
	"github.com/rcfox/spritekeeper/internal/drift"
	"github.com/rcfox/spritekeeper/internal/identity"
	"github.com/rcfox/spritekeeper/internal/persistence"
	"github.com/rcfox/spritekeeper/internal/presence"
	"github.com/rcfox/spritekeeper/internal/rooms"
	"github.com/rcfox/spritekeeper/internal/spatial"
	"github.com/rcfox/spritekeeper/internal/touch"
	"github.com/rcfox/spritekeeper/internal/weather"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("spritekeeper — the wizard is in")

	dataDir := envOrDefault("SPRITE_DATA_DIR", "data")
	dbPath := envOrDefault("SPRITE_DB", filepath.Join(dataDir, "spritekeeper.db"))
	port := envIntOrDefault("SPRITE_PORT", 8420)

	// ── Data dir and database ─────────────────────────────────────────
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		slog.Error("failed to create data dir", "error", err)
		os.Exit(1)
	}
	db, err := persistence.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", dbPath)
	db.SaveMeta("started_at", time.Now().UTC().Format(time.RFC3339))

	// ── Stores ────────────────────────────────────────────────────────
	presenceStore := presence.NewStore(filepath.Join(dataDir, "mood.json"))
	if err := presenceStore.EnsureDefault(presence.Record{
		Mood:     "happy",
		Status:   "",
		Room:     "workshop",
		Location: "fireplace",
	}); err != nil {
		slog.Error("failed to seed presence record", "error", err)
		os.Exit(1)
	}

	identityResolver := identity.NewResolver(filepath.Join(dataDir, "identity.json"))
	spatialResolver := spatial.NewResolver(
		filepath.Join(dataDir, "spatial-map.json"),
		filepath.Join(dataDir, "spatial-cache.json"),
	)
	roomStore := rooms.NewStore(filepath.Join(dataDir, "locations.json"))

	// ── External agent sink ───────────────────────────────────────────
	var sink touch.Sink
	if notifier := agent.NewNotifier(os.Getenv("SPRITE_WAKE_URL")); notifier != nil {
		sink = notifier
		slog.Info("wake notifications enabled")
	} else {
		slog.Warn("SPRITE_WAKE_URL not set — agent wakes disabled")
	}

	// ── Touch reaction engine ─────────────────────────────────────────
	throttle := touch.NewWakeThrottle(touch.WakeWindow)
	engine := touch.New(presenceStore, identityResolver, spatialResolver, throttle, sink, db)
	defer engine.Close()

	// ── Weather ───────────────────────────────────────────────────────
	weatherClient := weather.NewClient(
		os.Getenv("OPENWEATHER_API_KEY"),
		os.Getenv("SPRITE_WEATHER_LOCATION"),
	)
	if weatherClient == nil {
		slog.Warn("OPENWEATHER_API_KEY not set — weather endpoint serves fallbacks")
	}

	// ── Idle drift ────────────────────────────────────────────────────
	if envOrDefault("SPRITE_DRIFT", "on") == "on" {
		wanderer := drift.New(presenceStore, roomStore, engine.SessionActive, time.Now().UnixNano())
		go wanderer.Run()
		defer wanderer.Stop()
		slog.Info("idle drift enabled", "period", drift.Period)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := os.Getenv("SPRITE_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("SPRITE_ADMIN_KEY not set — room mutation endpoints disabled")
	}

	server := &api.Server{
		Engine:       engine,
		Presence:     presenceStore,
		Identity:     identityResolver,
		Spatial:      spatialResolver,
		Rooms:        roomStore,
		DB:           db,
		Weather:      weatherClient,
		Port:         port,
		AdminKey:     adminKey,
		DashboardDir: os.Getenv("SPRITE_DASHBOARD_DIR"),
	}
	server.Start()

	fmt.Printf("\nThe sprite is awake: http://localhost:%d/presence\n", port)
	fmt.Println("Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)
	fmt.Println("The sprite is asleep.")
}

func logLevel() slog.Level {
	switch strings.ToLower(os.Getenv("SPRITE_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
