// Command mapimport merges an offline-generated landmark list into the
// spatial map file. The landmark JSON comes from the room-mapping pipeline
// (a vision model annotating the room wallpaper); this tool validates it
// and slots it under the room's key.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/rcfox/spritekeeper/internal/spatial"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	room := flag.String("room", "", "room name to import landmarks for")
	input := flag.String("in", "", "landmark JSON file (array of {name, description, x, y})")
	mapPath := flag.String("map", "data/spatial-map.json", "spatial map file to update")
	flag.Parse()

	if *room == "" || *input == "" {
		fmt.Fprintln(os.Stderr, "usage: mapimport -room <name> -in <landmarks.json> [-map <spatial-map.json>]")
		os.Exit(2)
	}

	data, err := os.ReadFile(*input)
	if err != nil {
		slog.Error("failed to read landmark file", "error", err)
		os.Exit(1)
	}

	var landmarks []spatial.Landmark
	if err := json.Unmarshal(data, &landmarks); err != nil {
		slog.Error("failed to parse landmark file", "error", err)
		os.Exit(1)
	}
	for i, lm := range landmarks {
		if lm.Name == "" || lm.Description == "" {
			slog.Error("landmark missing name or description", "index", i)
			os.Exit(1)
		}
		if lm.X < 0 || lm.X > 1 || lm.Y < 0 || lm.Y > 1 {
			slog.Error("landmark position out of range", "name", lm.Name, "x", lm.X, "y", lm.Y)
			os.Exit(1)
		}
	}

	// Load existing map, replace the room's landmarks, save.
	spatialMap := make(map[string][]spatial.Landmark)
	if existing, err := os.ReadFile(*mapPath); err == nil {
		if err := json.Unmarshal(existing, &spatialMap); err != nil {
			slog.Error("existing spatial map is corrupt, refusing to overwrite", "path", *mapPath, "error", err)
			os.Exit(1)
		}
	}
	spatialMap[*room] = landmarks

	out, err := json.MarshalIndent(spatialMap, "", "  ")
	if err != nil {
		slog.Error("failed to marshal spatial map", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*mapPath, append(out, '\n'), 0644); err != nil {
		slog.Error("failed to write spatial map", "error", err)
		os.Exit(1)
	}

	slog.Info("spatial map updated", "room", *room, "landmarks", len(landmarks), "path", *mapPath)
}
