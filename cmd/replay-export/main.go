// replay-export dumps one recorded game as a JSON event tape, or lists the
// games the recorder knows about.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"cardroom/internal/replay"
)

func main() {
	gameID := flag.Uint64("game", 0, "game id to export (0 lists known games)")
	out := flag.String("out", "", "output file (default stdout)")
	flag.Parse()

	recorder, mode, err := replay.NewRecorderFromEnv()
	if err != nil {
		log.Fatalf("[ReplayExport] Failed to open recorder: %v", err)
	}
	defer recorder.Close()
	log.Printf("[ReplayExport] Replay mode: %s", mode)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *gameID == 0 {
		ids, err := recorder.GameIDs(ctx)
		if err != nil {
			log.Fatalf("[ReplayExport] Failed to list games: %v", err)
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return
	}

	events, err := recorder.ReadLog(ctx, *gameID, 0)
	if err != nil {
		log.Fatalf("[ReplayExport] Failed to read game %d: %v", *gameID, err)
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("[ReplayExport] Failed to create %s: %v", *out, err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		log.Fatalf("[ReplayExport] Failed to write tape: %v", err)
	}
	log.Printf("[ReplayExport] Exported %d events for game %d", len(events), *gameID)
}
