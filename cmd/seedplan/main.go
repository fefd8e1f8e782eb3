/*
main.go - One-time plan seeding utility

PURPOSE:
  Loads the reading plan CSV and writes it to the database, replacing
  any existing plan rows atomically. Run once before the first server
  start, and again only if the plan source changes.

USAGE:
  seedplan -csv=./plan.csv -db=./reading.db

  The load is all-or-nothing: a source that does not yield exactly 300
  unique (month, day) rows is rejected and the database is untouched.
*/
package main

import (
	"context"
	"flag"
	"log"

	"github.com/warp/reading-engine/engine"
	"github.com/warp/reading-engine/plancsv"
	"github.com/warp/reading-engine/store/sqlite"
)

func main() {
	csvPath := flag.String("csv", "plan.csv", "path to the plan CSV")
	dbPath := flag.String("db", "reading.db", "SQLite database path")
	flag.Parse()

	entries, err := plancsv.LoadFile(*csvPath)
	if err != nil {
		log.Fatalf("Failed to load plan: %v", err)
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	err = store.WithTx(ctx, func(s engine.Store) error {
		return s.SeedPlan(ctx, entries)
	})
	if err != nil {
		log.Fatalf("Failed to seed plan: %v", err)
	}

	log.Printf("Seeded %d plan entries from %s into %s", len(entries), *csvPath, *dbPath)
}
