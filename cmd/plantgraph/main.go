// Command plantgraph is a small operational CLI over a plantgraph data
// directory: inspect stats, run type queries and probe the spatial index.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/happyrust/plantgraph/pkg/config"
	"github.com/happyrust/plantgraph/pkg/geom"
	"github.com/happyrust/plantgraph/pkg/plantgraph"
)

func main() {
	dataDir := flag.String("data", "", "data directory (default: PLANTGRAPH_DATA_DIR)")
	flag.Usage = usage
	flag.Parse()

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	db, err := plantgraph.Open(*dataDir, cfg)
	if err != nil {
		slog.Error("open failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	switch args[0] {
	case "stats":
		runStats(ctx, db)
	case "query":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: plantgraph query TYPE[,TYPE...]")
			os.Exit(2)
		}
		runQuery(ctx, db, strings.Split(args[1], ","))
	case "at":
		if len(args) < 4 {
			fmt.Fprintln(os.Stderr, "usage: plantgraph at X Y Z")
			os.Exit(2)
		}
		runPointQuery(ctx, db, args[1:4])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: plantgraph [-data DIR] COMMAND

commands:
  stats          print subsystem counters
  query TYPES    list elements of the given comma-separated type tags
  at X Y Z       list elements whose bounds contain the point`)
	flag.PrintDefaults()
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func runStats(ctx context.Context, db *plantgraph.DB) {
	st := db.Stats(ctx)
	fmt.Printf("elements:        %d\n", st.Engine.ElementCount)
	if st.SecondaryEngine != nil {
		fmt.Printf("secondary:       %d elements\n", st.SecondaryEngine.ElementCount)
	}
	fmt.Printf("spatial state:   %s\n", st.Spatial.State)
	fmt.Printf("spatial entries: %d memory / %d store\n", st.Spatial.MemoryEntries, st.Spatial.StoreEntries)
	fmt.Printf("resolver cache:  %d hits / %d misses\n", st.ResolverHits, st.ResolverMisses)
	fmt.Printf("geometry cache:  %d hits / %d misses\n", st.GeometryHits, st.GeometryMisses)
	fmt.Printf("operations:      %d total, %d failed\n", st.Performance.TotalOps, st.Performance.FailedOps)
}

func runQuery(ctx context.Context, db *plantgraph.DB, typeTags []string) {
	refs, err := db.Router().QueryByType(ctx, typeTags, 0, nil)
	if err != nil {
		slog.Error("query failed", "error", err)
		os.Exit(1)
	}
	for _, ref := range refs {
		fmt.Println(ref)
	}
}

func runPointQuery(ctx context.Context, db *plantgraph.DB, coords []string) {
	var p geom.Vec3
	if _, err := fmt.Sscanf(strings.Join(coords, " "), "%f %f %f", &p.X, &p.Y, &p.Z); err != nil {
		fmt.Fprintln(os.Stderr, "invalid coordinates")
		os.Exit(2)
	}
	refs, err := db.ElementsAt(ctx, p)
	if err != nil {
		slog.Error("point query failed", "error", err)
		os.Exit(1)
	}
	for _, ref := range refs {
		fmt.Println(ref)
	}
}
