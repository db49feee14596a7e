// Command trackfit simulates drift-wire tracks, fits them in parallel and
// optionally stores the results and writes diagnostic plots.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/trackfit/internal/bfield"
	"github.com/banshee-data/trackfit/internal/config"
	"github.com/banshee-data/trackfit/internal/db"
	"github.com/banshee-data/trackfit/internal/effect"
	"github.com/banshee-data/trackfit/internal/fit"
	"github.com/banshee-data/trackfit/internal/monitor"
	"github.com/banshee-data/trackfit/internal/monitoring"
	"github.com/banshee-data/trackfit/internal/sim"
	"github.com/banshee-data/trackfit/internal/storage/sqlite"
	"github.com/banshee-data/trackfit/internal/trajectory"
	"github.com/banshee-data/trackfit/internal/version"
	"gonum.org/v1/gonum/spatial/r3"
)

type options struct {
	configPath string
	events     int
	hits       int
	seed       int64
	workers    int
	gradient   bool
	dbPath     string
	plotDir    string
	label      string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Tuning config JSON (defaults to built-in values)")
	flag.IntVar(&opts.events, "events", 8, "Number of simulated events")
	flag.IntVar(&opts.hits, "hits", 40, "Wire hits per event")
	flag.Int64Var(&opts.seed, "seed", 1, "Random seed")
	flag.IntVar(&opts.workers, "workers", 4, "Parallel fits (0 for unlimited)")
	flag.BoolVar(&opts.gradient, "gradient", false, "Simulate in a z-gradient field instead of a uniform one")
	flag.StringVar(&opts.dbPath, "db", "", "SQLite database for results (empty to skip)")
	flag.StringVar(&opts.plotDir, "plots", "", "Base directory for PNG plots (empty to skip)")
	flag.StringVar(&opts.label, "label", "sim", "Label stored with each run")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.SetDebug(*debug)

	if flag.NArg() > 0 && flag.Arg(0) == "migrate" {
		if err := runMigrate(opts.dbPath, flag.Args()[1:]); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatalf("trackfit: %v", err)
	}
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

// event pairs a simulated event with the hits handed to its fit.
type event struct {
	ev   sim.Event
	hits []*effect.WireHit
}

func simConfig(opts options) sim.Config {
	cfg := sim.DefaultConfig()
	cfg.NHits = opts.hits
	if opts.gradient {
		cfg.Field = bfield.NewGradient(1.02, 0.98, -1000, 1000)
	}
	return cfg
}

// simulate generates the events and their fit candidates. The seeds use the
// nominal field at the origin.
func simulate(opts options, s fit.Settings, rng *rand.Rand) ([]event, []fit.Candidate, error) {
	cfg := simConfig(opts)
	d2t, err := cfg.Relation()
	if err != nil {
		return nil, nil, err
	}
	var seedErrs trajectory.DVec
	for i, sigma := range s.SeedErrors {
		// smear well inside the seed errors
		seedErrs[i] = 0.03 * sigma
	}

	events := make([]event, 0, opts.events)
	cands := make([]fit.Candidate, 0, opts.events)
	for i := 0; i < opts.events; i++ {
		ev, err := sim.Generate(cfg, rng)
		if err != nil {
			return nil, nil, fmt.Errorf("event %d: %w", i, err)
		}
		start, err := ev.Seed(r3.Vec{Z: cfg.Bz}, seedErrs, rng)
		if err != nil {
			return nil, nil, fmt.Errorf("event %d: %w", i, err)
		}
		hits := ev.WireHits(ev.Field(), d2t, s.Poca)
		effects := make([]effect.Effect, len(hits))
		for j, h := range hits {
			effects[j] = h
		}
		events = append(events, event{ev: ev, hits: hits})
		cands = append(cands, fit.NewCandidate(start, effects...))
	}
	return events, cands, nil
}

func run(ctx context.Context, opts options) error {
	tuning, err := loadTuning(opts.configPath)
	if err != nil {
		return err
	}
	s := fit.SettingsFromTuning(tuning)
	schedule, err := fit.ScheduleFromTuning(tuning)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(opts.seed))
	events, cands, err := simulate(opts, s, rng)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	results, err := fit.FitAll(ctx, cands, events[0].ev.Field(), s, schedule, opts.workers)
	if err != nil {
		return err
	}

	var store *sqlite.FitStore
	if opts.dbPath != "" {
		database, err := db.Open(opts.dbPath)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
		store = sqlite.NewFitStore(database.DB)
	}

	var plotter *monitor.FitPlotter
	if opts.plotDir != "" {
		plotter = monitor.NewFitPlotter()
		if err := plotter.Start(monitor.MakePlotOutputDir(opts.plotDir, opts.label)); err != nil {
			return err
		}
	}

	failed := 0
	for i, res := range results {
		if res.Err != nil {
			failed++
			monitoring.Logf("fit %s failed: %v", res.ID, res.Err)
		} else {
			monitoring.Logf("fit %s: chi2/ndof %.3f, %d active hits, %d segments",
				res.ID, res.Result.Final.Chi2PerNDOF(), res.Result.Final.ActiveHits, res.Result.Trajectory.Len())
		}
		if store != nil {
			if _, err := store.SaveResult(opts.label, res, events[i].hits); err != nil {
				return err
			}
		}
		if plotter != nil && res.Err == nil {
			plotter.Record(fmt.Sprintf("%s-%d", opts.label, i), res.Result, events[i].hits, events[i].ev.Truth)
		}
	}

	if plotter != nil {
		plotter.Stop()
		n, err := plotter.GeneratePlots()
		if err != nil {
			return err
		}
		monitoring.Logf("wrote %d plots to %s", n, plotter.OutputDir())
	}
	monitoring.Logf("fitted %d events, %d failed", len(results), failed)
	return nil
}

// runMigrate handles "trackfit -db path migrate <up|down|status>".
func runMigrate(dbPath string, args []string) error {
	if dbPath == "" {
		return fmt.Errorf("-db is required")
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: trackfit -db <path> migrate <up|down|status>")
	}
	database, err := db.Connect(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	switch args[0] {
	case "up":
		if err := database.MigrateUp(db.Migrations()); err != nil {
			return err
		}
	case "down":
		if err := database.MigrateDown(db.Migrations()); err != nil {
			return err
		}
	case "status":
	default:
		return fmt.Errorf("unknown migrate command %q", args[0])
	}
	version, dirty, err := database.MigrateVersion(db.Migrations())
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "schema version %d (dirty: %v)\n", version, dirty)
	return nil
}
