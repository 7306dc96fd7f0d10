package main

import (
	"flag"
	"os"
	"runtime/pprof"
	"time"

	"github.com/rs/zerolog"

	"github.com/hailam/blobchess/internal/engine"
	"github.com/hailam/blobchess/internal/storage"
	"github.com/hailam/blobchess/internal/uci"
)

var (
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
	dbDir      = flag.String("db", "", "settings and analysis database directory (default: per-user data dir)")
	noStore    = flag.Bool("no-store", false, "do not open the settings and analysis database")
	logLevel   = flag.String("log-level", "", "log level: trace, debug, info, warn, error (env BLOBCHESS_LOG_LEVEL)")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	logger := newLogger()

	// Start CPU profiling if requested (via flag or environment variable)
	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			logger.Error().Err(err).Msg("could-not-create-cpu-profile")
			return 1
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			logger.Error().Err(err).Msg("could-not-start-cpu-profile")
			return 1
		}
		defer pprof.StopCPUProfile()
		logger.Info().Str("path", profilePath).Msg("cpu-profiling-enabled")
	}

	var store *storage.Store
	if !*noStore {
		var err error
		store, err = storage.Open(*dbDir)
		if err != nil {
			// The engine still plays; settings just won't persist.
			logger.Warn().Err(err).Msg("storage-unavailable")
		} else {
			defer store.Close()
		}
	}

	eng := engine.NewEngine(engine.WithLogger(logger.With().Str("component", "engine").Logger()))
	protocol := uci.New(eng, os.Stdin, os.Stdout, store, logger.With().Str("component", "uci").Logger())
	if err := protocol.Run(); err != nil {
		logger.Error().Err(err).Msg("uci-loop-failed")
		return 1
	}
	return 0
}

// newLogger writes human-readable logs to stderr; stdout carries the
// protocol.
func newLogger() zerolog.Logger {
	levelName := *logLevel
	if levelName == "" {
		levelName = os.Getenv("BLOBCHESS_LOG_LEVEL")
	}
	level := zerolog.WarnLevel
	if levelName != "" {
		if l, err := zerolog.ParseLevel(levelName); err == nil {
			level = l
		}
	}

	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
