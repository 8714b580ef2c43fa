package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/susuprotocol/rosca/auth"
	"github.com/susuprotocol/rosca/engine"
	"github.com/susuprotocol/rosca/events"
	"github.com/susuprotocol/rosca/ledger"
	"github.com/susuprotocol/rosca/metrics"
	"github.com/susuprotocol/rosca/pkg/logger"
	"github.com/susuprotocol/rosca/server"
	"github.com/susuprotocol/rosca/store/memstore"
	"github.com/susuprotocol/rosca/store/pgstore"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultListenAddr = "0.0.0.0:8080"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Best effort; the daemon runs fine without a .env file.
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "address for the HTTP API (or set ROSCA_LISTEN_ADDR env var)")
	postgresDSNFlag := flag.String("postgres-dsn", "", "PostgreSQL connection string; empty keeps state in memory (or set ROSCA_POSTGRES_DSN env var)")
	migrateFlag := flag.Bool("migrate", false, "run database migrations before serving")
	authSecretFlag := flag.String("auth-secret", "", "HMAC secret for request proofs (or set ROSCA_AUTH_SECRET env var)")
	insecureAuthFlag := flag.Bool("insecure-auth", false, "accept any proof whose actor matches; development only")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 10*time.Second, "maximum time to wait for graceful shutdown")

	flag.Parse()

	log := logger.New(*verboseFlag)

	if env := os.Getenv("ROSCA_LISTEN_ADDR"); env != "" {
		*listenAddrFlag = env
	}
	if env := os.Getenv("ROSCA_POSTGRES_DSN"); env != "" {
		*postgresDSNFlag = env
	}
	if env := os.Getenv("ROSCA_AUTH_SECRET"); env != "" {
		*authSecretFlag = env
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var verifier engine.Verifier
	switch {
	case *authSecretFlag != "":
		hm, err := auth.NewHMAC([]byte(*authSecretFlag))
		if err != nil {
			return fmt.Errorf("failed to create verifier: %w", err)
		}
		verifier = hm
	case *insecureAuthFlag:
		log.Warn("running with insecure auth, every proof is accepted")
		verifier = auth.Static{}
	default:
		return fmt.Errorf("either --auth-secret or --insecure-auth is required")
	}

	var store engine.Store
	if *postgresDSNFlag != "" {
		if *migrateFlag {
			if err := pgstore.Migrate(*postgresDSNFlag); err != nil {
				return err
			}
			log.Info("database migrations applied")
		}
		pg, err := pgstore.New(ctx, pgstore.Config{Logger: log, ConnStr: *postgresDSNFlag})
		if err != nil {
			return fmt.Errorf("failed to create postgres store: %w", err)
		}
		defer pg.Close()
		store = pg
		log.Info("using postgres store")
	} else {
		store = memstore.New()
		log.Warn("using in-memory store, state is lost on restart")
	}

	eng, err := engine.New(engine.Config{
		Logger:   log,
		Store:    store,
		Ledger:   ledger.NewMemory(),
		Auth:     verifier,
		Events:   events.SlogSink{Log: log},
		Shuffler: engine.CryptoShuffler{},
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	srv, err := server.New(server.Config{
		Logger:          log,
		Engine:          eng,
		ListenAddr:      *listenAddrFlag,
		ShutdownTimeout: *shutdownTimeoutFlag,
		VersionInfo: server.VersionInfo{
			Version: version,
			Commit:  commit,
			Date:    date,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Run(ctx)
}
