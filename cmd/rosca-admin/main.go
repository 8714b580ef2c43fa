package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/susuprotocol/rosca/auth"
	"github.com/susuprotocol/rosca/engine"
	"github.com/susuprotocol/rosca/pkg/logger"
	"github.com/susuprotocol/rosca/store/pgstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	postgresDSNFlag := flag.String("postgres-dsn", "", "PostgreSQL connection string (or set ROSCA_POSTGRES_DSN env var)")

	migrateFlag := flag.Bool("migrate", false, "run database migrations using goose")
	migrateStatusFlag := flag.Bool("migrate-status", false, "show database migration status")
	signFlag := flag.String("sign", "", "print a hex proof for the given actor, using the auth secret")
	authSecretFlag := flag.String("auth-secret", "", "HMAC secret for --sign (or set ROSCA_AUTH_SECRET env var)")
	yesFlag := flag.Bool("yes", false, "skip confirmation prompt (use with caution)")

	flag.Parse()

	log := logger.New(*verboseFlag)

	if env := os.Getenv("ROSCA_POSTGRES_DSN"); env != "" {
		*postgresDSNFlag = env
	}
	if env := os.Getenv("ROSCA_AUTH_SECRET"); env != "" {
		*authSecretFlag = env
	}

	switch {
	case *migrateFlag:
		if *postgresDSNFlag == "" {
			return fmt.Errorf("--postgres-dsn is required for --migrate")
		}
		if !*yesFlag && !confirm("Run database migrations?") {
			return nil
		}
		if err := pgstore.Migrate(*postgresDSNFlag); err != nil {
			return err
		}
		log.Info("database migrations applied")
		return nil

	case *migrateStatusFlag:
		if *postgresDSNFlag == "" {
			return fmt.Errorf("--postgres-dsn is required for --migrate-status")
		}
		return pgstore.MigrationStatus(*postgresDSNFlag)

	case *signFlag != "":
		if *authSecretFlag == "" {
			return fmt.Errorf("--auth-secret is required for --sign")
		}
		hm, err := auth.NewHMAC([]byte(*authSecretFlag))
		if err != nil {
			return fmt.Errorf("failed to create signer: %w", err)
		}
		proof := hm.Sign(engine.Address(*signFlag))
		fmt.Printf("%x\n", proof.Signature)
		return nil

	default:
		flag.Usage()
		return fmt.Errorf("no command specified")
	}
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "y")
}
