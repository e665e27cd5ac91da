// Command useradmin is the operator tool for the identity store: it seeds
// accounts, resets passwords, lists users, and generates credential pairs
// offline. Every command derives hashes through the same credential package
// as the services, so seeded credentials stay verifiable.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/csiflex/identity/internal/cli"
	"github.com/csiflex/identity/internal/credential"
	"github.com/csiflex/identity/internal/logging"
	"github.com/csiflex/identity/internal/server/config"
	"github.com/csiflex/identity/internal/server/models"
	"github.com/csiflex/identity/internal/server/repositories/repomanager"
	"github.com/csiflex/identity/internal/server/services"
)

const usage = `usage: useradmin <command> [flags]

commands:
  create          create a user (password prompted without echo)
  reset-password  administrative password reset
  list            print all users
  hash            generate a hash/salt pair offline (no store access)

common flags: -d <dsn>, -l <level>, -c <config.json>
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "create":
		err = runCreate(context.Background())
	case "reset-password":
		err = runResetPassword(context.Background())
	case "list":
		err = runList(context.Background())
	case "hash":
		err = runHash()
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "useradmin: %v\n", err)
		os.Exit(1)
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// setup opens the database, runs migrations, and wires the user service,
// mirroring the application startup sequence.
func setup(ctx context.Context) (*services.UserService, func(), error) {
	cfg := config.LoadConfig()

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})
	logger := logging.NewSlogLogger(slog.New(handler))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db open error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migration error: %w", err)
	}

	return services.NewUserService(db, rm, logger), func() { _ = db.Close() }, nil
}

func runCreate(ctx context.Context) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	userName := fs.String("username", "", "user name (required)")
	firstName := fs.String("first", "", "first name (required)")
	lastName := fs.String("last", "", "last name (required)")
	email := fs.String("email", "", "email (required)")
	userType := fs.String("type", "admin", "user type")
	dept := fs.String("dept", "", "department")
	title := fs.String("title", "", "title")
	if err := fs.Parse(commandArgs()); err != nil {
		return err
	}

	password, err := cli.GetConfirmedPassword(os.Stdout)
	if err != nil {
		return err
	}

	svc, closeDB, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	user, err := newUserInput(*userName, *firstName, *lastName, *email)
	if err != nil {
		return err
	}
	user.UserType = *userType
	user.Dept = *dept
	user.Title = *title

	created, err := svc.Create(ctx, user, password)
	if err != nil {
		return err
	}

	fmt.Printf("created user %q (id %d, type %s)\n", created.UserName, created.ID, created.UserType)
	return nil
}

func runResetPassword(ctx context.Context) error {
	fs := flag.NewFlagSet("reset-password", flag.ExitOnError)
	id := fs.Int64("id", 0, "user id (required)")
	if err := fs.Parse(commandArgs()); err != nil {
		return err
	}
	if *id == 0 {
		return fmt.Errorf("-id is required")
	}

	password, err := cli.GetConfirmedPassword(os.Stdout)
	if err != nil {
		return err
	}

	svc, closeDB, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	ok, err := svc.ResetPassword(ctx, *id, password)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no user with id %d", *id)
	}

	fmt.Printf("password reset for user id %d\n", *id)
	return nil
}

func runList(ctx context.Context) error {
	svc, closeDB, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	users, err := svc.GetAll(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tNAME\tEMAIL\tTYPE\tACTIVE")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%t\n",
			u.ID, u.UserName, u.DisplayName, u.Email, u.UserType, u.IsActive)
	}
	return w.Flush()
}

// runHash generates a credential pair without touching the store; the output
// can be inserted manually when seeding a database by hand.
func runHash() error {
	password, err := cli.GetConfirmedPassword(os.Stdout)
	if err != nil {
		return err
	}

	hash, salt, err := credential.HashPasswordNew(password)
	if err != nil {
		return err
	}

	fmt.Printf("hash: %s\nsalt: %s\n", hash, salt)
	return nil
}

// newUserInput builds the user to create. The credential fields are
// placeholders satisfying the factory; Create derives the real pair.
func newUserInput(userName, firstName, lastName, email string) (*models.User, error) {
	return models.NewUser(userName, "-", "-", firstName, lastName, email)
}

// commandArgs returns the arguments after the subcommand, minus the shared
// config flags consumed by config.LoadConfig.
func commandArgs() []string {
	args := make([]string, 0, len(os.Args))
	skip := map[string]bool{"-d": true, "-l": true, "-c": true, "-config": true}
	rest := os.Args[2:]
	for i := 0; i < len(rest); i++ {
		name := strings.SplitN(rest[i], "=", 2)[0]
		if skip[name] {
			if !strings.Contains(rest[i], "=") && i+1 < len(rest) && !strings.HasPrefix(rest[i+1], "-") {
				i++
			}
			continue
		}
		args = append(args, rest[i])
	}
	return args
}
