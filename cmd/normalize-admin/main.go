// Command normalize-admin is an operational CLI for the normalize service:
// database lifecycle, ticket inspection, and retention maintenance.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/opertusmundi/normalize/config"
	"github.com/opertusmundi/normalize/internal/bootstrap"
	"github.com/opertusmundi/normalize/internal/core"
	"github.com/opertusmundi/normalize/internal/data"
	"github.com/opertusmundi/normalize/internal/devseed"
	"github.com/opertusmundi/normalize/internal/domain/model"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const defaultMigrationTimeout = 5 * time.Minute

// statusCacheKeyPrefix mirrors the key layout used by the status cache service.
const statusCacheKeyPrefix = "ticket:status:"

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"db-reset": {
			name:        "db-reset",
			description: "Drop the database schema, run migrations, and optionally seed data",
			run:         runDBReset,
		},
		"db-seed": {
			name:        "db-seed",
			description: "Run database migrations and seed development tickets",
			run:         runDBSeed,
		},
		"list-tickets": {
			name:        "list-tickets",
			description: "List tickets, optionally filtered by lifecycle status",
			run:         runListTickets,
		},
		"ticket-stats": {
			name:        "ticket-stats",
			description: "Show ticket counts per lifecycle state",
			run:         runTicketStats,
		},
		"ticket-status": {
			name:        "ticket-status",
			description: "Inspect one ticket's status view (cache + database)",
			run:         runTicketStatus,
		},
		"reap": {
			name:        "reap",
			description: "Run one retention pass: fail stuck tickets and delete expired ones",
			run:         runReap,
		},
	}
}

func printUsage() error {
	if err := writef(os.Stdout, "Usage: normalize-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(os.Stdout, "Available commands:\n"); err != nil {
		return err
	}
	for _, c := range commands() {
		if err := writef(os.Stdout, "  %-16s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

type migrateOptions struct {
	Timeout time.Duration
}

type dbResetOptions struct {
	Timeout     time.Duration
	Yes         bool
	Seed        bool
	AllowRemote bool
}

type dbSeedOptions struct {
	Timeout     time.Duration
	AllowRemote bool
}

type listTicketsOptions struct {
	Status string
	Limit  int
	Offset int
}

type ticketStatusOptions struct {
	Ticket  string
	RawJSON bool
}

type reapOptions struct {
	RunningMaxAge   time.Duration
	CompletedMaxAge time.Duration
	BatchSize       int
	Yes             bool
	Timeout         time.Duration
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	cmdCtx.Logger.Info("running database migrations")

	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return fmt.Errorf("run migrations: %w", migrateErr)
	}

	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func runDBReset(cmdCtx *commandContext, args []string) error {
	opts, err := parseDBResetFlags(args)
	if err != nil {
		return err
	}

	target := fmt.Sprintf(
		"database %q on %s:%d",
		cmdCtx.Config.Postgres.Name,
		cmdCtx.Config.Postgres.Host,
		cmdCtx.Config.Postgres.Port,
	)

	remote, err := guardRemoteHost(cmdCtx, opts.AllowRemote, "drop and recreate the public schema")
	if err != nil {
		return err
	}

	confirmOpts := dbResetConfirmOptions{
		yes:    opts.Yes,
		target: target,
	}
	if remote {
		confirmOpts.remoteHost = cmdCtx.Config.Postgres.Host
	}
	if confirmErr := confirmAction(confirmOpts, "reset database schema"); confirmErr != nil {
		return confirmErr
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.Info("dropping public schema", "database", cmdCtx.Config.Postgres.Name)
		if resetErr := cmdCtx.resetDatabase(ctx, db); resetErr != nil {
			return resetErr
		}

		cmdCtx.Logger.Info("re-running database migrations")
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return fmt.Errorf("run migrations: %w", migrateErr)
		}

		if opts.Seed {
			cmdCtx.Logger.Info("seeding development tickets after reset")
			if seedErr := devseed.Run(ctx, devseed.NewServices(db), cmdCtx.Logger); seedErr != nil {
				return fmt.Errorf("seed data: %w", seedErr)
			}
		}

		cmdCtx.Logger.Info("database reset completed successfully")
		return nil
	})
}

func runDBSeed(cmdCtx *commandContext, args []string) error {
	opts, err := parseDBSeedFlags(args)
	if err != nil {
		return err
	}

	if _, guardErr := guardRemoteHost(cmdCtx, opts.AllowRemote, "seed development tickets on the configured database"); guardErr != nil {
		return guardErr
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.Info("ensuring database migrations are current")
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return fmt.Errorf("run migrations: %w", migrateErr)
		}

		cmdCtx.Logger.Info("seeding development tickets")
		if seedErr := devseed.Run(ctx, devseed.NewServices(db), cmdCtx.Logger); seedErr != nil {
			return fmt.Errorf("seed data: %w", seedErr)
		}

		cmdCtx.Logger.Info("database seeding completed successfully")
		return nil
	})
}

func runListTickets(cmdCtx *commandContext, args []string) error {
	opts, err := parseListTicketsFlags(args)
	if err != nil {
		return err
	}

	listOpts := model.TicketListOptions{
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}
	if opts.Status != "" {
		status := model.TicketStatus(opts.Status)
		if !status.Valid() {
			return fmt.Errorf("invalid --status %q; expected pending, running, or completed", opts.Status)
		}
		listOpts.Status = &status
	}

	return withDatabase(cmdCtx, time.Minute, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewTicketRepo(db, data.RepoConfig{})
		tickets, listErr := repo.List(ctx, listOpts)
		if listErr != nil {
			return fmt.Errorf("list tickets: %w", listErr)
		}
		return printTicketList(tickets, opts)
	})
}

func runTicketStats(cmdCtx *commandContext, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("ticket-stats takes no arguments, got %q", strings.Join(args, " "))
	}

	return withDatabase(cmdCtx, time.Minute, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewTicketRepo(db, data.RepoConfig{})
		stats, statsErr := repo.Stats(ctx)
		if statsErr != nil {
			return fmt.Errorf("ticket stats: %w", statsErr)
		}
		return printTicketStats(stats)
	})
}

func runTicketStatus(cmdCtx *commandContext, args []string) error {
	opts, err := parseTicketStatusFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	db, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantDB:    true,
		WantRedis: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeInfra(db, redisClient); cerr != nil {
			cmdCtx.Logger.Warn("close infra failed", "error", cerr)
		}
	}()

	view, err := fetchTicketStatus(ctx, &ticketStatusFetch{
		DB:     db,
		Redis:  redisClient,
		Ticket: opts.Ticket,
	})
	if err != nil {
		return err
	}

	return printTicketStatus(opts, view)
}

func runReap(cmdCtx *commandContext, args []string) error {
	opts, err := parseReapFlags(args, cmdCtx.Config.Reaper)
	if err != nil {
		return err
	}

	confirmOpts := reapConfirmOptions{opts: opts}
	if confirmErr := confirmAction(confirmOpts, "run a retention pass"); confirmErr != nil {
		return confirmErr
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewTicketRepo(db, data.RepoConfig{})

		failed, failErr := repo.FailStuckRunningTickets(ctx, core.FailStuckRunningParams{
			MaxAge:    opts.RunningMaxAge,
			BatchSize: opts.BatchSize,
		})
		if failErr != nil {
			return fmt.Errorf("fail stuck running tickets: %w", failErr)
		}

		deleted, deleteErr := repo.DeleteOldCompletedTickets(ctx, core.DeleteOldCompletedParams{
			MaxAge:    opts.CompletedMaxAge,
			BatchSize: opts.BatchSize,
		})
		if deleteErr != nil {
			return fmt.Errorf("delete old completed tickets: %w", deleteErr)
		}

		return printReapSummary(failed, deleted, opts)
	})
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{
		Timeout: defaultMigrationTimeout,
	}

	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete",
	)

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}

	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}

func parseDBResetFlags(args []string) (dbResetOptions, error) {
	fs := flag.NewFlagSet("db-reset", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := dbResetOptions{
		Timeout: defaultMigrationTimeout,
	}

	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for reset operations to complete",
	)
	fs.BoolVar(
		&opts.Yes,
		"yes",
		false,
		"Skip confirmation prompt",
	)
	fs.BoolVar(
		&opts.Seed,
		"seed",
		false,
		"Run development ticket seeding after reset completes",
	)
	fs.BoolVar(
		&opts.AllowRemote,
		"allow-remote",
		false,
		"Permit running against database hosts that do not look local",
	)

	if err := fs.Parse(args); err != nil {
		return dbResetOptions{}, err
	}

	if opts.Timeout <= 0 {
		return dbResetOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}

func parseDBSeedFlags(args []string) (dbSeedOptions, error) {
	fs := flag.NewFlagSet("db-seed", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := dbSeedOptions{
		Timeout: defaultMigrationTimeout,
	}

	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for seeding to complete",
	)
	fs.BoolVar(
		&opts.AllowRemote,
		"allow-remote",
		false,
		"Permit running against database hosts that do not look local",
	)

	if err := fs.Parse(args); err != nil {
		return dbSeedOptions{}, err
	}

	if opts.Timeout <= 0 {
		return dbSeedOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}

func parseListTicketsFlags(args []string) (listTicketsOptions, error) {
	fs := flag.NewFlagSet("list-tickets", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := listTicketsOptions{}
	fs.StringVar(&opts.Status, "status", "", "Filter by lifecycle status (pending, running, completed)")
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum number of tickets to show")
	fs.IntVar(&opts.Offset, "offset", 0, "Number of tickets to skip")

	if err := fs.Parse(args); err != nil {
		return listTicketsOptions{}, err
	}

	if opts.Limit <= 0 {
		return listTicketsOptions{}, errors.New("--limit must be greater than zero")
	}
	if opts.Offset < 0 {
		return listTicketsOptions{}, errors.New("--offset must be zero or greater")
	}
	opts.Status = strings.ToLower(strings.TrimSpace(opts.Status))

	return opts, nil
}

func parseTicketStatusFlags(args []string) (ticketStatusOptions, error) {
	fs := flag.NewFlagSet("ticket-status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := ticketStatusOptions{}
	fs.StringVar(&opts.Ticket, "ticket", "", "Ticket token to inspect")
	fs.BoolVar(&opts.RawJSON, "json", false, "Print the raw status document instead of a table")

	if err := fs.Parse(args); err != nil {
		return ticketStatusOptions{}, err
	}

	opts.Ticket = strings.TrimSpace(opts.Ticket)
	if opts.Ticket == "" {
		return ticketStatusOptions{}, errors.New("--ticket is required")
	}

	return opts, nil
}

func parseReapFlags(args []string, defaults config.ReaperConfig) (reapOptions, error) {
	fs := flag.NewFlagSet("reap", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := reapOptions{
		Timeout: defaultMigrationTimeout,
	}

	fs.DurationVar(
		&opts.RunningMaxAge,
		"running-max-age",
		defaults.RunningMaxAge,
		"Fail running tickets older than this",
	)
	fs.DurationVar(
		&opts.CompletedMaxAge,
		"completed-max-age",
		defaults.CompletedMaxAge,
		"Delete completed tickets older than this",
	)
	fs.IntVar(
		&opts.BatchSize,
		"batch-size",
		defaults.BatchSize,
		"Maximum number of rows to process per operation",
	)
	fs.BoolVar(
		&opts.Yes,
		"yes",
		false,
		"Skip confirmation prompt",
	)
	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for the retention pass to complete",
	)

	if err := fs.Parse(args); err != nil {
		return reapOptions{}, err
	}

	if opts.RunningMaxAge <= 0 {
		return reapOptions{}, errors.New("--running-max-age must be greater than zero")
	}
	if opts.CompletedMaxAge <= 0 {
		return reapOptions{}, errors.New("--completed-max-age must be greater than zero")
	}
	if opts.BatchSize <= 0 {
		return reapOptions{}, errors.New("--batch-size must be greater than zero")
	}
	if opts.Timeout <= 0 {
		return reapOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}

func withDatabase(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, *sql.DB) error,
) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	return f(ctx, db)
}

func guardRemoteHost(cmdCtx *commandContext, allow bool, action string) (bool, error) {
	remote := isLikelyRemoteHost(cmdCtx.Config.Postgres.Host)
	if !remote {
		return false, nil
	}
	if !allow {
		return true, fmt.Errorf(
			"refusing to run against potentially remote database host %q; re-run with --allow-remote if this is intentional",
			cmdCtx.Config.Postgres.Host,
		)
	}
	if err := requireRemoteHostConfirmation(action, cmdCtx.Config.Postgres.Host); err != nil {
		return true, err
	}
	return true, nil
}

func (cmdCtx *commandContext) resetDatabase(ctx context.Context, db *sql.DB) error {
	if cmdCtx == nil {
		return errors.New("command context is required")
	}

	cfg := &cmdCtx.Config.Postgres
	statements := []string{
		"DROP SCHEMA public CASCADE",
		"CREATE SCHEMA public",
		"GRANT ALL ON SCHEMA public TO public",
	}
	if user := strings.TrimSpace(cfg.User); user != "" && !strings.EqualFold(user, "public") {
		statements = append(statements, "GRANT ALL ON SCHEMA public TO "+quoteIdentifier(user))
	}

	for _, stmt := range statements {
		if cmdCtx.Logger != nil {
			cmdCtx.Logger.DebugContext(ctx, "executing reset statement", "sql", stmt)
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func quoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func isLikelyRemoteHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "" {
		return false
	}
	if h == "localhost" || h == "127.0.0.1" || h == "::1" {
		return false
	}
	if strings.HasSuffix(h, ".local") {
		return false
	}
	if ip := net.ParseIP(host); ip != nil {
		return !ip.IsLoopback()
	}
	return true
}

func requireRemoteHostConfirmation(action, host string) error {
	if err := writef(
		os.Stderr,
		"\nWARNING: database host %q does not look like a local address.\n"+
			"This operation will %s.\n",
		host,
		action,
	); err != nil {
		return fmt.Errorf("print remote host warning: %w", err)
	}
	if err := writef(os.Stderr, "Type %q to continue or press enter to abort: ", host); err != nil {
		return fmt.Errorf("print remote host prompt: %w", err)
	}
	reader := bufio.NewReader(os.Stdin)
	resp, err := reader.ReadString('\n')
	if err != nil {
		if writeErr := writef(os.Stderr, "\nFailed to read confirmation input: %v\n", err); writeErr != nil {
			return fmt.Errorf("aborted by user: report write failed: %w", writeErr)
		}
		return errors.New("aborted by user")
	}
	if strings.TrimSpace(resp) != host {
		if writeErr := writeln(os.Stderr, "\nRemote safeguard check failed; aborting."); writeErr != nil {
			return fmt.Errorf("print remote safeguard failure: %w", writeErr)
		}
		return errors.New("aborted by user")
	}
	return nil
}

type confirmOptions interface {
	IsYes() bool
	GetTarget() string
	GetWarning() string
}

type dbResetConfirmOptions struct {
	yes        bool
	target     string
	remoteHost string
}

func (d dbResetConfirmOptions) IsYes() bool {
	if d.remoteHost != "" {
		return false
	}
	return d.yes
}

func (d dbResetConfirmOptions) GetWarning() string {
	warning := "WARNING: this will drop and recreate the public schema for the configured database."
	if d.remoteHost != "" {
		warning += fmt.Sprintf(" Host %q appears to be remote; double-check before proceeding.", d.remoteHost)
	}
	return warning
}
func (d dbResetConfirmOptions) GetTarget() string { return d.target }

type reapConfirmOptions struct {
	opts reapOptions
}

func (r reapConfirmOptions) IsYes() bool { return r.opts.Yes }
func (r reapConfirmOptions) GetWarning() string {
	return "WARNING: this will fail stuck running tickets and permanently delete expired completed tickets."
}

func (r reapConfirmOptions) GetTarget() string {
	return fmt.Sprintf(
		"running older than %s, completed older than %s, batches of %d",
		r.opts.RunningMaxAge,
		r.opts.CompletedMaxAge,
		r.opts.BatchSize,
	)
}

func confirmAction(opts confirmOptions, actionType string) error {
	if opts.IsYes() {
		return nil
	}

	if err := printConfirmationIntro(opts, actionType); err != nil {
		return err
	}

	if err := write(os.Stdout, "Continue? [y/N]: "); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}
	reader := bufio.NewReader(os.Stdin)
	resp, err := reader.ReadString('\n')
	if err != nil {
		if writeErr := writef(os.Stdout, "\nFailed to read confirmation input: %v\n", err); writeErr != nil {
			return fmt.Errorf("aborted by user: report write failed: %w", writeErr)
		}
		return errors.New("aborted by user")
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	if resp == "y" || resp == "yes" {
		return nil
	}
	return errors.New("aborted by user")
}

func printConfirmationIntro(opts confirmOptions, actionType string) error {
	target := opts.GetTarget()
	if target == "" {
		if err := writeln(os.Stdout, opts.GetWarning()); err != nil {
			return fmt.Errorf("print confirmation warning: %w", err)
		}
		return nil
	}

	if err := writef(os.Stdout, "About to %s for %s.\n", actionType, target); err != nil {
		return fmt.Errorf("print confirmation message: %w", err)
	}
	return nil
}

func printTicketList(tickets []*model.Ticket, opts listTicketsOptions) error {
	if len(tickets) == 0 {
		if err := writeln(os.Stdout, "No tickets found."); err != nil {
			return fmt.Errorf("print empty ticket notice: %w", err)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(w, "Ticket\tStatus\tSuccess\tRequested\tCompleted\tComment"); err != nil {
		return fmt.Errorf("write ticket header: %w", err)
	}
	for _, t := range tickets {
		if err := writef(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Token,
			t.Status,
			renderOptionalBool(t.Success),
			t.RequestedTime.UTC().Format(time.RFC3339),
			renderOptionalTime(t.CompletedTime),
			renderOptionalString(t.Comment),
		); err != nil {
			return fmt.Errorf("write ticket row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush ticket list: %w", err)
	}

	if err := writef(os.Stdout, "\nShowing %d ticket(s) (offset %d)\n", len(tickets), opts.Offset); err != nil {
		return fmt.Errorf("print ticket count: %w", err)
	}
	return nil
}

func printTicketStats(stats *model.TicketStats) error {
	if stats == nil {
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(w, "State\tCount"); err != nil {
		return fmt.Errorf("write stats header: %w", err)
	}
	if err := writef(w, "Pending\t%d\n", stats.Pending); err != nil {
		return fmt.Errorf("write pending count: %w", err)
	}
	if err := writef(w, "Running\t%d\n", stats.Running); err != nil {
		return fmt.Errorf("write running count: %w", err)
	}
	if err := writef(w, "Completed\t%d\n", stats.Completed); err != nil {
		return fmt.Errorf("write completed count: %w", err)
	}
	if err := writef(w, "Succeeded\t%d\n", stats.Succeeded); err != nil {
		return fmt.Errorf("write succeeded count: %w", err)
	}
	if err := writef(w, "Failed\t%d\n", stats.Failed); err != nil {
		return fmt.Errorf("write failed count: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush stats: %w", err)
	}
	return nil
}

type ticketStatusFetch struct {
	DB     *sql.DB
	Redis  redis.UniversalClient
	Ticket string
}

type ticketStatusView struct {
	Raw    json.RawMessage
	Status *model.TicketStatusResponse
	Source string
	TTL    *time.Duration
}

func fetchTicketStatus(ctx context.Context, req *ticketStatusFetch) (*ticketStatusView, error) {
	if cached, ok := fetchCachedStatus(ctx, req); ok {
		return cached, nil
	}

	return fetchPersistedStatus(ctx, req)
}

// fetchCachedStatus reads the terminal status view straight from Redis so an
// operator can tell whether polling clients are being served from cache.
func fetchCachedStatus(ctx context.Context, req *ticketStatusFetch) (*ticketStatusView, bool) {
	if req.Redis == nil {
		return nil, false
	}

	key := statusCacheKeyPrefix + req.Ticket
	raw, err := req.Redis.Get(ctx, key).Bytes()
	if err != nil || len(raw) == 0 {
		return nil, false
	}

	view := &ticketStatusView{Raw: raw, Source: "cache"}
	if ttl, ttlErr := req.Redis.TTL(ctx, key).Result(); ttlErr == nil {
		view.TTL = &ttl
	}
	return view, true
}

func fetchPersistedStatus(ctx context.Context, req *ticketStatusFetch) (*ticketStatusView, error) {

	repo := data.NewTicketRepo(req.DB, data.RepoConfig{})
	ticket, err := repo.GetByToken(ctx, req.Ticket)
	if err != nil {
		if errors.Is(err, data.ErrUnknownTicket) {
			return &ticketStatusView{Source: "database"}, nil
		}
		return nil, fmt.Errorf("get ticket %s: %w", req.Ticket, err)
	}

	status := model.StatusOf(ticket)
	raw, err := json.Marshal(status)
	if err != nil {
		return nil, fmt.Errorf("encode status: %w", err)
	}
	return &ticketStatusView{
		Raw:    raw,
		Status: &status,
		Source: "database",
	}, nil
}

func printTicketStatus(opts ticketStatusOptions, view *ticketStatusView) error {
	if view == nil || view.Raw == nil {
		if err := writef(os.Stdout, "No ticket found for token %s\n", opts.Ticket); err != nil {
			return fmt.Errorf("print missing ticket notice: %w", err)
		}
		return nil
	}

	if opts.RawJSON {
		return printRawTicketStatus(view)
	}
	return printStructuredTicketStatus(opts, view)
}

func printRawTicketStatus(view *ticketStatusView) error {
	if err := writef(os.Stdout, "%s\n", view.Raw); err != nil {
		return fmt.Errorf("print raw status: %w", err)
	}
	if view.TTL != nil {
		if err := writef(os.Stdout, "\nTTL remaining: %s\n", renderTTL(*view.TTL)); err != nil {
			return fmt.Errorf("print status ttl: %w", err)
		}
	}
	if err := writef(os.Stdout, "\nSource: %s\n", view.Source); err != nil {
		return fmt.Errorf("print status source: %w", err)
	}
	return nil
}

func printStructuredTicketStatus(opts ticketStatusOptions, view *ticketStatusView) error {
	status := view.Status
	if status == nil {
		status = &model.TicketStatusResponse{}
		if err := json.Unmarshal(view.Raw, status); err != nil {
			return fmt.Errorf("decode cached status: %w", err)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writef(w, "Ticket\t%s\n", opts.Ticket); err != nil {
		return fmt.Errorf("write ticket token: %w", err)
	}
	if err := writef(w, "Completed\t%t\n", status.Completed); err != nil {
		return fmt.Errorf("write completed flag: %w", err)
	}
	if err := writef(w, "Success\t%s\n", renderOptionalBool(status.Success)); err != nil {
		return fmt.Errorf("write success flag: %w", err)
	}
	if err := writef(w, "Requested\t%s\n", status.Requested.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("write requested time: %w", err)
	}
	if status.CompletedTime != nil {
		if err := writef(w, "Completed At\t%s\n", status.CompletedTime.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("write completed time: %w", err)
		}
	}
	if status.ExecutionTime != nil {
		if err := writef(w, "Execution Time\t%.2fs\n", *status.ExecutionTime); err != nil {
			return fmt.Errorf("write execution time: %w", err)
		}
	}
	if status.Comment != nil && *status.Comment != "" {
		if err := writef(w, "Comment\t%s\n", *status.Comment); err != nil {
			return fmt.Errorf("write comment: %w", err)
		}
	}
	if view.TTL != nil {
		if err := writef(w, "Cache TTL\t%s\n", renderTTL(*view.TTL)); err != nil {
			return fmt.Errorf("write cache ttl: %w", err)
		}
	}
	if err := writef(w, "Source\t%s\n", view.Source); err != nil {
		return fmt.Errorf("write status source: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush status: %w", err)
	}
	return nil
}

func printReapSummary(failed, deleted int64, opts reapOptions) error {
	if err := writef(os.Stdout, "Failed %d stuck running ticket(s) older than %s\n", failed, opts.RunningMaxAge); err != nil {
		return fmt.Errorf("print failed count: %w", err)
	}
	if err := writef(os.Stdout, "Deleted %d completed ticket(s) older than %s\n", deleted, opts.CompletedMaxAge); err != nil {
		return fmt.Errorf("print deleted count: %w", err)
	}
	return nil
}

func renderTTL(d time.Duration) string {
	switch {
	case d == -1*time.Second:
		return "no expiry"
	case d == -2*time.Second:
		return "key missing"
	default:
		return d.String()
	}
}

func renderOptionalBool(b *bool) string {
	if b == nil {
		return "-"
	}
	return fmt.Sprintf("%t", *b)
}

func renderOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func renderOptionalString(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func write(w io.Writer, args ...any) error {
	_, err := fmt.Fprint(w, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, args...)
	return err
}
