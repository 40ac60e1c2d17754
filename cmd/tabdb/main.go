// Package main is the entry point for the tabdb command.
//
// tabdb keeps tables as plain tab-delimited text files in a data
// directory. The same binary drives one-shot table operations (create,
// insert, select, update, delete), bulk loading and remote transfer,
// and a long-running HTTP API server (serve). Server configuration is
// read from CLI flags, a .env file (for OAuth credentials), and
// server_config.json (for the JWT secret, VAPID keys and rate limits).
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	taberrors "github.com/maruel/tabdb/internal/errors"
	"github.com/maruel/tabdb/internal/models"
	"github.com/maruel/tabdb/internal/server"
	"github.com/maruel/tabdb/internal/server/ipgeo"
	"github.com/maruel/tabdb/internal/server/ratelimit"
	"github.com/maruel/tabdb/internal/storage"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	err := mainImpl()
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	fmt.Fprintf(os.Stderr, "tabdb: %v\n", err)
	os.Exit(taberrors.ExitStatus(err))
}

const usageText = `usage: tabdb <command> [flags] [args]

Commands:
  create   Create a table: tabdb create -cols id,name pets
  insert   Append one row: tabdb insert -set id=1 -set name=Bo pets
  select   Print rows: tabdb select [-cols name] [-where 'id=1'] pets
  update   Rewrite one column of matching rows: tabdb update -set name=Robert -where 'id=1' pets
  delete   Remove matching rows: tabdb delete -where 'id=2' pets
  load     Create tables, rows and users from a YAML manifest
  export   Copy a table to a local path, http(s):// or s3:// URL
  import   Replace a table from a local path, http(s):// or s3:// URL
  history  Show the commit history of a table (requires serve -git)
  serve    Run the HTTP API server
  version  Print version and exit

Run 'tabdb <command> -h' for the flags of a command.
`

// logLevel is shared between the logger installed before dispatch and
// the per-command -log-level flags parsed after it.
var logLevel = &slog.LevelVar{}

func mainImpl() error {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		return errors.New("a command is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	initLogger()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "create":
		return cmdCreate(ctx, args)
	case "insert":
		return cmdInsert(ctx, args)
	case "select":
		return cmdSelect(ctx, args)
	case "update":
		return cmdUpdate(ctx, args)
	case "delete":
		return cmdDelete(ctx, args)
	case "load":
		return cmdLoad(ctx, args)
	case "export":
		return cmdExport(ctx, args)
	case "import":
		return cmdImport(ctx, args)
	case "history":
		return cmdHistory(ctx, args)
	case "serve":
		return cmdServe(ctx, stop, args)
	case "version":
		printVersion()
		return nil
	case "help", "-h", "-help", "--help":
		fmt.Print(usageText)
		return nil
	default:
		fmt.Fprint(os.Stderr, usageText)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// initLogger installs a tinted stderr logger. The level is adjusted
// later once the command's flags are parsed.
func initLogger() {
	logLevel.Set(slog.LevelInfo)
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      logLevel,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Drop time when running under systemd.
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			// Drop localhost IPs (not useful in logs).
			if a.Key == "ip" {
				if v := a.Value.String(); v == "127.0.0.1" || v == "::1" {
					return slog.Attr{}
				}
			}
			val := a.Value.Any()
			skip := false
			switch t := val.(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case uint64:
				skip = t == 0
			case int64:
				skip = t == 0
			case float64:
				skip = t == 0
			case time.Time:
				skip = t.IsZero()
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)
}

// commonFlags are registered on every subcommand's FlagSet.
type commonFlags struct {
	dataDir string
	level   string
	verbose bool
}

func registerCommon(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{}
	fs.StringVar(&c.dataDir, "data-dir", "./data", "Data directory")
	fs.StringVar(&c.level, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.BoolVar(&c.verbose, "v", false, "Shorthand for -log-level debug")
	return c
}

// apply sets the global log level from the parsed flags.
func (c *commonFlags) apply() error {
	if c.verbose {
		c.level = "debug"
	}
	return setLevel(c.level)
}

// openStore applies the common flags and opens the store.
func (c *commonFlags) openStore() (*storage.Store, error) {
	if err := c.apply(); err != nil {
		return nil, err
	}
	return storage.NewStore(c.dataDir)
}

func setLevel(level string) error {
	switch level {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "info":
		logLevel.Set(slog.LevelInfo)
	case "warn":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", level)
	}
	return nil
}

func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: %s\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

// tableArg returns the single positional table name argument.
func tableArg(fs *flag.FlagSet) (string, error) {
	if fs.NArg() != 1 {
		fs.Usage()
		return "", errors.New("expected exactly one table argument")
	}
	return fs.Arg(0), nil
}

// splitList parses a comma-separated column list. Empty and "*" both
// mean every column.
func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return nil
	}
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// assignments accumulates repeated -set col=value flags.
type assignments map[string]string

func (a assignments) String() string {
	parts := make([]string, 0, len(a))
	for col, val := range a {
		parts = append(parts, col+"="+val)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func (a assignments) Set(s string) error {
	col, val, ok := strings.Cut(s, "=")
	if !ok || col == "" {
		return fmt.Errorf("expected col=value, got %q", s)
	}
	if _, dup := a[col]; dup {
		return fmt.Errorf("column %q assigned twice", col)
	}
	a[col] = val
	return nil
}

func cmdCreate(ctx context.Context, args []string) error {
	fs := newFlagSet("create", "tabdb create -cols col1,col2[,...] <table>")
	common := registerCommon(fs)
	cols := fs.String("cols", "", "Comma-separated column names (required)")
	_ = fs.Parse(args)
	table, err := tableArg(fs)
	if err != nil {
		return err
	}
	columns := splitList(*cols)
	if len(columns) == 0 {
		fs.Usage()
		return errors.New("-cols is required")
	}
	store, err := common.openStore()
	if err != nil {
		return err
	}
	return store.CreateTable(ctx, table, columns)
}

func cmdInsert(ctx context.Context, args []string) error {
	fs := newFlagSet("insert", "tabdb insert -set col=value [-set col=value ...] <table>")
	common := registerCommon(fs)
	values := assignments{}
	fs.Var(values, "set", "Column assignment, repeatable (at least one required)")
	_ = fs.Parse(args)
	table, err := tableArg(fs)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		fs.Usage()
		return errors.New("at least one -set is required")
	}
	store, err := common.openStore()
	if err != nil {
		return err
	}
	return store.InsertRow(ctx, table, values)
}

func cmdSelect(_ context.Context, args []string) error {
	fs := newFlagSet("select", "tabdb select [-cols col1,col2] [-where expr] <table>")
	common := registerCommon(fs)
	cols := fs.String("cols", "", "Comma-separated projection (default all columns)")
	where := fs.String("where", "", "Filter expression, col=value or col~/pattern/")
	_ = fs.Parse(args)
	table, err := tableArg(fs)
	if err != nil {
		return err
	}
	store, err := common.openStore()
	if err != nil {
		return err
	}
	rows, err := store.SelectRows(table, splitList(*cols), *where)
	if err != nil {
		return err
	}
	out := bufio.NewWriter(os.Stdout)
	for line, err := range rows {
		if err != nil {
			return err
		}
		fmt.Fprintln(out, line)
	}
	if err := out.Flush(); err != nil {
		return taberrors.IO("write output", err)
	}
	return nil
}

func cmdUpdate(ctx context.Context, args []string) error {
	fs := newFlagSet("update", "tabdb update -set col=value -where expr <table>")
	common := registerCommon(fs)
	set := fs.String("set", "", "Single column assignment, col=value (required)")
	where := fs.String("where", "", "Filter expression selecting the rows to change (required)")
	_ = fs.Parse(args)
	table, err := tableArg(fs)
	if err != nil {
		return err
	}
	column, value, ok := strings.Cut(*set, "=")
	if !ok || column == "" {
		fs.Usage()
		return errors.New("-set must be col=value")
	}
	store, err := common.openStore()
	if err != nil {
		return err
	}
	n, err := store.UpdateRows(ctx, table, column, value, *where)
	if err != nil {
		return err
	}
	fmt.Printf("%d\n", n)
	return nil
}

func cmdDelete(ctx context.Context, args []string) error {
	fs := newFlagSet("delete", "tabdb delete -where expr <table>")
	common := registerCommon(fs)
	where := fs.String("where", "", "Filter expression selecting the rows to remove (required)")
	_ = fs.Parse(args)
	table, err := tableArg(fs)
	if err != nil {
		return err
	}
	store, err := common.openStore()
	if err != nil {
		return err
	}
	n, err := store.DeleteRows(ctx, table, *where)
	if err != nil {
		return err
	}
	fmt.Printf("%d\n", n)
	return nil
}

func cmdLoad(ctx context.Context, args []string) error {
	fs := newFlagSet("load", "tabdb load <manifest.yaml>")
	common := registerCommon(fs)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected exactly one manifest argument")
	}
	manifest, err := storage.ParseSeedManifest(fs.Arg(0))
	if err != nil {
		return err
	}
	store, err := common.openStore()
	if err != nil {
		return err
	}
	if err := manifest.Apply(ctx, store); err != nil {
		return err
	}
	if len(manifest.Users) > 0 {
		users, err := storage.NewUserService(ctx, store)
		if err != nil {
			return err
		}
		if err := manifest.ApplyUsers(ctx, users); err != nil {
			return err
		}
	}
	return nil
}

// s3Flags registers the flags shared by export and import. Credentials
// never travel on argv; they come from the ambient AWS config chain.
func s3Flags(fs *flag.FlagSet) *storage.S3Options {
	o := &storage.S3Options{}
	fs.StringVar(&o.Endpoint, "s3-endpoint", os.Getenv("S3_ENDPOINT"), "Custom S3-compatible endpoint (default $S3_ENDPOINT)")
	fs.StringVar(&o.Region, "s3-region", "", "S3 region (default ambient AWS config)")
	return o
}

func cmdExport(ctx context.Context, args []string) error {
	fs := newFlagSet("export", "tabdb export [flags] <table> <url>")
	common := registerCommon(fs)
	s3opts := s3Flags(fs)
	_ = fs.Parse(args)
	if fs.NArg() != 2 {
		fs.Usage()
		return errors.New("expected table and destination URL arguments")
	}
	store, err := common.openStore()
	if err != nil {
		return err
	}
	return store.ExportTo(ctx, fs.Arg(0), fs.Arg(1), s3opts)
}

func cmdImport(ctx context.Context, args []string) error {
	fs := newFlagSet("import", "tabdb import [flags] <url> <table>")
	common := registerCommon(fs)
	s3opts := s3Flags(fs)
	_ = fs.Parse(args)
	if fs.NArg() != 2 {
		fs.Usage()
		return errors.New("expected source URL and table arguments")
	}
	store, err := common.openStore()
	if err != nil {
		return err
	}
	return store.ImportFrom(ctx, fs.Arg(1), fs.Arg(0), s3opts)
}

func cmdHistory(ctx context.Context, args []string) error {
	fs := newFlagSet("history", "tabdb history [-n max] <table>")
	common := registerCommon(fs)
	n := fs.Int("n", 20, "Maximum number of commits to show")
	_ = fs.Parse(args)
	table, err := tableArg(fs)
	if err != nil {
		return err
	}
	if err := common.apply(); err != nil {
		return err
	}
	// NewHistory initializes a repository when none exists; a plain
	// read command should not.
	if _, err := os.Stat(filepath.Join(common.dataDir, ".git")); err != nil {
		return fmt.Errorf("no history in %s (run serve with -git first)", common.dataDir)
	}
	history, err := storage.NewHistory(common.dataDir)
	if err != nil {
		return err
	}
	commits, err := history.Log(ctx, storage.TableRelPath(table), *n)
	if err != nil {
		return err
	}
	for _, c := range commits {
		fmt.Printf("%.12s  %s  %s", c.Hash, c.When.Format("2006-01-02 15:04"), c.Message)
		if c.Author != "" {
			fmt.Printf("  [%s]", c.Author)
		}
		fmt.Println()
	}
	return nil
}

func cmdServe(ctx context.Context, stop context.CancelFunc, args []string) error {
	fs := newFlagSet("serve", "tabdb serve [flags]")
	common := registerCommon(fs)
	httpAddr := fs.String("http", "localhost:8080", "Address to listen on (e.g., localhost:8080, :8080, 0.0.0.0:8080). Use 0.0.0.0:port to listen on all interfaces.")
	baseURL := fs.String("base-url", "http://localhost", "Base URL for OAuth callbacks (e.g., https://example.com)")
	admin := fs.String("admin", "", "Bootstrap admin account as email:password, created if missing")
	gitHistory := fs.Bool("git", false, "Keep the data directory in a git repository, one commit per mutation")
	googleClientID := fs.String("google-client-id", "", "Google OAuth client ID")
	googleClientSecret := fs.String("google-client-secret", "", "Google OAuth client secret")
	githubClientID := fs.String("github-client-id", "", "GitHub OAuth client ID")
	githubClientSecret := fs.String("github-client-secret", "", "GitHub OAuth client secret")
	geoDB := fs.String("geo-db", "", "Path to MaxMind MMDB file for IP geolocation (optional)")
	_ = fs.Parse(args)
	if fs.NArg() > 0 {
		return fmt.Errorf("unknown arguments: %v", fs.Args())
	}

	if err := os.MkdirAll(common.dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// Load .env for OAuth credentials and deployment settings.
	env, err := loadDotEnv(common.dataDir)
	if err != nil {
		return err
	}

	// Load server_config.json for the JWT secret, VAPID keys and rate
	// limits (created with defaults if missing).
	cfg, err := storage.LoadServerConfig(common.dataDir)
	if err != nil {
		return fmt.Errorf("failed to load server_config.json: %w", err)
	}

	// Precedence: flag, then .env, then server_config.json.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	if !set["http"] {
		if v := env["HTTP"]; v != "" {
			*httpAddr = v
		}
	}
	if !set["log-level"] {
		if v := env["LOG_LEVEL"]; v != "" {
			common.level = v
		}
	}
	if !set["base-url"] {
		if v := env["BASE_URL"]; v != "" {
			*baseURL = v
		} else if cfg.OAuth.RedirectBaseURL != "" {
			*baseURL = cfg.OAuth.RedirectBaseURL
		}
	}
	if !set["google-client-id"] {
		if v := env["GOOGLE_CLIENT_ID"]; v != "" {
			*googleClientID = v
		} else if cfg.OAuth.Google.ClientID != "" {
			*googleClientID = cfg.OAuth.Google.ClientID
		}
	}
	if !set["google-client-secret"] {
		if v := env["GOOGLE_CLIENT_SECRET"]; v != "" {
			*googleClientSecret = v
		} else if cfg.OAuth.Google.ClientSecret != "" {
			*googleClientSecret = cfg.OAuth.Google.ClientSecret
		}
	}
	if !set["github-client-id"] {
		if v := env["GITHUB_CLIENT_ID"]; v != "" {
			*githubClientID = v
		} else if cfg.OAuth.GitHub.ClientID != "" {
			*githubClientID = cfg.OAuth.GitHub.ClientID
		}
	}
	if !set["github-client-secret"] {
		if v := env["GITHUB_CLIENT_SECRET"]; v != "" {
			*githubClientSecret = v
		} else if cfg.OAuth.GitHub.ClientSecret != "" {
			*githubClientSecret = cfg.OAuth.GitHub.ClientSecret
		}
	}
	if !set["geo-db"] {
		if v := env["GEO_DB"]; v != "" {
			*geoDB = v
		} else if cfg.GeoIPDatabase != "" {
			*geoDB = cfg.GeoIPDatabase
		}
	}
	if err := common.apply(); err != nil {
		return err
	}

	// OAuth credentials: both ID and secret must be set, or neither.
	if (*googleClientID == "") != (*googleClientSecret == "") {
		return errors.New("google-client-id and google-client-secret must both be set or both be empty")
	}
	if (*githubClientID == "") != (*githubClientSecret == "") {
		return errors.New("github-client-id and github-client-secret must both be set or both be empty")
	}

	// Normalize addr: ":8080" becomes "localhost:8080".
	addr := *httpAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	// Append port to base URL if localhost and no port specified.
	if u, err := url.Parse(*baseURL); err == nil && u.Port() == "" && u.Hostname() == "localhost" {
		if _, p, err := net.SplitHostPort(addr); err == nil {
			u.Host = net.JoinHostPort(u.Hostname(), p)
			*baseURL = u.String()
		}
	}

	cfg.OAuth.RedirectBaseURL = *baseURL
	cfg.OAuth.Google = storage.OAuthProvider{ClientID: *googleClientID, ClientSecret: *googleClientSecret}
	cfg.OAuth.GitHub = storage.OAuthProvider{ClientID: *githubClientID, ClientSecret: *githubClientSecret}

	store, err := storage.NewStore(common.dataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.Watch(ctx); err != nil {
		return fmt.Errorf("failed to watch table directory: %w", err)
	}

	users, err := storage.NewUserService(ctx, store)
	if err != nil {
		return fmt.Errorf("failed to initialize user service: %w", err)
	}

	audit, err := storage.NewAuditService(ctx, store)
	if err != nil {
		return fmt.Errorf("failed to initialize audit service: %w", err)
	}
	store.OnMutation(audit.Observer())

	subscriptions, err := storage.NewSubscriptionService(ctx, store)
	if err != nil {
		return fmt.Errorf("failed to initialize subscription service: %w", err)
	}
	notify := storage.NewNotifyService(cfg.VAPID, subscriptions)
	store.OnMutation(notify.Observer())

	var history *storage.History
	if *gitHistory {
		history, err = storage.NewHistory(common.dataDir)
		if err != nil {
			return fmt.Errorf("failed to initialize history: %w", err)
		}
		store.OnMutation(history.Observer())
	}

	if *admin != "" {
		email, password, ok := strings.Cut(*admin, ":")
		if !ok || email == "" || password == "" {
			return errors.New("-admin must be email:password")
		}
		if _, err := users.GetByEmail(email); err != nil {
			if taberrors.CodeOf(err) != taberrors.CodeNotFound {
				return err
			}
			if _, err := users.Create(ctx, email, password, "", models.RoleAdmin); err != nil {
				return fmt.Errorf("failed to create admin account: %w", err)
			}
			slog.InfoContext(ctx, "Created admin account", "email", email)
		}
	}

	// Open IP geolocation database if configured.
	var geo *ipgeo.Checker
	if *geoDB != "" {
		geo, err = ipgeo.Open(*geoDB)
		if err != nil {
			return fmt.Errorf("failed to open geo database: %w", err)
		}
		defer func() { _ = geo.Close() }()
		slog.InfoContext(ctx, "IP geolocation enabled", "db", *geoDB)
	}

	limits := ratelimit.NewConfig(cfg.RateLimits.AuthRatePerMin, cfg.RateLimits.WriteRatePerMin, cfg.RateLimits.ReadRatePerMin)
	defer limits.Close()

	// Watch own executable for modifications (for development restarts).
	if err := watchExecutable(ctx, stop); err != nil {
		return fmt.Errorf("failed to watch executable: %w", err)
	}

	buildVersion, _, _, _ := getBuildInfo()
	router := server.NewRouter(server.Options{
		Store:         store,
		Users:         users,
		Audit:         audit,
		Subscriptions: subscriptions,
		History:       history,
		Config:        cfg,
		RateLimits:    limits,
		Geo:           geo,
		Version:       buildVersion,
	})

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", addr, "baseURL", *baseURL, "version", buildVersion)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

// watchExecutable watches the current executable for modifications and
// calls stop to trigger graceful shutdown when detected. This enables
// seamless restarts during development.
func watchExecutable(ctx context.Context, stop context.CancelFunc) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(exe); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) {
					slog.InfoContext(ctx, "Executable modified, initiating shutdown")
					stop()
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching executable", "err", err)
			}
		}
	}()
	return nil
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("tabdb %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}

func loadDotEnv(dataDir string) (map[string]string, error) {
	env := make(map[string]string)
	path := filepath.Join(dataDir, ".env")
	envContent, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir flag, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return nil, err
	}

	for line := range strings.SplitSeq(string(envContent), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])

		if strings.HasPrefix(val, "'") || strings.HasSuffix(val, "'") {
			if strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'") {
				return nil, fmt.Errorf("single quotes are not supported for wrapping in .env: %s", line)
			}
			return nil, fmt.Errorf("unbalanced single quotes in .env: %s", line)
		}

		if strings.HasPrefix(val, "\"") {
			unquoted, err := strconv.Unquote(val)
			if err != nil {
				return nil, fmt.Errorf("failed to unquote %s: %w", key, err)
			}
			val = unquoted
		}

		env[key] = val
	}
	return env, nil
}
