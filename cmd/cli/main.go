// Command dp is the DrivePass session client.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/and161185/drivepass/internal/authapi"
	"github.com/and161185/drivepass/internal/config"
	clientcrypto "github.com/and161185/drivepass/internal/crypto/clientcrypto"
	"github.com/and161185/drivepass/internal/errs"
	"github.com/and161185/drivepass/internal/limiter"
	"github.com/and161185/drivepass/internal/oracle"
	"github.com/and161185/drivepass/internal/repository"
	"github.com/and161185/drivepass/internal/repository/postgres"
	"github.com/and161185/drivepass/internal/repository/sqlite"
	"github.com/and161185/drivepass/internal/service"
)

// ---- device key ----

func keyPath() string  { return filepath.Join(config.Dir(), "device.key") }
func saltPath() string { return filepath.Join(config.Dir(), "device.salt") }

// loadOrCreate returns the file at path, creating it with n random bytes first.
func loadOrCreate(path string, n int) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err == nil && len(b) == n {
		return b, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	b, err = clientcrypto.Rand(n)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return nil, err
	}
	return b, nil
}

// deviceKey derives the sealing key from secret, or uses a random per-device key file.
func deviceKey(secret string) ([]byte, error) {
	if secret != "" {
		salt, err := loadOrCreate(saltPath(), clientcrypto.SaltLen)
		if err != nil {
			return nil, err
		}
		return clientcrypto.DeriveKey([]byte(secret), salt), nil
	}
	return loadOrCreate(keyPath(), clientcrypto.KeyLen)
}

// ---- logging ----

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	zcfg.DisableStacktrace = true
	return zcfg.Build()
}

// ---- wiring ----

type app struct {
	cfg   config.Config
	log   *zap.Logger
	store *sqlite.Store
	db    *postgres.DB
	mgr   *service.Manager
}

func (a *app) Close() {
	if a.mgr != nil {
		a.mgr.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	_ = a.store.Close()
	_ = a.log.Sync()
}

// hasDatabase reports whether the database-of-record is configured.
func (a *app) hasDatabase() bool { return a.db != nil }

func (a *app) requireDatabase() {
	if !a.hasDatabase() {
		fail(fmt.Errorf("%w: set DRIVEPASS_DATABASE_DSN or -dsn", errs.ErrValidation))
	}
}

func setup(ctx context.Context, cfg config.Config, log *zap.Logger) (*app, error) {
	store, err := sqlite.Open(ctx, cfg.StorePath)
	if err != nil {
		return nil, err
	}

	apiCfg := authapi.DefaultConfig(cfg.APIURL)
	apiCfg.Timeout = cfg.HTTPTimeout
	apiCfg.MaxRetries = cfg.HTTPRetries
	api, err := authapi.New(apiCfg, log.Named("authapi"), authapi.NewMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &app{cfg: cfg, log: log, store: store}
	var users repository.UserRecordRepository
	if cfg.DatabaseDSN != "" {
		db, err := postgres.New(ctx, cfg.DatabaseDSN)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("%w: database-of-record: %v", errs.ErrNetwork, err)
		}
		a.db = db
		users = postgres.NewUserRepo(db)
	}

	key, err := deviceKey(cfg.DeviceSecret)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("device key: %w", err)
	}
	sealer, err := clientcrypto.NewSealer(key)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.mgr = service.NewManager(oracle.New(api, users, log.Named("oracle")), store, service.Options{
		Logger:   log.Named("session"),
		OnNotice: printNotice,
		Sealer:   sealer,
		Limiter:  limiter.NewCooldown(cfg.ResendCooldown),
	})
	return a, nil
}

// ---- output ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func printNotice(n service.Notice) { fmt.Fprintln(os.Stderr, n) }

func usage() {
	fmt.Fprintf(os.Stderr, `dp CLI
Usage:
  dp [-api URL] [-dsn DSN] [-store FILE] <cmd> [args]

Commands:
  version
  status                                      (validates the cached session)
  login      -e <email> -p <password>
  signup     -n <full name> -e <email> -p <password> -terms [-wait]
  logout
  verify     -token <token>
  resend     -e <email>
  check      -e <email>
  resume     [-wait]                          (poll a pending verification)
  cancel                                      (drop a pending verification)
  password   -p <password>                    (show password rules)
  profile    [-name N] [-phone P] [-photo URL]
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, wires the session manager and dispatches subcommands.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}

	// global flags override the environment
	apiURL := flag.String("api", cfg.APIURL, "auth API base URL")
	dsn := flag.String("dsn", cfg.DatabaseDSN, "database-of-record DSN")
	storePath := flag.String("store", cfg.StorePath, "credential store file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	if cmd == "version" {
		fmt.Printf("dp %s (%s)\n", version, buildDate)
		return
	}
	if cmd == "password" {
		cmdPassword(flag.Args()[1:])
		return
	}

	cfg.APIURL, cfg.DatabaseDSN, cfg.StorePath = *apiURL, *dsn, *storePath
	if err := cfg.Validate(); err != nil {
		fail(fmt.Errorf("%w: %v", errs.ErrValidation, err))
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		fail(fmt.Errorf("%w: %v", errs.ErrValidation, err))
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(sigCtx, cfg, log)
	if err != nil {
		log.Debug("setup", zap.Error(err))
		fail(err)
	}
	defer a.Close()

	// one-shot calls are bounded; -wait polling runs on sigCtx until interrupted
	wait := 2 * cfg.HTTPTimeout * time.Duration(cfg.HTTPRetries+1)
	ctx, cancel := context.WithTimeout(sigCtx, wait)
	defer cancel()

	args := flag.Args()[1:]
	switch cmd {
	case "status":
		cmdStatus(ctx, a)
	case "login":
		cmdLogin(ctx, a, args)
	case "signup":
		cmdSignup(ctx, sigCtx, a, args)
	case "logout":
		a.mgr.SignOut(ctx)
		fmt.Println("ok")
	case "verify":
		cmdVerify(ctx, a, args)
	case "resend":
		cmdResend(ctx, a, args)
	case "check":
		cmdCheck(ctx, a, args)
	case "resume":
		cmdResume(ctx, sigCtx, a, args)
	case "cancel":
		if err := a.mgr.CancelVerification(ctx); err != nil {
			fail(err)
		}
		fmt.Println("ok")
	case "profile":
		cmdProfile(ctx, a, args)
	default:
		usage()
	}
}

// ---- helpers ----

func fail(err error) {
	msg := errs.UserMessage(err)
	if msg == errs.MsgUnexpected {
		msg = err.Error()
	}
	fmt.Fprintln(os.Stderr, msg)
	if errs.NeedsVerification(err) {
		fmt.Fprintln(os.Stderr, "Run `dp resend -e <email>` to get a new verification email.")
	}
	os.Exit(1)
}
