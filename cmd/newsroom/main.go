// Package main provides the entry point for the newsroom CLI, a command
// line client for thenewspaper.site subscriptions: hosted-UI login with
// PKCE, subscription status, checkout and billing-portal redirects, and
// briefing preferences.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/thenewspaper/newsroom-cli/internal/api"
	"github.com/thenewspaper/newsroom-cli/internal/auth"
	"github.com/thenewspaper/newsroom-cli/internal/browser"
	"github.com/thenewspaper/newsroom-cli/internal/buildinfo"
	"github.com/thenewspaper/newsroom-cli/internal/config"
	"github.com/thenewspaper/newsroom-cli/internal/logging"
	"github.com/thenewspaper/newsroom-cli/internal/prefs"
	"github.com/thenewspaper/newsroom-cli/internal/subscription"
	"github.com/thenewspaper/newsroom-cli/internal/tui"
	"github.com/thenewspaper/newsroom-cli/internal/watcher"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	var (
		doLogin      bool
		doLogout     bool
		doStatus     bool
		doBilling    bool
		prefsShow    bool
		prefsSave    string
		watchMode    bool
		interval     int
		noBrowser    bool
		callbackPort int
		configPath   string
		showVersion  bool
	)

	flag.BoolVar(&doLogin, "login", false, "Log in through the hosted UI")
	flag.BoolVar(&doLogout, "logout", false, "Clear credentials and log out of the hosted UI")
	flag.BoolVar(&doStatus, "status", false, "Show subscription status (default)")
	flag.BoolVar(&doBilling, "billing", false, "Run the primary billing action (checkout or billing portal)")
	flag.BoolVar(&prefsShow, "prefs-show", false, "Print briefing preferences")
	flag.StringVar(&prefsSave, "prefs-save", "", "Save briefing preferences from a JSON file ('-' for stdin)")
	flag.BoolVar(&watchMode, "watch", false, "With -status: keep refreshing on credential changes and an interval")
	flag.IntVar(&interval, "interval", 300, "Watch-mode refresh interval in seconds")
	flag.BoolVar(&noBrowser, "no-browser", false, "Print URLs instead of opening a browser")
	flag.IntVar(&callbackPort, "callback-port", 0, "Override the login callback port")
	flag.StringVar(&configPath, "config", "", "Path to the YAML config file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("newsroom %s, commit %s, built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return
	}

	if err := godotenv.Load(); err == nil {
		log.Debug("loaded environment from .env")
	}

	if configPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configPath = filepath.Join(home, ".newsroom", "config.yaml")
		} else {
			configPath = "config.yaml"
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if callbackPort > 0 {
		cfg.Auth.CallbackPort = callbackPort
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if cfg.LoggingToFile {
		logging.RedirectToFiles(cfg.LogDir)
	}

	store := auth.NewTokenStore(cfg.TokenFile)
	stash := auth.NewVerifierStash(cfg.VerifierFile)
	flow := auth.NewFlow(cfg, store, stash)
	flow.NoBrowser = noBrowser

	client := api.NewClient(cfg, store)
	engine := subscription.NewEngine(client, store)
	engine.AddSink(tui.NewConsoleSink(os.Stdout))
	dispatcher := subscription.NewDispatcher(engine, client, store, flow, browser.OpenURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case doLogin:
		if err = flow.Start(ctx); err != nil {
			log.Fatalf("login failed: %v", err)
		}
		engine.Refresh(ctx)
	case doLogout:
		if err = flow.Logout(); err != nil {
			log.Fatalf("logout failed: %v", err)
		}
		fmt.Println("Logged out.")
	case doBilling:
		engine.Refresh(ctx)
		outcome, errAction := dispatcher.HandlePrimaryAction(ctx)
		if errAction != nil {
			log.Fatalf("billing action failed: %v", errAction)
		}
		reportOutcome(outcome)
	case prefsShow:
		runPrefsShow(ctx, store, client)
	case prefsSave != "":
		runPrefsSave(ctx, store, client, prefsSave)
	default:
		snap := engine.Refresh(ctx)
		if watchMode {
			runWatch(ctx, cfg, engine, interval)
			return
		}
		if snap.Status == subscription.StatusError {
			os.Exit(1)
		}
	}
}

func reportOutcome(outcome *subscription.Outcome) {
	switch outcome.Action {
	case subscription.ActionLogin:
		fmt.Println("Login started; run -billing again once logged in.")
	case subscription.ActionCheckout:
		fmt.Printf("Checkout session created: %s\n", outcome.RedirectURL)
	case subscription.ActionBillingPortal:
		fmt.Printf("Billing portal session created: %s\n", outcome.RedirectURL)
	}
}

// runWatch keeps the status fresh until interrupted: a periodic interval
// plus an immediate refresh whenever the credential file changes.
func runWatch(ctx context.Context, cfg *config.Config, engine *subscription.Engine, intervalSeconds int) {
	if intervalSeconds < 10 {
		intervalSeconds = 10
	}

	refresh := func() { engine.Refresh(ctx) }

	w := watcher.New(cfg.TokenFile, refresh)
	if err := w.Start(); err != nil {
		log.Warnf("credential watcher unavailable: %v", err)
	} else {
		defer w.Stop()
	}

	ticker := time.NewTicker(time.Duration(intervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

func runPrefsShow(ctx context.Context, store *auth.TokenStore, client *api.Client) {
	email := loggedInEmail(store)
	svc := prefs.NewService(client)
	loaded, err := svc.Load(ctx, email)
	if err != nil {
		log.Warnf("could not load preferences, showing defaults: %v", err)
		loaded = prefs.Default(email)
	}
	out, _ := json.MarshalIndent(loaded, "", "  ")
	fmt.Println(string(out))
}

func runPrefsSave(ctx context.Context, store *auth.TokenStore, client *api.Client, source string) {
	email := loggedInEmail(store)

	var data []byte
	var err error
	if source == "-" {
		data, err = readAllStdin()
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		log.Fatalf("failed to read preferences: %v", err)
	}

	var p prefs.Preferences
	if err = json.Unmarshal(data, &p); err != nil {
		log.Fatalf("preferences are not valid JSON: %v", err)
	}
	p.Email = email

	if err = prefs.NewService(client).Save(ctx, p); err != nil {
		log.Fatalf("failed to save preferences: %v", err)
	}
	fmt.Println("Preferences saved.")
}

func loggedInEmail(store *auth.TokenStore) string {
	claims := store.Claims()
	if claims == nil || claims.UserEmail() == "" {
		log.Fatal("you must be logged in to edit your preferences")
	}
	return claims.UserEmail()
}

func readAllStdin() ([]byte, error) {
	return io.ReadAll(os.Stdin)
}
