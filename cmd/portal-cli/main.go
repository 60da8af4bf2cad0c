package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/ashaassist/portal/backend"
	"github.com/ashaassist/portal/config"
	"github.com/ashaassist/portal/domain"
	"github.com/ashaassist/portal/logger"
	"github.com/ashaassist/portal/onboarding"
	"github.com/ashaassist/portal/persistence"
	"github.com/ashaassist/portal/session"
)

// Version is set at build time
var Version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if reason := domain.ReasonOf(err); reason != "" {
			fmt.Fprintf(os.Stderr, "Reason: %s\n", reason)
		}
		os.Exit(1)
	}
}

func run(argv []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	flagSet := pflag.NewFlagSet("portal-cli", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&cfg.APIBaseURL, "api", cfg.APIBaseURL, "portal REST API base URL")
	flagSet.StringVar(&cfg.StoreType, "store", cfg.StoreType, "session store (memory, file, sqlite, postgres, mysql, redis)")
	flagSet.StringVar(&cfg.StoreDSN, "store-dsn", cfg.StoreDSN, "session store location")
	flagSet.StringVar(&cfg.LogLevel, "log-level", "error", "log level (debug, info, warn, error)")
	flagSet.BoolVar(&cfg.RevalidateOnBootstrap, "revalidate", cfg.RevalidateOnBootstrap, "check the saved session against the API on start")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printUsage(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help || flagSet.NArg() == 0 {
		printUsage(flagSet)
		return nil
	}

	cmd := flagSet.Arg(0)
	args := flagSet.Args()[1:]

	switch cmd {
	case "version":
		fmt.Printf("portal-cli %s\n", Version)
		return nil
	case "help":
		printUsage(flagSet)
		return nil
	}

	logger.InitLogger(cfg.LogLevel)
	defer logger.Log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cli, err := newCLI(ctx, cfg)
	if err != nil {
		return err
	}
	defer cli.close()

	switch cmd {
	case "status":
		return cli.status()
	case "route":
		return cli.route(args)
	case "login":
		return cli.login(ctx, args)
	case "provider-login":
		return cli.providerLogin(ctx, args)
	case "register":
		return cli.register(ctx, args)
	case "check-email":
		return cli.checkEmail(ctx, args)
	case "profile":
		return cli.updateProfile(ctx, args)
	case "onboard":
		return cli.onboard(ctx, args)
	case "logout":
		return cli.logout(ctx)
	}
	printUsage(flagSet)
	return fmt.Errorf("unknown command: %s", cmd)
}

// CLI drives a local session engine.
type CLI struct {
	cfg      *config.Config
	store    *persistence.Store
	sessions *session.Manager
	gate     *onboarding.Gate
}

// newCLI opens the store and restores the saved session. Provider sign-in
// installs its own federation, so the manager built here has none.
func newCLI(ctx context.Context, cfg *config.Config) (*CLI, error) {
	store, err := persistence.Open(cfg.StoreType, cfg.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	cli := &CLI{cfg: cfg, store: store}
	if err := cli.start(ctx, nil); err != nil {
		store.Close()
		return nil, err
	}
	return cli, nil
}

func (c *CLI) start(ctx context.Context, federation domain.IdentityFederation) error {
	client := backend.NewClient(c.cfg.APIBaseURL, c.cfg.HTTPTimeout)
	c.sessions = session.NewManager(client, federation, c.store,
		session.WithRevalidation(c.cfg.RevalidateOnBootstrap),
	)
	c.gate = onboarding.NewGate(c.sessions)
	return c.sessions.Bootstrap(ctx)
}

func (c *CLI) close() {
	if c.store != nil {
		c.store.Close()
	}
}

func printUsage(flagSet *pflag.FlagSet) {
	fmt.Fprint(os.Stderr, `portal-cli - ASHA Assist portal session client

Usage:
  portal-cli [global flags] <command> [options]

Environment Variables:
  API_BASE_URL  Portal REST API base URL (default: http://localhost:5000/api)
  STORE_TYPE    Session store (default: file)
  STORE_DSN     Session store location (default: portal-session.json)
  OIDC_*        Federated sign-in settings, see the config package

Commands:
  status          Show the saved session and where it routes
  route           Resolve a screen path for the saved session
    <path>
  login           Sign in with email and password
    --email=EMAIL --password=PWD
  provider-login  Sign in through the configured identity provider
    [--timeout=5m]
  register        Create an account (does not sign in)
    --email=EMAIL --password=PWD --name=NAME [--phone=N]
    [--role=user|asha_worker|admin] [--category=maternity|palliative]
  check-email     Report whether an email can be registered
    <email>
  profile         Update the signed-in profile
    [--name=NAME] [--category=CATEGORY]
  onboard         Choose the care program for a first-time patient
    <maternity|palliative>
  logout          Sign out and forget the saved session
  version         Show CLI version
  help            Show this help

Global flags:
`)
	fmt.Fprint(os.Stderr, flagSet.FlagUsages())
}
