package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/pflag"

	"github.com/ashaassist/portal/flow"
	"github.com/ashaassist/portal/identity"
	"github.com/ashaassist/portal/routing"
	"github.com/ashaassist/portal/session"
)

// ---- Session Commands ----

func (c *CLI) status() error {
	return c.printState(c.sessions.Current())
}

func (c *CLI) route(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: portal-cli route <path>")
	}
	s := c.sessions.Current()
	guard := routing.NewGuard(c.gate)

	var o routing.Outcome
	switch path := args[0]; path {
	case "/", "/login", "/register":
		o = guard.Public(s)
	case routing.DashboardPath:
		o = guard.Dashboard(s)
	default:
		o = guard.Protected(s, path)
	}

	switch {
	case o.Pending:
		fmt.Println("loading")
	case o.Onboarding:
		fmt.Println("onboarding")
	case o.Allow:
		fmt.Println(args[0])
	default:
		fmt.Printf("redirect %s (%s)\n", routing.Path(o.Redirect), o.Redirect)
	}
	return nil
}

func (c *CLI) login(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return fmt.Errorf("usage: portal-cli login --email=EMAIL --password=PWD")
	}

	if err := c.sessions.Login(ctx, *email, *password); err != nil {
		return err
	}
	return c.printState(c.sessions.Current())
}

// providerLogin serves the redirect URL's host on a loopback listener and
// waits for the browser to come back through it.
func (c *CLI) providerLogin(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("provider-login", pflag.ContinueOnError)
	timeout := fs.Duration("timeout", 5*time.Minute, "how long to wait for the browser")
	if err := fs.Parse(args); err != nil {
		return err
	}

	provider, ok := c.cfg.OIDC()
	if !ok {
		return errors.New("federated sign-in is not configured (set OIDC_ISSUER)")
	}
	redirect, err := url.Parse(provider.RedirectURL)
	if err != nil || redirect.Host == "" {
		return fmt.Errorf("invalid OIDC_REDIRECT_URL %q", provider.RedirectURL)
	}

	receiver := flow.NewCallbackReceiver(func(authURL string) {
		fmt.Printf("Open this URL in your browser to sign in:\n\n  %s\n\n", authURL)
	})
	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", redirect.Host, err)
	}
	mux := http.NewServeMux()
	mux.Handle(redirect.Path, receiver)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go srv.Serve(ln)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	fed, err := flow.NewOIDCFederation(ctx, provider, receiver.Authorize)
	if err != nil {
		return err
	}
	if err := c.start(ctx, fed); err != nil {
		return err
	}
	if err := c.sessions.LoginWithProvider(ctx); err != nil {
		return err
	}
	return c.printState(c.sessions.Current())
}

func (c *CLI) register(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("register", pflag.ContinueOnError)
	var form identity.RegistrationForm
	var role, category string
	fs.StringVar(&form.Email, "email", "", "account email")
	fs.StringVar(&form.Password, "password", "", "account password")
	fs.StringVar(&form.Name, "name", "", "display name")
	fs.StringVar(&form.Phone, "phone", "", "phone number")
	fs.StringVar(&role, "role", string(identity.RolePatient), "user, asha_worker or admin")
	fs.StringVar(&category, "category", "", "care program for patients")
	if err := fs.Parse(args); err != nil {
		return err
	}
	form.Role = identity.Role(role)
	if category != "" {
		cat, ok := identity.ParseCareCategory(category)
		if !ok {
			return fmt.Errorf("unknown care program %q", category)
		}
		form.CareCategory = cat
	}

	if err := c.sessions.Register(ctx, form); err != nil {
		return err
	}
	fmt.Println("Registration successful. Please log in.")
	return nil
}

func (c *CLI) checkEmail(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: portal-cli check-email <email>")
	}
	if c.sessions.CheckEmailAvailability(ctx, args[0]) {
		fmt.Println("available")
	} else {
		fmt.Println("taken")
	}
	return nil
}

func (c *CLI) updateProfile(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("profile", pflag.ContinueOnError)
	name := fs.String("name", "", "display name")
	category := fs.String("category", "", "care program")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var patch identity.ProfilePatch
	if fs.Changed("name") {
		patch.DisplayName = name
	}
	if fs.Changed("category") {
		cat, ok := identity.ParseCareCategory(*category)
		if !ok {
			return fmt.Errorf("unknown care program %q", *category)
		}
		patch.CareCategory = &cat
	}

	p, err := c.sessions.UpdateProfile(ctx, patch)
	if err != nil {
		return err
	}
	return prettyPrint(p)
}

func (c *CLI) onboard(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: portal-cli onboard <maternity|palliative>")
	}
	category, ok := identity.ParseCareCategory(args[0])
	if !ok {
		return fmt.Errorf("unknown care program %q", args[0])
	}
	if !c.gate.IsRequired() {
		fmt.Println("Onboarding is not required for this session.")
	}
	if _, err := c.gate.Satisfy(ctx, category); err != nil {
		return err
	}
	return c.printState(c.sessions.Current())
}

func (c *CLI) logout(ctx context.Context) error {
	if err := c.sessions.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Signed out.")
	return nil
}

// ---- Output ----

func (c *CLI) printState(s session.State) error {
	d := routing.Decide(s)
	return prettyPrint(map[string]any{
		"status":             s.Status.String(),
		"user":               s.Profile,
		"route":              d.String(),
		"path":               routing.Path(d),
		"onboardingRequired": c.gate.RequiredFor(s),
	})
}

func prettyPrint(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
