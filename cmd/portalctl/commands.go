package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/pflag"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/notify"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/rolegate"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/session"
)

var loginCommand = command{
	summary: "sign in with email and password",
	flags: func(f *pflag.FlagSet) {
		f.String("email", "", "account email")
		f.String("password", "", "account password (prompted when empty)")
	},
	run: func(ctx context.Context, a *app, f *pflag.FlagSet, _ []string) error {
		if err := a.ready(ctx); err != nil {
			return err
		}
		email, _ := f.GetString("email")
		password, _ := f.GetString("password")

		email, err := a.prompt(email, "Email")
		if err != nil {
			return err
		}
		password, err = a.prompt(password, "Password")
		if err != nil {
			return err
		}

		res := a.owner.SignIn(ctx, email, password)
		return a.report(res)
	},
}

var signupCommand = command{
	summary: "create an account",
	flags: func(f *pflag.FlagSet) {
		f.String("email", "", "account email")
		f.String("password", "", "account password (prompted when empty)")
		f.String("name", "", "full name")
	},
	run: func(ctx context.Context, a *app, f *pflag.FlagSet, _ []string) error {
		if err := a.ready(ctx); err != nil {
			return err
		}
		email, _ := f.GetString("email")
		password, _ := f.GetString("password")
		name, _ := f.GetString("name")

		email, err := a.prompt(email, "Email")
		if err != nil {
			return err
		}
		password, err = a.prompt(password, "Password")
		if err != nil {
			return err
		}

		res := a.owner.SignUp(ctx, session.SignUpParams{Email: email, Password: password, FullName: name})
		return a.report(res)
	},
}

func (a *app) report(res session.SignInResult) error {
	if !res.Success {
		return errors.New(res.Error)
	}
	a.printf("ok\n")
	if res.RedirectTarget != "" {
		a.printf("redirect: %s\n", res.RedirectTarget)
	}
	return nil
}

var logoutCommand = command{
	summary: "sign out and forget the stored session",
	run: func(ctx context.Context, a *app, _ *pflag.FlagSet, _ []string) error {
		if err := a.ready(ctx); err != nil {
			return err
		}
		if err := a.owner.SignOut(ctx); err != nil {
			a.log.Warn("server sign-out failed, local session cleared", "error", err)
		}
		a.printf("signed out\nredirect: %s\n", rolegate.LoginPath)
		return nil
	},
}

var whoamiCommand = command{
	summary: "show the signed-in identity and profile",
	run: func(ctx context.Context, a *app, _ *pflag.FlagSet, _ []string) error {
		if err := a.ready(ctx); err != nil {
			return err
		}
		st := a.owner.Snapshot()
		if st.Session == nil {
			a.printf("not signed in\n")
			return nil
		}
		a.printf("user:  %s <%s>\n", st.Session.User.ID, st.Session.User.Email)
		a.printf("expires: %s\n", st.Session.ExpiresAt.Format(time.RFC3339))
		if st.Profile == nil {
			a.printf("profile: unavailable\n")
			return nil
		}
		a.printf("name:  %s\nrole:  %s\nactive: %t\nscrum master: %t\n",
			st.Profile.FullName, st.Profile.Role, st.Profile.IsActive, st.Profile.IsScrumMaster)
		a.printf("home:  %s\n", rolegate.HomeFor(st.Profile.Role))
		return nil
	},
}

var checkCommand = command{
	summary: "ask the role gate whether a view may be shown",
	flags: func(f *pflag.FlagSet) {
		f.String("path", "", "view path, for example /admin")
		f.String("views", "", "views YAML file (default: built-in views)")
	},
	run: func(ctx context.Context, a *app, f *pflag.FlagSet, _ []string) error {
		path, _ := f.GetString("path")
		if path == "" {
			return errors.New("--path is required")
		}
		registry, err := loadRegistry(f)
		if err != nil {
			return err
		}

		view, ok := registry.Match(path)
		if !ok {
			a.printf("path %s is not protected\ndecision: allow\n", path)
			return nil
		}

		if err := a.ready(ctx); err != nil {
			return err
		}
		d := a.owner.Decide(view.Requirement)
		a.printf("view: %s\ndecision: %s\n", view.Name, d)
		if r := rolegate.Redirect(d); r != "" {
			a.printf("redirect: %s\n", r)
		}
		return nil
	},
}

func loadRegistry(f *pflag.FlagSet) (*rolegate.Registry, error) {
	file, _ := f.GetString("views")
	if file == "" {
		return rolegate.NewRegistry(rolegate.DefaultViews()...), nil
	}
	return rolegate.LoadFromFile(file)
}

var resetPasswordCommand = command{
	summary: "email a password recovery link",
	flags: func(f *pflag.FlagSet) {
		f.String("email", "", "account email")
		f.String("redirect-to", "", "page the recovery link opens")
	},
	run: func(ctx context.Context, a *app, f *pflag.FlagSet, _ []string) error {
		email, _ := f.GetString("email")
		redirectTo, _ := f.GetString("redirect-to")
		email, err := a.prompt(email, "Email")
		if err != nil {
			return err
		}
		if err := a.owner.ResetPassword(ctx, email, redirectTo); err != nil {
			return err
		}
		a.printf("if the address is registered, a recovery link is on its way\n")
		return nil
	},
}

var updatePasswordCommand = command{
	summary: "change the signed-in account's password",
	flags: func(f *pflag.FlagSet) {
		f.String("password", "", "new password (prompted when empty)")
	},
	run: func(ctx context.Context, a *app, f *pflag.FlagSet, _ []string) error {
		if err := a.ready(ctx); err != nil {
			return err
		}
		password, _ := f.GetString("password")
		password, err := a.prompt(password, "New password")
		if err != nil {
			return err
		}
		if err := a.owner.UpdatePassword(ctx, password); err != nil {
			return err
		}
		a.printf("password updated\n")
		return nil
	},
}

var watchNotificationsCommand = command{
	summary: "print the unread notification count as it changes",
	flags: func(f *pflag.FlagSet) {
		f.Duration("interval", 0, "poll interval (default NOTIFY_POLL_INTERVAL)")
		f.String("metrics-addr", "", "serve Prometheus metrics on this address")
	},
	run: func(ctx context.Context, a *app, f *pflag.FlagSet, _ []string) error {
		if err := a.ready(ctx); err != nil {
			return err
		}
		if a.owner.Snapshot().Session == nil {
			return errors.New("not signed in")
		}

		if addr, _ := f.GetString("metrics-addr"); addr != "" {
			stop, err := a.serveMetrics(addr)
			if err != nil {
				return err
			}
			defer stop()
		}

		// Long-running watch; keep the token alive.
		go a.identity.StartAutoRefresh(ctx)

		interval, _ := f.GetDuration("interval")
		if interval <= 0 {
			interval = a.cfg.NotifyPollInterval
		}

		p := &notify.Poller{
			Fetch:    a.profiles.UnreadCount,
			Interval: interval,
			Logger:   a.log,
			OnChange: func(n int64) { a.printf("unread: %d\n", n) },
		}
		err := p.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func (a *app) serveMetrics(addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.registry))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go srv.Serve(ln)
	a.log.Info("metrics listening", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}
