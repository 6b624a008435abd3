// provision promotes an existing account to an active admin directly in the
// database. It is the operator path for recovering admin access.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/config"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/database"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/logging"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/rolegate"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/services"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	email       string
	role        rolegate.Role
	scrumMaster bool
	deactivate  bool
}

// parseFlags validates everything up front so a bad flag never leaves a
// half-provisioned account behind.
func parseFlags(args []string) (*options, error) {
	var (
		opts options
		role string
	)
	flags := pflag.NewFlagSet("provision", pflag.ContinueOnError)
	flags.StringVar(&opts.email, "email", "", "email of the account to provision (required)")
	flags.StringVar(&role, "role", "admin", "role to assign: admin, client or user")
	flags.BoolVar(&opts.scrumMaster, "scrum-master", false, "also grant the scrum master flag")
	flags.BoolVar(&opts.deactivate, "deactivate", false, "deactivate the profile instead")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if opts.email == "" {
		return nil, errors.New("--email is required")
	}
	r, err := rolegate.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("--role: %w", err)
	}
	opts.role = r
	return &opts, nil
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logging.Setup()
	cfg := config.Load()
	if err := database.Connect(cfg); err != nil {
		return err
	}
	if err := database.Migrate(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	profiles := services.NewProfileService(database.DB, nil)
	p, err := profiles.Provision(opts.email, grantFor(opts))
	if err != nil {
		return err
	}

	slog.Info("profile provisioned",
		"user_id", p.ID.String(),
		"role", p.Role,
		"is_active", p.IsActive,
		"is_scrum_master", p.IsScrumMaster,
		"action", "provision",
	)
	fmt.Printf("%s %s role=%s active=%t scrum_master=%t\n", p.ID, p.Email, p.Role, p.IsActive, p.IsScrumMaster)
	return nil
}

// grantFor maps the flags onto a single profile grant. The scrum master
// flag is only touched when asked for.
func grantFor(opts *options) services.ProfileGrant {
	g := services.ProfileGrant{Role: opts.role, IsActive: !opts.deactivate}
	if opts.scrumMaster {
		g.IsScrumMaster = &opts.scrumMaster
	}
	return g
}
