package main

import (
	"testing"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/rolegate"
)

func TestParseFlags(t *testing.T) {
	if _, err := parseFlags(nil); err == nil {
		t.Error("expected error without --email")
	}

	opts, err := parseFlags([]string{"--email", "ops@example.com", "--scrum-master"})
	if err != nil {
		t.Fatal(err)
	}
	if opts.role != rolegate.RoleAdmin || !opts.scrumMaster {
		t.Errorf("opts = %+v", opts)
	}
}

func TestParseFlags_RejectsUnknownRole(t *testing.T) {
	if _, err := parseFlags([]string{"--email", "ops@example.com", "--role", "bogus"}); err == nil {
		t.Fatal("expected an error for an unknown role")
	}
}

func TestGrantFor(t *testing.T) {
	g := grantFor(&options{email: "a", role: rolegate.RoleAdmin})
	if g.Role != rolegate.RoleAdmin || !g.IsActive || g.IsScrumMaster != nil {
		t.Errorf("plain promotion = %+v", g)
	}

	g = grantFor(&options{email: "a", role: rolegate.RoleClient, deactivate: true, scrumMaster: true})
	if g.Role != rolegate.RoleClient || g.IsActive || g.IsScrumMaster == nil || !*g.IsScrumMaster {
		t.Errorf("grant = %+v", g)
	}
}
