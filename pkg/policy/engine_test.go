package policy

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/plywood-build/plywood/pkg/extern"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng
}

func TestNewEngineLoadsBuiltins(t *testing.T) {
	eng := newTestEngine(t)
	policies := eng.ListPolicies()
	if len(policies) != len(BuiltinPolicies()) {
		t.Fatalf("got %d policies, want %d", len(policies), len(BuiltinPolicies()))
	}
}

func TestEvaluateInstallAllowsWellFormedRequest(t *testing.T) {
	eng := newTestEngine(t)
	tc := extern.Toolchain{OS: "windows", Arch: "x64"}
	allowed, reason, err := eng.EvaluateInstall(context.Background(), "libpng.prebuilt", extern.Args{"version": "1.6"}, tc)
	if err != nil {
		t.Fatalf("EvaluateInstall: %v", err)
	}
	if !allowed {
		t.Fatalf("expected allow for a well-formed install request, denied: %s", reason)
	}
}

func TestEvaluateInstallDeniesMissingToolchain(t *testing.T) {
	eng := newTestEngine(t)
	allowed, reason, err := eng.EvaluateInstall(context.Background(), "libpng.prebuilt", nil, extern.Toolchain{})
	if err != nil {
		t.Fatalf("EvaluateInstall: %v", err)
	}
	if allowed {
		t.Fatal("expected denial for an empty toolchain descriptor")
	}
	if reason == "" {
		t.Fatal("denial must carry a reason")
	}
}

func TestEvaluateDeniesUnqualifiedProviderName(t *testing.T) {
	eng := newTestEngine(t)
	result, err := eng.Evaluate(context.Background(), Input{
		ProviderName: "PNG",
		Operation:    "install",
		Toolchain:    ToolchainInput{OS: "linux", Arch: "x64"},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected denial for uppercase, undotted provider name")
	}
	if len(result.Violations) == 0 {
		t.Fatal("expected at least one violation")
	}
}

func TestEvaluateAllowsCompleteInstallRequest(t *testing.T) {
	eng := newTestEngine(t)
	result, err := eng.Evaluate(context.Background(), Input{
		ProviderName: "libpng.prebuilt",
		ExternName:   "libpng",
		Operation:    "install",
		Toolchain:    ToolchainInput{OS: "windows", Arch: "x64"},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("expected allow, got violations: %+v", result.Violations)
	}
}

func TestSetEnabledTogglesPolicy(t *testing.T) {
	eng := newTestEngine(t)
	if err := eng.SetEnabled("toolchain-required", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	result, err := eng.Evaluate(context.Background(), Input{
		ProviderName: "libpng.prebuilt",
		Operation:    "install",
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	for _, v := range result.Violations {
		if v.Policy == "toolchain-required" {
			t.Fatal("disabled policy still produced a violation")
		}
	}
}

func TestSetEnabledUnknownPolicy(t *testing.T) {
	eng := newTestEngine(t)
	if err := eng.SetEnabled("does-not-exist", false); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
