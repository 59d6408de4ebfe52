// Package policy implements the optional install gate consulted
// before an extern Provider's Install step runs. It narrows the
// general resource/plan policy evaluator this repository's
// orchestration-engine ancestor used down to a single question: is
// this (provider, extern, toolchain) allowed to install?
package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/rs/zerolog"

	"github.com/plywood-build/plywood/pkg/extern"
)

// Engine evaluates enabled Rego policies against extern install
// decisions and implements pkg/extern.InstallGate.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	store    storage.Store
	logger   zerolog.Logger
}

type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	compiled time.Time
}

// NewEngine constructs an Engine pre-loaded with the built-in extern
// install policies.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		store:    inmem.New(),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}
	for _, p := range BuiltinPolicies() {
		p := p
		if err := e.compileAndStore(&p); err != nil {
			return nil, fmt.Errorf("compile built-in policy %s: %w", p.Name, err)
		}
	}
	return e, nil
}

// LoadPolicies compiles and registers additional policies on top of
// the built-ins, e.g. those a Loader reads from a workspace's
// `data/policy/*.rego` directory.
func (e *Engine) LoadPolicies(policies []Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range policies {
		if err := e.compileAndStore(&policies[i]); err != nil {
			return fmt.Errorf("compile policy %s: %w", policies[i].Name, err)
		}
	}
	return nil
}

// LoadPoliciesFromPaths loads and compiles `.rego` files found under
// paths (files or directories) on top of the built-ins.
func (e *Engine) LoadPoliciesFromPaths(paths []string) error {
	policies, err := NewLoader(e.logger).LoadFromPaths(paths)
	if err != nil {
		return err
	}
	return e.LoadPolicies(policies)
}

// EvaluateInstall implements pkg/extern.InstallGate: it runs every
// enabled policy's `deny` rule set against the proposed install and
// reports whether it's allowed plus a human-readable reason.
func (e *Engine) EvaluateInstall(ctx context.Context, providerName string, args extern.Args, tc extern.Toolchain) (bool, string, error) {
	result, err := e.Evaluate(ctx, Input{
		ProviderName: providerName,
		FolderArgs:   map[string]string(args),
		Toolchain:    ToolchainInput{OS: tc.OS, Arch: tc.Arch},
		Operation:    "install",
		Timestamp:    time.Now(),
	})
	if err != nil {
		return false, "", err
	}
	if result.Allowed {
		return true, "", nil
	}
	reasons := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		reasons = append(reasons, fmt.Sprintf("%s: %s", v.Policy, v.Message))
	}
	return false, strings.Join(reasons, "; "), nil
}

// Evaluate runs every enabled policy against input and aggregates
// their deny-rule output into one Result.
func (e *Engine) Evaluate(ctx context.Context, input Input) (*Result, error) {
	start := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{EvaluatedAt: start}
	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, cp.policy.Name)

		violations, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			e.logger.Error().Err(err).Str("policy", cp.policy.Name).Msg("policy evaluation failed")
			result.Warnings = append(result.Warnings, fmt.Sprintf("policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}
		result.Violations = append(result.Violations, violations...)
	}

	result.Allowed = true
	for _, v := range result.Violations {
		if v.Severity.blocking() {
			result.Allowed = false
			break
		}
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input Input) ([]Violation, error) {
	query := fmt.Sprintf("data.%s.deny", packageName(cp.policy.Rego))
	r := rego.New(
		rego.Module(cp.policy.Name, cp.policy.Rego),
		rego.Store(e.store),
		rego.Query(query),
		rego.Input(input),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, res := range results {
		for _, expr := range res.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, toViolation(cp.policy, d, input))
			}
		}
	}
	return violations, nil
}

func packageName(regoSrc string) string {
	for _, line := range strings.Split(regoSrc, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			if fields := strings.Fields(trimmed); len(fields) >= 2 {
				return fields[1]
			}
		}
	}
	return "plywood.policies"
}

func toViolation(policy *Policy, raw interface{}, input Input) Violation {
	v := Violation{Policy: policy.Name, Severity: policy.Severity, Provider: input.ProviderName}
	switch val := raw.(type) {
	case string:
		v.Message = val
	case map[string]interface{}:
		if msg, ok := val["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := val["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
		if rem, ok := val["remediation"].(string); ok {
			v.Remediation = rem
		}
	default:
		v.Message = fmt.Sprintf("%v", raw)
	}
	return v
}

func (e *Engine) compileAndStore(policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("parse policy: %w", err)
	}
	e.policies[policy.Name] = &compiledPolicy{policy: policy, module: module, compiled: time.Now()}
	return nil
}

// ListPolicies returns every registered policy, built-in and loaded.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		out = append(out, *cp.policy)
	}
	return out
}

// SetEnabled toggles a policy by name; used by `plytool extern
// policy disable <name>` to let an operator silence a noisy rule.
func (e *Engine) SetEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp, ok := e.policies[name]
	if !ok {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	return nil
}
