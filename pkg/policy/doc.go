// Package policy implements the optional Open Policy Agent gate
// consulted before an extern provider's Install step runs. It narrows
// a general resource/plan/drift policy evaluator down to one
// question: install() or don't.
//
// # Usage
//
//	logger := zerolog.New(os.Stdout)
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	tc := extern.Toolchain{OS: "windows", Arch: "x64"}
//	allowed, reason, err := eng.EvaluateInstall(ctx, "libpng.prebuilt", extern.Args{"version": "1.6"}, tc)
//
// # Built-in Policies
//
//  1. provider-name - requires a non-empty, lowercase, dotted repo.extern identifier
//  2. toolchain-required - requires a non-empty toolchain OS and architecture
//  3. operation-scope - warns if the gate is invoked for a non-install operation
//
// # Custom Policies
//
// Additional `.rego` files dropped in a workspace's `data/policy/`
// directory are loaded with Engine.LoadPoliciesFromPaths and join the
// built-ins; each must define a `deny` rule set under its own package.
//
// # Hot Reload
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return eng.LoadPolicies(policies)
//	})
package policy
