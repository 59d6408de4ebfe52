package policy

import "time"

// BuiltinPolicies returns the policies every Engine is preloaded
// with, narrowed to the one decision this package exists for: should
// an extern provider's Install step be allowed to run.
func BuiltinPolicies() []Policy {
	return []Policy{
		providerNamePolicy(),
		toolchainRequiredPolicy(),
		operationScopePolicy(),
	}
}

// providerNamePolicy requires a fully-qualified `repo.extern` provider
// name, mirroring the `findExistingExternFolder` naming contract.
func providerNamePolicy() Policy {
	return Policy{
		Name:        "provider-name",
		Description: "Provider names must be a non-empty, lowercase, dotted repo.extern identifier",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming"},
		UpdatedAt:   time.Now(),
		Rego: `package plywood.policies.provider_name

import rego.v1

deny contains violation if {
	input.operation == "install"
	not input.provider_name
	violation := {
		"message": "install requires a provider_name",
		"severity": "error",
	}
}

deny contains violation if {
	input.operation == "install"
	name := input.provider_name
	lower(name) != name
	violation := {
		"message": sprintf("provider name '%s' must be lowercase", [name]),
		"severity": "error",
	}
}

deny contains violation if {
	input.operation == "install"
	name := input.provider_name
	not contains(name, ".")
	violation := {
		"message": sprintf("provider name '%s' must be a dotted repo.extern identifier", [name]),
		"severity": "error",
	}
}`,
	}
}

// toolchainRequiredPolicy denies installs that don't carry a toolchain
// descriptor — a provider's Install must be toolchain-conditioned.
func toolchainRequiredPolicy() Policy {
	return Policy{
		Name:        "toolchain-required",
		Description: "Install decisions must carry a non-empty toolchain OS and architecture",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"toolchain"},
		UpdatedAt:   time.Now(),
		Rego: `package plywood.policies.toolchain_required

import rego.v1

deny contains violation if {
	input.operation == "install"
	input.toolchain.os == ""
	violation := {
		"message": "install requires a non-empty toolchain OS",
		"severity": "error",
	}
}

deny contains violation if {
	input.operation == "install"
	input.toolchain.arch == ""
	violation := {
		"message": "install requires a non-empty toolchain architecture",
		"severity": "error",
	}
}`,
	}
}

// operationScopePolicy is a warning-level sanity check: EvaluateInstall
// should only ever be called with operation == "install"; anything
// else indicates a caller bug rather than a policy violation proper,
// so it's a warning, not a denial.
func operationScopePolicy() Policy {
	return Policy{
		Name:        "operation-scope",
		Description: "Warns if the install gate is invoked for a non-install operation",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"sanity"},
		UpdatedAt:   time.Now(),
		Rego: `package plywood.policies.operation_scope

import rego.v1

deny contains violation if {
	input.operation != "install"
	violation := {
		"message": sprintf("install gate invoked for unexpected operation '%s'", [input.operation]),
		"severity": "warning",
	}
}`,
	}
}
