package policy

import "time"

// Severity classifies how strongly a policy feels about a violation.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// blocking reports whether a violation at this severity should flip
// Result.Allowed to false.
func (s Severity) blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy is a single named Rego rule evaluated against an extern
// install decision.
type Policy struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Rego        string    `json:"rego"`
	Severity    Severity  `json:"severity"`
	Enabled     bool      `json:"enabled"`
	Tags        []string  `json:"tags,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Violation is one denial produced by a policy's `deny` rule set.
type Violation struct {
	Policy      string   `json:"policy"`
	Provider    string   `json:"provider,omitempty"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Remediation string   `json:"remediation,omitempty"`
}

// Result is the aggregate outcome of evaluating every enabled policy
// against one extern install decision.
type Result struct {
	Allowed           bool          `json:"allowed"`
	Violations        []Violation   `json:"violations,omitempty"`
	Warnings          []string      `json:"warnings,omitempty"`
	EvaluatedPolicies []string      `json:"evaluated_policies"`
	EvaluatedAt       time.Time     `json:"evaluated_at"`
	Duration          time.Duration `json:"duration"`
}

// Input is the Rego evaluation input for an extern install decision —
// the struct the Status/Install state machine hands to the install
// gate before it calls a provider's Install.
type Input struct {
	ProviderName string            `json:"provider_name"`
	ExternName   string            `json:"extern_name"`
	FolderArgs   map[string]string `json:"folder_args,omitempty"`
	Toolchain    ToolchainInput    `json:"toolchain"`
	Operation    string            `json:"operation"`
	Timestamp    time.Time         `json:"timestamp"`
}

// ToolchainInput is the Rego input form of extern.Toolchain, carrying
// the lowercase JSON keys the policies match on.
type ToolchainInput struct {
	OS   string `json:"os"`
	Arch string `json:"arch"`
}
