package config

import "time"

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the CUE path to the error (e.g., "provider.args.version").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

// ConfigSource represents a source of CUE configuration.
type ConfigSource struct {
	// Type is the source type (file, directory, inline).
	Type string `json:"type" validate:"required,oneof=file directory inline"`

	// Path is the file or directory path.
	Path string `json:"path,omitempty"`

	// Content is the inline CUE content.
	Content string `json:"content,omitempty"`
}

// MergeOptions controls how multiple configurations are merged.
type MergeOptions struct {
	// AllowConflicts allows conflicting values (last wins).
	AllowConflicts bool `json:"allow_conflicts"`

	// IncludePaths filters which paths to merge.
	IncludePaths []string `json:"include_paths,omitempty"`

	// ExcludePaths filters which paths to exclude from merge.
	ExcludePaths []string `json:"exclude_paths,omitempty"`
}

// EvaluateOptions controls CUE evaluation behavior.
type EvaluateOptions struct {
	// Package is the CUE package to evaluate.
	Package string `json:"package,omitempty"`

	// Tags are CUE build tags (e.g., "os=linux").
	Tags []string `json:"tags,omitempty"`

	// Concrete requires all values to be concrete (no unresolved references).
	Concrete bool `json:"concrete"`

	// ValidateSchemas enables schema validation during evaluation.
	ValidateSchemas bool `json:"validate_schemas"`

	// AllowStarlark enables Starlark function execution.
	AllowStarlark bool `json:"allow_starlark"`

	// StarlarkTimeout is the timeout for Starlark execution.
	StarlarkTimeout time.Duration `json:"starlark_timeout,omitempty"`
}

// StarlarkContext provides context for Starlark execution, e.g. a
// module's build.ply script evaluating a config-selection helper.
type StarlarkContext struct {
	// Input is the input data passed to Starlark.
	Input map[string]interface{} `json:"input,omitempty"`

	// Timeout is the execution timeout.
	Timeout time.Duration `json:"timeout"`

	// AllowedModules lists allowed Starlark modules.
	AllowedModules []string `json:"allowed_modules,omitempty"`

	// Builtins are additional built-in functions to provide.
	Builtins map[string]interface{} `json:"builtins,omitempty"`
}

// StarlarkResult represents the result of Starlark execution.
type StarlarkResult struct {
	// Output is the output data from Starlark.
	Output map[string]interface{} `json:"output,omitempty"`

	// ExecutionTime is how long the script took to execute.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error is any error that occurred.
	Error string `json:"error,omitempty"`
}
