// Package config implements the CUE-schema validation and Starlark
// evaluation used as a trust boundary around data the build core reads
// from outside its own reflected format: an extern provider's folder
// args, a module's generic config block, and a toolchain descriptor.
//
// # Components
//
// CUEParser parses CUE documents from files, directories, or inline
// text and unifies them; SchemaRegistry holds named CUE schemas
// (built-in externArgs/toolchain/moduleConfig plus any a Plyfile
// registers) that ValidateWithSchema unifies data against.
//
// StarlarkEvaluator runs a sandboxed Starlark script with a timeout
// and no filesystem or network access, used where a module or
// provider needs procedural config generation rather than a static
// CUE value.
//
// # Usage
//
//	parser := config.NewCUEParser()
//	result, err := parser.Parse([]string{"toolchain.cue"})
//	if err != nil || !result.OK() {
//	    // report result.Errors
//	}
//	if err := parser.ValidateWithSchema(args, "externArgs"); err != nil {
//	    // reject the provider's folder args
//	}
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package config
