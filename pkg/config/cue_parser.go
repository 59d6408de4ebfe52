// Package config implements optional CUE schema validation and
// Starlark scripting used as a trust boundary around data the build
// core reads from outside its own reflected format: a provider's
// folder args, a module's generic config block, and a toolchain
// descriptor. None of this is required to instantiate a graph —
// modules and extern args work without it — but when a schema is
// registered, nothing downstream sees the data until it unifies
// cleanly.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
)

// CUEParser loads CUE documents from files, directories, or inline
// text and validates them, either structurally (CUE's own unification)
// or against a named SchemaRegistry entry.
type CUEParser struct {
	ctx      *cue.Context
	registry *SchemaRegistry
}

// NewCUEParser creates a CUE parser backed by a fresh SchemaRegistry
// pre-loaded with the built-in extern/module/toolchain schemas.
func NewCUEParser() *CUEParser {
	return &CUEParser{ctx: cuecontext.New(), registry: NewSchemaRegistry()}
}

// SchemaRegistry returns the parser's schema registry so callers can
// register additional schemas before validating.
func (cp *CUEParser) SchemaRegistry() *SchemaRegistry { return cp.registry }

// ParseResult is what Parse/ParseInline return: the unified document
// plus any errors encountered loading or validating it.
type ParseResult struct {
	Value       cue.Value
	SourceFiles []string
	ParsedAt    time.Time
	Errors      []ValidationError
}

// OK reports whether parsing produced no errors.
func (pr *ParseResult) OK() bool { return len(pr.Errors) == 0 }

// Parse loads and unifies CUE documents from the given file or
// directory sources.
func (cp *CUEParser) Parse(sources []string) (*ParseResult, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	result := &ParseResult{ParsedAt: time.Now()}
	var unified cue.Value

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("stat source %s: %w", source, err)
		}

		var val cue.Value
		var files []string
		var errs []ValidationError
		if info.IsDir() {
			val, files, errs = cp.loadDirectory(source)
		} else {
			val, errs = cp.loadFile(source)
			files = []string{source}
		}
		result.Errors = append(result.Errors, errs...)
		result.SourceFiles = append(result.SourceFiles, files...)
		if val.Exists() {
			if unified.Exists() {
				unified = unified.Unify(val)
			} else {
				unified = val
			}
		}
	}

	if len(result.Errors) > 0 {
		return result, nil
	}
	if err := unified.Err(); err != nil {
		result.Errors = append(result.Errors, cp.convertCUEErrors(err)...)
		return result, nil
	}

	result.Value = unified
	return result, nil
}

// ParseInline parses inline CUE content, e.g. a workspace's
// `defaultCMakeOptions` block authored as CUE instead of Pylon text.
func (cp *CUEParser) ParseInline(content string) *ParseResult {
	result := &ParseResult{SourceFiles: []string{"inline"}, ParsedAt: time.Now()}
	val := cp.ctx.CompileString(content)
	if err := val.Err(); err != nil {
		result.Errors = cp.convertCUEErrors(err)
		return result
	}
	result.Value = val
	return result
}

func (cp *CUEParser) loadDirectory(dir string) (cue.Value, []string, []ValidationError) {
	instances := load.Instances([]string{dir}, nil)
	if len(instances) == 0 {
		return cue.Value{}, nil, []ValidationError{{File: dir, Message: "no CUE files found", Severity: "error"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, cp.convertCUEErrors(inst.Err)
	}
	val := cp.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, cp.convertCUEErrors(err)
	}
	var files []string
	for _, f := range inst.Files {
		if f.Filename != "" {
			files = append(files, f.Filename)
		}
	}
	return val, files, nil
}

func (cp *CUEParser) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{File: path, Message: fmt.Sprintf("read file: %v", err), Severity: "error"}}
	}
	val := cp.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, cp.convertCUEErrors(err)
	}
	return val, nil
}

func (cp *CUEParser) convertCUEErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range errors.Errors(err) {
		var file string
		var line, column int
		if pos := errors.Positions(e); len(pos) > 0 {
			file, line, column = pos[0].Filename(), pos[0].Line(), pos[0].Column()
		}
		out = append(out, ValidationError{File: file, Line: line, Column: column, Message: errors.Details(e, nil), Severity: "error"})
	}
	return out
}

// ValidateWithSchema validates arbitrary Go data (typically decoded
// from Pylon, see pkg/pylon.Bridge) against a named schema.
func (cp *CUEParser) ValidateWithSchema(data interface{}, schemaName string) error {
	return cp.registry.ValidateAgainstSchema(schemaName, data)
}

// ExtractValue decodes the value at path within a parsed CUE document.
func (cp *CUEParser) ExtractValue(val cue.Value, path string) (interface{}, error) {
	v := val.LookupPath(cue.ParsePath(path))
	if !v.Exists() {
		return nil, fmt.Errorf("path %s not found", path)
	}
	var result interface{}
	if err := v.Decode(&result); err != nil {
		return nil, fmt.Errorf("decode value at %s: %w", path, err)
	}
	return result, nil
}

// ExportJSON renders a CUE value as indented JSON, e.g. to hand a
// resolved toolchain descriptor to an extern Provider.
func (cp *CUEParser) ExportJSON(val cue.Value) ([]byte, error) {
	var data interface{}
	if err := val.Decode(&data); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return json.MarshalIndent(data, "", "  ")
}

// FindCUEFiles walks dir and returns every `.cue` file found, used to
// feed an explicit file list to Parse instead of the package loader.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".cue") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return files, nil
}
