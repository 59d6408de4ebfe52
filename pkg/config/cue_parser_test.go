package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCUEParserParseInlineValid(t *testing.T) {
	parser := NewCUEParser()
	result := parser.ParseInline(`
os:   "linux"
arch: "x64"
`)
	if !result.OK() {
		t.Fatalf("expected no errors, got %+v", result.Errors)
	}
	val, err := parser.ExtractValue(result.Value, "os")
	if err != nil {
		t.Fatalf("ExtractValue: %v", err)
	}
	if val != "linux" {
		t.Fatalf("got os=%v, want linux", val)
	}
}

func TestCUEParserParseInlineSyntaxError(t *testing.T) {
	parser := NewCUEParser()
	result := parser.ParseInline(`os: "linux" arch`)
	if result.OK() {
		t.Fatal("expected errors for malformed CUE")
	}
}

func TestCUEParserParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toolchain.cue")
	if err := os.WriteFile(path, []byte(`
os:   "windows"
arch: "x64"
generator: "Visual Studio 17 2022"
`), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	parser := NewCUEParser()
	result, err := parser.Parse([]string{path})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !result.OK() {
		t.Fatalf("expected no errors, got %+v", result.Errors)
	}
	if len(result.SourceFiles) != 1 || result.SourceFiles[0] != path {
		t.Fatalf("got source files %v, want [%s]", result.SourceFiles, path)
	}
}

func TestCUEParserParseMissingSource(t *testing.T) {
	parser := NewCUEParser()
	if _, err := parser.Parse([]string{filepath.Join(t.TempDir(), "missing.cue")}); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestCUEParserParseNoSources(t *testing.T) {
	parser := NewCUEParser()
	if _, err := parser.Parse(nil); err == nil {
		t.Fatal("expected error for empty sources")
	}
}

func TestCUEParserValidateWithSchema(t *testing.T) {
	parser := NewCUEParser()
	args := map[string]string{"version": "1.6", "shared": "false"}
	if err := parser.ValidateWithSchema(args, "externArgs"); err != nil {
		t.Fatalf("ValidateWithSchema: %v", err)
	}
}

func TestCUEParserExportJSON(t *testing.T) {
	parser := NewCUEParser()
	result := parser.ParseInline(`name: "libpng"`)
	if !result.OK() {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	data, err := parser.ExportJSON(result.Value)
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty JSON")
	}
}

func TestFindCUEFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.cue", "b.cue", "skip.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x: 1\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	files, err := FindCUEFiles(dir)
	if err != nil {
		t.Fatalf("FindCUEFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
}
