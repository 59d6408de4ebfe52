package config

import "testing"

func TestSchemaRegistryRegisterAndGet(t *testing.T) {
	sr := NewSchemaRegistry()
	if err := sr.RegisterSchema("custom", `#Custom: {name: string}`); err != nil {
		t.Fatalf("RegisterSchema: %v", err)
	}
	if _, ok := sr.GetSchema("custom"); !ok {
		t.Fatal("expected custom schema to be registered")
	}
}

func TestSchemaRegistryRegisterInvalidSchema(t *testing.T) {
	sr := NewSchemaRegistry()
	if err := sr.RegisterSchema("broken", `#Broken: {`); err == nil {
		t.Fatal("expected error compiling malformed schema")
	}
}

func TestSchemaRegistryBuiltinsPreloaded(t *testing.T) {
	sr := NewSchemaRegistry()
	names := sr.ListSchemas()
	want := map[string]bool{"externArgs": true, "toolchain": true, "moduleConfig": true}
	for _, n := range names {
		delete(want, n)
	}
	if len(want) != 0 {
		t.Fatalf("missing builtin schemas: %v", want)
	}
}

func TestValidateExternArgs(t *testing.T) {
	sr := NewSchemaRegistry()
	if err := sr.ValidateExternArgs(map[string]string{"version": "1.6"}); err != nil {
		t.Fatalf("ValidateExternArgs: %v", err)
	}
}

func TestValidateToolchain(t *testing.T) {
	sr := NewSchemaRegistry()
	tc := map[string]interface{}{"os": "linux", "arch": "x64"}
	if err := sr.ValidateToolchain(tc); err != nil {
		t.Fatalf("ValidateToolchain: %v", err)
	}
}

func TestValidateToolchainMissingRequiredField(t *testing.T) {
	sr := NewSchemaRegistry()
	tc := map[string]interface{}{"os": "linux"}
	if err := sr.ValidateToolchain(tc); err == nil {
		t.Fatal("expected error for missing arch field")
	}
}

func TestValidateModuleConfigDefaultsToBuiltin(t *testing.T) {
	sr := NewSchemaRegistry()
	if err := sr.ValidateModuleConfig("", map[string]interface{}{"define": "FOO=1"}); err != nil {
		t.Fatalf("ValidateModuleConfig: %v", err)
	}
}

func TestValidateAgainstSchemaUnknownSchema(t *testing.T) {
	sr := NewSchemaRegistry()
	if err := sr.ValidateAgainstSchema("does-not-exist", map[string]string{}); err == nil {
		t.Fatal("expected error for unknown schema")
	}
}
