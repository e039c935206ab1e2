package misc

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInstallConfigTemplate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "config.example.yaml")
	if err := os.WriteFile(src, []byte("port: 8080\n"), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	dst := filepath.Join(dir, "nested", "config.yaml")

	written, err := InstallConfigTemplate(src, dst)
	if err != nil || !written {
		t.Fatalf("first install = (%v, %v), want (true, nil)", written, err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "port: 8080\n" {
		t.Fatalf("config contents = %q, %v", data, err)
	}

	if err = os.WriteFile(dst, []byte("port: 9090\n"), 0o600); err != nil {
		t.Fatalf("edit config: %v", err)
	}
	written, err = InstallConfigTemplate(src, dst)
	if err != nil || written {
		t.Fatalf("second install = (%v, %v), want (false, nil)", written, err)
	}
	if data, _ = os.ReadFile(dst); string(data) != "port: 9090\n" {
		t.Fatalf("existing config was overwritten: %q", data)
	}
}

func TestInstallConfigTemplateMissingSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if _, err := InstallConfigTemplate(filepath.Join(dir, "missing.yaml"), filepath.Join(dir, "config.yaml")); err == nil {
		t.Fatal("expected error for missing template")
	}
}
