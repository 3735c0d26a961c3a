package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("PAGENOTE_TEST_NAME", "from-env")
	path := writeFile(t, "name: ${PAGENOTE_TEST_NAME}\n")

	cfg := sample{Port: 8080}
	if err := Load(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "from-env" || cfg.Port != 8080 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_Validates(t *testing.T) {
	path := writeFile(t, "port: 0\n")
	cfg := sample{Port: 8080}
	err := Load(path, &cfg)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadOptional_MissingFileUsesDefaults(t *testing.T) {
	cfg := sample{Name: "default", Port: 1}
	if err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "default" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var cfg sample
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err == nil {
		t.Fatal("missing file should fail")
	}
}
