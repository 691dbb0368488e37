package executor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loykin/pipeflow/internal/pipeline"
)

func writeMarker(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestDetectToolchain(t *testing.T) {
	tests := []struct {
		name     string
		markers  []string
		expected pipeline.Toolchain
	}{
		{"go module", []string{"go.mod"}, pipeline.ToolchainGo},
		{"node project", []string{"package.json"}, pipeline.ToolchainNode},
		{"python requirements", []string{"requirements.txt"}, pipeline.ToolchainPython},
		{"python pyproject", []string{"pyproject.toml"}, pipeline.ToolchainPython},
		{"maven project", []string{"pom.xml"}, pipeline.ToolchainMaven},
		{"makefile project", []string{"Makefile"}, pipeline.ToolchainMake},
		{"empty directory", nil, pipeline.ToolchainUnknown},
		// go.mod wins over Makefile; many Go repos carry both
		{"go beats make", []string{"Makefile", "go.mod"}, pipeline.ToolchainGo},
		{"node beats python", []string{"requirements.txt", "package.json"}, pipeline.ToolchainNode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, m := range tt.markers {
				writeMarker(t, dir, m)
			}
			if got := DetectToolchain(dir); got != tt.expected {
				t.Errorf("DetectToolchain = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestParseToolchain(t *testing.T) {
	tests := []struct {
		input    string
		expected pipeline.Toolchain
		ok       bool
	}{
		{"go", pipeline.ToolchainGo, true},
		{"npm", pipeline.ToolchainNode, true},
		{"node", pipeline.ToolchainNode, true},
		{"pip", pipeline.ToolchainPython, true},
		{"pytest", pipeline.ToolchainPython, true},
		{"maven", pipeline.ToolchainMaven, true},
		{"make", pipeline.ToolchainMake, true},
		{"gradle", pipeline.ToolchainUnknown, false},
		{"", pipeline.ToolchainUnknown, false},
	}

	for _, tt := range tests {
		t.Run("input "+tt.input, func(t *testing.T) {
			got, ok := parseToolchain(tt.input)
			if got != tt.expected || ok != tt.ok {
				t.Errorf("parseToolchain(%q) = (%s, %v), want (%s, %v)", tt.input, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestResolveToolchain_ExplicitOverridesDetection(t *testing.T) {
	e := newTestExecutor(&fakeRunner{})
	dir := t.TempDir()
	writeMarker(t, dir, "go.mod")
	ec := pipeline.NewExecutionContext("", "", dir)

	tc, err := e.resolveToolchain(ec, "npm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tc != pipeline.ToolchainNode {
		t.Errorf("expected explicit npm to win over go.mod, got %s", tc)
	}
}

func TestResolveToolchain_AutoDetectCaches(t *testing.T) {
	e := newTestExecutor(&fakeRunner{})
	dir := t.TempDir()
	writeMarker(t, dir, "go.mod")
	ec := pipeline.NewExecutionContext("", "", dir)

	tc, err := e.resolveToolchain(ec, "auto_detect")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tc != pipeline.ToolchainGo {
		t.Fatalf("expected go, got %s", tc)
	}

	// Remove the marker; the cached value must still be answered.
	if err := os.Remove(filepath.Join(dir, "go.mod")); err != nil {
		t.Fatal(err)
	}
	tc, err = e.resolveToolchain(ec, "")
	if err != nil {
		t.Fatalf("unexpected error on cached resolve: %v", err)
	}
	if tc != pipeline.ToolchainGo {
		t.Errorf("expected cached go, got %s", tc)
	}
}

func TestResolveToolchain_UnknownExplicit(t *testing.T) {
	e := newTestExecutor(&fakeRunner{})
	ec := pipeline.NewExecutionContext("", "", t.TempDir())

	if _, err := e.resolveToolchain(ec, "gradle"); err == nil {
		t.Fatal("expected error for unknown explicit toolchain")
	}
}

func TestResolveToolchain_NothingDetected(t *testing.T) {
	e := newTestExecutor(&fakeRunner{})
	ec := pipeline.NewExecutionContext("", "", t.TempDir())

	if _, err := e.resolveToolchain(ec, ""); err == nil {
		t.Fatal("expected error when no toolchain markers exist")
	}
}
