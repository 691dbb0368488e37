package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validPipelineYAML = `
name: build
version: "1.0"
stages:
  - name: checkout
    tasks:
      - name: clone-repo
        action: clone
        config:
          depth: 1
  - name: compile
    tasks:
      - name: install-deps
        action: install
      - name: build-binary
        action: build
on_failure:
  recover: true
  retry_count: 2
  notify_to: dev-team
`

func TestDecodeDefinition(t *testing.T) {
	def, err := DecodeDefinition(strings.NewReader(validPipelineYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if def.Name != "build" {
		t.Errorf("expected name build, got %s", def.Name)
	}
	if def.Type() != TypeBuild {
		t.Errorf("expected type build, got %s", def.Type())
	}
	if got := def.StageNames(); len(got) != 2 || got[0] != "checkout" || got[1] != "compile" {
		t.Errorf("unexpected stage names: %v", got)
	}
	if def.TaskCount() != 3 {
		t.Errorf("expected 3 tasks, got %d", def.TaskCount())
	}
	if !def.OnFailure.Recover {
		t.Error("expected on_failure.recover to be true")
	}
	if def.OnFailure.RetryCount != 2 {
		t.Errorf("expected retry_count 2, got %d", def.OnFailure.RetryCount)
	}
	if def.Stages[0].Tasks[0].Config["depth"] != 1 {
		t.Errorf("expected task config to survive decoding, got %v", def.Stages[0].Tasks[0].Config)
	}
}

func TestDecodeDefinition_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "not yaml",
			yaml:    "{{{",
			wantErr: "failed to parse",
		},
		{
			name:    "missing name",
			yaml:    "stages:\n  - name: s1\n    tasks:\n      - name: t1\n        action: build\n",
			wantErr: "name is required",
		},
		{
			name:    "no stages",
			yaml:    "name: build\n",
			wantErr: "no stages",
		},
		{
			name: "duplicate stage names",
			yaml: `name: build
stages:
  - name: s1
    tasks:
      - name: t1
        action: build
  - name: s1
    tasks:
      - name: t2
        action: test
`,
			wantErr: "duplicate stage name",
		},
		{
			name: "duplicate task names in a stage",
			yaml: `name: build
stages:
  - name: s1
    tasks:
      - name: t1
        action: build
      - name: t1
        action: test
`,
			wantErr: "duplicate task name",
		},
		{
			name: "empty stage",
			yaml: `name: build
stages:
  - name: s1
    tasks: []
`,
			wantErr: "no tasks",
		},
		{
			name: "unknown action",
			yaml: `name: build
stages:
  - name: s1
    tasks:
      - name: t1
        action: teleport
`,
			wantErr: "unknown action",
		},
		{
			name: "negative retry count",
			yaml: `name: build
stages:
  - name: s1
    tasks:
      - name: t1
        action: build
on_failure:
  retry_count: -1
`,
			wantErr: "must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDefinition(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadDefinition_MissingFile(t *testing.T) {
	if _, err := LoadDefinition(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"build.yaml": validPipelineYAML,
		"test.yml": `name: test
stages:
  - name: unit
    tasks:
      - name: run-unit
        action: test
`,
		"notes.txt": "not a pipeline",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	defs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if _, ok := defs[TypeBuild]; !ok {
		t.Error("missing build definition")
	}
	if _, ok := defs[TypeTest]; !ok {
		t.Error("missing test definition")
	}
}

func TestLoadDir_DuplicateType(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(validPipelineYAML), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := LoadDir(dir); err == nil || !strings.Contains(err.Error(), "duplicate pipeline definition") {
		t.Fatalf("expected duplicate definition error, got %v", err)
	}
}

func TestLoadDir_Empty(t *testing.T) {
	if _, err := LoadDir(t.TempDir()); err == nil {
		t.Fatal("expected error for directory without definitions")
	}
}
