package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadDefinition loads a pipeline definition from a YAML file and validates
// it. Malformed definitions fail here, at startup, never at run time.
func LoadDefinition(path string) (*Definition, error) {
	clean := filepath.Clean(path)
	// #nosec G304 -- path is provided by user configuration
	f, err := os.Open(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline definition %s: %w", clean, err)
	}
	defer func() { _ = f.Close() }()
	return DecodeDefinition(f)
}

// DecodeDefinition decodes and validates a pipeline definition from a reader.
func DecodeDefinition(r io.Reader) (*Definition, error) {
	dec := yaml.NewDecoder(r)
	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline definition: %w", err)
	}
	if err := Validate(&def); err != nil {
		return nil, fmt.Errorf("invalid pipeline definition: %w", err)
	}
	return &def, nil
}

// Validate checks structural requirements of a definition: a name, at least
// one stage, unique stage names, and every task carrying a known action.
func Validate(def *Definition) error {
	if def.Name == "" {
		return fmt.Errorf("pipeline name is required")
	}
	if len(def.Stages) == 0 {
		return fmt.Errorf("pipeline %s: no stages defined", def.Name)
	}

	stageNames := make(map[string]bool)
	for i, stage := range def.Stages {
		if stage.Name == "" {
			return fmt.Errorf("pipeline %s: stage %d: name is required", def.Name, i)
		}
		if stageNames[stage.Name] {
			return fmt.Errorf("pipeline %s: duplicate stage name: %s", def.Name, stage.Name)
		}
		stageNames[stage.Name] = true

		if len(stage.Tasks) == 0 {
			return fmt.Errorf("pipeline %s: stage %s: no tasks defined", def.Name, stage.Name)
		}
		taskNames := make(map[string]bool)
		for j, task := range stage.Tasks {
			if task.Name == "" {
				return fmt.Errorf("pipeline %s: stage %s: task %d: name is required", def.Name, stage.Name, j)
			}
			if taskNames[task.Name] {
				return fmt.Errorf("pipeline %s: stage %s: duplicate task name: %s", def.Name, stage.Name, task.Name)
			}
			taskNames[task.Name] = true
			if !task.Action.Valid() {
				return fmt.Errorf("pipeline %s: stage %s: task %s: unknown action %q",
					def.Name, stage.Name, task.Name, task.Action)
			}
		}
	}

	if def.OnFailure.RetryCount < 0 {
		return fmt.Errorf("pipeline %s: on_failure.retry_count must not be negative", def.Name)
	}

	return nil
}

// LoadDir loads every *.yaml/*.yml definition under dir, keyed by pipeline
// type. Later files with a duplicate name are rejected.
func LoadDir(dir string) (map[Type]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline directory %s: %w", dir, err)
	}

	defs := make(map[Type]*Definition)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		def, err := LoadDefinition(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		typ := def.Type()
		if _, exists := defs[typ]; exists {
			return nil, fmt.Errorf("duplicate pipeline definition for %s in %s", typ, e.Name())
		}
		defs[typ] = def
	}

	if len(defs) == 0 {
		return nil, fmt.Errorf("no pipeline definitions found in %s", dir)
	}
	return defs, nil
}
