package pipeline

import (
	"reflect"
	"testing"
)

func TestBuiltinDefinitions(t *testing.T) {
	defs := BuiltinDefinitions()

	if len(defs) != 3 {
		t.Fatalf("expected 3 builtin pipelines, got %d", len(defs))
	}
	for typ, def := range defs {
		if def.Type() != typ {
			t.Errorf("definition %s keyed under %s", def.Type(), typ)
		}
		if err := Validate(def); err != nil {
			t.Errorf("builtin %s pipeline invalid: %v", typ, err)
		}
	}
}

func TestBuildPipeline_StageOrder(t *testing.T) {
	def := BuildPipeline()

	want := []string{"checkout", "dependencies", "compile", "artifacts"}
	if got := def.StageNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected stages %v, got %v", want, got)
	}
	if !def.OnFailure.Recover {
		t.Error("expected build pipeline to opt into recovery")
	}
}

func TestTestPipeline_StageOrder(t *testing.T) {
	def := TestPipeline()

	want := []string{"unit_tests", "integration_tests", "coverage"}
	if got := def.StageNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected stages %v, got %v", want, got)
	}
}

func TestDeployPipeline(t *testing.T) {
	def := DeployPipeline()

	want := []string{"staging", "production"}
	if got := def.StageNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected stages %v, got %v", want, got)
	}
	if def.OnFailure.Recover {
		t.Error("deploy pipeline must not auto-recover")
	}

	last := def.Stages[len(def.Stages)-1]
	lastTask := last.Tasks[len(last.Tasks)-1]
	if lastTask.Action != ActionHealthCheck {
		t.Errorf("expected deploy to end with a health check, got %s", lastTask.Action)
	}
}
