package pipeline

import (
	"context"
	"fmt"
	"testing"
)

type recordStage struct {
	name       string
	capability Capability
	runs       *[]string
	fail       error
}

func (s *recordStage) Name() string           { return s.name }
func (s *recordStage) Capability() Capability { return s.capability }

func (s *recordStage) Run(_ context.Context, ex *Exchange) error {
	if s.runs != nil {
		*s.runs = append(*s.runs, s.name)
	}
	if s.fail != nil {
		return s.fail
	}
	if s.capability == CapabilityTranscription {
		ex.Transcript = &Transcript{
			Language: "auto",
			Segments: []TranscriptSegment{{Text: s.name}},
		}
	}
	return nil
}

func stageFactory(name string, capability Capability, runs *[]string) Factory {
	return func() (Stage, error) {
		return &recordStage{name: name, capability: capability, runs: runs}, nil
	}
}

func testRegistry(runs *[]string) *Registry {
	reg := NewRegistry()
	reg.Register("clamp", CapabilityTransform, stageFactory("clamp", CapabilityTransform, runs))
	reg.Register("resample", CapabilityTransform, stageFactory("resample", CapabilityTransform, runs))
	reg.Register("transcribe", CapabilityTranscription, stageFactory("transcribe", CapabilityTranscription, runs))
	reg.Register("align", CapabilityAlignment, stageFactory("align", CapabilityAlignment, runs))
	return reg
}

func testDefinitions() map[string]Definition {
	return map[string]Definition{
		"full": {
			Pre:           []string{"clamp", "resample"},
			Transcription: "transcribe",
			Post:          []string{"align"},
		},
		"bare": {
			Transcription: "transcribe",
		},
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	reg := testRegistry(nil)
	defs := testDefinitions()

	first, err := Compile("full", defs, reg, CompileOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Compile("full", defs, reg, CompileOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, b := first.Steps(), second.Steps()
	if len(a) != len(b) {
		t.Fatalf("chain length differs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Capability != b[i].Capability || a[i].Remote != b[i].Remote {
			t.Fatalf("step %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
	want := []string{"clamp", "resample", "transcribe", "align"}
	for i, name := range want {
		if a[i].Name != name {
			t.Fatalf("expected step %d to be %q, got %q", i, name, a[i].Name)
		}
	}
}

func TestCompileUnknownPipeline(t *testing.T) {
	_, err := Compile("nope", testDefinitions(), testRegistry(nil), CompileOptions{})
	if KindOf(err) != KindUnknownPipeline {
		t.Fatalf("expected unknown_pipeline, got %v", err)
	}
}

func TestCompileUnknownTranscriptionStep(t *testing.T) {
	defs := map[string]Definition{
		"broken": {Transcription: "not_registered"},
	}
	_, err := Compile("broken", defs, testRegistry(nil), CompileOptions{})
	if KindOf(err) != KindUnknownStep {
		t.Fatalf("expected unknown_step, got %v", err)
	}
}

func TestCompileMissingTranscriptionStep(t *testing.T) {
	defs := map[string]Definition{
		"broken": {Pre: []string{"clamp"}},
	}
	_, err := Compile("broken", defs, testRegistry(nil), CompileOptions{})
	if KindOf(err) != KindMissingTranscriptionStep {
		t.Fatalf("expected missing_transcription_step, got %v", err)
	}
}

func TestCompileUnknownPostStep(t *testing.T) {
	defs := map[string]Definition{
		"broken": {Transcription: "transcribe", Post: []string{"ghost"}},
	}
	_, err := Compile("broken", defs, testRegistry(nil), CompileOptions{})
	if KindOf(err) != KindUnknownStep {
		t.Fatalf("expected unknown_step, got %v", err)
	}
}

func TestCompileSkipsDisabledSteps(t *testing.T) {
	compiled, err := Compile("full", testDefinitions(), testRegistry(nil), CompileOptions{
		Disabled: func(step string) bool { return step == "resample" },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, step := range compiled.Steps() {
		if step.Name == "resample" {
			t.Fatal("disabled step must not appear in the compiled chain")
		}
	}
	if got := len(compiled.Steps()); got != 3 {
		t.Fatalf("expected 3 steps, got %d", got)
	}
}

func TestCompileRejectsDisabledTranscription(t *testing.T) {
	_, err := Compile("bare", testDefinitions(), testRegistry(nil), CompileOptions{
		Disabled: func(step string) bool { return step == "transcribe" },
	})
	if KindOf(err) != KindMissingTranscriptionStep {
		t.Fatalf("expected missing_transcription_step, got %v", err)
	}
}

func TestCompileRemoteStep(t *testing.T) {
	compiled, err := Compile("full", testDefinitions(), testRegistry(nil), CompileOptions{
		Remote: func(step string) bool { return step == "transcribe" },
		RemoteStage: func(step string, capability Capability) (Stage, error) {
			if capability != CapabilityTranscription {
				return nil, fmt.Errorf("unexpected capability %q", capability)
			}
			return &recordStage{name: step, capability: capability}, nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	steps := compiled.Steps()
	if !steps[2].Remote {
		t.Fatal("expected transcription step to be marked remote")
	}
	if steps[0].Remote || steps[3].Remote {
		t.Fatal("expected other steps to stay local")
	}
}

func TestCompileRemoteWithoutTransport(t *testing.T) {
	_, err := Compile("bare", testDefinitions(), testRegistry(nil), CompileOptions{
		Remote: func(string) bool { return true },
	})
	if KindOf(err) != KindBackendUnavailable {
		t.Fatalf("expected backend_unavailable, got %v", err)
	}
}

func TestRegistryPlaceholderPriority(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterPlaceholder("step", CapabilityTranscription, stageFactory("placeholder", CapabilityTranscription, nil))
	if !reg.IsPlaceholder("step") {
		t.Fatal("expected placeholder registration")
	}

	reg.Register("step", CapabilityTranscription, stageFactory("real", CapabilityTranscription, nil))
	if reg.IsPlaceholder("step") {
		t.Fatal("real backend must take priority over the placeholder")
	}

	// A late placeholder registration must not displace the real backend.
	reg.RegisterPlaceholder("step", CapabilityTranscription, stageFactory("placeholder", CapabilityTranscription, nil))
	if reg.IsPlaceholder("step") {
		t.Fatal("placeholder must not override a real backend")
	}

	stage, _, err := reg.build("step")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stage.Name() != "real" {
		t.Fatalf("expected real stage, got %q", stage.Name())
	}
}
