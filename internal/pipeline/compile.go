package pipeline

import "strings"

// Definition is the declarative form of a chain: ordered pre-step names,
// exactly one transcription step name, ordered post-step names.
type Definition struct {
	Pre           []string
	Transcription string
	Post          []string
}

func (d Definition) orderedSteps() []string {
	ordered := make([]string, 0, len(d.Pre)+len(d.Post)+1)
	ordered = append(ordered, d.Pre...)
	ordered = append(ordered, d.Transcription)
	ordered = append(ordered, d.Post...)
	return ordered
}

// StepSpec is one resolved entry of a compiled chain.
type StepSpec struct {
	Name       string
	Capability Capability
	Remote     bool
	stage      Stage
}

// CompiledPipeline is the validated, ordered, immutable chain derived from a
// definition. It is built once at start-up and shared read-only by every
// request.
type CompiledPipeline struct {
	Name  string
	steps []StepSpec
}

// Steps returns a copy of the ordered chain for introspection.
func (p *CompiledPipeline) Steps() []StepSpec {
	return append([]StepSpec(nil), p.steps...)
}

// CompileOptions inject configuration-driven decisions into the compiler.
// All three callbacks may be nil: steps are then enabled, local, and remote
// resolution is unavailable.
type CompileOptions struct {
	// Disabled reports a step explicitly switched off in configuration.
	// Disabled steps are skipped entirely, which is distinct from an
	// absent capability resolving to its placeholder.
	Disabled func(step string) bool
	// Remote reports a step satisfied by a remote worker.
	Remote func(step string) bool
	// RemoteStage builds the client stub standing in for a remote step.
	RemoteStage func(step string, capability Capability) (Stage, error)
}

// Compile validates the selected definition against the registry and
// produces the executable chain. It is deterministic: the same definitions
// and registry always yield the same ordered chain, which lets deployment
// decide step locality ahead of any request.
func Compile(selected string, definitions map[string]Definition, registry *Registry, opts CompileOptions) (*CompiledPipeline, error) {
	definition, ok := definitions[selected]
	if !ok {
		return nil, NewError(KindUnknownPipeline, "pipeline %q not found among definitions", selected)
	}

	transcription := strings.TrimSpace(definition.Transcription)
	if transcription == "" {
		return nil, NewError(KindMissingTranscriptionStep, "pipeline %q has no transcription step", selected)
	}
	if _, _, ok := registry.Resolve(transcription); !ok {
		return nil, NewError(KindUnknownStep, "unknown pipeline step %q", transcription)
	}
	if opts.Disabled != nil && opts.Disabled(transcription) {
		// Disabling pre/post steps skips them, but a disabled transcription
		// step would leave the singular slot empty.
		return nil, NewError(KindMissingTranscriptionStep, "transcription step %q is disabled", transcription)
	}
	for _, name := range definition.orderedSteps() {
		if _, _, ok := registry.Resolve(name); !ok {
			return nil, NewError(KindUnknownStep, "unknown pipeline step %q", name)
		}
	}

	compiled := &CompiledPipeline{Name: selected}
	for _, name := range definition.orderedSteps() {
		if opts.Disabled != nil && opts.Disabled(name) && name != transcription {
			continue
		}
		spec, err := resolveStep(name, registry, opts)
		if err != nil {
			return nil, err
		}
		compiled.steps = append(compiled.steps, spec)
	}
	return compiled, nil
}

func resolveStep(name string, registry *Registry, opts CompileOptions) (StepSpec, error) {
	_, capability, _ := registry.Resolve(name)

	if opts.Remote != nil && opts.Remote(name) {
		if opts.RemoteStage == nil {
			return StepSpec{}, NewError(KindBackendUnavailable, "step %q marked remote but no remote transport is configured", name)
		}
		stage, err := opts.RemoteStage(name, capability)
		if err != nil {
			return StepSpec{}, err
		}
		return StepSpec{Name: name, Capability: capability, Remote: true, stage: stage}, nil
	}

	stage, capability, err := registry.build(name)
	if err != nil {
		return StepSpec{}, err
	}
	return StepSpec{Name: name, Capability: capability, stage: stage}, nil
}
