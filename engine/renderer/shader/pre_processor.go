// pre_processor.go implements the Oxy WGSL pre-processor. It replaces @oxy: annotations with
// registered WGSL snippets or generated declarations and collects the declarations the passes use
// to wire bind groups.
//
// Snippets live with the Go package that owns the matching GPU type and are registered from that
// package's init via RegisterInclude, so the shader package never imports its users.
package shader

import (
	"fmt"
	"strings"
	"sync"
)

// registryEntry pairs a WGSL snippet with the type name emitted by @oxy:group declarations.
type registryEntry struct {
	// Source is the raw WGSL text injected by @oxy:include.
	Source string

	// Type is the WGSL type name used in generated declarations. Empty for function-only snippets.
	Type string
}

var (
	includeMu       sync.RWMutex
	includeRegistry = map[AnnotationArg]registryEntry{}
)

// RegisterInclude registers a WGSL snippet under name. Registering the same name twice panics.
//
// Parameters:
//   - name: the argument used by //@oxy:include and //@oxy:group annotations
//   - source: the WGSL text to inject
//   - typeName: the WGSL struct name for generated declarations, or "" for helper snippets
func RegisterInclude(name AnnotationArg, source, typeName string) {
	includeMu.Lock()
	defer includeMu.Unlock()
	if _, exists := includeRegistry[name]; exists {
		panic(fmt.Sprintf("shader: include %q registered twice", name))
	}
	includeRegistry[name] = registryEntry{Source: source, Type: typeName}
}

func lookupInclude(name AnnotationArg) (registryEntry, bool) {
	includeMu.RLock()
	defer includeMu.RUnlock()
	e, ok := includeRegistry[name]
	return e, ok
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	addressSpaceRegistry map[AnnotationArg]string

	// declarations holds the group and provider annotations from the most recent Process call.
	declarations []Annotation
}

// PreProcessor rewrites WGSL source containing @oxy: annotations.
type PreProcessor interface {
	// Process replaces @oxy:include lines with the registered snippet and @oxy:group lines with a
	// generated declaration. @oxy:provider lines are kept as comments and recorded.
	// Each snippet is injected at most once per source.
	//
	// Parameters:
	//   - source: the raw WGSL shader source
	//
	// Returns:
	//   - string: the processed WGSL source
	//   - error: an error if an annotation is malformed or names an unregistered snippet
	Process(source string) (string, error)

	// Declarations returns the group and provider annotations from the last Process call in source order.
	Declarations() []Annotation
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor backed by the global include registry.
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		addressSpaceRegistry: map[AnnotationArg]string{
			annotationArgStorageTypeUniform:   "var<uniform>",
			annotationArgStorageTypeRead:      "var<storage, read>",
			annotationArgStorageTypeReadWrite: "var<storage, read_write>",
		},
	}
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]
	included := make(map[AnnotationArg]bool)

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case annotationTypeInclude:
			if included[a.Args[0]] {
				continue
			}
			entry, ok := lookupInclude(a.Args[0])
			if !ok {
				return "", fmt.Errorf("line %d: unknown @oxy:include argument %q", i+1, a.Args[0])
			}
			included[a.Args[0]] = true
			out = append(out, entry.Source)
		case AnnotationTypeBindingGroup:
			wgslType, err := resolveDeclType(a.Args[2])
			if err != nil {
				return "", fmt.Errorf("line %d: %w", i+1, err)
			}
			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;", *a.Group, *a.Binding, p.addressSpaceRegistry[a.Args[0]], a.Args[1], wgslType))
			p.declarations = append(p.declarations, *a)
		case AnnotationTypeProvider:
			out = append(out, line)
			p.declarations = append(p.declarations, *a)
		}
	}
	return strings.Join(out, "\n"), nil
}

// resolveDeclType maps a registered name (or array<name>) to its WGSL type.
func resolveDeclType(arg AnnotationArg) (string, error) {
	name, isArray := strings.CutPrefix(string(arg), "array<")
	if isArray {
		name = strings.TrimSuffix(name, ">")
	}
	entry, ok := lookupInclude(AnnotationArg(name))
	if !ok || entry.Type == "" {
		return "", fmt.Errorf("unknown struct type %q in @oxy group annotation", name)
	}
	if isArray {
		return fmt.Sprintf("array<%s>", entry.Type), nil
	}
	return entry.Type, nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}
