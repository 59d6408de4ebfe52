package graph

import (
	"strings"

	"github.com/plywood-build/plywood/pkg/perrors"
)

// visitState tracks DFS progress per target, the same three-state
// idiom used elsewhere in this module for cycle-safe traversal
// (notVisited/inProgress/done over graph edges, here over target
// dependency edges).
type visitState int

const (
	notVisited visitState = iota
	inProgress
	done
)

// Resolved is one target's fully-inherited settings after the
// Inheritance Engine has run: own options merged with every build
// dependency's public options, transitively, leaves first.
type Resolved struct {
	Target  *Target
	Options []Option
	// LinkOrder lists this target's full link-time dependency closure,
	// leaves first, duplicates removed.
	LinkOrder []string
	// LinkInputs is what actually goes on the link line: a
	// statically-linked dep contributes its own name, a dep living in
	// a shared container contributes the container's name instead,
	// deduplicated across deps sharing one container.
	LinkInputs []string
}

// Engine resolves a Graph's inheritance, one config at a time.
type Engine struct {
	graph *Graph
}

// NewEngine constructs an Engine over graph.
func NewEngine(graph *Graph) *Engine {
	return &Engine{graph: graph}
}

// ResolveAll resolves every target in the graph for the given
// configuration index, returning structural errors for dependency
// cycles, references to undefined targets, or clashing preprocessor
// definitions. It never mutates the graph, so resolving twice yields
// identical results.
func (e *Engine) ResolveAll(configIdx int) (map[string]*Resolved, error) {
	state := make(map[string]visitState, len(e.graph.Targets))
	results := make(map[string]*Resolved, len(e.graph.Targets))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case inProgress:
			return perrors.Structural("dependency cycle: %s", cyclePath(append(path, name))).WithCode("CYCLE").WithResource(name)
		}
		target, ok := e.graph.Targets[name]
		if !ok {
			return perrors.Structural("target %q referenced but not defined", name).WithResource(name)
		}
		state[name] = inProgress
		path = append(path, name)

		var linkOrder []string
		seenLink := map[string]bool{}
		var options []Option
		var err error

		for _, dep := range target.Deps {
			if !dep.Enabled.Has(configIdx) {
				continue
			}
			if err := visit(dep.TargetName); err != nil {
				return err
			}
			depResolved := results[dep.TargetName]
			if dep.Kind != DepBuild {
				continue
			}
			for _, o := range depResolved.Options {
				if !o.Public.Has(configIdx) {
					continue
				}
				// o is already public in dep.TargetName; reduce its
				// propagated copy's own public-bits by this edge's
				// visibility so a private dependency still picks up
				// the option for its own use but does not re-expose
				// it to its own dependents.
				options, err = mergeOption(options, Option{
					Category: o.Category,
					Value:    o.Value,
					Enabled:  o.Enabled & dep.Enabled,
					Public:   o.Public & dep.Public,
				}, name)
				if err != nil {
					return err
				}
			}
			for _, l := range depResolved.LinkOrder {
				if !seenLink[l] {
					seenLink[l] = true
					linkOrder = append(linkOrder, l)
				}
			}
			if !seenLink[dep.TargetName] {
				seenLink[dep.TargetName] = true
				linkOrder = append(linkOrder, dep.TargetName)
			}
		}

		for _, o := range target.Options {
			if options, err = mergeOption(options, o, name); err != nil {
				return err
			}
		}

		results[name] = &Resolved{
			Target:     target,
			Options:    options,
			LinkOrder:  linkOrder,
			LinkInputs: e.linkInputs(target, linkOrder),
		}
		state[name] = done
		path = path[:len(path)-1]
		return nil
	}

	for _, name := range e.graph.Order() {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	if err := e.applyLinkageDefines(results, configIdx); err != nil {
		return nil, err
	}
	return results, nil
}

// linkInputs maps a link-order closure to link-line inputs: shared
// containers collapse every target inside them to one entry, object
// groups contribute their object files rather than an archive, and
// header-only targets contribute nothing.
func (e *Engine) linkInputs(target *Target, linkOrder []string) []string {
	var inputs []string
	seen := map[string]bool{}
	for _, name := range linkOrder {
		dep, ok := e.graph.Targets[name]
		if !ok || dep.Kind == KindExecutable || dep.Kind == KindHeaderOnly {
			continue
		}
		input := name
		if dep.SharedContainer != "" {
			input = dep.SharedContainer
		} else if dep.Kind == KindObjectGroup {
			input = "$<TARGET_OBJECTS:" + name + ">"
		}
		// A dep inside the consuming target's own container is part of
		// the same linked artifact, not an input to it.
		if input == target.SharedContainer && target.SharedContainer != "" {
			continue
		}
		if !seen[input] {
			seen[input] = true
			inputs = append(inputs, input)
		}
	}
	return inputs
}

// applyLinkageDefines adds the symbol-visibility defines for targets
// participating in dynamic linking: a target compiled into a shared
// container sees its own prefix (and that of container-mates) as
// _EXPORTING, while a dep in a different container shows up as
// _IMPORTING.
func (e *Engine) applyLinkageDefines(results map[string]*Resolved, configIdx int) error {
	bit := Bits(0).Set(configIdx)
	for name, r := range results {
		t := r.Target
		var err error
		if t.DynamicLinkPrefix != "" {
			r.Options, err = mergeOption(r.Options, Option{
				Category: "define",
				Value:    t.DynamicLinkPrefix + "_EXPORTING=1",
				Enabled:  bit,
			}, name)
			if err != nil {
				return err
			}
		}
		for _, depName := range r.LinkOrder {
			dep, ok := e.graph.Targets[depName]
			if !ok || dep.DynamicLinkPrefix == "" {
				continue
			}
			macro := dep.DynamicLinkPrefix + "_IMPORTING=1"
			if dep.SharedContainer != "" && dep.SharedContainer == t.SharedContainer {
				macro = dep.DynamicLinkPrefix + "_EXPORTING=1"
			}
			if r.Options, err = mergeOption(r.Options, Option{
				Category: "define",
				Value:    macro,
				Enabled:  bit,
			}, name); err != nil {
				return err
			}
		}
	}
	return nil
}

func cyclePath(path []string) string {
	return strings.Join(path, " -> ")
}

// mergeOption folds one incoming option into list, per the merge
// rules the whole graph relies on:
//
//   - identical (category, value): the bitmasks OR together, so the
//     same include dir arriving via two dependency paths stays one
//     entry;
//   - same category and key but a different value: the contested
//     configs are carved out of BOTH entries — the option only
//     survives in configs where every contributor agrees on its
//     value, which keeps the result independent of merge order —
//     except for defines, where two values for one name enabled in
//     an overlapping config is a structural error rather than a
//     silent restriction;
//   - an option whose enabled bits end up empty is never kept.
func mergeOption(list []Option, in Option, targetName string) ([]Option, error) {
	if !in.Enabled.Any() {
		return list, nil
	}
	inKey := optionKey(in)
	merged := false
	kept := list[:0]
	for _, o := range list {
		if o.Category == in.Category && optionKey(o) == inKey {
			switch {
			case o.Value == in.Value:
				o.Enabled |= in.Enabled
				o.Public |= in.Public
				merged = true
			case o.Category == "define":
				if o.Enabled&in.Enabled != 0 {
					return nil, perrors.Structural("conflicting define %q: %q vs %q", defineKey(in.Value), o.Value, in.Value).
						WithResource(targetName).WithCode("OPTION_CLASH")
				}
			default:
				if overlap := o.Enabled & in.Enabled; overlap != 0 {
					o.Enabled &^= overlap
					o.Public &= o.Enabled
					in.Enabled &^= overlap
					in.Public &= in.Enabled
				}
			}
		}
		if o.Enabled.Any() {
			kept = append(kept, o)
		}
	}
	if merged || !in.Enabled.Any() {
		return kept, nil
	}
	return append(kept, in), nil
}

// optionKey is the identity options of one category merge under: the
// define name for defines, the category itself for single-valued
// categories, the full value otherwise.
func optionKey(o Option) string {
	switch o.Category {
	case "define":
		return defineKey(o.Value)
	case "precompiled_header":
		return o.Category
	}
	return o.Value
}

func defineKey(value string) string {
	if i := strings.IndexByte(value, '='); i >= 0 {
		return value[:i]
	}
	return value
}
