package flowgraph

// BuildFlow links a nested ordered sequence of steps into a graph and
// returns the head step, which doubles as the flow's run entry point.
//
// Each element of steps is either a Step or another []any representing a
// nested branch:
//
//	BuildFlow(a, b, c)                     // a -> b -> c
//	BuildFlow(a, []any{b1, b2}, c)         // a -> b1 -> b2, and a -> c
//
// A nested sequence attaches its head as an additional outlet of the
// current step without advancing the current step, so later top-level
// elements still attach after the step that preceded the nested branch.
func BuildFlow(steps ...any) Step {
	if len(steps) == 0 {
		panic(&ConstructionError{Message: "BuildFlow requires a non-empty sequence of steps"})
	}

	head := mustStep(steps[0])
	cur := head
	for _, elem := range steps[1:] {
		switch v := elem.(type) {
		case []any:
			branchHead := BuildFlow(v...)
			cur.To(branchHead)
		default:
			next := mustStep(elem)
			cur.To(next)
			cur = next
		}
	}
	return head
}

func mustStep(v any) Step {
	s, ok := v.(Step)
	if !ok {
		panic(&ConstructionError{Message: "BuildFlow elements must be a Step or a nested []any sequence"})
	}
	return s
}
