package flowgraph

import "context"

// ChoicePredicate decides whether an element should route to its paired
// outlet.
type ChoicePredicate func(ctx context.Context, element any) (bool, error)

// ChoiceBranch pairs an outlet with the predicate that selects it.
type ChoiceBranch struct {
	Outlet    Step
	Predicate ChoicePredicate
}

// ChoiceStep redirects each input element into at most one of multiple
// outlets: the first branch whose predicate evaluates true, or the
// default outlet if none match, or nowhere if no default is configured.
// The termination sentinel is forwarded to every outlet (including the
// default) via the base fan-out protocol.
type ChoiceStep struct {
	base
	branches []ChoiceBranch
	def      Step
}

// NewChoice builds a Choice step from an ordered list of branches plus an
// optional default outlet (pass nil for none). Every branch outlet and
// the default, if any, are registered as outlets so the termination
// sentinel reaches all of them.
func NewChoice(name string, branches []ChoiceBranch, def Step, opts ...StepOption) *ChoiceStep {
	s := &ChoiceStep{base: newBase(name, opts...), branches: branches, def: def}
	for _, br := range branches {
		s.outlets = append(s.outlets, br.Outlet)
	}
	if def != nil {
		s.outlets = append(s.outlets, def)
	}
	return s
}

func (s *ChoiceStep) Do(ctx context.Context, ev *Event) (any, error) {
	if len(s.outlets) == 0 || ev == nil {
		return s.doDownstream(ctx, ev)
	}

	element := s.safeEventOrBody(ev)
	var chosen Step
	for _, br := range s.branches {
		matched, err := br.Predicate(ctx, element)
		if err != nil {
			return nil, err
		}
		if matched {
			chosen = br.Outlet
			break
		}
	}
	if chosen == nil {
		chosen = s.def
	}
	if chosen == nil {
		return nil, nil
	}
	_, err := chosen.Do(ctx, ev)
	return nil, err
}
