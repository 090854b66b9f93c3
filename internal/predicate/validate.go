package predicate

import "fmt"

// Validate checks the structural validity grammar enforced at rule-creation
// time. Leaf predicates must carry a non-empty column, operator, and operand;
// compound predicates must carry AND or OR and at least one structurally
// valid child. An empty compound child list is rejected here even though the
// evaluator would tolerate it: an empty AND matches every transaction, which
// is never what a rule author meant.
func (p Predicate) Validate() error {
	switch p.Kind {
	case KindString, KindDate:
		if p.Column == "" {
			return fmt.Errorf("%s predicate missing column", p.Kind)
		}
		if p.Operator == "" {
			return fmt.Errorf("%s predicate missing operator", p.Kind)
		}
		if p.Operand == "" {
			return fmt.Errorf("%s predicate missing operand", p.Kind)
		}
		return nil
	case KindNumber:
		if p.Column == "" {
			return fmt.Errorf("NUMBER predicate missing column")
		}
		if p.Operator == "" {
			return fmt.Errorf("NUMBER predicate missing operator")
		}
		if p.Number == nil {
			return fmt.Errorf("NUMBER predicate missing operand")
		}
		return nil
	case KindCompound:
		if p.Operator != OpAnd && p.Operator != OpOr {
			return fmt.Errorf("COMPOUND predicate has invalid operator %q", p.Operator)
		}
		if len(p.Children) == 0 {
			return fmt.Errorf("COMPOUND predicate has no children")
		}
		for i, child := range p.Children {
			if err := child.Validate(); err != nil {
				return fmt.Errorf("child %d: %w", i, err)
			}
		}
		return nil
	case "":
		return fmt.Errorf("predicate missing type")
	default:
		return fmt.Errorf("unknown predicate type %q", p.Kind)
	}
}
