// Package predicate implements the typed boolean expression trees that
// categorization rules are built from. A predicate is a closed union of four
// kinds (string, number, date, compound) and is persisted as a JSON column on
// the rule row.
package predicate

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind discriminates the predicate union.
type Kind string

const (
	KindString   Kind = "STRING"
	KindNumber   Kind = "NUMBER"
	KindDate     Kind = "DATE"
	KindCompound Kind = "COMPOUND"
)

// Column names a transaction field a leaf predicate inspects. Any other
// column evaluates to false.
type Column string

const (
	ColumnDescription Column = "description"
	ColumnAmount      Column = "amount"
	ColumnDate        Column = "date"
)

// Operator is a comparison within a leaf predicate, or AND/OR on a compound.
type Operator string

const (
	// String operators.
	OpContains   Operator = "CONTAINS"
	OpEquals     Operator = "EQUALS"
	OpMatches    Operator = "MATCHES"
	OpStartsWith Operator = "STARTS_WITH"
	OpEndsWith   Operator = "ENDS_WITH"

	// Number operators. EQUALS is shared with the string kind.
	OpGreaterThan        Operator = "GREATER_THAN"
	OpLessThan           Operator = "LESS_THAN"
	OpGreaterThanOrEqual Operator = "GREATER_THAN_OR_EQUAL"
	OpLessThanOrEqual    Operator = "LESS_THAN_OR_EQUAL"

	// Date operators.
	OpAfter     Operator = "AFTER"
	OpBefore    Operator = "BEFORE"
	OpOn        Operator = "ON"
	OpDayOfWeek Operator = "DAY_OF_WEEK"

	// Compound operators.
	OpAnd Operator = "AND"
	OpOr  Operator = "OR"
)

// Predicate is one node of a rule's expression tree. Exactly one of the
// operand fields is meaningful depending on Kind: Operand for STRING and
// DATE, Number for NUMBER, Children for COMPOUND.
type Predicate struct {
	Kind     Kind
	Column   Column
	Operator Operator
	Operand  string
	Number   *decimal.Decimal
	Children []Predicate
}

// wirePredicate is the persisted/JSON shape shared with the web client.
type wirePredicate struct {
	Type       Kind            `json:"type"`
	Column     Column          `json:"column,omitempty"`
	Operator   Operator        `json:"operator,omitempty"`
	Operand    json.RawMessage `json:"operand,omitempty"`
	Predicates []wirePredicate `json:"predicates,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (p Predicate) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.toWire())
}

func (p Predicate) toWire() wirePredicate {
	w := wirePredicate{Type: p.Kind, Column: p.Column, Operator: p.Operator}
	switch p.Kind {
	case KindNumber:
		if p.Number != nil {
			w.Operand = json.RawMessage(p.Number.String())
		}
	case KindCompound:
		w.Predicates = make([]wirePredicate, 0, len(p.Children))
		for _, child := range p.Children {
			w.Predicates = append(w.Predicates, child.toWire())
		}
	default:
		if p.Operand != "" {
			operand, _ := json.Marshal(p.Operand)
			w.Operand = operand
		}
	}
	return w
}

// UnmarshalJSON implements json.Unmarshaler. Unknown kinds and mistyped
// operands are preserved as zero values rather than rejected; structural
// problems are reported by Validate, and evaluation of a malformed node is
// simply false.
func (p *Predicate) UnmarshalJSON(data []byte) error {
	var w wirePredicate
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	return p.fromWire(w)
}

func (p *Predicate) fromWire(w wirePredicate) error {
	*p = Predicate{Kind: w.Type, Column: w.Column, Operator: w.Operator}
	switch w.Type {
	case KindNumber:
		if len(w.Operand) > 0 {
			n, err := decimal.NewFromString(string(w.Operand))
			if err != nil {
				// Tolerate a quoted number from older clients.
				var s string
				if json.Unmarshal(w.Operand, &s) != nil {
					return nil
				}
				if n, err = decimal.NewFromString(s); err != nil {
					return nil
				}
			}
			p.Number = &n
		}
	case KindCompound:
		p.Children = make([]Predicate, len(w.Predicates))
		for i, childWire := range w.Predicates {
			if err := p.Children[i].fromWire(childWire); err != nil {
				return err
			}
		}
	default:
		if len(w.Operand) > 0 {
			// Ignore non-string operands; Validate flags them as absent.
			_ = json.Unmarshal(w.Operand, &p.Operand)
		}
	}
	return nil
}

// Value implements driver.Valuer so a Predicate persists as a JSON column.
func (p Predicate) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (p *Predicate) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*p = Predicate{}
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("cannot scan %T into Predicate", value)
	}
}

// And builds a compound AND predicate. Convenience constructor used by tests
// and seeds.
func And(children ...Predicate) Predicate {
	return Predicate{Kind: KindCompound, Operator: OpAnd, Children: children}
}

// Or builds a compound OR predicate.
func Or(children ...Predicate) Predicate {
	return Predicate{Kind: KindCompound, Operator: OpOr, Children: children}
}

// String builds a string leaf predicate.
func String(column Column, op Operator, operand string) Predicate {
	return Predicate{Kind: KindString, Column: column, Operator: op, Operand: operand}
}

// Number builds a number leaf predicate.
func Number(column Column, op Operator, operand decimal.Decimal) Predicate {
	return Predicate{Kind: KindNumber, Column: column, Operator: op, Number: &operand}
}

// Date builds a date leaf predicate.
func Date(column Column, op Operator, operand string) Predicate {
	return Predicate{Kind: KindDate, Column: column, Operator: op, Operand: operand}
}
