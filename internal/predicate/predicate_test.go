package predicate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func subject(description string, amount float64, date time.Time) Subject {
	d := decimal.NewFromFloat(amount)
	return Subject{Description: &description, Amount: &d, Date: &date}
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("failed to parse date %q: %v", s, err)
	}
	return d
}

func TestStringPredicates(t *testing.T) {
	s := subject("Amazon Marketplace Order", -42.50, time.Now())

	cases := []struct {
		name    string
		op      Operator
		operand string
		want    bool
	}{
		{"contains_case_insensitive", OpContains, "AMAZON", true},
		{"contains_miss", OpContains, "netflix", false},
		{"equals_case_insensitive", OpEquals, "amazon marketplace order", true},
		{"equals_partial_is_not_equal", OpEquals, "amazon", false},
		{"starts_with", OpStartsWith, "ama", true},
		{"ends_with", OpEndsWith, "ORDER", true},
		{"matches_unanchored", OpMatches, "market.*order", true},
		{"matches_case_insensitive", OpMatches, "^AMAZON", true},
		{"matches_invalid_regexp_is_false", OpMatches, "([", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := String(ColumnDescription, tc.op, tc.operand)
			if got := p.Matches(s); got != tc.want {
				t.Errorf("%s %q: got %v, want %v", tc.op, tc.operand, got, tc.want)
			}
		})
	}
}

func TestNumberPredicates(t *testing.T) {
	s := subject("rent", -1200.00, time.Now())

	cases := []struct {
		name    string
		op      Operator
		operand string
		want    bool
	}{
		{"less_than", OpLessThan, "-100", true},
		{"greater_than", OpGreaterThan, "-2000", true},
		{"equals_exact_decimal", OpEquals, "-1200.00", true},
		{"equals_different_value", OpEquals, "-1200.01", false},
		{"lte_boundary", OpLessThanOrEqual, "-1200", true},
		{"gte_boundary", OpGreaterThanOrEqual, "-1200", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			operand, err := decimal.NewFromString(tc.operand)
			if err != nil {
				t.Fatalf("bad operand: %v", err)
			}
			p := Number(ColumnAmount, tc.op, operand)
			if got := p.Matches(s); got != tc.want {
				t.Errorf("%s %s: got %v, want %v", tc.op, tc.operand, got, tc.want)
			}
		})
	}
}

func TestDatePredicates(t *testing.T) {
	// 2024-03-16 is a Saturday.
	s := subject("coffee", -4.5, mustDate(t, "2024-03-16"))

	cases := []struct {
		name    string
		op      Operator
		operand string
		want    bool
	}{
		{"after", OpAfter, "2024-03-15", true},
		{"before", OpBefore, "2024-03-15", false},
		{"on", OpOn, "2024-03-16", true},
		{"on_slash_layout", OpOn, "2024/03/16", true},
		{"day_of_week", OpDayOfWeek, "saturday", true},
		{"day_of_week_mixed_case", OpDayOfWeek, "SaTuRdAy", true},
		{"day_of_week_miss", OpDayOfWeek, "monday", false},
		{"unparseable_operand_is_false", OpOn, "not a date", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Date(ColumnDate, tc.op, tc.operand)
			if got := p.Matches(s); got != tc.want {
				t.Errorf("%s %q: got %v, want %v", tc.op, tc.operand, got, tc.want)
			}
		})
	}
}

func TestCompoundPredicates(t *testing.T) {
	s := subject("Whole Foods Market", -85.20, mustDate(t, "2024-03-16"))

	groceries := String(ColumnDescription, OpContains, "whole foods")
	bigSpend := Number(ColumnAmount, OpLessThan, decimal.NewFromInt(-50))
	netflix := String(ColumnDescription, OpContains, "netflix")

	t.Run("and_all_match", func(t *testing.T) {
		if !And(groceries, bigSpend).Matches(s) {
			t.Error("expected AND of two matching children to match")
		}
	})
	t.Run("and_one_misses", func(t *testing.T) {
		if And(groceries, netflix).Matches(s) {
			t.Error("expected AND with a missing child not to match")
		}
	})
	t.Run("or_one_matches", func(t *testing.T) {
		if !Or(netflix, groceries).Matches(s) {
			t.Error("expected OR with one matching child to match")
		}
	})
	t.Run("nested", func(t *testing.T) {
		nested := And(bigSpend, Or(netflix, groceries))
		if !nested.Matches(s) {
			t.Error("expected nested compound to match")
		}
	})
	t.Run("empty_and_is_vacuously_true", func(t *testing.T) {
		if !And().Matches(s) {
			t.Error("expected empty AND to match")
		}
	})
	t.Run("empty_or_is_false", func(t *testing.T) {
		if Or().Matches(s) {
			t.Error("expected empty OR not to match")
		}
	})
}

func TestMatchesIsTotal(t *testing.T) {
	s := subject("anything", 10, time.Now())

	malformed := []Predicate{
		{},
		{Kind: "UNKNOWN"},
		{Kind: KindString, Column: "garbage", Operator: OpContains, Operand: "x"},
		{Kind: KindString, Column: ColumnDescription, Operator: "NO_SUCH_OP", Operand: "x"},
		{Kind: KindNumber, Column: ColumnAmount, Operator: OpGreaterThan}, // missing operand
		{Kind: KindNumber, Column: ColumnDescription, Operator: OpGreaterThan},
		{Kind: KindDate, Column: ColumnDate, Operator: OpOn, Operand: "???"},
		{Kind: KindCompound, Operator: "XOR", Children: []Predicate{And()}},
	}
	for i, p := range malformed {
		if p.Matches(s) {
			t.Errorf("malformed predicate %d matched; evaluation must be false", i)
		}
	}

	t.Run("absent_fields", func(t *testing.T) {
		empty := Subject{}
		if String(ColumnDescription, OpContains, "x").Matches(empty) {
			t.Error("predicate over absent description must be false")
		}
		if Number(ColumnAmount, OpGreaterThan, decimal.Zero).Matches(empty) {
			t.Error("predicate over absent amount must be false")
		}
	})
}

func TestValidate(t *testing.T) {
	valid := And(
		String(ColumnDescription, OpContains, "amazon"),
		Number(ColumnAmount, OpLessThan, decimal.NewFromInt(-100)),
	)
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid predicate, got %v", err)
	}

	invalid := []struct {
		name string
		p    Predicate
	}{
		{"missing_type", Predicate{Column: ColumnDescription, Operator: OpContains, Operand: "x"}},
		{"unknown_type", Predicate{Kind: "FANCY"}},
		{"leaf_missing_column", Predicate{Kind: KindString, Operator: OpContains, Operand: "x"}},
		{"leaf_missing_operator", Predicate{Kind: KindString, Column: ColumnDescription, Operand: "x"}},
		{"leaf_missing_operand", Predicate{Kind: KindString, Column: ColumnDescription, Operator: OpContains}},
		{"number_missing_operand", Predicate{Kind: KindNumber, Column: ColumnAmount, Operator: OpLessThan}},
		{"compound_bad_operator", Predicate{Kind: KindCompound, Operator: "XOR", Children: []Predicate{String(ColumnDescription, OpContains, "x")}}},
		{"compound_empty_children", And()},
		{"compound_invalid_child", And(Predicate{Kind: KindString})},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.p.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestJSONRoundTrip(t *testing.T) {
	original := And(
		String(ColumnDescription, OpMatches, "amazon|amzn"),
		Or(
			Number(ColumnAmount, OpLessThanOrEqual, decimal.RequireFromString("-19.99")),
			Date(ColumnDate, OpDayOfWeek, "saturday"),
		),
	)

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Predicate
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := decoded.Validate(); err != nil {
		t.Fatalf("round-tripped predicate invalid: %v", err)
	}

	s := subject("AMZN Mktp", -19.99, mustDate(t, "2024-03-13"))
	if decoded.Matches(s) != original.Matches(s) {
		t.Error("round-tripped predicate disagrees with original")
	}
}

func TestUnmarshalWireFormat(t *testing.T) {
	raw := `{
		"type": "COMPOUND",
		"operator": "AND",
		"predicates": [
			{"type": "STRING", "column": "description", "operator": "CONTAINS", "operand": "uber"},
			{"type": "NUMBER", "column": "amount", "operator": "LESS_THAN", "operand": -10}
		]
	}`
	var p Predicate
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("expected valid predicate, got %v", err)
	}

	if !p.Matches(subject("Uber Trip", -23.40, time.Now())) {
		t.Error("expected wire predicate to match")
	}
	if p.Matches(subject("Uber Trip", -5.00, time.Now())) {
		t.Error("expected amount guard to reject small charge")
	}
}

func TestUnmarshalTolerance(t *testing.T) {
	// Mistyped operands decode to zero values; Validate flags them and
	// evaluation is false, but decoding itself never fails.
	raw := `{"type": "NUMBER", "column": "amount", "operator": "LESS_THAN", "operand": "not-a-number"}`
	var p Predicate
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := p.Validate(); err == nil {
		t.Error("expected validation error for unusable operand")
	}
	if p.Matches(subject("x", -100, time.Now())) {
		t.Error("expected malformed node to evaluate to false")
	}
}

func TestParseDate(t *testing.T) {
	layouts := []string{"2024-03-16", "2024/03/16", "03/16/2024", "Mar 16, 2024", "16 Mar 2024"}
	want := time.Date(2024, time.March, 16, 0, 0, 0, 0, time.UTC)
	for _, raw := range layouts {
		got, err := ParseDate(raw)
		if err != nil {
			t.Errorf("ParseDate(%q): %v", raw, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %v, want %v", raw, got, want)
		}
	}

	if _, err := ParseDate("yesterday"); err == nil {
		t.Error("expected error for unparseable date")
	}
}
