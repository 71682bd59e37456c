package tree

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind is the effect a special line has on the running value of its scope.
type Kind string

const (
	KindReduction Kind = "reduction"
	KindAddition  Kind = "addition"
	KindDisplay   Kind = "display"
)

func (k Kind) Valid() bool {
	return k == KindReduction || k == KindAddition || k == KindDisplay
}

// ValueType tells how Value is turned into an amount.
type ValueType string

const (
	ValueFixed      ValueType = "fixed"
	ValuePercentage ValueType = "percentage"
)

func (v ValueType) Valid() bool {
	return v == ValueFixed || v == ValuePercentage
}

type ScopeKind string

const (
	ScopeGlobal     ScopeKind = "global"
	ScopePartie     ScopeKind = "partie"
	ScopeSousPartie ScopeKind = "sous_partie"
)

// Scope identifies where a special line applies. ID is empty for the global
// scope.
type Scope struct {
	Kind ScopeKind
	ID   string
}

var Global = Scope{Kind: ScopeGlobal}

func PartieScope(id string) Scope     { return Scope{Kind: ScopePartie, ID: id} }
func SousPartieScope(id string) Scope { return Scope{Kind: ScopeSousPartie, ID: id} }

// String renders the persisted form: "global", "partie:<id>", "sous_partie:<id>".
func (s Scope) String() string {
	if s.Kind == ScopeGlobal {
		return string(ScopeGlobal)
	}
	return string(s.Kind) + ":" + s.ID
}

// ParseScope parses the persisted scope string.
func ParseScope(raw string) (Scope, error) {
	raw = strings.TrimSpace(raw)
	if raw == string(ScopeGlobal) {
		return Global, nil
	}
	kind, id, ok := strings.Cut(raw, ":")
	if !ok || id == "" {
		return Scope{}, fmt.Errorf("portée invalide %q", raw)
	}
	switch ScopeKind(kind) {
	case ScopePartie, ScopeSousPartie:
		return Scope{Kind: ScopeKind(kind), ID: id}, nil
	}
	return Scope{}, fmt.Errorf("portée invalide %q", raw)
}

// LigneSpeciale is the single tagged variant every special line is
// normalised into. Style is opaque presentation data and never read by the
// computation.
type LigneSpeciale struct {
	ID          string
	Description string
	Scope       Scope
	Type        Kind
	ValueType   ValueType
	Value       decimal.Decimal
	IndexGlobal decimal.Decimal
	Seq         int
	Style       map[string]any
}

// Amount evaluates the line against the running value of its scope.
func (l LigneSpeciale) Amount(running decimal.Decimal) decimal.Decimal {
	if l.ValueType == ValuePercentage {
		return running.Mul(l.Value).Div(decimal.NewFromInt(100))
	}
	return l.Value
}

// Apply returns the running value after the line. Display lines leave it
// untouched.
func (l LigneSpeciale) Apply(running, amount decimal.Decimal) decimal.Decimal {
	switch l.Type {
	case KindAddition:
		return running.Add(amount)
	case KindReduction:
		return running.Sub(amount)
	}
	return running
}

// Signed returns amount with the sign of its effect on a total: positive for
// additions, negative for reductions, zero for display lines.
func (l LigneSpeciale) Signed(amount decimal.Decimal) decimal.Decimal {
	switch l.Type {
	case KindAddition:
		return amount
	case KindReduction:
		return amount.Neg()
	}
	return decimal.Zero
}
