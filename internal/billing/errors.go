package billing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation is matched by every per-line rejection of this package.
	ErrValidation = errors.New("billing: situation invalide")
	// ErrState is matched by every StateError.
	ErrState = errors.New("billing: transition de statut interdite")
	// ErrMotifRequis is returned when a correction has no motive.
	ErrMotifRequis = errors.New("billing: le motif de correction est obligatoire")
)

// LineKind names which collection a rejected line belongs to.
type LineKind string

const (
	KindLigne          LineKind = "ligne"
	KindLigneSpeciale  LineKind = "ligne_speciale"
	KindLigneAvenant   LineKind = "ligne_avenant"
	KindSupplementaire LineKind = "ligne_supplementaire"
)

// MonotonicityError is a percentage going down between two periods outside
// of a correction.
type MonotonicityError struct {
	Kind      LineKind
	ID        string
	Precedent decimal.Decimal
	Actuel    decimal.Decimal
}

func (e *MonotonicityError) Error() string {
	return fmt.Sprintf("%s %s: avancement %s%% inférieur au précédent %s%%",
		e.Kind, e.ID, e.Actuel.String(), e.Precedent.String())
}

func (e *MonotonicityError) Unwrap() error { return ErrValidation }

// MissingLineError is a line billed in the previous period with a nonzero
// percentage for which this period carries no percentage.
type MissingLineError struct {
	Kind      LineKind
	ID        string
	Precedent decimal.Decimal
}

func (e *MissingLineError) Error() string {
	return fmt.Sprintf("%s %s: avancement précédent %s%% sans avancement pour la période",
		e.Kind, e.ID, e.Precedent.String())
}

func (e *MissingLineError) Unwrap() error { return ErrValidation }

// UnknownLineError is a percentage supplied for a line that is not part of
// the priced devis.
type UnknownLineError struct {
	Kind LineKind
	ID   string
}

func (e *UnknownLineError) Error() string {
	return fmt.Sprintf("%s %s: introuvable dans le devis", e.Kind, e.ID)
}

func (e *UnknownLineError) Unwrap() error { return ErrValidation }

// ValueError is a percentage outside [0, 100] or a negative amount or rate.
type ValueError struct {
	Kind   LineKind
	ID     string
	Field  string
	Valeur decimal.Decimal
}

func (e *ValueError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s invalide: %s", e.Field, e.Valeur.String())
	}
	return fmt.Sprintf("%s %s: %s invalide: %s", e.Kind, e.ID, e.Field, e.Valeur.String())
}

func (e *ValueError) Unwrap() error { return ErrValidation }

// StateError is an action refused by the situation lifecycle.
type StateError struct {
	Statut Statut
	Action string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("situation %s: action %q interdite", e.Statut, e.Action)
}

func (e *StateError) Unwrap() error { return ErrState }
