package pricing

import (
	"errors"
	"fmt"
)

// ErrMissingBase is matched (errors.Is) by every MissingBaseError.
var ErrMissingBase = errors.New("pricing: portée de ligne spéciale introuvable")

// MissingBaseError is a structural-integrity failure: a special line whose
// scope does not resolve to an entity of the devis, typically a deleted
// partie or sous-partie.
type MissingBaseError struct {
	LigneSpecialeID string
	Scope           string
}

func (e *MissingBaseError) Error() string {
	return fmt.Sprintf("ligne spéciale %s: portée %s introuvable dans le devis", e.LigneSpecialeID, e.Scope)
}

func (e *MissingBaseError) Unwrap() error { return ErrMissingBase }

// ErrInvalidLine is matched by every InvalidLineError.
var ErrInvalidLine = errors.New("pricing: ligne invalide")

// InvalidLineError names a line whose kind, value type or amount cannot be
// used. Nothing is defaulted: the whole computation is rejected.
type InvalidLineError struct {
	Entity string // "ligne_speciale" | "ligne"
	ID     string
	Reason string
}

func (e *InvalidLineError) Error() string {
	return fmt.Sprintf("%s %s invalide: %s", e.Entity, e.ID, e.Reason)
}

func (e *InvalidLineError) Unwrap() error { return ErrInvalidLine }
