package billing

// Statut is the lifecycle of a situation: brouillon → validee → facturee.
type Statut string

const (
	Brouillon Statut = "brouillon"
	Validee   Statut = "validee"
	Facturee  Statut = "facturee"
)

func (s Statut) Valid() bool {
	return s == Brouillon || s == Validee || s == Facturee
}

// Editable reports whether the situation may still be modified or deleted.
func (s Statut) Editable() bool { return s == Brouillon }

// CheckEditable returns a StateError when action is attempted on a situation
// that has left brouillon.
func CheckEditable(s Statut, action string) error {
	if !s.Editable() {
		return &StateError{Statut: s, Action: action}
	}
	return nil
}

// Transition validates a status change. Only one step forward is allowed
// and facturee is terminal.
func Transition(from, to Statut) error {
	switch {
	case from == Brouillon && to == Validee:
		return nil
	case from == Validee && to == Facturee:
		return nil
	}
	return &StateError{Statut: from, Action: "passage en " + string(to)}
}
