package alerts

// Kind classifies the current stock level.
type Kind string

const (
	KindNone       Kind = "none"
	KindNormal     Kind = "normal"
	KindLowStock   Kind = "low_stock"
	KindOutOfStock Kind = "out_of_stock"
)

// Classify maps an available count onto a Kind.
func Classify(available, threshold int64) Kind {
	switch {
	case available <= 0:
		return KindOutOfStock
	case available <= threshold:
		return KindLowStock
	default:
		return KindNormal
	}
}

// State is the last evaluation outcome. It lives in memory only, so a restart re-announces once.
type State struct {
	LastKind  Kind   `json:"last_alert_kind"`
	LastCount *int64 `json:"last_alert_count"`
}

func initialState() State {
	return State{LastKind: KindNone}
}

// shouldAlert reports whether an evaluation landing on kind/count must notify.
// Normal never alerts; otherwise the first evaluation, a kind change or a count change does.
func shouldAlert(prev State, kind Kind, count int64) bool {
	if kind == KindNormal {
		return false
	}
	if prev.LastKind == KindNone || prev.LastCount == nil {
		return true
	}
	if prev.LastKind != kind {
		return true
	}
	return *prev.LastCount != count
}

func (s State) next(kind Kind, count int64) State {
	n := count
	return State{LastKind: kind, LastCount: &n}
}
