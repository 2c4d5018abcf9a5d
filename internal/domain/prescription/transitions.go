package prescription

// transitions is the prescription status adjacency table. PAID -> REVIEWED
// is a deliberate reversal edge (refund before dispense); it is encoded as
// its own entry, not derived from the forward edge, because most forward
// edges have no reverse.
var transitions = map[Status]map[Status]bool{
	StatusDraft: {
		StatusIssued: true,
	},
	StatusIssued: {
		StatusReviewed: true,
	},
	StatusReviewed: {
		StatusPaid: true,
	},
	StatusPaid: {
		StatusDispensed: true,
		StatusReviewed:  true,
	},
	StatusDispensed: {
		StatusRefunded: true,
	},
}

// CanTransition reports whether from -> to is a legal edge. Same-state
// transitions are always rejected.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	return transitions[from][to]
}
