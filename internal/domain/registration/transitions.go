package registration

// transitions is the registration status adjacency table, constructed once
// at process start and consulted read-only by every request. Each edge is
// encoded independently; reversibility is never derived. COMPLETED and
// REFUNDED have no outgoing edges.
var transitions = map[Status]map[Status]bool{
	StatusWaiting: {
		StatusInConsultation: true,
		StatusCancelled:      true,
		StatusPaid:           true,
		StatusCompleted:      true,
	},
	StatusPaid: {
		StatusInConsultation: true,
		StatusCancelled:      true,
	},
	StatusInConsultation: {
		StatusCompleted: true,
	},
	StatusCancelled: {
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
