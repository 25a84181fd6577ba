package flow

// validTransitions contains the permitted transitions in the conversation
// graph. Self-loops cover retry/invalid-input turns; the edges out of
// StateError are the only recovery path after a handler failure.
var validTransitions = map[State][]State{
	StateAwaitingConsent: {
		StateAwaitingService,
		StateCompleted,
		StateAwaitingConsent,
	},
	StateAwaitingService: {
		StateConfirmService,
		StateAwaitingCity,
		StateAwaitingCityConfirmation,
		StateAwaitingService,
	},
	StateConfirmService: {
		StateAwaitingCity,
		StateAwaitingCityConfirmation,
		StateAwaitingService,
		StateConfirmService,
	},
	StateAwaitingCity: {
		StateAwaitingCityConfirmation,
		StateSearching,
		StateAwaitingCity,
	},
	StateAwaitingCityConfirmation: {
		StateSearching,
		StateAwaitingCity,
		StateAwaitingCityConfirmation,
	},
	StateSearching: {
		StatePresentingResults,
		StateConfirmNewSearch,
		StateSearching,
	},
	StatePresentingResults: {
		StateViewingProviderDetail,
		StateAwaitingContactShare,
		StateConfirmNewSearch,
		StatePresentingResults,
	},
	StateViewingProviderDetail: {
		StateAwaitingContactShare,
		StatePresentingResults,
		StateViewingProviderDetail,
	},
	StateAwaitingContactShare: {
		StateAwaitingHiringFeedback,
		StatePresentingResults,
		StateConfirmNewSearch,
		StateAwaitingContactShare,
	},
	StateConfirmNewSearch: {
		StateAwaitingService,
		StateCompleted,
		StateConfirmNewSearch,
	},
	StateAwaitingHiringFeedback: {
		StateCompleted,
		StateConfirmNewSearch,
		StateAwaitingHiringFeedback,
	},
	StateCompleted: {
		StateAwaitingService,
	},
	StateError: {
		StateAwaitingService,
		StateCompleted,
	},
}

// IsTransitionAllowed reports whether moving from one state to another is
// valid. StateError is reachable from every state; everything else must
// follow the graph, including staying in place.
func IsTransitionAllowed(from, to State) bool {
	if to == StateError {
		return true
	}

	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}

	for _, state := range allowed {
		if state == to {
			return true
		}
	}

	return false
}

// AllowedTargets returns the set of states reachable from the given state.
func AllowedTargets(from State) []State {
	allowed := validTransitions[from]
	targets := make([]State, 0, len(allowed)+1)
	targets = append(targets, allowed...)

	hasError := false
	for _, state := range allowed {
		if state == StateError {
			hasError = true
			break
		}
	}
	if !hasError {
		targets = append(targets, StateError)
	}

	return targets
}
