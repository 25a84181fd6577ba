// Package flow holds the conversation flow record and its state graph.
package flow

import (
	"strings"
	"time"

	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/errors"
)

// State represents a conversation state in the customer flow.
type State string

const (
	// StateAwaitingConsent waits for the customer to accept data processing.
	StateAwaitingConsent State = "AWAITING_CONSENT"
	// StateAwaitingService waits for the customer to describe the service they need.
	StateAwaitingService State = "AWAITING_SERVICE"
	// StateConfirmService asks the customer to confirm the detected service.
	StateConfirmService State = "CONFIRM_SERVICE"
	// StateAwaitingCity waits for the customer's city.
	StateAwaitingCity State = "AWAITING_CITY"
	// StateAwaitingCityConfirmation asks the customer to confirm a previously known city.
	StateAwaitingCityConfirmation State = "AWAITING_CITY_CONFIRMATION"
	// StateSearching broadcasts the request to candidate providers.
	StateSearching State = "SEARCHING"
	// StatePresentingResults shows the list of available providers.
	StatePresentingResults State = "PRESENTING_RESULTS"
	// StateViewingProviderDetail shows one provider's profile.
	StateViewingProviderDetail State = "VIEWING_PROVIDER_DETAIL"
	// StateAwaitingContactShare waits for the customer to accept sharing contacts.
	StateAwaitingContactShare State = "AWAITING_CONTACT_SHARE"
	// StateConfirmNewSearch asks whether the customer wants another search.
	StateConfirmNewSearch State = "CONFIRM_NEW_SEARCH"
	// StateAwaitingHiringFeedback waits for feedback after a contact exchange.
	StateAwaitingHiringFeedback State = "AWAITING_HIRING_FEEDBACK"
	// StateCompleted marks a finished conversation.
	StateCompleted State = "COMPLETED"
	// StateError marks a conversation that hit an unrecoverable handler failure.
	StateError State = "ERROR"
)

// allStates is the closed set of valid states.
var allStates = map[State]struct{}{
	StateAwaitingConsent:          {},
	StateAwaitingService:          {},
	StateConfirmService:           {},
	StateAwaitingCity:             {},
	StateAwaitingCityConfirmation: {},
	StateSearching:                {},
	StatePresentingResults:        {},
	StateViewingProviderDetail:    {},
	StateAwaitingContactShare:     {},
	StateConfirmNewSearch:         {},
	StateAwaitingHiringFeedback:   {},
	StateCompleted:                {},
	StateError:                    {},
}

// IsValid reports whether s belongs to the state enum.
func (s State) IsValid() bool {
	_, ok := allStates[s]
	return ok
}

// ProviderCandidate is a snapshot of a provider offered to the customer.
type ProviderCandidate struct {
	ID    string `json:"id"`
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

// ConversationFlow is the single record describing one customer conversation.
// It is owned by the state machine and mutated only through handler return
// values, never field by field.
type ConversationFlow struct {
	Phone             string              `json:"phone"`
	State             State               `json:"state"`
	Service           string              `json:"service,omitempty"`
	City              string              `json:"city,omitempty"`
	CityConfirmed     bool                `json:"city_confirmed,omitempty"`
	Providers         []ProviderCandidate `json:"providers,omitempty"`
	ChosenProvider    *ProviderCandidate  `json:"chosen_provider,omitempty"`
	ProviderDetailIdx int                 `json:"provider_detail_idx,omitempty"`
	ConfirmAttempts   int                 `json:"confirm_attempts,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// New creates a fresh flow for the given customer in the default state.
func New(phone string) *ConversationFlow {
	now := time.Now().UTC()
	return &ConversationFlow{
		Phone:     CanonicalPhone(phone),
		State:     StateAwaitingService,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so handlers can mutate freely without touching
// the loaded record.
func (f *ConversationFlow) Clone() *ConversationFlow {
	if f == nil {
		return nil
	}

	copied := *f
	if f.Providers != nil {
		copied.Providers = make([]ProviderCandidate, len(f.Providers))
		copy(copied.Providers, f.Providers)
	}
	if f.ChosenProvider != nil {
		chosen := *f.ChosenProvider
		copied.ChosenProvider = &chosen
	}

	return &copied
}

// Validate checks the record invariants.
func (f *ConversationFlow) Validate() error {
	if f == nil {
		return errors.NewValidationError("flow is nil")
	}
	if f.Phone == "" {
		return errors.NewValidationError("flow has no phone")
	}
	if !f.State.IsValid() {
		return errors.NewValidationError("unknown state " + string(f.State))
	}
	if f.State == StateSearching && strings.TrimSpace(f.Service) == "" {
		return errors.NewValidationError("searching requires a service")
	}
	if f.State == StateViewingProviderDetail {
		if f.ProviderDetailIdx < 0 || f.ProviderDetailIdx >= len(f.Providers) {
			return errors.NewValidationError("provider detail index out of range")
		}
	}

	return nil
}

// CanonicalPhone reduces a phone-like identifier to digits and a leading plus.
func CanonicalPhone(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
