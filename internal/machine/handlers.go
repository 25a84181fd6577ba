package machine

import (
	"strconv"
	"strings"

	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/flow"
)

// resetTokens are the universal escape hatch: any of them restarts the
// conversation from any state, bypassing the graph.
var resetTokens = []string{
	"reset",
	"reiniciar",
	"empezar de nuevo",
	"menu",
	"menú",
}

func isResetToken(text string) bool {
	token := normalizeToken(text)
	for _, t := range resetTokens {
		if token == t {
			return true
		}
	}
	return false
}

var (
	yesTokens = []string{"si", "sí", "s", "yes", "1", "ok", "dale", "claro"}
	noTokens  = []string{"no", "n", "2"}
)

// parseYesNo interprets an affirmation. The second return is false when the
// input matches neither vocabulary.
func parseYesNo(text string) (bool, bool) {
	token := normalizeToken(text)
	for _, t := range yesTokens {
		if token == t {
			return true, true
		}
	}
	for _, t := range noTokens {
		if token == t {
			return false, true
		}
	}
	return false, false
}

func normalizeToken(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(text))), " ")
}

// parseSelection returns a 1-based menu choice from the structured selection
// or from numeric text.
func parseSelection(in Input) int {
	if in.Selection > 0 {
		return in.Selection
	}

	if n, err := strconv.Atoi(strings.TrimSpace(in.Text)); err == nil {
		return n
	}

	return 0
}

func (m *Machine) handleAwaitingConsent(f *flow.ConversationFlow, in Input) (*flow.ConversationFlow, string) {
	answer, ok := parseYesNo(in.Text)
	if !ok {
		return f, m.tr.T(msgAskConsent)
	}

	if !answer {
		f.State = flow.StateCompleted
		return f, m.tr.T(msgConsentDeclined)
	}

	f.State = flow.StateAwaitingService
	return f, m.tr.T(msgAskService)
}

func (m *Machine) handleAwaitingService(f *flow.ConversationFlow, in Input) (*flow.ConversationFlow, string) {
	service := strings.TrimSpace(in.Text)
	if service == "" {
		return f, m.tr.T(msgAskService)
	}

	f.Service = service
	f.ConfirmAttempts = 0

	// Long free-form descriptions get an explicit confirmation step.
	if len(strings.Fields(service)) > 5 {
		f.State = flow.StateConfirmService
		return f, renderConfirmService(m.tr, service)
	}

	if in.KnownCity != "" {
		f.City = in.KnownCity
		f.CityConfirmed = false
		f.State = flow.StateAwaitingCityConfirmation
		return f, renderConfirmCity(m.tr, in.KnownCity)
	}

	f.State = flow.StateAwaitingCity
	return f, m.tr.T(msgAskCity)
}

func (m *Machine) handleConfirmService(f *flow.ConversationFlow, in Input) (*flow.ConversationFlow, string) {
	answer, ok := parseYesNo(in.Text)
	if !ok {
		f.ConfirmAttempts++
		if f.ConfirmAttempts >= m.opts.MaxConfirmAttempts {
			f.State = flow.StateAwaitingService
			f.Service = ""
			f.ConfirmAttempts = 0
			return f, m.tr.T(msgAskService)
		}
		return f, renderConfirmService(m.tr, f.Service)
	}

	if !answer {
		f.State = flow.StateAwaitingService
		f.Service = ""
		f.ConfirmAttempts = 0
		return f, m.tr.T(msgAskService)
	}

	f.ConfirmAttempts = 0
	if in.KnownCity != "" {
		f.City = in.KnownCity
		f.CityConfirmed = false
		f.State = flow.StateAwaitingCityConfirmation
		return f, renderConfirmCity(m.tr, in.KnownCity)
	}

	f.State = flow.StateAwaitingCity
	return f, m.tr.T(msgAskCity)
}

func (m *Machine) handleAwaitingCity(f *flow.ConversationFlow, in Input) (*flow.ConversationFlow, string) {
	city := strings.TrimSpace(in.Text)
	if city == "" {
		return f, m.tr.T(msgAskCity)
	}

	f.City = city
	f.CityConfirmed = true
	f.State = flow.StateSearching
	return f, m.tr.T(msgSearching)
}

func (m *Machine) handleAwaitingCityConfirmation(f *flow.ConversationFlow, in Input) (*flow.ConversationFlow, string) {
	answer, ok := parseYesNo(in.Text)
	if !ok {
		f.ConfirmAttempts++
		if f.ConfirmAttempts >= m.opts.MaxConfirmAttempts {
			f.State = flow.StateAwaitingCity
			f.City = ""
			f.ConfirmAttempts = 0
			return f, m.tr.T(msgAskCity)
		}
		return f, renderConfirmCity(m.tr, f.City)
	}

	f.ConfirmAttempts = 0
	if !answer {
		f.State = flow.StateAwaitingCity
		f.City = ""
		f.CityConfirmed = false
		return f, m.tr.T(msgAskCity)
	}

	f.CityConfirmed = true
	f.State = flow.StateSearching
	return f, m.tr.T(msgSearching)
}

// handleSearching answers messages that arrive while a broadcast is already
// in flight.
func (m *Machine) handleSearching(f *flow.ConversationFlow, in Input) (*flow.ConversationFlow, string) {
	return f, m.tr.T(msgStillSearching)
}

func (m *Machine) handlePresentingResults(f *flow.ConversationFlow, in Input) (*flow.ConversationFlow, string) {
	if normalizeToken(in.Text) == "0" || normalizeToken(in.Text) == "otra" {
		f.State = flow.StateConfirmNewSearch
		return f, m.tr.T(msgOfferNewSearch)
	}

	choice := parseSelection(in)
	if choice < 1 || choice > len(f.Providers) {
		return f, renderProviderList(m.tr, f.Providers)
	}

	f.ProviderDetailIdx = choice - 1
	f.State = flow.StateViewingProviderDetail
	return f, renderProviderDetail(m.tr, f.Providers[choice-1])
}

func (m *Machine) handleViewingProviderDetail(f *flow.ConversationFlow, in Input) (*flow.ConversationFlow, string) {
	token := normalizeToken(in.Text)
	if token == "volver" || token == "atras" || token == "atrás" || token == "0" {
		f.State = flow.StatePresentingResults
		return f, renderProviderList(m.tr, f.Providers)
	}

	answer, ok := parseYesNo(in.Text)
	if !ok {
		return f, renderProviderDetail(m.tr, f.Providers[f.ProviderDetailIdx])
	}

	if !answer {
		f.State = flow.StatePresentingResults
		return f, renderProviderList(m.tr, f.Providers)
	}

	f.State = flow.StateAwaitingContactShare
	return f, m.tr.T(msgAskContactShare)
}

func (m *Machine) handleAwaitingContactShare(f *flow.ConversationFlow, in Input) (*flow.ConversationFlow, string) {
	answer, ok := parseYesNo(in.Text)
	if !ok {
		f.ConfirmAttempts++
		if f.ConfirmAttempts >= m.opts.MaxConfirmAttempts {
			f.State = flow.StateConfirmNewSearch
			f.ConfirmAttempts = 0
			return f, m.tr.T(msgOfferNewSearch)
		}
		return f, m.tr.T(msgAskContactShare)
	}

	f.ConfirmAttempts = 0
	if !answer {
		f.State = flow.StatePresentingResults
		return f, renderProviderList(m.tr, f.Providers)
	}

	if f.ProviderDetailIdx >= 0 && f.ProviderDetailIdx < len(f.Providers) {
		chosen := f.Providers[f.ProviderDetailIdx]
		f.ChosenProvider = &chosen
	}

	f.State = flow.StateAwaitingHiringFeedback
	return f, renderContactShared(m.tr, f.ChosenProvider)
}

func (m *Machine) handleConfirmNewSearch(f *flow.ConversationFlow, in Input) (*flow.ConversationFlow, string) {
	answer, ok := parseYesNo(in.Text)
	if !ok {
		f.ConfirmAttempts++
		if f.ConfirmAttempts >= m.opts.MaxConfirmAttempts {
			f.State = flow.StateCompleted
			f.ConfirmAttempts = 0
			return f, m.tr.T(msgGoodbye)
		}
		return f, m.tr.T(msgOfferNewSearch)
	}

	f.ConfirmAttempts = 0
	if !answer {
		f.State = flow.StateCompleted
		return f, m.tr.T(msgGoodbye)
	}

	f.State = flow.StateAwaitingService
	f.Service = ""
	f.Providers = nil
	f.ChosenProvider = nil
	f.ProviderDetailIdx = 0
	return f, m.tr.T(msgAskService)
}

func (m *Machine) handleAwaitingHiringFeedback(f *flow.ConversationFlow, in Input) (*flow.ConversationFlow, string) {
	answer, ok := parseYesNo(in.Text)
	if ok && !answer {
		f.State = flow.StateConfirmNewSearch
		return f, m.tr.T(msgOfferNewSearch)
	}

	if strings.TrimSpace(in.Text) == "" {
		return f, m.tr.T(msgAskHiringFeedback)
	}

	f.State = flow.StateCompleted
	return f, m.tr.T(msgThanksFeedback)
}

func (m *Machine) handleCompleted(f *flow.ConversationFlow, in Input) (*flow.ConversationFlow, string) {
	fresh := flow.New(f.Phone)
	return fresh, m.tr.T(msgWelcome)
}

func (m *Machine) handleError(f *flow.ConversationFlow, in Input) (*flow.ConversationFlow, string) {
	fresh := flow.New(f.Phone)
	return fresh, m.tr.T(msgRecovered)
}
