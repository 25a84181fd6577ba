package machine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/flow"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/i18n"
)

func TestIsResetToken(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"reset", true},
		{"RESET", true},
		{"  reiniciar  ", true},
		{"empezar de nuevo", true},
		{"Empezar   De   Nuevo", true},
		{"menu", true},
		{"menú", true},
		{"resetear", false},
		{"quiero empezar de nuevo", false},
		{"", false},
		{"hola", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, isResetToken(tt.text))
		})
	}
}

func TestParseYesNo(t *testing.T) {
	tests := []struct {
		text   string
		answer bool
		ok     bool
	}{
		{"si", true, true},
		{"sí", true, true},
		{"Sí", true, true},
		{"s", true, true},
		{"yes", true, true},
		{"1", true, true},
		{"ok", true, true},
		{"dale", true, true},
		{"claro", true, true},
		{"no", false, true},
		{"NO", false, true},
		{"n", false, true},
		{"2", false, true},
		{"quizás", false, false},
		{"si claro", false, false},
		{"", false, false},
		{"3", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			answer, ok := parseYesNo(tt.text)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.answer, answer)
			}
		})
	}
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want int
	}{
		{"structured selection wins", Input{Text: "9", Selection: 2}, 2},
		{"numeric text", Input{Text: "3"}, 3},
		{"padded numeric text", Input{Text: "  4  "}, 4},
		{"non-numeric text", Input{Text: "primero"}, 0},
		{"empty", Input{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseSelection(tt.in))
		})
	}
}

func newHandlerMachine() *Machine {
	return New(nil, nil, nil, nil, nil, i18n.Null(), testLogger(), Options{})
}

func TestHandleAwaitingService(t *testing.T) {
	m := newHandlerMachine()

	t.Run("short service goes straight to city", func(t *testing.T) {
		f := flow.New(phone)
		next, reply := m.handleAwaitingService(f, Input{Text: "plomero"})
		assert.Equal(t, flow.StateAwaitingCity, next.State)
		assert.Equal(t, "plomero", next.Service)
		assert.Equal(t, msgAskCity, reply)
	})

	t.Run("long description needs confirmation", func(t *testing.T) {
		f := flow.New(phone)
		next, _ := m.handleAwaitingService(f, Input{Text: "alguien que me arregle la ducha del segundo piso"})
		assert.Equal(t, flow.StateConfirmService, next.State)
	})

	t.Run("known city asks for confirmation instead", func(t *testing.T) {
		f := flow.New(phone)
		next, _ := m.handleAwaitingService(f, Input{Text: "plomero", KnownCity: "Quito"})
		assert.Equal(t, flow.StateAwaitingCityConfirmation, next.State)
		assert.Equal(t, "Quito", next.City)
		assert.False(t, next.CityConfirmed)
	})

	t.Run("empty text re-prompts", func(t *testing.T) {
		f := flow.New(phone)
		next, reply := m.handleAwaitingService(f, Input{Text: "   "})
		assert.Equal(t, flow.StateAwaitingService, next.State)
		assert.Equal(t, msgAskService, reply)
	})
}

func TestHandleAwaitingCityConfirmation(t *testing.T) {
	m := newHandlerMachine()

	base := func() *flow.ConversationFlow {
		f := flow.New(phone)
		f.State = flow.StateAwaitingCityConfirmation
		f.Service = "plomero"
		f.City = "Quito"
		return f
	}

	t.Run("yes confirms and searches", func(t *testing.T) {
		next, reply := m.handleAwaitingCityConfirmation(base(), Input{Text: "si"})
		assert.Equal(t, flow.StateSearching, next.State)
		assert.True(t, next.CityConfirmed)
		assert.Equal(t, msgSearching, reply)
	})

	t.Run("no clears the remembered city", func(t *testing.T) {
		next, _ := m.handleAwaitingCityConfirmation(base(), Input{Text: "no"})
		assert.Equal(t, flow.StateAwaitingCity, next.State)
		assert.Empty(t, next.City)
	})

	t.Run("gibberish re-prompts until exhausted", func(t *testing.T) {
		f := base()
		for i := 0; i < 2; i++ {
			next, _ := m.handleAwaitingCityConfirmation(f, Input{Text: "tal vez"})
			assert.Equal(t, flow.StateAwaitingCityConfirmation, next.State)
			f = next
		}
		next, _ := m.handleAwaitingCityConfirmation(f, Input{Text: "tal vez"})
		assert.Equal(t, flow.StateAwaitingCity, next.State)
	})
}

func TestHandlePresentingResults(t *testing.T) {
	m := newHandlerMachine()

	base := func() *flow.ConversationFlow {
		f := flow.New(phone)
		f.State = flow.StatePresentingResults
		f.Service = "plomero"
		f.City = "Quito"
		f.Providers = []flow.ProviderCandidate{
			{ID: "p1", Phone: "593991111111", Name: "Ana"},
			{ID: "p2", Phone: "593992222222", Name: "Beto"},
		}
		return f
	}

	t.Run("valid choice opens detail", func(t *testing.T) {
		next, reply := m.handlePresentingResults(base(), Input{Text: "2"})
		assert.Equal(t, flow.StateViewingProviderDetail, next.State)
		assert.Equal(t, 1, next.ProviderDetailIdx)
		assert.Contains(t, reply, "Beto")
	})

	t.Run("out of range repeats the list", func(t *testing.T) {
		next, reply := m.handlePresentingResults(base(), Input{Text: "7"})
		assert.Equal(t, flow.StatePresentingResults, next.State)
		assert.Contains(t, reply, "1. Ana")
	})

	t.Run("zero offers a new search", func(t *testing.T) {
		next, _ := m.handlePresentingResults(base(), Input{Text: "0"})
		assert.Equal(t, flow.StateConfirmNewSearch, next.State)
	})
}

func TestHandleConfirmNewSearch(t *testing.T) {
	m := newHandlerMachine()

	base := func() *flow.ConversationFlow {
		f := flow.New(phone)
		f.State = flow.StateConfirmNewSearch
		f.Service = "plomero"
		f.City = "Quito"
		f.Providers = []flow.ProviderCandidate{{ID: "p1", Phone: "593991111111", Name: "Ana"}}
		return f
	}

	t.Run("yes restarts with the city kept", func(t *testing.T) {
		next, _ := m.handleConfirmNewSearch(base(), Input{Text: "si"})
		assert.Equal(t, flow.StateAwaitingService, next.State)
		assert.Empty(t, next.Service)
		assert.Empty(t, next.Providers)
		assert.Equal(t, "Quito", next.City)
	})

	t.Run("no says goodbye", func(t *testing.T) {
		next, reply := m.handleConfirmNewSearch(base(), Input{Text: "no"})
		assert.Equal(t, flow.StateCompleted, next.State)
		assert.Equal(t, msgGoodbye, reply)
	})
}
