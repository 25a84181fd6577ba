// Package machine validates conversation transitions and dispatches per-state handlers.
package machine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	stderrors "errors"

	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/availability"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/errors"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/flow"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/i18n"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/repository"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/saga"
	"github.com/devtinkubot/tinkubot-microservices-sub001/pkg/metrics"
)

// Coordinator is the slice of the availability coordinator the machine needs.
type Coordinator interface {
	RequestAndWait(ctx context.Context, req availability.Request) []flow.ProviderCandidate
}

// Input is one inbound customer turn. Selection carries a 1-based menu
// choice when the transport already parsed one; KnownCity is the city from
// the customer's profile, when any.
type Input struct {
	Text      string
	Selection int
	KnownCity string
}

// Result is the outcome of one processed turn.
type Result struct {
	State flow.State
	Reply string
}

// handlerFunc transforms the current flow and input into the next flow and a
// reply. Handlers receive a clone and must express every mutation through
// the returned record.
type handlerFunc func(f *flow.ConversationFlow, in Input) (*flow.ConversationFlow, string)

// Options bounds handler behavior.
type Options struct {
	MaxConfirmAttempts int
	MaxCandidates      int
}

// Machine loads, dispatches, validates, and persists conversation flows.
type Machine struct {
	store       flow.Store
	customers   repository.CustomerRepository
	directory   repository.ProviderDirectory
	coordinator Coordinator
	errHandler  *errors.Handler
	tr          i18n.Translator
	log         *slog.Logger
	opts        Options

	handlers map[flow.State]handlerFunc
}

// New builds a Machine with the full handler registry.
func New(
	store flow.Store,
	customers repository.CustomerRepository,
	directory repository.ProviderDirectory,
	coordinator Coordinator,
	errHandler *errors.Handler,
	tr i18n.Translator,
	log *slog.Logger,
	opts Options,
) *Machine {
	if log == nil {
		log = slog.Default()
	}
	if tr == nil {
		tr = i18n.Null()
	}
	if opts.MaxConfirmAttempts <= 0 {
		opts.MaxConfirmAttempts = 3
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = 10
	}

	m := &Machine{
		store:       store,
		customers:   customers,
		directory:   directory,
		coordinator: coordinator,
		errHandler:  errHandler,
		tr:          tr,
		log:         log,
		opts:        opts,
	}

	m.handlers = map[flow.State]handlerFunc{
		flow.StateAwaitingConsent:          m.handleAwaitingConsent,
		flow.StateAwaitingService:          m.handleAwaitingService,
		flow.StateConfirmService:           m.handleConfirmService,
		flow.StateAwaitingCity:             m.handleAwaitingCity,
		flow.StateAwaitingCityConfirmation: m.handleAwaitingCityConfirmation,
		flow.StateSearching:                m.handleSearching,
		flow.StatePresentingResults:        m.handlePresentingResults,
		flow.StateViewingProviderDetail:    m.handleViewingProviderDetail,
		flow.StateAwaitingContactShare:     m.handleAwaitingContactShare,
		flow.StateConfirmNewSearch:         m.handleConfirmNewSearch,
		flow.StateAwaitingHiringFeedback:   m.handleAwaitingHiringFeedback,
		flow.StateCompleted:                m.handleCompleted,
		flow.StateError:                    m.handleError,
	}

	return m
}

// ProcessMessage runs one conversation turn: load or create the flow, apply
// the reset escape hatch or the state handler, validate the produced
// transition against the graph, persist, and reply. An invalid transition
// discards the handler's mutation and keeps the prior state.
func (m *Machine) ProcessMessage(ctx context.Context, phone, text string, selection int) (*Result, error) {
	start := time.Now()
	phone = flow.CanonicalPhone(phone)
	if phone == "" {
		return nil, errors.NewValidationError("empty customer phone")
	}

	current, err := m.store.Get(ctx, phone)
	if err != nil {
		if !stderrors.Is(err, flow.ErrFlowNotFound) {
			reply, _ := m.handleErr(ctx, errors.NewStorageError(err))
			return &Result{State: flow.StateError, Reply: reply}, nil
		}
		current = flow.New(phone)
	}
	old := current.State

	if isResetToken(text) {
		fresh := flow.New(phone)
		if err := m.store.Set(ctx, phone, fresh); err != nil {
			reply, _ := m.handleErr(ctx, errors.NewStorageError(err))
			return &Result{State: old, Reply: reply}, nil
		}

		m.log.Info("conversation reset", slog.String("phone", phone), slog.String("from", string(old)))
		metrics.RecordMessage(string(old), "reset", time.Since(start))
		return &Result{State: fresh.State, Reply: m.tr.T(msgWelcome)}, nil
	}

	in := Input{Text: text, Selection: selection, KnownCity: m.knownCity(ctx, phone)}

	next, reply, handlerErr := m.dispatch(current, in)
	if handlerErr != nil {
		// No partial persistence: only the ERROR marker is written.
		errFlow := current.Clone()
		errFlow.State = flow.StateError
		if setErr := m.store.Set(ctx, phone, errFlow); setErr != nil {
			m.log.Error("failed to persist error state", slog.String("phone", phone), slog.Any("error", setErr))
		}

		userMsg, _ := m.handleErr(ctx, handlerErr)
		metrics.RecordMessage(string(old), "error", time.Since(start))
		metrics.RecordStateTransition(string(old), string(flow.StateError))
		return &Result{State: flow.StateError, Reply: userMsg}, nil
	}

	if next == nil {
		next = current.Clone()
	}

	if !flow.IsTransitionAllowed(old, next.State) {
		m.log.Warn("handler produced invalid transition",
			slog.String("phone", phone),
			slog.String("from", string(old)),
			slog.String("to", string(next.State)))
		metrics.RecordInvalidTransition(string(old), string(next.State))
		metrics.RecordMessage(string(old), "invalid_transition", time.Since(start))
		return &Result{State: old, Reply: m.tr.T(msgTryAgain)}, nil
	}

	if err := next.Validate(); err != nil {
		m.log.Warn("handler produced invalid flow", slog.String("phone", phone), slog.Any("error", err))
		metrics.RecordMessage(string(old), "invalid_flow", time.Since(start))
		return &Result{State: old, Reply: m.tr.T(msgTryAgain)}, nil
	}

	if err := m.store.Set(ctx, phone, next); err != nil {
		reply, _ := m.handleErr(ctx, errors.NewStorageError(err))
		return &Result{State: old, Reply: reply}, nil
	}

	if next.State != old {
		metrics.RecordStateTransition(string(old), string(next.State))
	}
	metrics.RecordMessage(string(old), "ok", time.Since(start))

	// Entering SEARCHING triggers the saga-driven broadcast; its outcome
	// decides the next committed transition.
	if next.State == flow.StateSearching && old != flow.StateSearching {
		return m.runSearchPhase(ctx, next, start)
	}

	return &Result{State: next.State, Reply: reply}, nil
}

// dispatch runs the handler for the current state, converting panics into
// errors so a broken handler lands the flow in ERROR instead of taking the
// process down.
func (m *Machine) dispatch(current *flow.ConversationFlow, in Input) (next *flow.ConversationFlow, reply string, err error) {
	handler, ok := m.handlers[current.State]
	if !ok {
		return nil, "", errors.NewValidationError("no handler for state " + string(current.State))
	}

	defer func() {
		if r := recover(); r != nil {
			next = nil
			reply = ""
			err = fmt.Errorf("handler panic in state %s: %v", current.State, r)
		}
	}()

	next, reply = handler(current.Clone(), in)
	return next, reply, nil
}

// runSearchPhase executes the search saga for a flow that just entered
// SEARCHING and commits the resulting transition.
func (m *Machine) runSearchPhase(ctx context.Context, f *flow.ConversationFlow, start time.Time) (*Result, error) {
	search := NewBroadcastSearchCommand(m.directory, m.coordinator, f.Phone, f.Service, f.City, m.opts.MaxCandidates)

	s := saga.New(m.log).
		Add(NewUpdateCityCommand(m.customers, f.Phone, f.City)).
		Add(search).
		Add(NewSaveProvidersCommand(m.store, f.Phone, search.Result))

	if err := s.Execute(ctx); err != nil {
		userMsg, _ := m.handleErr(ctx, errors.NewSagaError(err))
		return m.commitSearchOutcome(ctx, f.Phone, flow.StateConfirmNewSearch, userMsg+" "+m.tr.T(msgOfferNewSearch), start)
	}

	accepted := search.Result()
	if len(accepted) == 0 {
		return m.commitSearchOutcome(ctx, f.Phone, flow.StateConfirmNewSearch, m.tr.T(msgNobodyAvailable), start)
	}

	updated, err := m.transitionWithRetry(ctx, f.Phone, flow.StatePresentingResults)
	if err != nil {
		reply, _ := m.handleErr(ctx, errors.NewStorageError(err))
		return &Result{State: flow.StateSearching, Reply: reply}, nil
	}

	metrics.RecordStateTransition(string(flow.StateSearching), string(flow.StatePresentingResults))
	metrics.RecordMessage(string(flow.StateSearching), "ok", time.Since(start))
	return &Result{State: updated.State, Reply: renderProviderList(m.tr, updated.Providers)}, nil
}

func (m *Machine) commitSearchOutcome(ctx context.Context, phone string, target flow.State, reply string, start time.Time) (*Result, error) {
	if _, err := m.transitionWithRetry(ctx, phone, target); err != nil {
		userMsg, _ := m.handleErr(ctx, errors.NewStorageError(err))
		return &Result{State: flow.StateSearching, Reply: userMsg}, nil
	}

	metrics.RecordStateTransition(string(flow.StateSearching), string(target))
	metrics.RecordMessage(string(flow.StateSearching), "ok", time.Since(start))
	return &Result{State: target, Reply: reply}, nil
}

// transitionWithRetry commits a search outcome with backoff. A transient
// store failure here would throw away a finished broadcast, so it is worth a
// few attempts. Graph violations are never retried.
func (m *Machine) transitionWithRetry(ctx context.Context, phone string, target flow.State) (*flow.ConversationFlow, error) {
	var updated *flow.ConversationFlow
	err := errors.WithRetry(ctx, func() error {
		var terr error
		updated, terr = m.store.Transition(ctx, phone, target)
		if terr == nil {
			return nil
		}
		if stderrors.Is(terr, flow.ErrInvalidTransition) {
			return terr
		}
		return errors.NewStorageError(terr)
	})

	return updated, err
}

// knownCity looks up the customer's confirmed city; a missing profile or a
// read failure simply means no known city.
func (m *Machine) knownCity(ctx context.Context, phone string) string {
	if m.customers == nil {
		return ""
	}

	customer, err := m.customers.FindByPhone(ctx, phone)
	if err != nil || customer == nil || !customer.CityConfirmed {
		return ""
	}

	return customer.City
}

func (m *Machine) handleErr(ctx context.Context, err error) (string, bool) {
	if m.errHandler != nil {
		return m.errHandler.Handle(ctx, err)
	}

	m.log.Error("unhandled error", slog.Any("error", err))
	return m.tr.T(msgTryAgain), false
}
