package machine

import (
	"context"
	"fmt"
	"time"

	stderrors "errors"

	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/availability"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/domain"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/flow"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/repository"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/saga"
)

// UpdateCityCommand writes the customer's confirmed city to the profile
// store, remembering the previous value so Undo is a true compensation.
type UpdateCityCommand struct {
	saga.Effect

	repo  repository.CustomerRepository
	phone string
	city  string

	prevCity      string
	prevConfirmed bool
	hadProfile    bool
}

// NewUpdateCityCommand builds the city-update step.
func NewUpdateCityCommand(repo repository.CustomerRepository, phone, city string) *UpdateCityCommand {
	return &UpdateCityCommand{
		repo:  repo,
		phone: phone,
		city:  city,
	}
}

func (c *UpdateCityCommand) Name() string { return "update_customer_city" }

// Execute captures the prior city and writes the new one, creating the
// profile when the customer is unknown.
func (c *UpdateCityCommand) Execute(ctx context.Context) error {
	customer, err := c.repo.FindByPhone(ctx, c.phone)
	switch {
	case err == nil:
		c.hadProfile = true
		c.prevCity = customer.City
		c.prevConfirmed = customer.CityConfirmed
	case stderrors.Is(err, repository.ErrCustomerNotFound):
		c.hadProfile = false
	default:
		return fmt.Errorf("load customer profile: %w", err)
	}

	if !c.hadProfile {
		if err := c.repo.Upsert(ctx, &domain.Customer{
			Phone:         c.phone,
			City:          c.city,
			CityConfirmed: true,
			CreatedAt:     time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("create customer profile: %w", err)
		}
		c.MarkApplied()
		return nil
	}

	if err := c.repo.UpdateCity(ctx, c.phone, c.city); err != nil {
		return fmt.Errorf("update customer city: %w", err)
	}

	c.MarkApplied()
	return nil
}

// Undo restores the previous city. It is a no-op unless the write landed.
func (c *UpdateCityCommand) Undo(ctx context.Context) error {
	if !c.Applied() {
		return nil
	}

	if err := c.repo.Upsert(ctx, &domain.Customer{
		Phone:         c.phone,
		City:          c.prevCity,
		CityConfirmed: c.prevConfirmed,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("restore customer city: %w", err)
	}

	c.MarkReverted()
	return nil
}

// BroadcastSearchCommand looks up candidate providers and runs the
// availability coordination window. It has no persistent effect of its own,
// so Undo is a recorded no-op.
type BroadcastSearchCommand struct {
	saga.Effect

	directory   repository.ProviderDirectory
	coordinator Coordinator
	phone       string
	service     string
	city        string
	limit       int

	accepted []flow.ProviderCandidate
}

// NewBroadcastSearchCommand builds the search-and-broadcast step.
func NewBroadcastSearchCommand(
	directory repository.ProviderDirectory,
	coordinator Coordinator,
	phone, service, city string,
	limit int,
) *BroadcastSearchCommand {
	return &BroadcastSearchCommand{
		directory:   directory,
		coordinator: coordinator,
		phone:       phone,
		service:     service,
		city:        city,
		limit:       limit,
	}
}

func (c *BroadcastSearchCommand) Name() string { return "broadcast_availability_search" }

// Execute queries the directory and waits out the coordination window. An
// empty accepted list is a valid outcome, not an error.
func (c *BroadcastSearchCommand) Execute(ctx context.Context) error {
	providers, err := c.directory.FindByServiceAndCity(ctx, c.service, c.city, c.limit)
	if err != nil {
		return fmt.Errorf("load provider candidates: %w", err)
	}

	candidates := make([]flow.ProviderCandidate, 0, len(providers))
	for _, p := range providers {
		candidates = append(candidates, flow.ProviderCandidate{
			ID:    p.ID,
			Phone: p.Phone,
			Name:  p.Name,
		})
	}

	c.accepted = c.coordinator.RequestAndWait(ctx, availability.Request{
		Phone:      c.phone,
		Service:    c.service,
		City:       c.city,
		Candidates: candidates,
	})

	c.MarkApplied()
	return nil
}

// Undo records the step as reverted; the broadcast itself cannot be recalled
// and leaves no state behind.
func (c *BroadcastSearchCommand) Undo(ctx context.Context) error {
	c.MarkReverted()
	return nil
}

// Result returns the providers that accepted, in candidate order.
func (c *BroadcastSearchCommand) Result() []flow.ProviderCandidate {
	return c.accepted
}

// SaveProvidersCommand persists the accepted-provider snapshot into the flow
// record, keeping the previous snapshot for compensation.
type SaveProvidersCommand struct {
	saga.Effect

	store     flow.Store
	phone     string
	providers func() []flow.ProviderCandidate

	prev    []flow.ProviderCandidate
	prevIdx int
}

// NewSaveProvidersCommand builds the snapshot step. The providers source is
// resolved at execution time so it can consume the broadcast step's result.
func NewSaveProvidersCommand(store flow.Store, phone string, providers func() []flow.ProviderCandidate) *SaveProvidersCommand {
	return &SaveProvidersCommand{
		store:     store,
		phone:     phone,
		providers: providers,
	}
}

func (c *SaveProvidersCommand) Name() string { return "save_provider_snapshot" }

// Execute replaces the flow's provider snapshot with the search result.
func (c *SaveProvidersCommand) Execute(ctx context.Context) error {
	f, err := c.store.Get(ctx, c.phone)
	if err != nil {
		return fmt.Errorf("load flow for snapshot: %w", err)
	}

	c.prev = f.Providers
	c.prevIdx = f.ProviderDetailIdx

	updated := f.Clone()
	updated.Providers = c.providers()
	updated.ProviderDetailIdx = 0

	if err := c.store.Set(ctx, c.phone, updated); err != nil {
		return fmt.Errorf("save provider snapshot: %w", err)
	}

	c.MarkApplied()
	return nil
}

// Undo restores the prior snapshot. It is a no-op unless the write landed.
func (c *SaveProvidersCommand) Undo(ctx context.Context) error {
	if !c.Applied() {
		return nil
	}

	f, err := c.store.Get(ctx, c.phone)
	if err != nil {
		return fmt.Errorf("load flow for snapshot rollback: %w", err)
	}

	updated := f.Clone()
	updated.Providers = c.prev
	updated.ProviderDetailIdx = c.prevIdx

	if err := c.store.Set(ctx, c.phone, updated); err != nil {
		return fmt.Errorf("restore provider snapshot: %w", err)
	}

	c.MarkReverted()
	return nil
}
