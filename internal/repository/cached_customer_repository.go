package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/domain"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/usercache"
)

// cachedCustomerRepository layers the profile cache over the SQL repository.
// Cache failures degrade to direct reads; writes invalidate so the next read
// repopulates from the database.
type cachedCustomerRepository struct {
	inner CustomerRepository
	cache *usercache.Cache
	log   *slog.Logger
}

// NewCachedCustomerRepository wraps inner with the customer profile cache.
func NewCachedCustomerRepository(inner CustomerRepository, cache *usercache.Cache, log *slog.Logger) CustomerRepository {
	if log == nil {
		log = slog.Default()
	}

	return &cachedCustomerRepository{inner: inner, cache: cache, log: log}
}

func (r *cachedCustomerRepository) FindByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	customer, err := r.cache.Get(ctx, phone)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, usercache.ErrMiss) {
		r.log.Warn("customer cache read failed", slog.String("phone", phone), slog.Any("error", err))
	}

	customer, err = r.inner.FindByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}

	if cacheErr := r.cache.Set(ctx, customer); cacheErr != nil {
		r.log.Warn("customer cache write failed", slog.String("phone", phone), slog.Any("error", cacheErr))
	}

	return customer, nil
}

func (r *cachedCustomerRepository) Upsert(ctx context.Context, customer *domain.Customer) error {
	if err := r.inner.Upsert(ctx, customer); err != nil {
		return err
	}

	if err := r.cache.Invalidate(ctx, customer.Phone); err != nil {
		r.log.Warn("customer cache invalidation failed", slog.String("phone", customer.Phone), slog.Any("error", err))
	}

	return nil
}

func (r *cachedCustomerRepository) UpdateCity(ctx context.Context, phone, city string) error {
	if err := r.inner.UpdateCity(ctx, phone, city); err != nil {
		return err
	}

	if err := r.cache.Invalidate(ctx, phone); err != nil {
		r.log.Warn("customer cache invalidation failed", slog.String("phone", phone), slog.Any("error", err))
	}

	return nil
}
