// Package repository provides PostgreSQL-backed persistence for marketplace entities.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/domain"
)

// ErrCustomerNotFound indicates that no customer profile exists for the phone.
var ErrCustomerNotFound = errors.New("customer not found")

// CustomerRepository defines persistence operations for customer profiles.
type CustomerRepository interface {
	FindByPhone(ctx context.Context, phone string) (*domain.Customer, error)
	Upsert(ctx context.Context, customer *domain.Customer) error
	UpdateCity(ctx context.Context, phone, city string) error
}

type customerRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewCustomerRepository creates a SQL-backed customer repository.
func NewCustomerRepository(db *sql.DB, log *slog.Logger) CustomerRepository {
	return &customerRepository{
		db:  db,
		log: log,
	}
}

// FindByPhone retrieves a customer profile by their phone number.
func (r *customerRepository) FindByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	const query = `
		SELECT id, phone, name, city, city_confirmed, created_at
		FROM customers
		WHERE phone = $1
	`

	row := r.db.QueryRowContext(ctx, query, phone)

	var customer domain.Customer
	if err := row.Scan(
		&customer.ID,
		&customer.Phone,
		&customer.Name,
		&customer.City,
		&customer.CityConfirmed,
		&customer.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}

		if r.log != nil {
			r.log.Error("failed to fetch customer by phone", slog.String("phone", phone), slog.Any("error", err))
		}
		return nil, fmt.Errorf("select customer by phone: %w", err)
	}

	return &customer, nil
}

// Upsert inserts or refreshes a customer profile keyed by phone.
func (r *customerRepository) Upsert(ctx context.Context, customer *domain.Customer) error {
	const query = `
		INSERT INTO customers (phone, name, city, city_confirmed, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (phone)
		DO UPDATE SET name = EXCLUDED.name, city = EXCLUDED.city, city_confirmed = EXCLUDED.city_confirmed
	`

	if _, err := r.db.ExecContext(
		ctx,
		query,
		customer.Phone,
		customer.Name,
		customer.City,
		customer.CityConfirmed,
		customer.CreatedAt,
	); err != nil {
		if r.log != nil {
			r.log.Error("failed to upsert customer", slog.String("phone", customer.Phone), slog.Any("error", err))
		}
		return fmt.Errorf("upsert customer: %w", err)
	}

	return nil
}

// UpdateCity sets the customer's confirmed city.
func (r *customerRepository) UpdateCity(ctx context.Context, phone, city string) error {
	const query = `
		UPDATE customers
		SET city = $2, city_confirmed = TRUE
		WHERE phone = $1
	`

	result, err := r.db.ExecContext(ctx, query, phone, city)
	if err != nil {
		if r.log != nil {
			r.log.Error("failed to update customer city", slog.String("phone", phone), slog.Any("error", err))
		}
		return fmt.Errorf("update customer city: %w", err)
	}

	if rows, rowsErr := result.RowsAffected(); rowsErr == nil && rows == 0 {
		return ErrCustomerNotFound
	}

	return nil
}
