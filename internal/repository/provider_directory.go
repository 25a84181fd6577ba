package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/domain"
)

// ProviderDirectory looks up candidate providers for a service in a city.
// Ranking and scoring live in the search subsystem; this is the plain
// catalogue lookup that feeds the availability broadcast.
type ProviderDirectory interface {
	FindByServiceAndCity(ctx context.Context, service, city string, limit int) ([]domain.Provider, error)
}

type providerDirectory struct {
	db  *sql.DB
	log *slog.Logger
}

// NewProviderDirectory creates a SQL-backed provider directory.
func NewProviderDirectory(db *sql.DB, log *slog.Logger) ProviderDirectory {
	return &providerDirectory{
		db:  db,
		log: log,
	}
}

// FindByServiceAndCity returns up to limit active providers matching the
// requested service and city, oldest registrations first.
func (d *providerDirectory) FindByServiceAndCity(ctx context.Context, service, city string, limit int) ([]domain.Provider, error) {
	const query = `
		SELECT id, phone, name, service, city, active, created_at
		FROM providers
		WHERE active AND LOWER(service) = LOWER($1) AND LOWER(city) = LOWER($2)
		ORDER BY created_at
		LIMIT $3
	`

	rows, err := d.db.QueryContext(ctx, query, service, city, limit)
	if err != nil {
		if d.log != nil {
			d.log.Error("failed to query providers",
				slog.String("service", service),
				slog.String("city", city),
				slog.Any("error", err))
		}
		return nil, fmt.Errorf("select providers: %w", err)
	}
	defer rows.Close()

	var providers []domain.Provider
	for rows.Next() {
		var p domain.Provider
		if err := rows.Scan(&p.ID, &p.Phone, &p.Name, &p.Service, &p.City, &p.Active, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		providers = append(providers, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate providers: %w", err)
	}

	return providers, nil
}
