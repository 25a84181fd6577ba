// Package domain defines the marketplace entities.
package domain

import "time"

// Customer is a person looking for a service.
type Customer struct {
	ID            int64
	Phone         string
	Name          string
	City          string
	CityConfirmed bool
	CreatedAt     time.Time
}
