package domain

import "time"

// Provider is an independent service provider registered in the marketplace.
type Provider struct {
	ID        string
	Phone     string
	Name      string
	Service   string
	City      string
	Active    bool
	CreatedAt time.Time
}
