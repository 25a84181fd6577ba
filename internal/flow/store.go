package flow

import (
	"context"
	"errors"
)

var (
	// ErrFlowNotFound indicates that no flow record exists for the customer.
	ErrFlowNotFound = errors.New("conversation flow not found")
	// ErrInvalidTransition indicates that a requested transition is not in the graph.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Store defines the persistence contract for conversation flows.
type Store interface {
	// Get returns the flow for the given customer phone.
	Get(ctx context.Context, phone string) (*ConversationFlow, error)
	// Set saves the flow for the given customer phone.
	Set(ctx context.Context, phone string, f *ConversationFlow) error
	// Reset removes the flow for the given customer phone.
	Reset(ctx context.Context, phone string) error
	// Transition moves the stored flow to target when the graph allows it and
	// returns the updated record. It returns ErrInvalidTransition otherwise.
	Transition(ctx context.Context, phone string, target State) (*ConversationFlow, error)
}
