// Package actor identifies the user or system performing an action.
// Identity is established upstream (token verification, gateway headers);
// this package only carries it through the request context so the ledger can
// stamp creators and approvers on movement records.
package actor

import (
	"context"
	"fmt"
)

// Actor represents the entity performing an action in the system.
type Actor struct {
	// ID is the unique identifier of the actor (user ID)
	ID string `json:"id"`

	// FirstName is the actor's first name
	FirstName string `json:"first_name"`

	// LastName is the actor's last name
	LastName string `json:"last_name"`

	// Email is the actor's email address
	Email string `json:"email"`

	// RoleName is the actor's role (optional, for display purposes)
	RoleName string `json:"role_name,omitempty"`
}

// FullName returns the actor's full name (first + last)
func (a *Actor) FullName() string {
	if a == nil {
		return ""
	}
	return a.FirstName + " " + a.LastName
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a == nil {
		return "system"
	}
	return fmt.Sprintf("%s (%s)", a.FullName(), a.Email)
}

// contextKey is the type for context keys to avoid collisions
type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present (e.g., system operations).
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	actor, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return actor
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// SystemActor returns an Actor representing the system itself.
// Use this for reconciliation runs and other system-initiated operations.
func SystemActor() *Actor {
	return &Actor{
		ID:        "00000000-0000-0000-0000-000000000000",
		FirstName: "System",
		LastName:  "",
		Email:     "system@pharmaflow.local",
	}
}

// IsSystem returns true if the actor represents the system.
func (a *Actor) IsSystem() bool {
	if a == nil {
		return true
	}
	return a.ID == "00000000-0000-0000-0000-000000000000"
}
