package session

import (
	"context"
	"errors"
	"fmt"
)

var ErrForbidden = errors.New("forbidden")

type Persona string

const (
	PersonaGuest    Persona = "guest"
	PersonaCustomer Persona = "customer"
	PersonaStaff    Persona = "staff"
	PersonaKitchen  Persona = "kitchen"
	PersonaAdmin    Persona = "admin"
)

func (p Persona) Valid() bool {
	_, ok := grants[p]
	return ok
}

type Permission string

const (
	ViewOrders        Permission = "view_orders"
	CreateOrder       Permission = "create_order"
	UpdateOrderStatus Permission = "update_order_status"
	UpdateItemStatus  Permission = "update_item_status"
	TrackOrder        Permission = "track_order"
	ViewAnalytics     Permission = "view_analytics"
)

var grants = map[Persona][]Permission{
	PersonaGuest:    {TrackOrder, CreateOrder},
	PersonaCustomer: {TrackOrder, CreateOrder},
	PersonaKitchen:  {ViewOrders, UpdateItemStatus},
	PersonaStaff:    {ViewOrders, CreateOrder, UpdateOrderStatus, UpdateItemStatus, TrackOrder},
	PersonaAdmin:    {ViewOrders, CreateOrder, UpdateOrderStatus, UpdateItemStatus, TrackOrder, ViewAnalytics},
}

// Session is the caller identity for one request.
type Session struct {
	UserID      *int64
	Persona     Persona
	Permissions map[Permission]bool
}

// New builds a session for persona. Unknown personas get the guest grants.
func New(persona Persona, userID *int64) Session {
	if !persona.Valid() {
		persona = PersonaGuest
	}
	perms := make(map[Permission]bool, len(grants[persona]))
	for _, p := range grants[persona] {
		perms[p] = true
	}
	return Session{UserID: userID, Persona: persona, Permissions: perms}
}

func Guest() Session {
	return New(PersonaGuest, nil)
}

func (s Session) Can(p Permission) bool {
	return s.Permissions[p]
}

// CanAny reports whether the session holds at least one of perms.
func (s Session) CanAny(perms ...Permission) bool {
	for _, p := range perms {
		if s.Can(p) {
			return true
		}
	}
	return false
}

type ctxKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// From returns the session stored in ctx, or a guest session.
func From(ctx context.Context) Session {
	if s, ok := ctx.Value(ctxKey{}).(Session); ok {
		return s
	}
	return Guest()
}

// Require fails with ErrForbidden unless the session in ctx holds one of
// perms.
func Require(ctx context.Context, perms ...Permission) error {
	s := From(ctx)
	if s.CanAny(perms...) {
		return nil
	}
	return fmt.Errorf("%w: %s may not %v", ErrForbidden, s.Persona, perms)
}
