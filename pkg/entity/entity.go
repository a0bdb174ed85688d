package entity

import (
	"errors"

	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

var (
	ErrNotFound     = errors.New("entity not found")
	ErrInvalidField = errors.New("invalid field name")
	ErrInvalidID    = errors.New("invalid entity id")
)

// Ref identifies an entity by type and id.
type Ref struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// NewRef creates an entity reference.
func NewRef(entityType, id string) Ref {
	return Ref{Type: entityType, ID: id}
}

func (r Ref) EntityType() string { return r.Type }
func (r Ref) EntityID() string   { return r.ID }
func (r Ref) String() string     { return r.Type + "/" + r.ID }

// RefOf converts any entity to a Ref.
func RefOf(e statemachine.Entity) Ref {
	if r, ok := e.(Ref); ok {
		return r
	}
	return Ref{Type: e.EntityType(), ID: e.EntityID()}
}
