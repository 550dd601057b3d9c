package shared

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestBaseAggregateRoot(t *testing.T) {
	t.Run("starts at version one with an id", func(t *testing.T) {
		a := NewBaseAggregateRoot()

		assert.NotEqual(t, uuid.Nil, a.ID)
		assert.Equal(t, 1, a.Version)
		assert.Empty(t, a.GetDomainEvents())
	})

	t.Run("mutations bump the version and timestamp", func(t *testing.T) {
		a := NewBaseAggregateRoot()
		before := a.UpdatedAt

		a.IncrementVersion()
		a.IncrementVersion()

		assert.Equal(t, 3, a.Version)
		assert.False(t, a.UpdatedAt.Before(before))
	})

	t.Run("events buffer in order and clear", func(t *testing.T) {
		a := NewBaseAggregateRoot()
		first := NewBaseDomainEvent("order.created", "order", a.ID)
		second := NewBaseDomainEvent("order.confirmed", "order", a.ID)
		a.AddDomainEvent(&first)
		a.AddDomainEvent(&second)

		events := a.GetDomainEvents()
		assert.Len(t, events, 2)
		assert.Equal(t, "order.created", events[0].EventType())
		assert.Equal(t, "order.confirmed", events[1].EventType())

		a.ClearDomainEvents()
		assert.Empty(t, a.GetDomainEvents())
	})
}
