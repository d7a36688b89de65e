package event

import "github.com/toxoid/toxoid-go/internal/core/host"

// World lifecycle events. The world emits them as structural changes happen
// and dispatches them at the end of each Progress call.

type EntityCreated struct {
	Entity host.EntityID
}

type EntityDestroyed struct {
	Entity host.EntityID
}

type ComponentAdded struct {
	Entity    host.EntityID
	Component host.ComponentID
	Name      string
}

type ComponentRemoved struct {
	Entity    host.EntityID
	Component host.ComponentID
	Name      string
}

// RelationChanged reports a new or cleared edge. Target is zero when the
// edge was removed.
type RelationChanged struct {
	Entity   host.EntityID
	Relation host.ComponentID
	Target   host.EntityID
}
