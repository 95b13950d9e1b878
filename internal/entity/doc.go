// Package entity provides the concrete design entities held by a store:
// anchors, walls, doors and dimensions.
//
// Every type here satisfies model.Entity. Optional capabilities
// (model.Referenceable, model.Refers, model.Movable) are implemented per type
// and discovered by callers with type assertions.
//
// Reference slots follow the model convention: slot i drives the entity's
// own feature i. Unbinding a slot (publisher gone) keeps the last position
// and clears the slot.
package entity
