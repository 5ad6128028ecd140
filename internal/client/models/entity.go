// Package models defines the client-side data model of the herd record
// engine: entity records, tombstones, edit locks and audit entries.
package models

// DeleteMode selects the deletion strategy of an entity type.
type DeleteMode int

const (
	// HardDelete removes the row and leaves a tombstone behind so the
	// deletion can be propagated to the remote store.
	HardDelete DeleteMode = iota
	// SoftDelete keeps the row and stamps DeletedAt; the hidden row still
	// takes part in synchronization.
	SoftDelete
)

// EntityType describes one synchronized table. Table names come from this
// fixed registry only and are never taken from user input.
type EntityType struct {
	// Name is the wire and audit name of the type, e.g. "animal".
	Name string
	// Table is the local SQLite table holding records of this type.
	Table string
	// Delete selects soft-delete or hard-delete-with-tombstone.
	Delete DeleteMode
}

var (
	TypeFarm    = EntityType{Name: "farm", Table: "farms", Delete: SoftDelete}
	TypeAnimal  = EntityType{Name: "animal", Table: "animals", Delete: HardDelete}
	TypeBirth   = EntityType{Name: "birth", Table: "births", Delete: HardDelete}
	TypeWeaning = EntityType{Name: "weaning", Table: "weanings", Delete: HardDelete}
	TypeTag     = EntityType{Name: "tag", Table: "tags", Delete: HardDelete}
	TypeGrant   = EntityType{Name: "grant", Table: "grants", Delete: SoftDelete}
)

var registry = []EntityType{
	TypeFarm, TypeAnimal, TypeBirth, TypeWeaning, TypeTag, TypeGrant,
}

// Types returns all registered entity types in a stable order.
func Types() []EntityType {
	out := make([]EntityType, len(registry))
	copy(out, registry)
	return out
}

// TypeByName resolves an entity type by its wire name.
func TypeByName(name string) (EntityType, bool) {
	for _, t := range registry {
		if t.Name == name {
			return t, true
		}
	}
	return EntityType{}, false
}
