package core

import (
	"fmt"
	"sort"
	"sync"
)

// FieldType is the storage type of a detail table column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldInt
	FieldFloat
	FieldBool
)

func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldInt:
		return "integer"
	case FieldFloat:
		return "number"
	case FieldBool:
		return "boolean"
	default:
		return "value"
	}
}

// FieldSpec defines one column of a detail table and its constraint.
type FieldSpec struct {
	Name   string
	Type   FieldType
	MaxLen int // FieldText only; 0 means unbounded
	Ranged bool
	Min    float64
	Max    float64
}

// DetailInfo describes a detail table.
type DetailInfo struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Parent Entity `json:"parent"`
}

// DetailDefinition is a 1:1 satellite table keyed by its parent's id.
type DetailDefinition struct {
	Info   DetailInfo
	Fields []FieldSpec
}

// ParentRef returns the collection the detail's key references.
func (d DetailDefinition) ParentRef() Reference {
	switch d.Info.Parent {
	case EntityVehicle:
		return RefVehicle
	case EntityPerson:
		return RefPerson
	default:
		return RefCrash
	}
}

// ParentColumn is both the primary key and the foreign key column.
func (d DetailDefinition) ParentColumn() string {
	return d.ParentRef().Column
}

// Field returns the spec for name.
func (d DetailDefinition) Field(name string) (FieldSpec, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

var (
	registry   = make(map[string]DetailDefinition)
	registryMu sync.RWMutex
)

// Register adds a detail table definition.
// Panics if the key is already registered.
func Register(def DetailDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.Key]; exists {
		panic(fmt.Sprintf("detail table already registered: %s", def.Info.Key))
	}
	if def.Info.Label == "" {
		def.Info.Label = def.Info.Key
	}
	registry[def.Info.Key] = def
}

// Get returns a detail definition by key.
func Get(key string) (DetailDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns every definition sorted by parent then key.
func All() []DetailDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DetailDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Info.Parent != result[j].Info.Parent {
			return result[i].Info.Parent < result[j].Info.Parent
		}
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}

// ByParent returns the definitions attached to one parent entity.
func ByParent(parent Entity) []DetailDefinition {
	var result []DetailDefinition
	for _, def := range All() {
		if def.Info.Parent == parent {
			result = append(result, def)
		}
	}
	return result
}

// DetailCount returns the number of registered detail tables.
func DetailCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all definitions. Tests only.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]DetailDefinition)
}
