// Package tables registers the detail table definitions with the core
// registry. Import it for its side effect wherever detail rows are read or
// written.
package tables

import "github.com/JonMunkholm/crashdb/internal/core"

// Each file registers the tables of one parent entity in init().

func text(name string, maxLen int) core.FieldSpec {
	return core.FieldSpec{Name: name, Type: core.FieldText, MaxLen: maxLen}
}

func count(name string, max float64) core.FieldSpec {
	return core.FieldSpec{Name: name, Type: core.FieldInt, Ranged: true, Min: 0, Max: max}
}

func flag(name string) core.FieldSpec {
	return core.FieldSpec{Name: name, Type: core.FieldBool}
}
