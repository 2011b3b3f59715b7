package store

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/crashdb/internal/core"
)

// schemaStatements returns the CREATE TABLE IF NOT EXISTS statements for
// the core tables followed by one per detail definition, parents first.
func schemaStatements(d *dialect, defs []core.DetailDefinition) []string {
	t := d.types
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS crashes (
	crash_record_id %s PRIMARY KEY,
	incident_date %s NOT NULL,
	latitude %s NOT NULL,
	longitude %s NOT NULL,
	street_no %s,
	street_name %s
)`, t.text(128), t.timestamp, t.coordinate, t.coordinate, t.integer, t.text(core.MaxStreetNameLen)),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS vehicle (
	vehicle_id %s PRIMARY KEY,
	crash_unit_id %s NOT NULL UNIQUE,
	crash_record_id %s NOT NULL REFERENCES crashes (crash_record_id),
	unit_no %s,
	unit_type %s,
	num_passengers %s,
	vehicle_year %s,
	make %s,
	model %s,
	vehicle_type %s
)`, t.bigint, t.bigint, t.text(128), t.integer, t.text(core.MaxUnitTypeLen), t.integer, t.integer,
			t.text(core.MaxVehicleTextLen), t.text(core.MaxVehicleTextLen), t.text(core.MaxVehicleTextLen)),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS people (
	person_id %s PRIMARY KEY,
	person_type %s,
	crash_record_id %s REFERENCES crashes (crash_record_id),
	vehicle_id %s REFERENCES vehicle (vehicle_id),
	sex %s,
	age %s,
	safety_equipment %s,
	airbag_deployed %s,
	injury_classification %s
)`, t.text(16), t.text(core.MaxPersonTypeLen), t.text(128), t.bigint, t.text(core.MaxSexLen), t.integer,
			t.text(core.MaxSafetyEquipmentLen), t.text(core.MaxAirbagDeployedLen), t.text(core.MaxInjuryClassificationLen)),
	}

	for _, def := range defs {
		stmts = append(stmts, detailStatement(d, def))
	}
	return stmts
}

// detailStatement keys a detail table by its parent's id. Detail rows are
// deleted along with the parent.
func detailStatement(d *dialect, def core.DetailDefinition) string {
	parent := def.ParentRef()
	parentType := d.types.text(128)
	if def.Info.Parent == core.EntityVehicle {
		parentType = d.types.bigint
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n\t%s %s PRIMARY KEY REFERENCES %s (%s) ON DELETE CASCADE",
		quoteIdentifier(def.Info.Key), quoteIdentifier(parent.Column), parentType,
		quoteIdentifier(parent.Table), quoteIdentifier(parent.Column))
	for _, f := range def.Fields {
		fmt.Fprintf(&b, ",\n\t%s %s", quoteIdentifier(f.Name), d.fieldType(f))
	}
	b.WriteString("\n)")
	return b.String()
}

func (d *dialect) fieldType(f core.FieldSpec) string {
	switch f.Type {
	case core.FieldInt:
		return d.types.bigint
	case core.FieldFloat:
		return d.types.float
	case core.FieldBool:
		return d.types.boolean
	default:
		if f.MaxLen > 0 {
			return d.types.text(f.MaxLen)
		}
		return d.types.text(255)
	}
}
