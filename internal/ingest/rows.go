package ingest

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/crashdb/internal/core"
)

// Kind selects the record type a file holds.
type Kind string

const (
	KindCrashes  Kind = "crashes"
	KindPeople   Kind = "people"
	KindVehicles Kind = "vehicles"
)

// ParseKind accepts the -kind flag values.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindCrashes, KindPeople, KindVehicles:
		return k, nil
	default:
		return "", fmt.Errorf("unknown kind %q (want crashes, people or vehicles)", s)
	}
}

// Entity returns the core entity a kind creates.
func (k Kind) Entity() core.Entity {
	switch k {
	case KindPeople:
		return core.EntityPerson
	case KindVehicles:
		return core.EntityVehicle
	default:
		return core.EntityCrash
	}
}

// requiredColumns lists the header names a file must carry. Alternatives
// are separated by '|'.
var requiredColumns = map[Kind][]string{
	KindCrashes:  {"incident_date|crash_date", "latitude", "longitude"},
	KindPeople:   {},
	KindVehicles: {core.ColCrashRecordID},
}

// checkHeader reports the first required column missing from idx.
func checkHeader(kind Kind, idx core.HeaderIndex) error {
	for _, col := range requiredColumns[kind] {
		if lookupColumn(idx, col) == "" {
			return fmt.Errorf("invalid csv: missing column %s", strings.ReplaceAll(col, "|", " or "))
		}
	}
	return nil
}

// lookupColumn returns the first alternative of col present in idx.
func lookupColumn(idx core.HeaderIndex, col string) string {
	for _, name := range strings.Split(col, "|") {
		if idx.Has(name) {
			return name
		}
	}
	return ""
}

// row reads typed cells from one record and collects parse problems.
type row struct {
	idx    core.HeaderIndex
	record []string
	errs   []core.ValidationError
}

func (r *row) cell(col string) string {
	name := lookupColumn(r.idx, col)
	if name == "" {
		return ""
	}
	return r.idx.Cell(r.record, name)
}

func (r *row) malformed(field, value, msg string) {
	r.errs = append(r.errs, core.ValidationError{
		Field:   field,
		Value:   value,
		Reason:  core.ReasonMalformed,
		Message: msg,
	})
}

func (r *row) text(col string) *string {
	return core.OptionalText(r.cell(col))
}

func (r *row) optInt(col string) *int {
	raw := r.cell(col)
	v, err := core.ParseOptionalInt(raw)
	if err != nil {
		r.malformed(col, raw, "must be an integer")
		return nil
	}
	return v
}

func (r *row) optInt64(col string) *int64 {
	raw := r.cell(col)
	v, err := core.ParseOptionalInt64(raw)
	if err != nil {
		r.malformed(col, raw, "must be an integer")
		return nil
	}
	return v
}

func (r *row) float(col string) float64 {
	raw := r.cell(col)
	if raw == "" {
		r.malformed(col, "", "is required")
		return 0
	}
	v, err := core.ParseFloat(raw)
	if err != nil {
		r.malformed(col, raw, "must be a number")
	}
	return v
}

// failure wraps the collected problems as a validation Failure, or
// returns nil when the row parsed cleanly.
func (r *row) failure(entity core.Entity) error {
	if len(r.errs) == 0 {
		return nil
	}
	return &core.Failure{Kind: core.KindValidation, Entity: entity, Violations: r.errs}
}

func crashFromRow(idx core.HeaderIndex, record []string) (core.CrashInput, error) {
	r := &row{idx: idx, record: record}
	var in core.CrashInput

	raw := r.cell("incident_date|crash_date")
	ts, err := core.ParseTimestamp(raw)
	if err != nil {
		r.malformed("incident_date", raw, "must be a timestamp")
	}
	in.IncidentDate = ts
	in.Latitude = r.float("latitude")
	in.Longitude = r.float("longitude")
	in.StreetNo = r.optInt("street_no")
	in.StreetName = r.text("street_name")

	return in, r.failure(core.EntityCrash)
}

func personFromRow(idx core.HeaderIndex, record []string) (core.PersonInput, error) {
	r := &row{idx: idx, record: record}
	in := core.PersonInput{
		PersonType:           r.text("person_type"),
		CrashRecordID:        r.text(core.ColCrashRecordID),
		VehicleID:            r.optInt64(core.ColVehicleID),
		Sex:                  r.text("sex"),
		Age:                  r.optInt("age"),
		SafetyEquipment:      r.text("safety_equipment"),
		AirbagDeployed:       r.text("airbag_deployed"),
		InjuryClassification: r.text("injury_classification"),
	}
	return in, r.failure(core.EntityPerson)
}

func vehicleFromRow(idx core.HeaderIndex, record []string) (core.VehicleInput, error) {
	r := &row{idx: idx, record: record}
	in := core.VehicleInput{
		CrashRecordID: r.cell(core.ColCrashRecordID),
		UnitNo:        r.optInt("unit_no"),
		UnitType:      r.text("unit_type"),
		NumPassengers: r.optInt("num_passengers"),
		VehicleYear:   r.optInt("vehicle_year"),
		Make:          r.text("make"),
		Model:         r.text("model"),
		VehicleType:   r.text("vehicle_type"),
	}
	return in, r.failure(core.EntityVehicle)
}

func isEmptyRow(record []string) bool {
	for _, cell := range record {
		if core.CleanCell(cell) != "" {
			return false
		}
	}
	return true
}
