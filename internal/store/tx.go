package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/JonMunkholm/crashdb/internal/core"
)

// rows is the cursor shape shared by pgx.Rows and the *sql.Rows adapter.
type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

type row interface {
	Scan(dest ...any) error
}

// conn is one open driver transaction.
type conn interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	query(ctx context.Context, query string, args ...any) (rows, error)
	queryRow(ctx context.Context, query string, args ...any) row
	commit(ctx context.Context) error
	rollback(ctx context.Context) error
}

// tx implements core.Tx over either backend.
type tx struct {
	c conn
	d *dialect
}

var _ core.Tx = (*tx)(nil)

func (t *tx) exec(ctx context.Context, query string, args ...any) (int64, error) {
	n, err := t.c.exec(ctx, t.d.rebind(query), args...)
	if err != nil {
		return 0, t.d.classify(err)
	}
	return n, nil
}

func (t *tx) query(ctx context.Context, query string, args ...any) (rows, error) {
	r, err := t.c.query(ctx, t.d.rebind(query), args...)
	if err != nil {
		return nil, t.d.classify(err)
	}
	return r, nil
}

func (t *tx) queryRow(ctx context.Context, query string, args ...any) row {
	return t.c.queryRow(ctx, t.d.rebind(query), args...)
}

// scanErr turns an empty result into ErrNotFound.
func (t *tx) scanErr(err error, what string) error {
	if errors.Is(err, t.d.noRows) {
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	return t.d.classify(err)
}

// affected turns a write that matched no row into ErrNotFound.
func affected(n int64, err error, what string) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	return nil
}

func (t *tx) Commit(ctx context.Context) error {
	return t.c.commit(ctx)
}

func (t *tx) Rollback(ctx context.Context) error {
	return t.c.rollback(ctx)
}

// ============================================================================
// Allocation primitives
// ============================================================================

func (t *tx) Exists(ctx context.Context, table, column string, value any) (bool, error) {
	q := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ? LIMIT 1", quoteIdentifier(table), quoteIdentifier(column))
	var one int
	err := t.queryRow(ctx, q, value).Scan(&one)
	if errors.Is(err, t.d.noRows) {
		return false, nil
	}
	if err != nil {
		return false, t.d.classify(err)
	}
	return true, nil
}

func (t *tx) ScanKeys(ctx context.Context, table, column, like string, fn func(key string) bool) error {
	col := quoteIdentifier(column)
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s LIKE ? ORDER BY %s %s DESC",
		col, quoteIdentifier(table), col, col, t.d.byteOrder)
	r, err := t.query(ctx, q, like)
	if err != nil {
		return err
	}
	defer r.Close()

	for r.Next() {
		var key string
		if err := r.Scan(&key); err != nil {
			return err
		}
		if !fn(key) {
			return nil
		}
	}
	return r.Err()
}

func (t *tx) MaxInt(ctx context.Context, table, column string) (int64, error) {
	q := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s", quoteIdentifier(column), quoteIdentifier(table))
	var max int64
	if err := t.queryRow(ctx, q).Scan(&max); err != nil {
		return 0, t.d.classify(err)
	}
	return max, nil
}

// ============================================================================
// Crashes
// ============================================================================

const crashColumns = "crash_record_id, incident_date, latitude, longitude, street_no, street_name"

func scanCrash(r row) (core.CrashRecord, error) {
	var c core.CrashRecord
	var ts dbTime
	if err := r.Scan(&c.CrashRecordID, &ts, &c.Latitude, &c.Longitude, &c.StreetNo, &c.StreetName); err != nil {
		return core.CrashRecord{}, err
	}
	c.IncidentDate = ts.t
	return c, nil
}

func (t *tx) InsertCrash(ctx context.Context, c core.CrashRecord) error {
	_, err := t.exec(ctx, "INSERT INTO crashes ("+crashColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		c.CrashRecordID, t.d.timeArg(c.IncidentDate), c.Latitude, c.Longitude, c.StreetNo, c.StreetName)
	return err
}

func (t *tx) GetCrash(ctx context.Context, id string) (core.CrashRecord, error) {
	c, err := scanCrash(t.queryRow(ctx, "SELECT "+crashColumns+" FROM crashes WHERE crash_record_id = ?", id))
	if err != nil {
		return core.CrashRecord{}, t.scanErr(err, "crash "+id)
	}
	return c, nil
}

func (t *tx) ListCrashes(ctx context.Context, p core.Page) ([]core.CrashRecord, error) {
	r, err := t.query(ctx, "SELECT "+crashColumns+" FROM crashes ORDER BY crash_record_id LIMIT ? OFFSET ?", p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out := make([]core.CrashRecord, 0)
	for r.Next() {
		c, err := scanCrash(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, r.Err()
}

func (t *tx) UpdateCrash(ctx context.Context, c core.CrashRecord) error {
	n, err := t.exec(ctx, `UPDATE crashes SET incident_date = ?, latitude = ?, longitude = ?, street_no = ?, street_name = ?
		WHERE crash_record_id = ?`,
		t.d.timeArg(c.IncidentDate), c.Latitude, c.Longitude, c.StreetNo, c.StreetName, c.CrashRecordID)
	return affected(n, err, "crash "+c.CrashRecordID)
}

func (t *tx) DeleteCrash(ctx context.Context, id string) error {
	n, err := t.exec(ctx, "DELETE FROM crashes WHERE crash_record_id = ?", id)
	return affected(n, err, "crash "+id)
}

// ============================================================================
// People
// ============================================================================

const personColumns = "person_id, person_type, crash_record_id, vehicle_id, sex, age, safety_equipment, airbag_deployed, injury_classification"

func scanPerson(r row) (core.Person, error) {
	var p core.Person
	err := r.Scan(&p.PersonID, &p.PersonType, &p.CrashRecordID, &p.VehicleID, &p.Sex, &p.Age,
		&p.SafetyEquipment, &p.AirbagDeployed, &p.InjuryClassification)
	return p, err
}

func (t *tx) InsertPerson(ctx context.Context, p core.Person) error {
	_, err := t.exec(ctx, "INSERT INTO people ("+personColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		p.PersonID, p.PersonType, p.CrashRecordID, p.VehicleID, p.Sex, p.Age,
		p.SafetyEquipment, p.AirbagDeployed, p.InjuryClassification)
	return err
}

func (t *tx) GetPerson(ctx context.Context, id string) (core.Person, error) {
	p, err := scanPerson(t.queryRow(ctx, "SELECT "+personColumns+" FROM people WHERE person_id = ?", id))
	if err != nil {
		return core.Person{}, t.scanErr(err, "person "+id)
	}
	return p, nil
}

func (t *tx) ListPeople(ctx context.Context, p core.Page) ([]core.Person, error) {
	r, err := t.query(ctx, "SELECT "+personColumns+" FROM people ORDER BY person_id LIMIT ? OFFSET ?", p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out := make([]core.Person, 0)
	for r.Next() {
		person, err := scanPerson(r)
		if err != nil {
			return nil, err
		}
		out = append(out, person)
	}
	return out, r.Err()
}

func (t *tx) UpdatePerson(ctx context.Context, p core.Person) error {
	n, err := t.exec(ctx, `UPDATE people SET person_type = ?, crash_record_id = ?, vehicle_id = ?, sex = ?, age = ?,
		safety_equipment = ?, airbag_deployed = ?, injury_classification = ?
		WHERE person_id = ?`,
		p.PersonType, p.CrashRecordID, p.VehicleID, p.Sex, p.Age,
		p.SafetyEquipment, p.AirbagDeployed, p.InjuryClassification, p.PersonID)
	return affected(n, err, "person "+p.PersonID)
}

func (t *tx) DeletePerson(ctx context.Context, id string) error {
	n, err := t.exec(ctx, "DELETE FROM people WHERE person_id = ?", id)
	return affected(n, err, "person "+id)
}

// ============================================================================
// Vehicles
// ============================================================================

const vehicleColumns = "vehicle_id, crash_unit_id, crash_record_id, unit_no, unit_type, num_passengers, vehicle_year, make, model, vehicle_type"

func scanVehicle(r row) (core.Vehicle, error) {
	var v core.Vehicle
	err := r.Scan(&v.VehicleID, &v.CrashUnitID, &v.CrashRecordID, &v.UnitNo, &v.UnitType, &v.NumPassengers,
		&v.VehicleYear, &v.Make, &v.Model, &v.VehicleType)
	return v, err
}

func (t *tx) InsertVehicle(ctx context.Context, v core.Vehicle) error {
	_, err := t.exec(ctx, "INSERT INTO vehicle ("+vehicleColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		v.VehicleID, v.CrashUnitID, v.CrashRecordID, v.UnitNo, v.UnitType, v.NumPassengers,
		v.VehicleYear, v.Make, v.Model, v.VehicleType)
	return err
}

func (t *tx) GetVehicle(ctx context.Context, id int64) (core.Vehicle, error) {
	v, err := scanVehicle(t.queryRow(ctx, "SELECT "+vehicleColumns+" FROM vehicle WHERE vehicle_id = ?", id))
	if err != nil {
		return core.Vehicle{}, t.scanErr(err, fmt.Sprintf("vehicle %d", id))
	}
	return v, nil
}

func (t *tx) ListVehicles(ctx context.Context, p core.Page) ([]core.Vehicle, error) {
	r, err := t.query(ctx, "SELECT "+vehicleColumns+" FROM vehicle ORDER BY vehicle_id LIMIT ? OFFSET ?", p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out := make([]core.Vehicle, 0)
	for r.Next() {
		v, err := scanVehicle(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, r.Err()
}

func (t *tx) UpdateVehicle(ctx context.Context, v core.Vehicle) error {
	n, err := t.exec(ctx, `UPDATE vehicle SET crash_record_id = ?, unit_no = ?, unit_type = ?, num_passengers = ?,
		vehicle_year = ?, make = ?, model = ?, vehicle_type = ?
		WHERE vehicle_id = ?`,
		v.CrashRecordID, v.UnitNo, v.UnitType, v.NumPassengers,
		v.VehicleYear, v.Make, v.Model, v.VehicleType, v.VehicleID)
	return affected(n, err, fmt.Sprintf("vehicle %d", v.VehicleID))
}

func (t *tx) DeleteVehicle(ctx context.Context, id int64) error {
	n, err := t.exec(ctx, "DELETE FROM vehicle WHERE vehicle_id = ?", id)
	return affected(n, err, fmt.Sprintf("vehicle %d", id))
}

// ============================================================================
// Detail tables
// ============================================================================

func fieldColumns(def core.DetailDefinition) []string {
	cols := make([]string, len(def.Fields))
	for i, f := range def.Fields {
		cols[i] = quoteIdentifier(f.Name)
	}
	return cols
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (t *tx) InsertDetail(ctx context.Context, def core.DetailDefinition, r core.DetailRow) error {
	cols := append([]string{quoteIdentifier(def.ParentColumn())}, fieldColumns(def)...)
	args := make([]any, 0, len(cols))
	args = append(args, r.ParentID)
	for _, f := range def.Fields {
		args = append(args, r.Values[f.Name])
	}

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdentifier(def.Info.Key), strings.Join(cols, ", "), placeholders(len(cols)))
	_, err := t.exec(ctx, q, args...)
	return err
}

func (t *tx) GetDetail(ctx context.Context, def core.DetailDefinition, parentID any) (core.DetailRow, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		strings.Join(fieldColumns(def), ", "), quoteIdentifier(def.Info.Key), quoteIdentifier(def.ParentColumn()))

	raw := make([]any, len(def.Fields))
	dest := make([]any, len(def.Fields))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := t.queryRow(ctx, q, parentID).Scan(dest...); err != nil {
		return core.DetailRow{}, t.scanErr(err, fmt.Sprintf("%s %v", def.Info.Key, parentID))
	}

	values := make(map[string]any, len(def.Fields))
	for i, f := range def.Fields {
		v, err := fromDB(f, raw[i])
		if err != nil {
			return core.DetailRow{}, fmt.Errorf("%s.%s: %w", def.Info.Key, f.Name, err)
		}
		values[f.Name] = v
	}
	return core.DetailRow{Table: def.Info.Key, ParentID: parentID, Values: values}, nil
}

func (t *tx) UpdateDetail(ctx context.Context, def core.DetailDefinition, r core.DetailRow) error {
	sets := make([]string, len(def.Fields))
	args := make([]any, 0, len(def.Fields)+1)
	for i, f := range def.Fields {
		sets[i] = quoteIdentifier(f.Name) + " = ?"
		args = append(args, r.Values[f.Name])
	}
	args = append(args, r.ParentID)

	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		quoteIdentifier(def.Info.Key), strings.Join(sets, ", "), quoteIdentifier(def.ParentColumn()))
	n, err := t.exec(ctx, q, args...)
	return affected(n, err, fmt.Sprintf("%s %v", def.Info.Key, r.ParentID))
}

func (t *tx) DeleteDetail(ctx context.Context, def core.DetailDefinition, parentID any) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quoteIdentifier(def.Info.Key), quoteIdentifier(def.ParentColumn()))
	n, err := t.exec(ctx, q, parentID)
	return affected(n, err, fmt.Sprintf("%s %v", def.Info.Key, parentID))
}

// fromDB converts a scanned driver value to the type NormalizeDetailValues
// produces. SQLite returns booleans as integers.
func fromDB(spec core.FieldSpec, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch spec.Type {
	case core.FieldBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		}
	case core.FieldInt:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int32:
			return int64(x), nil
		case float64:
			if x == math.Trunc(x) {
				return int64(x), nil
			}
		}
	case core.FieldFloat:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		}
	case core.FieldText:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	}
	return nil, fmt.Errorf("unexpected %T for %s column", v, spec.Type)
}
