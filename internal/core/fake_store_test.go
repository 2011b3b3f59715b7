package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// fakeStore is an in-memory Store. Each transaction works on a copy of the
// committed data, so rollback is simply dropping the copy.
type fakeStore struct {
	mu   sync.Mutex
	data fakeData

	// Failure injection.
	beginErr     error
	insertErr    error
	maxOverride  map[string]int64
	commits      int
	rollbacks    int
	insertsTried int
}

type fakeData struct {
	crashes  map[string]CrashRecord
	people   map[string]Person
	vehicles map[int64]Vehicle
	details  map[string]map[string]DetailRow
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: fakeData{
		crashes:  make(map[string]CrashRecord),
		people:   make(map[string]Person),
		vehicles: make(map[int64]Vehicle),
		details:  make(map[string]map[string]DetailRow),
	}}
}

func (d fakeData) clone() fakeData {
	c := fakeData{
		crashes:  make(map[string]CrashRecord, len(d.crashes)),
		people:   make(map[string]Person, len(d.people)),
		vehicles: make(map[int64]Vehicle, len(d.vehicles)),
		details:  make(map[string]map[string]DetailRow, len(d.details)),
	}
	for k, v := range d.crashes {
		c.crashes[k] = v
	}
	for k, v := range d.people {
		c.people[k] = v
	}
	for k, v := range d.vehicles {
		c.vehicles[k] = v
	}
	for table, rows := range d.details {
		m := make(map[string]DetailRow, len(rows))
		for k, v := range rows {
			m[k] = cloneRow(v)
		}
		c.details[table] = m
	}
	return c
}

func cloneRow(r DetailRow) DetailRow {
	vals := make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		vals[k] = v
	}
	r.Values = vals
	return r
}

func (s *fakeStore) Begin(ctx context.Context) (Tx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return &fakeTx{store: s, data: s.data.clone()}, nil
}

func (s *fakeStore) crashCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.crashes)
}

func (s *fakeStore) seedCrash(c CrashRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.crashes[c.CrashRecordID] = c
}

func (s *fakeStore) seedPerson(p Person) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.people[p.PersonID] = p
}

type fakeTx struct {
	store *fakeStore
	data  fakeData
	done  bool
}

func (t *fakeTx) Exists(ctx context.Context, table, column string, value any) (bool, error) {
	switch table {
	case TableCrashes:
		_, ok := t.data.crashes[fmt.Sprint(value)]
		return ok, nil
	case TablePeople:
		_, ok := t.data.people[fmt.Sprint(value)]
		return ok, nil
	case TableVehicles:
		id, ok := value.(int64)
		if !ok {
			return false, fmt.Errorf("vehicle key %T", value)
		}
		_, ok = t.data.vehicles[id]
		return ok, nil
	}
	_, ok := t.data.details[table][fmt.Sprint(value)]
	return ok, nil
}

// likeMatch supports the '_' wildcard only.
func likeMatch(pattern, s string) bool {
	if len(pattern) != len(s) {
		return false
	}
	for i := range pattern {
		if pattern[i] != '_' && pattern[i] != s[i] {
			return false
		}
	}
	return true
}

func (t *fakeTx) ScanKeys(ctx context.Context, table, column, like string, fn func(string) bool) error {
	if table != TablePeople || column != ColPersonID {
		return fmt.Errorf("unexpected scan of %s.%s", table, column)
	}
	var keys []string
	for k := range t.data.people {
		if likeMatch(like, k) {
			keys = append(keys, k)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	for _, k := range keys {
		if !fn(k) {
			return nil
		}
	}
	return nil
}

func (t *fakeTx) MaxInt(ctx context.Context, table, column string) (int64, error) {
	if v, ok := t.store.maxOverride[column]; ok {
		return v, nil
	}
	var max int64
	for _, v := range t.data.vehicles {
		n := v.VehicleID
		if column == ColCrashUnitID {
			n = v.CrashUnitID
		}
		if n > max {
			max = n
		}
	}
	return max, nil
}

func (t *fakeTx) insertHook() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.insertsTried++
	return t.store.insertErr
}

func (t *fakeTx) InsertCrash(ctx context.Context, c CrashRecord) error {
	if err := t.insertHook(); err != nil {
		return err
	}
	if _, ok := t.data.crashes[c.CrashRecordID]; ok {
		return fmt.Errorf("crashes pkey: %w", ErrConflict)
	}
	t.data.crashes[c.CrashRecordID] = c
	return nil
}

func (t *fakeTx) GetCrash(ctx context.Context, id string) (CrashRecord, error) {
	c, ok := t.data.crashes[id]
	if !ok {
		return CrashRecord{}, fmt.Errorf("crash %s: %w", id, ErrNotFound)
	}
	return c, nil
}

func (t *fakeTx) ListCrashes(ctx context.Context, p Page) ([]CrashRecord, error) {
	keys := make([]string, 0, len(t.data.crashes))
	for k := range t.data.crashes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []CrashRecord
	for _, k := range page(keys, p) {
		out = append(out, t.data.crashes[k])
	}
	return out, nil
}

func page[T any](keys []T, p Page) []T {
	if p.Offset >= len(keys) {
		return nil
	}
	keys = keys[p.Offset:]
	if len(keys) > p.Limit {
		keys = keys[:p.Limit]
	}
	return keys
}

func (t *fakeTx) UpdateCrash(ctx context.Context, c CrashRecord) error {
	if _, ok := t.data.crashes[c.CrashRecordID]; !ok {
		return ErrNotFound
	}
	t.data.crashes[c.CrashRecordID] = c
	return nil
}

func (t *fakeTx) DeleteCrash(ctx context.Context, id string) error {
	if _, ok := t.data.crashes[id]; !ok {
		return ErrNotFound
	}
	for _, p := range t.data.people {
		if p.CrashRecordID != nil && *p.CrashRecordID == id {
			return fmt.Errorf("people_crash_fk: %w", ErrForeignKey)
		}
	}
	for _, v := range t.data.vehicles {
		if v.CrashRecordID == id {
			return fmt.Errorf("vehicle_crash_fk: %w", ErrForeignKey)
		}
	}
	delete(t.data.crashes, id)
	return nil
}

func (t *fakeTx) personParentsExist(p Person) bool {
	if p.CrashRecordID != nil {
		if _, ok := t.data.crashes[*p.CrashRecordID]; !ok {
			return false
		}
	}
	if p.VehicleID != nil {
		if _, ok := t.data.vehicles[*p.VehicleID]; !ok {
			return false
		}
	}
	return true
}

func (t *fakeTx) InsertPerson(ctx context.Context, p Person) error {
	if err := t.insertHook(); err != nil {
		return err
	}
	if _, ok := t.data.people[p.PersonID]; ok {
		return fmt.Errorf("people pkey: %w", ErrConflict)
	}
	if !t.personParentsExist(p) {
		return fmt.Errorf("people fk: %w", ErrForeignKey)
	}
	t.data.people[p.PersonID] = p
	return nil
}

func (t *fakeTx) GetPerson(ctx context.Context, id string) (Person, error) {
	p, ok := t.data.people[id]
	if !ok {
		return Person{}, fmt.Errorf("person %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (t *fakeTx) ListPeople(ctx context.Context, p Page) ([]Person, error) {
	keys := make([]string, 0, len(t.data.people))
	for k := range t.data.people {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []Person
	for _, k := range page(keys, p) {
		out = append(out, t.data.people[k])
	}
	return out, nil
}

func (t *fakeTx) UpdatePerson(ctx context.Context, p Person) error {
	if _, ok := t.data.people[p.PersonID]; !ok {
		return ErrNotFound
	}
	if !t.personParentsExist(p) {
		return ErrForeignKey
	}
	t.data.people[p.PersonID] = p
	return nil
}

func (t *fakeTx) DeletePerson(ctx context.Context, id string) error {
	if _, ok := t.data.people[id]; !ok {
		return ErrNotFound
	}
	delete(t.data.people, id)
	return nil
}

func (t *fakeTx) InsertVehicle(ctx context.Context, v Vehicle) error {
	if err := t.insertHook(); err != nil {
		return err
	}
	if _, ok := t.data.vehicles[v.VehicleID]; ok {
		return fmt.Errorf("vehicle pkey: %w", ErrConflict)
	}
	if _, ok := t.data.crashes[v.CrashRecordID]; !ok {
		return fmt.Errorf("vehicle fk: %w", ErrForeignKey)
	}
	t.data.vehicles[v.VehicleID] = v
	return nil
}

func (t *fakeTx) GetVehicle(ctx context.Context, id int64) (Vehicle, error) {
	v, ok := t.data.vehicles[id]
	if !ok {
		return Vehicle{}, fmt.Errorf("vehicle %d: %w", id, ErrNotFound)
	}
	return v, nil
}

func (t *fakeTx) ListVehicles(ctx context.Context, p Page) ([]Vehicle, error) {
	keys := make([]int64, 0, len(t.data.vehicles))
	for k := range t.data.vehicles {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	var out []Vehicle
	for _, k := range page(keys, p) {
		out = append(out, t.data.vehicles[k])
	}
	return out, nil
}

func (t *fakeTx) UpdateVehicle(ctx context.Context, v Vehicle) error {
	if _, ok := t.data.vehicles[v.VehicleID]; !ok {
		return ErrNotFound
	}
	t.data.vehicles[v.VehicleID] = v
	return nil
}

func (t *fakeTx) DeleteVehicle(ctx context.Context, id int64) error {
	if _, ok := t.data.vehicles[id]; !ok {
		return ErrNotFound
	}
	for _, p := range t.data.people {
		if p.VehicleID != nil && *p.VehicleID == id {
			return fmt.Errorf("people_vehicle_fk: %w", ErrForeignKey)
		}
	}
	delete(t.data.vehicles, id)
	return nil
}

func (t *fakeTx) InsertDetail(ctx context.Context, def DetailDefinition, row DetailRow) error {
	if err := t.insertHook(); err != nil {
		return err
	}
	rows := t.data.details[def.Info.Key]
	if rows == nil {
		rows = make(map[string]DetailRow)
		t.data.details[def.Info.Key] = rows
	}
	key := fmt.Sprint(row.ParentID)
	if _, ok := rows[key]; ok {
		return fmt.Errorf("%s pkey: %w", def.Info.Key, ErrConflict)
	}
	rows[key] = cloneRow(row)
	return nil
}

func (t *fakeTx) GetDetail(ctx context.Context, def DetailDefinition, parentID any) (DetailRow, error) {
	row, ok := t.data.details[def.Info.Key][fmt.Sprint(parentID)]
	if !ok {
		return DetailRow{}, fmt.Errorf("%s %v: %w", def.Info.Key, parentID, ErrNotFound)
	}
	return cloneRow(row), nil
}

func (t *fakeTx) UpdateDetail(ctx context.Context, def DetailDefinition, row DetailRow) error {
	key := fmt.Sprint(row.ParentID)
	if _, ok := t.data.details[def.Info.Key][key]; !ok {
		return ErrNotFound
	}
	t.data.details[def.Info.Key][key] = cloneRow(row)
	return nil
}

func (t *fakeTx) DeleteDetail(ctx context.Context, def DetailDefinition, parentID any) error {
	key := fmt.Sprint(parentID)
	if _, ok := t.data.details[def.Info.Key][key]; !ok {
		return ErrNotFound
	}
	delete(t.data.details[def.Info.Key], key)
	return nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.data = t.data
	t.store.commits++
	t.done = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Lock()
	t.store.rollbacks++
	t.store.mu.Unlock()
	return nil
}

// Shared fixtures.

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(store Store) *Service {
	return NewService(store, Options{
		Geofence:     DefaultGeofence,
		MaxWriteWait: time.Second,
		Clock:        func() time.Time { return testNow },
	})
}

func ptr[T any](v T) *T { return &v }

func validCrashInput() CrashInput {
	return CrashInput{
		IncidentDate: time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC),
		Latitude:     41.8781,
		Longitude:    -87.6298,
		StreetNo:     ptr(1234),
		StreetName:   ptr("N MICHIGAN AVE"),
	}
}

var registerTestDetailsOnce sync.Once

// registerTestDetails registers a crash_date and a vehicle detail table.
// The production definitions live in the tables subpackage, which core
// tests cannot import.
func registerTestDetails() {
	registerTestDetailsOnce.Do(func() {
		Register(DetailDefinition{
			Info: DetailInfo{Key: CrashDateKey, Parent: EntityCrash},
			Fields: []FieldSpec{
				{Name: "crash_day_of_week", Type: FieldInt, Ranged: true, Min: 1, Max: 7},
				{Name: "crash_month", Type: FieldInt, Ranged: true, Min: 1, Max: 12},
			},
		})
		Register(DetailDefinition{
			Info: DetailInfo{Key: "test_vehicle_flags", Parent: EntityVehicle},
			Fields: []FieldSpec{
				{Name: "hazmat_present_i", Type: FieldBool},
				{Name: "vehicle_defect", Type: FieldText, MaxLen: 10},
				{Name: "bac", Type: FieldFloat, Ranged: true, Min: 0, Max: 1},
			},
		})
	})
}

func violationFields(err error) []string {
	f, ok := AsFailure(err)
	if !ok {
		return nil
	}
	fields := make([]string, len(f.Violations))
	for i, v := range f.Violations {
		fields[i] = v.Field
	}
	return fields
}

func joinFields(fields []string) string {
	return strings.Join(fields, ",")
}
