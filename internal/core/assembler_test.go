package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"
)

type recordedWrite struct {
	entity  Entity
	op      string
	outcome string
}

type fakeRecorder struct {
	mu     sync.Mutex
	writes []recordedWrite
}

func (r *fakeRecorder) ObserveWrite(entity Entity, op, outcome string, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, recordedWrite{entity, op, outcome})
}

func TestCreateCrash(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	in := validCrashInput()
	in.Latitude = 41.8781009

	rec, err := svc.CreateCrash(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateCrash() error = %v", err)
	}

	want := "dc00c1692dab21e0776f802ee3bc6c9a4b686c3935086028da9037c88684070379303681b0998e11750e9c90fed2f864a0928cc94271b046544b81e4851175a3"
	if rec.CrashRecordID != want {
		t.Errorf("CrashRecordID = %s, want %s", rec.CrashRecordID, want)
	}
	if rec.Latitude != 41.8781 {
		t.Errorf("Latitude = %v, want truncated 41.8781", rec.Latitude)
	}
	if store.crashCount() != 1 || store.commits != 1 {
		t.Errorf("crashes = %d, commits = %d; want 1, 1", store.crashCount(), store.commits)
	}
}

func TestCreateCrash_IdempotentReingestion(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	first, err := svc.CreateCrash(ctx, validCrashInput())
	if err != nil {
		t.Fatalf("first CreateCrash() error = %v", err)
	}

	_, err = svc.CreateCrash(ctx, validCrashInput())
	if !errors.Is(err, ErrDuplicateRecord) {
		t.Fatalf("second CreateCrash() error = %v, want ErrDuplicateRecord", err)
	}
	f, _ := AsFailure(err)
	if f.Key != first.CrashRecordID {
		t.Errorf("duplicate Key = %s, want %s", f.Key, first.CrashRecordID)
	}
	if store.crashCount() != 1 {
		t.Errorf("crash count = %d, want 1", store.crashCount())
	}
	if store.rollbacks != 1 {
		t.Errorf("rollbacks = %d, want 1", store.rollbacks)
	}
}

func TestCreateCrash_ZoneIsDiscarded(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	in := validCrashInput()
	in.IncidentDate = time.Date(2024, 1, 15, 14, 30, 0, 0, time.FixedZone("CST", -6*3600))

	rec, err := svc.CreateCrash(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateCrash() error = %v", err)
	}
	if rec.CrashRecordID != crashRecordID(validCrashInput()) {
		t.Error("zoned timestamp hashed differently from its wall clock")
	}
}

func TestCreateCrash_ValidationTouchesNoStorage(t *testing.T) {
	store := newFakeStore()
	store.beginErr = errors.New("storage must not be reached")
	svc := newTestService(store)

	in := validCrashInput()
	in.IncidentDate = testNow.Add(time.Hour)
	in.Latitude = 95

	_, err := svc.CreateCrash(context.Background(), in)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if got := joinFields(violationFields(err)); got != "latitude,incident_date" {
		t.Errorf("violations = %q, want latitude,incident_date", got)
	}
}

func TestCreateCrash_NonFiniteCoordinates(t *testing.T) {
	store := newFakeStore()
	store.beginErr = errors.New("storage must not be reached")
	svc := newTestService(store)

	in := validCrashInput()
	in.Latitude = math.NaN()
	in.Longitude = math.Inf(-1)

	_, err := svc.CreateCrash(context.Background(), in)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if got := joinFields(violationFields(err)); got != "latitude,longitude" {
		t.Errorf("violations = %q, want latitude,longitude", got)
	}
	if code := MapError(err).Code; code != "VAL001" {
		t.Errorf("MapError code = %s, want VAL001", code)
	}
}

func TestCreateCrashWithDate(t *testing.T) {
	registerTestDetails()
	store := newFakeStore()
	svc := newTestService(store)

	rec, err := svc.CreateCrashWithDate(context.Background(), validCrashInput())
	if err != nil {
		t.Fatalf("CreateCrashWithDate() error = %v", err)
	}

	row, ok := store.data.details[CrashDateKey][rec.CrashRecordID]
	if !ok {
		t.Fatal("crash_date row not written")
	}
	// 2024-01-15 was a Monday
	if row.Values["crash_day_of_week"] != int64(1) || row.Values["crash_month"] != int64(1) {
		t.Errorf("crash_date values = %v", row.Values)
	}
}

func TestCreateCrashWithDate_RollbackAtomicity(t *testing.T) {
	registerTestDetails()
	store := newFakeStore()
	id := crashRecordID(validCrashInput())
	store.data.details[CrashDateKey] = map[string]DetailRow{
		id: {Table: CrashDateKey, ParentID: id, Values: map[string]any{}},
	}
	svc := newTestService(store)

	_, err := svc.CreateCrashWithDate(context.Background(), validCrashInput())
	if !errors.Is(err, ErrStorageFailure) {
		t.Fatalf("error = %v, want ErrStorageFailure", err)
	}
	if store.crashCount() != 0 {
		t.Errorf("crash persisted despite failed detail insert")
	}
	if store.commits != 0 || store.rollbacks != 1 {
		t.Errorf("commits = %d, rollbacks = %d; want 0, 1", store.commits, store.rollbacks)
	}
}

func TestCreatePerson_SequentialMonotonicity(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		p, err := svc.CreatePerson(ctx, PersonInput{PersonType: ptr("DRIVER")})
		if err != nil {
			t.Fatalf("CreatePerson() #%d error = %v", i, err)
		}
		if want := FormatPersonID(int64(i)); p.PersonID != want {
			t.Errorf("person #%d id = %s, want %s", i, p.PersonID, want)
		}
	}
}

func TestCreatePerson_ContinuesFromExistingMax(t *testing.T) {
	store := newFakeStore()
	store.seedPerson(Person{PersonID: "Q0000041"})
	store.seedPerson(Person{PersonID: "O749947"})
	svc := newTestService(store)

	p, err := svc.CreatePerson(context.Background(), PersonInput{})
	if err != nil {
		t.Fatalf("CreatePerson() error = %v", err)
	}
	if p.PersonID != "Q0000042" {
		t.Errorf("PersonID = %s, want Q0000042", p.PersonID)
	}
}

func TestCreatePerson_CapacityBoundary(t *testing.T) {
	store := newFakeStore()
	store.seedPerson(Person{PersonID: "Q9999999"})
	svc := newTestService(store)

	_, err := svc.CreatePerson(context.Background(), PersonInput{})
	if !errors.Is(err, ErrCapacityExhausted) {
		t.Fatalf("error = %v, want ErrCapacityExhausted", err)
	}
	if store.insertsTried != 0 {
		t.Errorf("inserts attempted = %d, want 0", store.insertsTried)
	}
}

func TestCreatePerson_MissingReferences(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	_, err := svc.CreatePerson(context.Background(), PersonInput{
		CrashRecordID: ptr("nope"),
		VehicleID:     ptr(int64(7)),
	})
	if !errors.Is(err, ErrReferenceNotFound) {
		t.Fatalf("error = %v, want ErrReferenceNotFound", err)
	}
	if got := joinFields(violationFields(err)); got != "crash_record_id,vehicle_id" {
		t.Errorf("violations = %q", got)
	}
	if store.rollbacks != 1 || store.insertsTried != 0 {
		t.Errorf("rollbacks = %d, inserts = %d; want 1, 0", store.rollbacks, store.insertsTried)
	}
}

func TestCreatePerson_EmptyCrashReferenceIsNull(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	p, err := svc.CreatePerson(context.Background(), PersonInput{CrashRecordID: ptr("")})
	if err != nil {
		t.Fatalf("CreatePerson() error = %v", err)
	}
	if p.CrashRecordID != nil {
		t.Errorf("CrashRecordID = %q, want nil", *p.CrashRecordID)
	}
}

func TestCreatePerson_ValidationAccumulates(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, err := svc.CreatePerson(context.Background(), PersonInput{
		Age:             ptr(121),
		SafetyEquipment: ptr(string(make([]byte, MaxSafetyEquipmentLen+1))),
	})
	if got := joinFields(violationFields(err)); got != "age,safety_equipment" {
		t.Errorf("violations = %q, want age,safety_equipment", got)
	}
}

func TestCreatePerson_AllocationConflict(t *testing.T) {
	store := newFakeStore()
	store.insertErr = fmt.Errorf("people_pkey: %w", ErrConflict)
	svc := newTestService(store)

	_, err := svc.CreatePerson(context.Background(), PersonInput{})
	if !errors.Is(err, ErrStorageFailure) || !errors.Is(err, ErrConflict) {
		t.Fatalf("error = %v, want storage failure caused by conflict", err)
	}
	f, _ := AsFailure(err)
	if !f.Conflict || f.Key != "Q0000001" {
		t.Errorf("Conflict = %v, Key = %s; want true, Q0000001", f.Conflict, f.Key)
	}
}

func TestCreateVehicle(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	crash, err := svc.CreateCrash(ctx, validCrashInput())
	if err != nil {
		t.Fatalf("CreateCrash() error = %v", err)
	}

	for i := int64(1); i <= 2; i++ {
		v, err := svc.CreateVehicle(ctx, VehicleInput{CrashRecordID: crash.CrashRecordID, VehicleYear: ptr(2020)})
		if err != nil {
			t.Fatalf("CreateVehicle() #%d error = %v", i, err)
		}
		if v.VehicleID != i || v.CrashUnitID != i {
			t.Errorf("vehicle #%d ids = %d/%d", i, v.VehicleID, v.CrashUnitID)
		}
	}
}

func TestCreateVehicle_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		in      VehicleInput
		max     map[string]int64
		wantErr error
		fields  string
	}{
		{
			name:    "crash reference required",
			in:      VehicleInput{NumPassengers: ptr(-1)},
			wantErr: ErrValidation,
			fields:  "crash_record_id,num_passengers",
		},
		{
			name:    "vehicle year beyond next year",
			in:      VehicleInput{CrashRecordID: "x", VehicleYear: ptr(testNow.Year() + 2)},
			wantErr: ErrValidation,
			fields:  "vehicle_year",
		},
		{
			name:    "missing crash",
			in:      VehicleInput{CrashRecordID: "missing"},
			wantErr: ErrReferenceNotFound,
			fields:  "crash_record_id",
		},
		{
			name:    "vehicle id space exhausted",
			in:      VehicleInput{CrashRecordID: "seeded"},
			max:     map[string]int64{ColVehicleID: math.MaxInt64},
			wantErr: ErrCapacityExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.seedCrash(CrashRecord{CrashRecordID: "seeded"})
			store.maxOverride = tt.max
			svc := newTestService(store)

			_, err := svc.CreateVehicle(context.Background(), tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got := joinFields(violationFields(err)); got != tt.fields {
				t.Errorf("violations = %q, want %q", got, tt.fields)
			}
			if store.insertsTried != 0 {
				t.Errorf("inserts attempted = %d, want 0", store.insertsTried)
			}
		})
	}
}

func TestCreate_BeginFailure(t *testing.T) {
	store := newFakeStore()
	store.beginErr = errors.New("dial tcp: connection refused")
	svc := newTestService(store)

	_, err := svc.CreatePerson(context.Background(), PersonInput{})
	if !errors.Is(err, ErrStorageFailure) {
		t.Fatalf("error = %v, want ErrStorageFailure", err)
	}
	if got := MapError(err).Code; got != "DB004" {
		t.Errorf("MapError code = %s, want DB004", got)
	}
}

func TestCreate_WriterBusy(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, Options{MaxWriteWait: 20 * time.Millisecond, Clock: func() time.Time { return testNow }})

	if err := svc.limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer svc.limiter.Release()

	_, err := svc.CreatePerson(context.Background(), PersonInput{})
	if !errors.Is(err, ErrWriterBusy) || !errors.Is(err, ErrStorageFailure) {
		t.Errorf("error = %v, want writer busy storage failure", err)
	}
	if store.commits+store.rollbacks != 0 {
		t.Error("transaction began without a write slot")
	}
}

func TestCreate_RecordsOutcomes(t *testing.T) {
	rec := &fakeRecorder{}
	svc := NewService(newFakeStore(), Options{Geofence: DefaultGeofence, Recorder: rec, Clock: func() time.Time { return testNow }})
	ctx := context.Background()

	svc.CreateCrash(ctx, validCrashInput())
	svc.CreateCrash(ctx, validCrashInput())
	svc.CreatePerson(ctx, PersonInput{Age: ptr(-1)})

	want := []recordedWrite{
		{EntityCrash, "create", "ok"},
		{EntityCrash, "create", "duplicate"},
		{EntityPerson, "create", "validation"},
	}
	if len(rec.writes) != len(want) {
		t.Fatalf("writes = %v, want %v", rec.writes, want)
	}
	for i := range want {
		if rec.writes[i] != want[i] {
			t.Errorf("write %d = %v, want %v", i, rec.writes[i], want[i])
		}
	}
}
