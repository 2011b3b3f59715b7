package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/crashdb/internal/core"
)

// fakeCreator records calls and mimics the service's outcomes: crash ids
// are keyed by date and coordinates, vehicles need a known crash.
type fakeCreator struct {
	crashes  map[string]bool
	vehicles int64
	people   int
	storeErr error
	sources  []string
}

func newFakeCreator() *fakeCreator {
	return &fakeCreator{crashes: make(map[string]bool)}
}

func (f *fakeCreator) CreateCrashWithDate(ctx context.Context, in core.CrashInput) (core.CrashRecord, error) {
	f.sources = append(f.sources, core.SourceFromContext(ctx))
	if f.storeErr != nil {
		return core.CrashRecord{}, &core.Failure{Kind: core.KindStorageFailure, Entity: core.EntityCrash, Err: f.storeErr}
	}
	id := core.CrashRecordID(in.IncidentDate, in.Latitude, in.Longitude, 0, "")
	if f.crashes[id] {
		return core.CrashRecord{}, &core.Failure{Kind: core.KindDuplicateRecord, Entity: core.EntityCrash, Key: id}
	}
	if in.Latitude > 90 {
		return core.CrashRecord{}, &core.Failure{Kind: core.KindValidation, Entity: core.EntityCrash,
			Violations: []core.ValidationError{{Field: "latitude", Reason: core.ReasonOutOfRange, Message: "out of range"}}}
	}
	f.crashes[id] = true
	return core.CrashRecord{CrashRecordID: id}, nil
}

func (f *fakeCreator) CreatePerson(ctx context.Context, in core.PersonInput) (core.Person, error) {
	f.people++
	return core.Person{PersonID: core.FormatPersonID(int64(f.people))}, nil
}

func (f *fakeCreator) CreateVehicle(ctx context.Context, in core.VehicleInput) (core.Vehicle, error) {
	if in.CrashRecordID != "known" {
		return core.Vehicle{}, &core.Failure{Kind: core.KindReferenceNotFound, Entity: core.EntityVehicle,
			Violations: []core.ValidationError{{Field: core.ColCrashRecordID, Value: in.CrashRecordID, Reason: core.ReasonMissingReference, Message: "does not exist"}}}
	}
	f.vehicles++
	return core.Vehicle{VehicleID: f.vehicles}, nil
}

const crashCSV = "\ufeffCRASH_DATE,LATITUDE,LONGITUDE\n" +
	"01/15/2024 02:30:00 PM,41.8781,-87.6298\n" +
	"01/16/2024 08:00:00 AM,41.9,-87.7\n" +
	",,\n" +
	"01/15/2024 02:30:00 PM,41.8781,-87.6298\n" +
	"not a date,41.9,-87.7\n" +
	"01/17/2024 08:00:00 AM,95,-87.7\n"

func TestRun_Crashes(t *testing.T) {
	creator := newFakeCreator()
	var failed bytes.Buffer

	sum, err := NewRunner(creator, Options{Kind: KindCrashes, FailedOut: &failed, RunID: "run-1", RowTimeout: time.Second}).
		Run(context.Background(), strings.NewReader(crashCSV))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if sum.Rows != 5 || sum.Created != 2 || sum.Duplicate != 1 || sum.Rejected != 2 || sum.Failed != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.Reasons["VAL004"] != 1 || sum.Reasons["VAL001"] != 1 {
		t.Errorf("reasons = %v", sum.Reasons)
	}
	if !sum.OK() {
		t.Error("OK() = false with no failed rows")
	}
	if sum.Bytes != int64(len(crashCSV)) {
		t.Errorf("Bytes = %d, want %d", sum.Bytes, len(crashCSV))
	}
	for _, src := range creator.sources {
		if src != "ingest run-1" {
			t.Errorf("source = %q, want %q", src, "ingest run-1")
		}
	}

	records, err := csv.NewReader(&failed).ReadAll()
	if err != nil {
		t.Fatalf("failed rows not valid csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("failed rows = %d, want header + 2", len(records))
	}
	if records[0][0] != "status" || records[0][1] != "CRASH_DATE" {
		t.Errorf("failed header = %v", records[0])
	}
	if !strings.HasPrefix(records[1][0], "VAL004: ") || records[1][1] != "not a date" {
		t.Errorf("failed row = %v", records[1])
	}
}

func TestRun_NonFiniteCoordinateRejected(t *testing.T) {
	creator := newFakeCreator()
	input := "latitude,longitude,crash_date\n" +
		"NaN,-87.6,2024-01-15 14:30:00\n" +
		"41.9,-Inf,2024-01-15 14:30:00\n"

	sum, err := NewRunner(creator, Options{Kind: KindCrashes, RowTimeout: time.Second}).
		Run(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.Rows != 2 || sum.Rejected != 2 || sum.Created != 0 || sum.Failed != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.Reasons["VAL004"] != 2 {
		t.Errorf("reasons = %v, want 2 x VAL004", sum.Reasons)
	}
	if len(creator.sources) != 0 {
		t.Errorf("creator called %d times for non-finite rows", len(creator.sources))
	}
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	creator := newFakeCreator()

	sum, err := NewRunner(creator, Options{Kind: KindCrashes, DryRun: true}).
		Run(context.Background(), strings.NewReader(crashCSV))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(creator.sources) != 0 {
		t.Errorf("dry run called the service %d times", len(creator.sources))
	}
	// Range checks belong to the service, so only the bad date is caught.
	if sum.Valid != 4 || sum.Rejected != 1 || sum.Created != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.RunID == "" {
		t.Error("RunID should be generated")
	}
}

func TestRun_Vehicles(t *testing.T) {
	creator := newFakeCreator()
	input := "crash_record_id,make\nknown,FORD\nunknown,TOYOTA\nknown,\n"

	sum, err := NewRunner(creator, Options{Kind: KindVehicles}).Run(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.Created != 2 || sum.Rejected != 1 || sum.Reasons["REF001"] != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRun_People(t *testing.T) {
	creator := newFakeCreator()
	input := "PERSON_TYPE,AGE\nDRIVER,30\nPASSENGER,\n"

	sum, err := NewRunner(creator, Options{Kind: KindPeople}).Run(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.Created != 2 || creator.people != 2 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRun_StorageFailureCounted(t *testing.T) {
	creator := newFakeCreator()
	creator.storeErr = errors.New("connection refused")

	sum, err := NewRunner(creator, Options{Kind: KindCrashes}).Run(context.Background(), strings.NewReader(crashCSV))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// The unparseable date is still rejected before the service is called.
	if sum.Failed != 4 || sum.Rejected != 1 || sum.OK() {
		t.Errorf("summary = %+v, want 4 failed", sum)
	}
	if sum.Reasons["DB004"] != 4 {
		t.Errorf("reasons = %v", sum.Reasons)
	}
}

func TestRun_FileErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		limit    int64
		wantCode string
		wantErr  error
	}{
		{name: "empty file", input: "", wantCode: "FILE005"},
		{name: "only BOM", input: "\ufeff", wantCode: "FILE005"},
		{name: "missing column", input: "latitude,longitude\n1,2\n", wantCode: "FILE002"},
		{name: "too large", input: crashCSV, limit: 10, wantErr: ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRunner(newFakeCreator(), Options{Kind: KindCrashes, MaxFileSize: tt.limit}).
				Run(context.Background(), strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("Run() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantCode != "" && core.MapError(err).Code != tt.wantCode {
				t.Errorf("MapError code = %s, want %s", core.MapError(err).Code, tt.wantCode)
			}
		})
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	creator := newFakeCreator()
	creator.storeErr = context.Canceled

	_, err := NewRunner(creator, Options{Kind: KindCrashes}).Run(ctx, strings.NewReader(crashCSV))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
