package store

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/crashdb/internal/core"
)

func TestRebindNumbered(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"SELECT 1 FROM t WHERE a = ?", "SELECT 1 FROM t WHERE a = $1"},
		{"INSERT INTO t (a, b, c) VALUES (?, ?, ?)", "INSERT INTO t (a, b, c) VALUES ($1, $2, $3)"},
	}
	for _, tt := range tests {
		if got := rebindNumbered(tt.in); got != tt.want {
			t.Errorf("rebindNumbered(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if got := sqliteDialect.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
}

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"normal identifier", "crashes", `"crashes"`},
		{"reserved word still quoted", "select", `"select"`},
		{"contains double quote - escaped", `crash"id`, `"crash""id"`},
		{"sql injection attempt safely quoted", `crashes"; DROP TABLE crashes; --`, `"crashes""; DROP TABLE crashes; --"`},
		{"empty string", "", `""`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quoteIdentifier(tt.input); got != tt.want {
				t.Errorf("quoteIdentifier(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestClassifyPostgres(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unique violation", &pgconn.PgError{Code: "23505", Message: "duplicate key"}, core.ErrConflict},
		{"foreign key violation", &pgconn.PgError{Code: "23503", Message: "violates foreign key"}, core.ErrForeignKey},
		{"other pg error", &pgconn.PgError{Code: "42P01"}, nil},
		{"plain error", errors.New("connection refused"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyPostgres(tt.err)
			if !errors.Is(got, tt.err) {
				t.Errorf("driver error dropped from chain: %v", got)
			}
			for _, cause := range []error{core.ErrConflict, core.ErrForeignKey} {
				if errors.Is(got, cause) != (cause == tt.want) {
					t.Errorf("errors.Is(%v, %v) = %v", got, cause, !(cause == tt.want))
				}
			}
		})
	}
}

func TestDetailStatement_Postgres(t *testing.T) {
	def := core.DetailDefinition{
		Info: core.DetailInfo{Key: "vehicle_flags", Parent: core.EntityVehicle},
		Fields: []core.FieldSpec{
			{Name: "hazmat", Type: core.FieldBool},
			{Name: "defect", Type: core.FieldText, MaxLen: 100},
			{Name: "lanes", Type: core.FieldInt},
			{Name: "bac", Type: core.FieldFloat},
		},
	}

	got := detailStatement(postgresDialect, def)
	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "vehicle_flags"`,
		`"vehicle_id" BIGINT PRIMARY KEY REFERENCES "vehicle" ("vehicle_id") ON DELETE CASCADE`,
		`"hazmat" BOOLEAN`,
		`"defect" VARCHAR(100)`,
		`"lanes" BIGINT`,
		`"bac" DOUBLE PRECISION`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("statement missing %q:\n%s", want, got)
		}
	}
}

func TestSchemaStatements_ParentsFirst(t *testing.T) {
	defs := []core.DetailDefinition{{Info: core.DetailInfo{Key: "d", Parent: core.EntityPerson}}}
	stmts := schemaStatements(postgresDialect, defs)
	if len(stmts) != 4 {
		t.Fatalf("statements = %d, want 4", len(stmts))
	}
	order := []string{"crashes", "vehicle", "people", `"d"`}
	for i, name := range order {
		if !strings.HasPrefix(stmts[i], "CREATE TABLE IF NOT EXISTS "+name) {
			t.Errorf("statement %d = %.40q, want table %s", i, stmts[i], name)
		}
	}
	if !strings.Contains(stmts[3], `"person_id" VARCHAR(128)`) {
		t.Errorf("person parent column type wrong:\n%s", stmts[3])
	}
}

func TestFromDB(t *testing.T) {
	tests := []struct {
		name    string
		typ     core.FieldType
		in      any
		want    any
		wantErr bool
	}{
		{"null", core.FieldInt, nil, nil, false},
		{"sqlite bool true", core.FieldBool, int64(1), true, false},
		{"sqlite bool false", core.FieldBool, int64(0), false, false},
		{"pg bool", core.FieldBool, true, true, false},
		{"int64", core.FieldInt, int64(7), int64(7), false},
		{"int32", core.FieldInt, int32(7), int64(7), false},
		{"whole float as int", core.FieldInt, 7.0, int64(7), false},
		{"float", core.FieldFloat, 0.08, 0.08, false},
		{"int as float", core.FieldFloat, int64(1), 1.0, false},
		{"text", core.FieldText, "BRAKES", "BRAKES", false},
		{"bytes as text", core.FieldText, []byte("BRAKES"), "BRAKES", false},
		{"text in int column", core.FieldInt, "7", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fromDB(core.FieldSpec{Name: "f", Type: tt.typ}, tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("fromDB() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("fromDB() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDBTimeScan(t *testing.T) {
	want := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		src  any
	}{
		{"native", time.Date(2024, 1, 15, 14, 30, 0, 0, time.FixedZone("CST", -6*3600))},
		{"text", "2024-01-15 14:30:00"},
		{"bytes", []byte("2024-01-15 14:30:00")},
	}
	for _, tt := range tests {
		var ts dbTime
		if err := ts.Scan(tt.src); err != nil {
			t.Fatalf("%s: Scan() error = %v", tt.name, err)
		}
		if !ts.t.Equal(want) {
			t.Errorf("%s: got %v, want %v", tt.name, ts.t, want)
		}
	}

	var ts dbTime
	if err := ts.Scan(42); err == nil {
		t.Error("Scan(int) should fail")
	}
}
