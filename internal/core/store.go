package core

import "context"

// Store opens storage transactions. Implementations live in internal/store.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one storage transaction.
//
// The record assembler needs only point lookups, key scans, max reads and
// inserts; the remaining methods back the CRUD surface. Implementations
// report unique violations wrapping ErrConflict, foreign key violations
// wrapping ErrForeignKey and missing rows wrapping ErrNotFound.
//
// Rollback after Commit must be a harmless no-op.
type Tx interface {
	ReferenceChecker
	KeyScanner
	SequenceReader

	InsertCrash(ctx context.Context, c CrashRecord) error
	GetCrash(ctx context.Context, id string) (CrashRecord, error)
	ListCrashes(ctx context.Context, p Page) ([]CrashRecord, error)
	UpdateCrash(ctx context.Context, c CrashRecord) error
	DeleteCrash(ctx context.Context, id string) error

	InsertPerson(ctx context.Context, p Person) error
	GetPerson(ctx context.Context, id string) (Person, error)
	ListPeople(ctx context.Context, p Page) ([]Person, error)
	UpdatePerson(ctx context.Context, p Person) error
	DeletePerson(ctx context.Context, id string) error

	InsertVehicle(ctx context.Context, v Vehicle) error
	GetVehicle(ctx context.Context, id int64) (Vehicle, error)
	ListVehicles(ctx context.Context, p Page) ([]Vehicle, error)
	UpdateVehicle(ctx context.Context, v Vehicle) error
	DeleteVehicle(ctx context.Context, id int64) error

	InsertDetail(ctx context.Context, def DetailDefinition, row DetailRow) error
	GetDetail(ctx context.Context, def DetailDefinition, parentID any) (DetailRow, error)
	UpdateDetail(ctx context.Context, def DetailDefinition, row DetailRow) error
	DeleteDetail(ctx context.Context, def DetailDefinition, parentID any) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
