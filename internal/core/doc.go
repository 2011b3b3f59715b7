// Package core is the record identity and validation layer for collision
// data.
//
// It sits in front of every insert and decides what a record's identifier
// is and whether the record may be stored. It holds no transport or driver
// code; storage is reached through the [Store] and [Tx] interfaces, which
// internal/store implements for PostgreSQL and SQLite.
//
// # Identifiers
//
// Three strategies are used:
//
//   - Crashes are content-addressed. [CrashRecordID] hashes the incident
//     timestamp, the coordinates truncated to six decimals, the street
//     number and the street name with SHA-512. Identical attributes always
//     give the same id, so re-ingesting a crash is detected as a duplicate.
//   - People get "Q" plus seven digits, one above the highest existing
//     suffix ([NextPersonID]).
//   - Vehicles get vehicle_id and crash_unit_id as max+1 ([NextSequence]).
//
// Nothing is cached in process; every allocation reads storage inside the
// write transaction.
//
// # Validation
//
// Field validators are pure functions returning a [ValidationError]. The
// entity validators run them all and report every violation together.
// Reference checks run inside the transaction as point lookups.
//
// # Service
//
// [Service] wraps creation, read, update and delete of crashes, people,
// vehicles and detail rows. Each write holds a [WriteLimiter] slot and one
// storage transaction that is rolled back on every failure path. Rejected
// operations return a [*Failure]; [MapError] turns any error into a
// [UserMessage] with a support code.
//
// # Detail Tables
//
// Detail tables are 1:1 satellites of a crash, person or vehicle. They are
// registered at init time with [Register] by the tables subpackage and
// validated generically from their [FieldSpec] list.
package core
