package core

// identity.go implements the three identifier strategies.
//
//   - Crash records are content-addressed: the id is a SHA-512 digest of the
//     identity fields, so re-ingesting the same event yields the same id.
//     Two distinct crashes that share timestamp (to the second), truncated
//     coordinates and street address are indistinguishable by design of the
//     scheme; that is an accepted modeling approximation.
//   - People get "Q" plus a 7-digit suffix, one above the current maximum.
//   - Vehicles (vehicle_id and crash_unit_id) get max+1.
//
// The sequential strategies read committed state on every call and never
// cache. Concurrent callers can compute the same next value; the losing
// insert fails on the uniqueness constraint and surfaces as a conflict.

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the canonical second-precision form used for hashing
// and rendering incident dates.
const TimestampLayout = "2006-01-02 15:04:05"

// CoordinateDecimals is the number of decimals kept by truncation.
const CoordinateDecimals = 6

// CrashRecordID derives the content-addressed crash identifier: the
// lowercase hex SHA-512 of timestamp, latitude, longitude, street number
// and street name concatenated without separators.
func CrashRecordID(ts time.Time, lat, lon float64, streetNo int, streetName string) string {
	var b strings.Builder
	b.WriteString(ts.Format(TimestampLayout))
	b.WriteString(FormatCoordinate(lat))
	b.WriteString(FormatCoordinate(lon))
	b.WriteString(strconv.Itoa(streetNo))
	b.WriteString(streetName)

	sum := sha512.Sum512([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// crashRecordID applies the defaults for missing street fields.
func crashRecordID(in CrashInput) string {
	streetNo := 0
	if in.StreetNo != nil {
		streetNo = *in.StreetNo
	}
	streetName := ""
	if in.StreetName != nil {
		streetName = *in.StreetName
	}
	return CrashRecordID(in.IncidentDate, in.Latitude, in.Longitude, streetNo, streetName)
}

// FormatCoordinate renders v truncated toward zero to six decimals.
//
// Truncation works on the shortest decimal representation of v rather than
// on v*1e6, which would misplace values such as 41.8781 whose binary form
// sits just below the decimal one.
func FormatCoordinate(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', CoordinateDecimals, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	intPart, frac, _ := strings.Cut(s, ".")
	if len(frac) > CoordinateDecimals {
		frac = frac[:CoordinateDecimals]
	}
	frac += strings.Repeat("0", CoordinateDecimals-len(frac))
	if strings.Trim(intPart, "-0") == "" && strings.Trim(frac, "0") == "" {
		intPart = "0"
	}
	return intPart + "." + frac
}

// TruncateCoordinate returns v truncated toward zero to six decimals.
func TruncateCoordinate(v float64) float64 {
	t, err := strconv.ParseFloat(FormatCoordinate(v), 64)
	if err != nil {
		return v
	}
	return t
}

// Person id format.
const (
	PersonIDPrefix  = "Q"
	PersonIDDigits  = 7
	MaxPersonSuffix = 9999999
)

var personIDPattern = regexp.MustCompile(`^Q[0-9]{7}$`)

// personIDLike prefilters candidate keys in storage; personIDPattern is
// authoritative.
var personIDLike = PersonIDPrefix + strings.Repeat("_", PersonIDDigits)

// KeyScanner streams the values of a text key column.
type KeyScanner interface {
	// ScanKeys calls fn for each value of column matching the SQL LIKE
	// pattern, in descending order, until fn returns false.
	ScanKeys(ctx context.Context, table, column, like string, fn func(key string) bool) error
}

// IsPersonID reports whether id has the allocated person id shape.
func IsPersonID(id string) bool {
	return personIDPattern.MatchString(id)
}

// NextPersonID returns the next person id: one above the highest suffix
// among ids matching ^Q[0-9]{7}$, or Q0000001 when none exist.
func NextPersonID(ctx context.Context, q KeyScanner) (string, error) {
	var max int64
	err := q.ScanKeys(ctx, TablePeople, ColPersonID, personIDLike, func(key string) bool {
		if !personIDPattern.MatchString(key) {
			return true
		}
		n, err := strconv.ParseInt(key[len(PersonIDPrefix):], 10, 64)
		if err != nil {
			return true
		}
		max = n
		return false
	})
	if err != nil {
		return "", fmt.Errorf("scan person ids: %w", err)
	}
	if max >= MaxPersonSuffix {
		return "", &Failure{
			Kind:   KindCapacityExhausted,
			Entity: EntityPerson,
			Key:    FormatPersonID(max),
		}
	}
	return FormatPersonID(max + 1), nil
}

// FormatPersonID renders a suffix as a person id.
func FormatPersonID(n int64) string {
	return fmt.Sprintf("%s%0*d", PersonIDPrefix, PersonIDDigits, n)
}

// Sequence is a numeric key column allocated by max+1.
type Sequence struct {
	Entity Entity
	Table  string
	Column string
}

var (
	VehicleIDSequence   = Sequence{Entity: EntityVehicle, Table: TableVehicles, Column: ColVehicleID}
	CrashUnitIDSequence = Sequence{Entity: EntityVehicle, Table: TableVehicles, Column: ColCrashUnitID}
)

// SequenceReader reads the current maximum of a numeric column.
type SequenceReader interface {
	// MaxInt returns the column maximum, or 0 for an empty table.
	MaxInt(ctx context.Context, table, column string) (int64, error)
}

// NextSequence returns the current maximum plus one.
func NextSequence(ctx context.Context, q SequenceReader, seq Sequence) (int64, error) {
	max, err := q.MaxInt(ctx, seq.Table, seq.Column)
	if err != nil {
		return 0, fmt.Errorf("read max %s.%s: %w", seq.Table, seq.Column, err)
	}
	if max == math.MaxInt64 {
		return 0, &Failure{
			Kind:   KindCapacityExhausted,
			Entity: seq.Entity,
			Key:    strconv.FormatInt(max, 10),
		}
	}
	return max + 1, nil
}
