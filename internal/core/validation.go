package core

// validation.go provides the field validators applied before any insert.
//
// Validators are pure functions returning nil when the value is valid or a
// *ValidationError carrying a Reason code. CheckReferences is the one
// exception: it performs read-only point lookups against storage.
//
// Entity validators collect violations across fields with a fieldErrors
// accumulator, so a caller sees every problem at once. Within one field the
// first failing check wins.

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// String limits mirrored from the storage schema.
const (
	MaxStreetNameLen           = 255
	MaxPersonTypeLen           = 50
	MaxSexLen                  = 10
	MaxSafetyEquipmentLen      = 200
	MaxAirbagDeployedLen       = 100
	MaxInjuryClassificationLen = 100
	MaxUnitTypeLen             = 30
	MaxVehicleTextLen          = 200
	MaxStreetNo                = 9999999
	MinAge                     = 0
	MaxAge                     = 120
	MinVehicleYear             = 1900
)

// ValidateCoordinates checks the geofence first and the structural range
// second. A coordinate outside the fence is reported once, with the
// narrower bound in the message.
func ValidateCoordinates(lat, lon float64, fence Geofence) []ValidationError {
	var errs []ValidationError
	if err := validateAxis("latitude", lat, -90, 90, fence.Enabled, fence.MinLat, fence.MaxLat); err != nil {
		errs = append(errs, *err)
	}
	if err := validateAxis("longitude", lon, -180, 180, fence.Enabled, fence.MinLon, fence.MaxLon); err != nil {
		errs = append(errs, *err)
	}
	return errs
}

func validateAxis(field string, v, lo, hi float64, fenced bool, fenceLo, fenceHi float64) *ValidationError {
	if err := validateFinite(v, field); err != nil {
		return err
	}
	if fenced && (v < fenceLo || v > fenceHi) {
		return &ValidationError{
			Field:   field,
			Value:   formatFloat(v),
			Reason:  ReasonOutOfRange,
			Message: fmt.Sprintf("must be within the covered region [%s, %s]", formatFloat(fenceLo), formatFloat(fenceHi)),
		}
	}
	return ValidateFloatRange(v, lo, hi, field)
}

// ValidateDateNotFuture rejects timestamps strictly after now.
func ValidateDateNotFuture(ts time.Time, field string, now time.Time) *ValidationError {
	if ts.After(now) {
		return &ValidationError{
			Field:   field,
			Value:   ts.Format(TimestampLayout),
			Reason:  ReasonInvalidTemporal,
			Message: "cannot be in the future",
		}
	}
	return nil
}

// ValidateAge checks age is within [0, 120].
func ValidateAge(age int) *ValidationError {
	return ValidateRange(int64(age), MinAge, MaxAge, "age")
}

// ValidateVehicleYear checks year is within [1900, now.Year()+1].
func ValidateVehicleYear(year int, now time.Time) *ValidationError {
	return ValidateRange(int64(year), MinVehicleYear, int64(now.Year()+1), "vehicle_year")
}

// ValidateNonNegative rejects values below zero.
func ValidateNonNegative(v int64, field string) *ValidationError {
	if v < 0 {
		return &ValidationError{
			Field:   field,
			Value:   strconv.FormatInt(v, 10),
			Reason:  ReasonOutOfRange,
			Message: "must be non-negative",
		}
	}
	return nil
}

// ValidateRange checks lo <= v <= hi.
func ValidateRange(v, lo, hi int64, field string) *ValidationError {
	if v < lo || v > hi {
		return &ValidationError{
			Field:   field,
			Value:   strconv.FormatInt(v, 10),
			Reason:  ReasonOutOfRange,
			Message: fmt.Sprintf("must be between %d and %d", lo, hi),
		}
	}
	return nil
}

// ValidateFloatRange checks lo <= v <= hi. NaN and infinities are out of
// every range.
func ValidateFloatRange(v, lo, hi float64, field string) *ValidationError {
	if err := validateFinite(v, field); err != nil {
		return err
	}
	if v < lo || v > hi {
		return &ValidationError{
			Field:   field,
			Value:   formatFloat(v),
			Reason:  ReasonOutOfRange,
			Message: fmt.Sprintf("must be between %s and %s", formatFloat(lo), formatFloat(hi)),
		}
	}
	return nil
}

// ValidateStringLength rejects strings longer than maxLen characters.
func ValidateStringLength(s string, maxLen int, field string) *ValidationError {
	if n := utf8.RuneCountInString(s); n > maxLen {
		return &ValidationError{
			Field:   field,
			Value:   truncateForDisplay(s),
			Reason:  ReasonTooLong,
			Message: fmt.Sprintf("length %d exceeds maximum of %d", n, maxLen),
		}
	}
	return nil
}

// TriBool is a boolean that may be unknown.
type TriBool int8

const (
	Unknown TriBool = iota
	True
	False
)

// Ptr returns nil for Unknown.
func (b TriBool) Ptr() *bool {
	switch b {
	case True:
		v := true
		return &v
	case False:
		v := false
		return &v
	default:
		return nil
	}
}

func (b TriBool) String() string {
	switch b {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// NormalizeBoolean maps loosely-typed boolean encodings to a TriBool.
// Unrecognized input is Unknown; it never fails.
func NormalizeBoolean(v any) TriBool {
	switch x := v.(type) {
	case nil:
		return Unknown
	case bool:
		if x {
			return True
		}
		return False
	case *bool:
		if x == nil {
			return Unknown
		}
		return NormalizeBoolean(*x)
	case int:
		return boolFromInt(int64(x))
	case int8:
		return boolFromInt(int64(x))
	case int16:
		return boolFromInt(int64(x))
	case int32:
		return boolFromInt(int64(x))
	case int64:
		return boolFromInt(x)
	case uint8:
		return boolFromInt(int64(x))
	case float64:
		// encoding/json decodes every number as float64
		if x == 0 || x == 1 {
			return boolFromInt(int64(x))
		}
		return Unknown
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "y", "t", "1":
			return True
		case "false", "no", "n", "f", "0":
			return False
		}
	}
	return Unknown
}

func boolFromInt(i int64) TriBool {
	switch i {
	case 1:
		return True
	case 0:
		return False
	default:
		return Unknown
	}
}

// Reference names a parent collection a foreign key points into.
type Reference struct {
	Table  string
	Column string
}

var (
	RefCrash   = Reference{Table: TableCrashes, Column: ColCrashRecordID}
	RefVehicle = Reference{Table: TableVehicles, Column: ColVehicleID}
	RefPerson  = Reference{Table: TablePeople, Column: ColPersonID}
)

// ReferenceChecker performs point lookups by key.
type ReferenceChecker interface {
	Exists(ctx context.Context, table, column string, value any) (bool, error)
}

// ReferenceCheck is one populated foreign key field.
type ReferenceCheck struct {
	Field string
	Ref   Reference
	Value any
}

// CheckReference runs one point lookup. It returns a missing_reference
// violation when no row of ref has value.
func CheckReference(ctx context.Context, q ReferenceChecker, field string, ref Reference, value any) (*ValidationError, error) {
	missing, err := CheckReferences(ctx, q, []ReferenceCheck{{Field: field, Ref: ref, Value: value}})
	if err != nil || len(missing) == 0 {
		return nil, err
	}
	return &missing[0], nil
}

// CheckReferences runs every lookup and reports all missing parents.
// A non-nil error means storage failed; violations are only meaningful
// when it is nil.
func CheckReferences(ctx context.Context, q ReferenceChecker, checks []ReferenceCheck) ([]ValidationError, error) {
	var missing []ValidationError
	for _, c := range checks {
		ok, err := q.Exists(ctx, c.Ref.Table, c.Ref.Column, c.Value)
		if err != nil {
			return nil, fmt.Errorf("check %s reference: %w", c.Field, err)
		}
		if !ok {
			missing = append(missing, ValidationError{
				Field:   c.Field,
				Value:   fmt.Sprint(c.Value),
				Reason:  ReasonMissingReference,
				Message: fmt.Sprintf("no %s with %s %v", c.Ref.Table, c.Ref.Column, c.Value),
			})
		}
	}
	return missing, nil
}

// fieldErrors accumulates violations across independent fields.
type fieldErrors []ValidationError

func (f *fieldErrors) add(err *ValidationError) {
	if err != nil {
		*f = append(*f, *err)
	}
}

func (f *fieldErrors) addAll(errs []ValidationError) {
	*f = append(*f, errs...)
}

func (f *fieldErrors) text(s *string, maxLen int, field string) {
	if s != nil {
		f.add(ValidateStringLength(*s, maxLen, field))
	}
}

func (f *fieldErrors) nonNegative(v *int, field string) {
	if v != nil {
		f.add(ValidateNonNegative(int64(*v), field))
	}
}

func validateCrash(in CrashInput, fence Geofence, now time.Time) []ValidationError {
	var errs fieldErrors
	errs.addAll(ValidateCoordinates(in.Latitude, in.Longitude, fence))
	errs.add(ValidateDateNotFuture(in.IncidentDate, "incident_date", now))
	errs.text(in.StreetName, MaxStreetNameLen, "street_name")
	if in.StreetNo != nil {
		if err := ValidateNonNegative(int64(*in.StreetNo), "street_no"); err != nil {
			errs.add(err)
		} else {
			errs.add(ValidateRange(int64(*in.StreetNo), 0, MaxStreetNo, "street_no"))
		}
	}
	return errs
}

func validatePerson(in PersonInput) []ValidationError {
	var errs fieldErrors
	errs.text(in.PersonType, MaxPersonTypeLen, "person_type")
	errs.text(in.Sex, MaxSexLen, "sex")
	if in.Age != nil {
		errs.add(ValidateAge(*in.Age))
	}
	errs.text(in.SafetyEquipment, MaxSafetyEquipmentLen, "safety_equipment")
	errs.text(in.AirbagDeployed, MaxAirbagDeployedLen, "airbag_deployed")
	errs.text(in.InjuryClassification, MaxInjuryClassificationLen, "injury_classification")
	return errs
}

func validateVehicle(in VehicleInput, now time.Time) []ValidationError {
	var errs fieldErrors
	errs.nonNegative(in.UnitNo, "unit_no")
	errs.text(in.UnitType, MaxUnitTypeLen, "unit_type")
	errs.nonNegative(in.NumPassengers, "num_passengers")
	if in.VehicleYear != nil {
		errs.add(ValidateVehicleYear(*in.VehicleYear, now))
	}
	errs.text(in.Make, MaxVehicleTextLen, "make")
	errs.text(in.Model, MaxVehicleTextLen, "model")
	errs.text(in.VehicleType, MaxVehicleTextLen, "vehicle_type")
	return errs
}

// ValidatePage checks list bounds and applies the default limit.
func ValidatePage(p Page) (Page, []ValidationError) {
	var errs fieldErrors
	if p.Limit == 0 {
		p.Limit = DefaultPageLimit
	}
	errs.add(ValidateNonNegative(int64(p.Offset), "skip"))
	errs.add(ValidateRange(int64(p.Limit), 1, MaxPageLimit, "limit"))
	return p, errs
}

// validateFinite rejects NaN and infinities, which compare false against
// any bound.
func validateFinite(v float64, field string) *ValidationError {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{
			Field:   field,
			Value:   formatFloat(v),
			Reason:  ReasonOutOfRange,
			Message: "must be a finite number",
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// truncateForDisplay keeps echoed values short in error payloads.
func truncateForDisplay(s string) string {
	const max = 40
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "..."
}
