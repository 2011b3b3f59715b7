package core

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DetailRow is one row of a detail table. Values holds every column of the
// definition, with nil for NULL; text is string, integers int64, numbers
// float64 and booleans bool.
type DetailRow struct {
	Table    string
	ParentID any
	Values   map[string]any
}

// MarshalJSON flattens the row into one object keyed by column name.
func (r DetailRow) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Values)+1)
	for k, v := range r.Values {
		out[k] = v
	}
	col := ColCrashRecordID
	if def, ok := Get(r.Table); ok {
		col = def.ParentColumn()
	}
	out[col] = r.ParentID
	return json.Marshal(out)
}

// ParseParentID converts a textual parent id to the key type of def's
// parent: int64 for vehicles, string otherwise.
func ParseParentID(def DetailDefinition, s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &Failure{
			Kind:   KindValidation,
			Entity: Entity(def.Info.Key),
			Violations: []ValidationError{{
				Field: def.ParentColumn(), Reason: ReasonMalformed, Message: "is required",
			}},
		}
	}
	if def.Info.Parent != EntityVehicle {
		return s, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, &Failure{
			Kind:   KindValidation,
			Entity: Entity(def.Info.Key),
			Violations: []ValidationError{{
				Field: def.ParentColumn(), Value: s, Reason: ReasonMalformed, Message: "must be an integer",
			}},
		}
	}
	return id, nil
}

// NormalizeDetailValues converts raw input (decoded JSON or CSV cells) into
// typed column values and validates each against its spec.
//
// With partial set, only the keys present in raw are returned; otherwise
// every column appears, nil when absent. Unknown keys are violations.
func NormalizeDetailValues(def DetailDefinition, raw map[string]any, partial bool) (map[string]any, []ValidationError) {
	var errs fieldErrors
	out := make(map[string]any, len(def.Fields))

	unknown := make([]string, 0)
	for k := range raw {
		if k == def.ParentColumn() {
			continue
		}
		if _, ok := def.Field(k); !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		errs.add(&ValidationError{Field: k, Reason: ReasonMalformed, Message: "unknown field"})
	}

	for _, spec := range def.Fields {
		v, present := raw[spec.Name]
		if !present {
			if !partial {
				out[spec.Name] = nil
			}
			continue
		}
		typed, err := normalizeDetailValue(spec, v)
		if err != nil {
			errs.add(err)
			continue
		}
		out[spec.Name] = typed
	}
	return out, errs
}

func normalizeDetailValue(spec FieldSpec, v any) (any, *ValidationError) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && CleanCell(s) == "" {
		return nil, nil
	}

	switch spec.Type {
	case FieldText:
		s := fmt.Sprint(v)
		if spec.MaxLen > 0 {
			if err := ValidateStringLength(s, spec.MaxLen, spec.Name); err != nil {
				return nil, err
			}
		}
		return s, nil

	case FieldInt:
		i, ok := toInt64(v)
		if !ok {
			return nil, malformed(spec, v)
		}
		if spec.Ranged {
			if err := ValidateRange(i, int64(spec.Min), int64(spec.Max), spec.Name); err != nil {
				return nil, err
			}
		}
		return i, nil

	case FieldFloat:
		f, ok := toFloat64(v)
		if !ok {
			return nil, malformed(spec, v)
		}
		if spec.Ranged {
			if err := ValidateFloatRange(f, spec.Min, spec.Max, spec.Name); err != nil {
				return nil, err
			}
		} else if err := validateFinite(f, spec.Name); err != nil {
			return nil, err
		}
		return f, nil

	case FieldBool:
		// Unrecognized encodings become NULL rather than failing.
		if b := NormalizeBoolean(v).Ptr(); b != nil {
			return *b, nil
		}
		return nil, nil
	}
	return nil, malformed(spec, v)
}

func malformed(spec FieldSpec, v any) *ValidationError {
	return &ValidationError{
		Field:   spec.Name,
		Value:   truncateForDisplay(fmt.Sprint(v)),
		Reason:  ReasonMalformed,
		Message: "must be a " + spec.Type.String(),
	}
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int64:
		return x, true
	case int32:
		return int64(x), true
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int64(x), true
	case json.Number:
		i, err := x.Int64()
		return i, err == nil
	case string:
		i, err := ParseOptionalInt(x)
		if err != nil || i == nil {
			return 0, false
		}
		return int64(*i), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := ParseFloat(x)
		return f, err == nil
	}
	return 0, false
}

// CrashDateKey is the detail table derived from a crash's incident date.
const CrashDateKey = "crash_date"

// DeriveCrashDate returns the crash_date values for ts: ISO weekday
// (Monday=1 through Sunday=7) and month.
func DeriveCrashDate(ts time.Time) map[string]any {
	wd := int64(ts.Weekday())
	if wd == 0 {
		wd = 7
	}
	return map[string]any{
		"crash_day_of_week": wd,
		"crash_month":       int64(ts.Month()),
	}
}
