package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/crashdb/internal/core"
)

// decodeJSON decodes one JSON object from the body, rejecting unknown
// fields and trailing data.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return &badRequest{errors.New("empty body")}
		}
		return &badRequest{err}
	}
	if dec.More() {
		return &badRequest{errors.New("unexpected data after JSON object")}
	}
	return nil
}

// invalid builds a validation failure for request parameters.
func invalid(entity core.Entity, field, value, message string) *core.Failure {
	return &core.Failure{
		Kind:   core.KindValidation,
		Entity: entity,
		Violations: []core.ValidationError{{
			Field:   field,
			Value:   value,
			Reason:  core.ReasonMalformed,
			Message: message,
		}},
	}
}

// parsePage reads skip and limit. Bounds are checked by the service; here
// only the integer syntax is.
func parsePage(r *http.Request, entity core.Entity) (core.Page, error) {
	var p core.Page
	q := r.URL.Query()
	for _, param := range []struct {
		name string
		dst  *int
	}{{"skip", &p.Offset}, {"limit", &p.Limit}} {
		raw := strings.TrimSpace(q.Get(param.name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return core.Page{}, invalid(entity, param.name, raw, "must be an integer")
		}
		*param.dst = n
	}
	return p, nil
}

// parseVehicleID parses a numeric vehicle path id.
func parseVehicleID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, invalid(core.EntityVehicle, core.ColVehicleID, raw, "must be an integer")
	}
	return id, nil
}

func required(field string) core.ValidationError {
	return core.ValidationError{Field: field, Reason: core.ReasonMalformed, Message: "is required"}
}

// crashRequest is the JSON body for crash create and update. Every field
// is a pointer so update can tell absent from zero.
type crashRequest struct {
	IncidentDate *string  `json:"incident_date"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	StreetNo     *int     `json:"street_no"`
	StreetName   *string  `json:"street_name"`
}

func (c crashRequest) input() (core.CrashInput, error) {
	var v []core.ValidationError
	in := core.CrashInput{StreetNo: c.StreetNo, StreetName: c.StreetName}

	if c.IncidentDate == nil {
		v = append(v, required("incident_date"))
	} else if ts, err := core.ParseTimestamp(*c.IncidentDate); err != nil {
		v = append(v, core.ValidationError{Field: "incident_date", Value: *c.IncidentDate, Reason: core.ReasonMalformed, Message: err.Error()})
	} else {
		in.IncidentDate = ts
	}
	if c.Latitude == nil {
		v = append(v, required("latitude"))
	} else {
		in.Latitude = *c.Latitude
	}
	if c.Longitude == nil {
		v = append(v, required("longitude"))
	} else {
		in.Longitude = *c.Longitude
	}

	if len(v) > 0 {
		return core.CrashInput{}, &core.Failure{Kind: core.KindValidation, Entity: core.EntityCrash, Violations: v}
	}
	return in, nil
}

func (c crashRequest) patch() (core.CrashPatch, error) {
	p := core.CrashPatch{
		Latitude:   c.Latitude,
		Longitude:  c.Longitude,
		StreetNo:   c.StreetNo,
		StreetName: c.StreetName,
	}
	if c.IncidentDate != nil {
		ts, err := core.ParseTimestamp(*c.IncidentDate)
		if err != nil {
			return core.CrashPatch{}, invalid(core.EntityCrash, "incident_date", *c.IncidentDate, err.Error())
		}
		p.IncidentDate = &ts
	}
	return p, nil
}

// boolParam reads a true/false query flag.
func boolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &badRequest{fmt.Errorf("query %s: %w", name, err)}
	}
	return b, nil
}
