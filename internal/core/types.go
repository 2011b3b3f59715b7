// Package core provides the record identity and validation layer for
// traffic-collision data. It has no transport or storage dependencies.
package core

import (
	"encoding/json"
	"time"
)

// Entity names a record type in failures, logs and metrics.
type Entity string

const (
	EntityCrash   Entity = "crash"
	EntityPerson  Entity = "person"
	EntityVehicle Entity = "vehicle"
)

// Table and column names shared with the Store implementations.
const (
	TableCrashes  = "crashes"
	TablePeople   = "people"
	TableVehicles = "vehicle"

	ColCrashRecordID = "crash_record_id"
	ColPersonID      = "person_id"
	ColVehicleID     = "vehicle_id"
	ColCrashUnitID   = "crash_unit_id"
)

// CrashRecord is a persisted crash. CrashRecordID is derived from the
// other identity fields at creation and never re-derived afterwards.
type CrashRecord struct {
	CrashRecordID string    `json:"crash_record_id"`
	IncidentDate  time.Time `json:"incident_date"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	StreetNo      *int      `json:"street_no"`
	StreetName    *string   `json:"street_name"`
}

// MarshalJSON renders IncidentDate without a zone, the way it is hashed.
func (c CrashRecord) MarshalJSON() ([]byte, error) {
	type alias CrashRecord
	return json.Marshal(struct {
		alias
		IncidentDate string `json:"incident_date"`
	}{alias(c), c.IncidentDate.Format(TimestampLayout)})
}

// CrashInput holds caller-supplied crash attributes.
type CrashInput struct {
	IncidentDate time.Time
	Latitude     float64
	Longitude    float64
	StreetNo     *int
	StreetName   *string
}

// CrashPatch holds optional crash attribute changes. Nil means unchanged.
type CrashPatch struct {
	IncidentDate *time.Time
	Latitude     *float64
	Longitude    *float64
	StreetNo     *int
	StreetName   *string
}

// Person is a persisted person record.
type Person struct {
	PersonID             string  `json:"person_id"`
	PersonType           *string `json:"person_type"`
	CrashRecordID        *string `json:"crash_record_id"`
	VehicleID            *int64  `json:"vehicle_id"`
	Sex                  *string `json:"sex"`
	Age                  *int    `json:"age"`
	SafetyEquipment      *string `json:"safety_equipment"`
	AirbagDeployed       *string `json:"airbag_deployed"`
	InjuryClassification *string `json:"injury_classification"`
}

// PersonInput holds caller-supplied person attributes. Update requests use
// the same shape; nil fields are left unchanged.
type PersonInput struct {
	PersonType           *string `json:"person_type"`
	CrashRecordID        *string `json:"crash_record_id"`
	VehicleID            *int64  `json:"vehicle_id"`
	Sex                  *string `json:"sex"`
	Age                  *int    `json:"age"`
	SafetyEquipment      *string `json:"safety_equipment"`
	AirbagDeployed       *string `json:"airbag_deployed"`
	InjuryClassification *string `json:"injury_classification"`
}

// Vehicle is a persisted vehicle record.
type Vehicle struct {
	VehicleID     int64   `json:"vehicle_id"`
	CrashUnitID   int64   `json:"crash_unit_id"`
	CrashRecordID string  `json:"crash_record_id"`
	UnitNo        *int    `json:"unit_no"`
	UnitType      *string `json:"unit_type"`
	NumPassengers *int    `json:"num_passengers"`
	VehicleYear   *int    `json:"vehicle_year"`
	Make          *string `json:"make"`
	Model         *string `json:"model"`
	VehicleType   *string `json:"vehicle_type"`
}

// VehicleInput holds caller-supplied vehicle attributes. On update a nil
// or empty CrashRecordID leaves the reference unchanged.
type VehicleInput struct {
	CrashRecordID string  `json:"crash_record_id"`
	UnitNo        *int    `json:"unit_no"`
	UnitType      *string `json:"unit_type"`
	NumPassengers *int    `json:"num_passengers"`
	VehicleYear   *int    `json:"vehicle_year"`
	Make          *string `json:"make"`
	Model         *string `json:"model"`
	VehicleType   *string `json:"vehicle_type"`
}

// Page bounds a list query.
type Page struct {
	Offset int
	Limit  int
}

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// Geofence is an inclusive bounding box of plausible coordinates.
type Geofence struct {
	Enabled bool
	MinLat  float64
	MaxLat  float64
	MinLon  float64
	MaxLon  float64
}

// DefaultGeofence is the dataset's covered region. The southern latitude
// bound of -41 is the published value and is kept as given, not as 41.
var DefaultGeofence = Geofence{
	Enabled: true,
	MinLat:  -41,
	MaxLat:  43,
	MinLon:  -88,
	MaxLon:  -86,
}
