package tables

import "github.com/JonMunkholm/crashdb/internal/core"

func init() {
	registerVehicleSpecs()
	registerVehicleManeuvers()
	registerVehicleViolations()
}

func registerVehicleSpecs() {
	core.Register(core.DetailDefinition{
		Info: core.DetailInfo{Key: "vehicle_specs", Label: "Vehicle Specs", Parent: core.EntityVehicle},
		Fields: []core.FieldSpec{
			text("vehicle_use", 150),
			text("vehicle_config", 150),
			text("cargo_body_type", 150),
		},
	})
}

func registerVehicleManeuvers() {
	core.Register(core.DetailDefinition{
		Info: core.DetailInfo{Key: "vehicle_maneuvers", Label: "Vehicle Maneuvers", Parent: core.EntityVehicle},
		Fields: []core.FieldSpec{
			text("maneuver", 150),
		},
	})
}

func registerVehicleViolations() {
	core.Register(core.DetailDefinition{
		Info: core.DetailInfo{Key: "vehicle_violations", Label: "Vehicle Violations", Parent: core.EntityVehicle},
		Fields: []core.FieldSpec{
			flag("cmrc_veh_i"),
			flag("exceed_speed_limit_i"),
			flag("hazmat_present_i"),
			text("vehicle_defect", 100),
		},
	})
}
