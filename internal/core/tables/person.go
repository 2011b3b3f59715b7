package tables

import "github.com/JonMunkholm/crashdb/internal/core"

func init() {
	core.Register(core.DetailDefinition{
		Info: core.DetailInfo{Key: "driver_info", Label: "Driver Info", Parent: core.EntityPerson},
		Fields: []core.FieldSpec{
			text("driver_action", 50),
			text("driver_vision", 50),
			text("physical_condition", 50),
			{Name: "bac_result_value", Type: core.FieldFloat, Ranged: true, Min: 0, Max: 1},
			flag("cell_phone_use"),
			text("drivers_license_class", 10),
		},
	})
}
