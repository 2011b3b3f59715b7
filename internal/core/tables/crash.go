package tables

import "github.com/JonMunkholm/crashdb/internal/core"

func init() {
	registerCrashDate()
	registerCrashCircumstances()
	registerCrashInjuries()
	registerCrashClassification()
}

func registerCrashDate() {
	core.Register(core.DetailDefinition{
		Info: core.DetailInfo{Key: core.CrashDateKey, Label: "Crash Date", Parent: core.EntityCrash},
		Fields: []core.FieldSpec{
			{Name: "crash_day_of_week", Type: core.FieldInt, Ranged: true, Min: 1, Max: 7},
			{Name: "crash_month", Type: core.FieldInt, Ranged: true, Min: 1, Max: 12},
		},
	})
}

func registerCrashCircumstances() {
	core.Register(core.DetailDefinition{
		Info: core.DetailInfo{Key: "crash_circumstances", Label: "Crash Circumstances", Parent: core.EntityCrash},
		Fields: []core.FieldSpec{
			text("traffic_control_device", 100),
			text("device_condition", 100),
			text("weather_condition", 100),
			text("lighting_condition", 100),
			text("roadway_surface_cond", 100),
			text("road_defect", 100),
			count("lane_cnt", 25),
			count("num_units", 100),
			count("posted_speed_limit", 500),
			flag("intersection_related_i"),
			flag("not_right_of_way_i"),
		},
	})
}

func registerCrashInjuries() {
	core.Register(core.DetailDefinition{
		Info: core.DetailInfo{Key: "crash_injuries", Label: "Crash Injuries", Parent: core.EntityCrash},
		Fields: []core.FieldSpec{
			count("injuries_fatal", 100),
			count("injuries_incapacitating", 100),
			count("injuries_other", 100),
		},
	})
}

func registerCrashClassification() {
	core.Register(core.DetailDefinition{
		Info: core.DetailInfo{Key: "crash_classification", Label: "Crash Classification", Parent: core.EntityCrash},
		Fields: []core.FieldSpec{
			text("first_crash_type", 150),
			text("crash_type", 150),
			text("prim_contributory_cause", 255),
			text("sec_contributory_cause", 255),
			text("damage", 100),
			flag("hit_and_run_i"),
		},
	})
}
