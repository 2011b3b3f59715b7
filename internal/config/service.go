package config

import "github.com/JonMunkholm/crashdb/internal/core"

// ServiceOptions maps the write and geofence settings onto core.Options.
// The caller adds the Recorder.
func (c *Config) ServiceOptions() core.Options {
	return core.Options{
		Geofence: core.Geofence{
			Enabled: c.Geofence.Enabled,
			MinLat:  c.Geofence.MinLat,
			MaxLat:  c.Geofence.MaxLat,
			MinLon:  c.Geofence.MinLon,
			MaxLon:  c.Geofence.MaxLon,
		},
		MaxConcurrentWrites: c.Write.MaxConcurrent,
		MaxWriteWait:        c.Write.MaxWaitTime,
	}
}
