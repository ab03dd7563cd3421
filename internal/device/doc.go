// Package device provides the perimeter device catalogue.
//
// Devices are the actuators and detectors the ingest gateway and the
// command facade reason about: thermal cameras, acoustic detectors,
// deterrent emitters, relay banks and PTZ cameras.
//
// # Architecture
//
//	┌──────────────────┐    ┌──────────────────┐    ┌──────────────────┐
//	│     Registry     │    │    Repository    │    │    Validation    │
//	│   (registry.go)  │───▶│  (repository.go) │    │ (validation.go)  │
//	│ • In-memory cache│    │ • SQLite queries │    │ • Kind aliases   │
//	│ • Thread safety  │    │ • JSON config    │    │ • Size limits    │
//	└──────────────────┘    └──────────────────┘    └──────────────────┘
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. Returned devices are
// deep copies; callers may modify them freely.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//	dev, err := registry.GetDevice(ctx, "lrad_01")
package device
