package simulator

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/perimeter-core/internal/device"
	"github.com/nerrad567/perimeter-core/internal/geo"
)

// Catalog is the device store SeedDevices writes to. device.Registry
// satisfies it.
type Catalog interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	CreateDevice(ctx context.Context, d *device.Device) error
}

// SeedDevices installs the mock site: the two detectors that report mock
// detections and the deterrent and camera the rules target. Devices already
// in the catalogue are left alone. It returns the IDs it created.
func (s *Simulator) SeedDevices(ctx context.Context, catalog Catalog) ([]string, error) {
	c := s.cfg.Center
	mock := []device.Device{
		{ID: s.cfg.AcousticDevice, Name: "Mock acoustic detector", Kind: device.KindAcousticDetector, Location: &geo.Point{Lat: c.Lat, Lng: c.Lng}},
		{ID: s.cfg.ThermalDevice, Name: "Mock thermal camera", Kind: device.KindThermalCamera, Location: &geo.Point{Lat: c.Lat + 0.001, Lng: c.Lng}},
		{ID: s.cfg.DeterrentDevice, Name: "Mock acoustic deterrent", Kind: device.KindDeterrentEmitter, Location: &geo.Point{Lat: c.Lat, Lng: c.Lng + 0.001}},
		{ID: s.cfg.CameraDevice, Name: "Mock PTZ camera", Kind: device.KindPTZCamera, Location: &geo.Point{Lat: c.Lat - 0.001, Lng: c.Lng}},
	}

	var created []string
	for i := range mock {
		d := &mock[i]
		_, err := catalog.GetDevice(ctx, d.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, device.ErrDeviceNotFound) {
			return created, fmt.Errorf("looking up %s: %w", d.ID, err)
		}
		d.Status = device.StatusOnline
		if err := catalog.CreateDevice(ctx, d); err != nil && !errors.Is(err, device.ErrDeviceExists) {
			return created, fmt.Errorf("seeding %s: %w", d.ID, err)
		}
		created = append(created, d.ID)
	}
	if len(created) > 0 {
		s.logger.Info("mock devices seeded", "devices", created)
	}
	return created, nil
}
