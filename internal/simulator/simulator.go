package simulator

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/perimeter-core/internal/broadcast"
	"github.com/nerrad567/perimeter-core/internal/event"
	"github.com/nerrad567/perimeter-core/internal/geo"
	"github.com/nerrad567/perimeter-core/internal/ingest"
)

// DefaultStatusInterval is the system status broadcast period.
const DefaultStatusInterval = 10 * time.Second

// ErrAlreadyStarted is returned by Start on a running simulator.
var ErrAlreadyStarted = errors.New("simulator: already started")

// Notifier broadcasts messages to observers.
type Notifier interface {
	Notify(topic, msgType string, data any)
}

// ObserverCounter reports connected observers.
type ObserverCounter interface {
	Count() int
}

// Ingester accepts mock detections.
type Ingester interface {
	Ingest(ctx context.Context, raw ingest.RawEvent) (*event.Event, error)
}

// Logger is the logging interface used by the simulator.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Config configures a Simulator.
type Config struct {
	Version        string
	StatusInterval time.Duration
	// DetectionInterval enables mock detections when positive.
	DetectionInterval time.Duration
	// Center is the point mock detections scatter around.
	Center geo.Point
	// AcousticDevice and ThermalDevice report the mock detections.
	AcousticDevice string
	ThermalDevice  string
	// DeterrentDevice and CameraDevice are the response targets SeedDevices
	// installs alongside the detectors.
	DeterrentDevice string
	CameraDevice    string
}

// Status is the system status payload.
type Status struct {
	Version            string  `json:"version,omitempty"`
	UptimeSeconds      float64 `json:"uptime_seconds"`
	ConnectedObservers int     `json:"connected_observers"`
	VendorBridge       string  `json:"vendor_bridge"`
	MockDetections     bool    `json:"mock_detections"`
}

// Simulator owns the producer goroutines.
type Simulator struct {
	cfg      Config
	notifier Notifier
	counter  ObserverCounter
	ingester Ingester
	vendor   func() string
	logger   Logger
	now      func() time.Time
	rng      *rand.Rand

	mu      sync.Mutex
	started time.Time
	cancel  context.CancelFunc
	group   *errgroup.Group
	seq     int
}

// New creates a simulator. ingester may be nil when mock detections are off.
func New(cfg Config, notifier Notifier, counter ObserverCounter, ingester Ingester) *Simulator {
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultStatusInterval
	}
	if cfg.Center == (geo.Point{}) {
		cfg.Center = geo.Point{Lat: 37.7749, Lng: -122.4194}
	}
	if cfg.AcousticDevice == "" {
		cfg.AcousticDevice = "boomerang_01"
	}
	if cfg.ThermalDevice == "" {
		cfg.ThermalDevice = "thermal_01"
	}
	if cfg.DeterrentDevice == "" {
		cfg.DeterrentDevice = "lrad_01"
	}
	if cfg.CameraDevice == "" {
		cfg.CameraDevice = "ptz_01"
	}
	return &Simulator{
		cfg:      cfg,
		notifier: notifier,
		counter:  counter,
		ingester: ingester,
		vendor:   func() string { return "disabled" },
		logger:   noopLogger{},
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)), //nolint:gosec // Mock data only
	}
}

// SetLogger sets the logger.
func (s *Simulator) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetVendorState supplies the vendor bridge state for status reports.
func (s *Simulator) SetVendorState(state func() string) {
	if state != nil {
		s.vendor = state
	}
}

// Start launches the producers. They stop on Stop or ctx cancellation.
func (s *Simulator) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.started = s.now()
	s.group, ctx = errgroup.WithContext(ctx)

	s.group.Go(func() error {
		s.every(ctx, s.cfg.StatusInterval, s.broadcastStatus)
		return nil
	})
	if s.mockDetections() {
		s.group.Go(func() error {
			s.every(ctx, s.cfg.DetectionInterval, s.detect)
			return nil
		})
	}

	s.logger.Info("simulator started",
		"status_interval", s.cfg.StatusInterval.String(), "mock_detections", s.mockDetections())
	return nil
}

// Stop cancels the producers and waits for them to exit.
func (s *Simulator) Stop() {
	s.mu.Lock()
	cancel, group := s.cancel, s.group
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	group.Wait() //nolint:errcheck // Producers never return errors
	s.logger.Info("simulator stopped")
}

func (s *Simulator) mockDetections() bool {
	return s.cfg.DetectionInterval > 0 && s.ingester != nil
}

func (s *Simulator) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// CurrentStatus builds the status payload.
func (s *Simulator) CurrentStatus() Status {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	st := Status{
		Version:        s.cfg.Version,
		VendorBridge:   s.vendor(),
		MockDetections: s.mockDetections(),
	}
	if !started.IsZero() {
		st.UptimeSeconds = s.now().Sub(started).Seconds()
	}
	if s.counter != nil {
		st.ConnectedObservers = s.counter.Count()
	}
	return st
}

func (s *Simulator) broadcastStatus(context.Context) {
	s.notifier.Notify(broadcast.TopicSystem, broadcast.TypeSystem, s.CurrentStatus())
}

// detect ingests the next mock detection, alternating acoustic and thermal.
func (s *Simulator) detect(ctx context.Context) {
	s.mu.Lock()
	s.seq++
	acoustic := s.seq%2 == 1
	s.mu.Unlock()

	raw := s.thermal()
	if acoustic {
		raw = s.gunshot()
	}
	if _, err := s.ingester.Ingest(ctx, raw); err != nil && ctx.Err() == nil {
		s.logger.Warn("mock detection rejected", "type", raw.Type, "error", err)
	}
}

func (s *Simulator) gunshot() ingest.RawEvent {
	confidence := s.uniform(0.85, 0.99)
	return ingest.RawEvent{
		Type:       event.TypeGunshot,
		Confidence: &confidence,
		Location:   s.scatter(0.01),
		DeviceID:   s.cfg.AcousticDevice,
		Source:     event.SourceSimulator,
		Metadata: map[string]any{
			"peak_db":        110 + s.rng.IntN(31),
			"duration_ms":    50 + s.rng.IntN(151),
			"classification": []string{"rifle", "handgun", "shotgun"}[s.rng.IntN(3)],
			"direction":      s.rng.IntN(361),
			"distance_m":     50 + s.rng.IntN(451),
		},
	}
}

func (s *Simulator) thermal() ingest.RawEvent {
	confidence := s.uniform(0.70, 0.95)
	return ingest.RawEvent{
		Type:       event.TypeThermal,
		Confidence: &confidence,
		Location:   s.scatter(0.005),
		DeviceID:   s.cfg.ThermalDevice,
		Source:     event.SourceSimulator,
		Metadata: map[string]any{
			"temperature": s.uniform(98, 102),
			"size":        []string{"small", "medium", "large"}[s.rng.IntN(3)],
			"movement":    []string{"stationary", "slow", "fast"}[s.rng.IntN(3)],
		},
	}
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func (s *Simulator) scatter(spread float64) *geo.Point {
	return &geo.Point{
		Lat: s.cfg.Center.Lat + s.uniform(-spread, spread),
		Lng: s.cfg.Center.Lng + s.uniform(-spread, spread),
	}
}
