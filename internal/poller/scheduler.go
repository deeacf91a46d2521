package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modbusmon/modbusmon/internal/modbus"
	"github.com/modbusmon/modbusmon/internal/snapshot"
	"github.com/modbusmon/modbusmon/internal/tags"
	"go.uber.org/zap"
)

// deviceLink is the slice of modbus.Conn the scheduler depends on.
type deviceLink interface {
	Read(rt modbus.RegisterType, address, count uint16) ([]byte, error)
	Write(rt modbus.RegisterType, address, value uint16) error
	Close() error
}

// Observer is notified after every completed cycle with the entries the
// cycle produced, and once per device whose whole read batch failed.
// Used to push live updates to connected dashboards.
type Observer interface {
	CycleCompleted(cycle uint64, entries []snapshot.Entry)
	DeviceFailed(deviceID int64, name string, status modbus.Status)
}

// Config carries the scheduler's timing knobs.
type Config struct {
	// Interval between cycle starts. Default 5s.
	Interval time.Duration
	// DeviceTimeout is the per-device read-batch budget within a cycle.
	DeviceTimeout time.Duration
	// MaxWorkers bounds how many devices are polled concurrently.
	MaxWorkers int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.DeviceTimeout <= 0 {
		c.DeviceTimeout = time.Second
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 8
	}
	return c
}

// Scheduler drives periodic polling cycles over the registry's active
// devices. Devices are polled concurrently under a bounded worker pool;
// reads within one device are strictly sequential because the link is a
// shared, exclusively-owned resource. Cycles never overlap: a tick that
// fires while a cycle is still running is skipped and logged, never queued.
type Scheduler struct {
	registry *tags.Registry
	store    *snapshot.Store
	cfg      Config
	logger   *zap.Logger
	observer Observer

	// dial opens a link to a device; replaced in tests.
	dial func(tags.Device) deviceLink

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	cycleActive atomic.Bool
	cycles      atomic.Uint64
	skipped     atomic.Uint64
	lastCycleMS atomic.Int64

	connMu sync.Mutex
	conns  map[int64]*deviceConn
}

type deviceConn struct {
	cfg  modbus.ConnConfig
	link deviceLink
}

func NewScheduler(registry *tags.Registry, store *snapshot.Store, cfg Config, logger *zap.Logger) *Scheduler {
	s := &Scheduler{
		registry: registry,
		store:    store,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		stopChan: make(chan struct{}),
		conns:    make(map[int64]*deviceConn),
	}
	s.dial = func(d tags.Device) deviceLink {
		return modbus.NewConn(d.ConnConfig(), logger)
	}
	return s
}

// SetObserver registers the cycle observer. Must be called before Start.
func (s *Scheduler) SetObserver(o Observer) {
	s.observer = o
}

// Start launches the scheduler loop. The first cycle runs immediately.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true
	s.wg.Add(1)
	go s.loop()

	s.logger.Info("poll scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("device_timeout", s.cfg.DeviceTimeout),
		zap.Int("max_workers", s.cfg.MaxWorkers))
	return nil
}

// Stop halts the loop, waits for an in-flight cycle to drain (bounded by
// the per-device timeouts), then releases all device connections. No
// snapshot writes happen after Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()

	s.connMu.Lock()
	for id, dc := range s.conns {
		if err := dc.link.Close(); err != nil {
			s.logger.Warn("closing device link", zap.Int64("device_id", id), zap.Error(err))
		}
		delete(s.conns, id)
	}
	s.connMu.Unlock()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("poll scheduler stopped", zap.Uint64("cycles", s.cycles.Load()))
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.startCycle()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.startCycle()
		}
	}
}

// startCycle launches one cycle unless the previous one is still running,
// in which case the tick is dropped to bound memory and device load.
func (s *Scheduler) startCycle() {
	if !s.cycleActive.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Warn("previous poll cycle still running, tick skipped",
			zap.Uint64("skipped_total", s.skipped.Load()))
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.cycleActive.Store(false)
		s.runCycle()
	}()
}

func (s *Scheduler) runCycle() {
	start := time.Now()

	// Entries for tags removed since the last cycle go first.
	s.store.Prune(s.registry.TagIDs())

	view := s.registry.View()
	sem := make(chan struct{}, s.cfg.MaxWorkers)
	results := make([]deviceResult, len(view.Devices))

	var wg sync.WaitGroup
	for i, dev := range view.Devices {
		batch := view.Tags[dev.ID]
		if len(batch) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int, dev tags.Device, batch []tags.Tag) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-s.stopChan:
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DeviceTimeout)
			defer cancel()
			results[i] = s.pollDevice(ctx, dev, batch)
		}(i, dev, batch)
	}
	wg.Wait()

	cycle := s.cycles.Add(1)
	s.lastCycleMS.Store(time.Now().UnixMilli())

	var entries []snapshot.Entry
	for _, r := range results {
		entries = append(entries, r.entries...)
	}
	if s.observer != nil {
		for i, r := range results {
			if r.status != "" && r.status != modbus.StatusOK {
				s.observer.DeviceFailed(view.Devices[i].ID, view.Devices[i].Name, r.status)
			}
		}
		if len(entries) > 0 {
			s.observer.CycleCompleted(cycle, entries)
		}
	}

	s.logger.Debug("poll cycle completed",
		zap.Uint64("cycle", cycle),
		zap.Int("devices", len(view.Devices)),
		zap.Int("tags", len(entries)),
		zap.Duration("took", time.Since(start)))
}

// deviceResult is one device's share of a cycle. status is non-OK only
// when the entire batch failed, which is what the dashboard surfaces as
// a device-level error.
type deviceResult struct {
	entries []snapshot.Entry
	status  modbus.Status
}

// pollDevice reads a device's tags sequentially in declaration order. Once
// the device's budget expires, the remaining tags are marked timeout
// without issuing further reads, so one slow device adds at most its
// timeout bound to the cycle and never stalls other devices.
func (s *Scheduler) pollDevice(ctx context.Context, dev tags.Device, batch []tags.Tag) deviceResult {
	link := s.link(dev)
	entries := make([]snapshot.Entry, 0, len(batch))
	okReads := 0
	var firstFail modbus.Status

	fail := func(id int64, status modbus.Status, ts time.Time) {
		s.store.Fail(id, status, ts)
		if firstFail == "" {
			firstFail = status
		}
		if e, ok := s.store.Get(id); ok {
			entries = append(entries, e)
		}
	}

	for _, t := range batch {
		if ctx.Err() != nil {
			fail(t.ID, modbus.StatusTimeout, time.Now())
			continue
		}

		data, err := link.Read(t.RegisterType, t.WireAddress, t.Quantity())
		ts := time.Now()
		if err != nil {
			status := modbus.Classify(err)
			s.logger.Warn("tag read failed",
				zap.String("device", dev.Name),
				zap.String("tag", t.Name),
				zap.String("status", string(status)),
				zap.Error(err))
			fail(t.ID, status, ts)
			continue
		}

		entry, derr := decodeEntry(dev, t, data, ts)
		if derr != nil {
			s.logger.Warn("tag decode failed",
				zap.String("device", dev.Name),
				zap.String("tag", t.Name),
				zap.Error(derr))
			fail(t.ID, modbus.StatusProtocolError, ts)
			continue
		}
		s.store.Update(entry)
		entries = append(entries, entry)
		okReads++
	}

	res := deviceResult{entries: entries}
	if okReads == 0 && len(batch) > 0 {
		res.status = firstFail
	}
	return res
}

func decodeEntry(dev tags.Device, t tags.Tag, data []byte, ts time.Time) (snapshot.Entry, error) {
	e := snapshot.Entry{TagID: t.ID, Timestamp: ts, Status: modbus.StatusOK}

	switch t.RegisterType {
	case modbus.RegisterTypeCoil, modbus.RegisterTypeDiscreteInput:
		raw := 0.0
		if modbus.DecodeBit(data) {
			raw = 1.0
		}
		e.Raw = raw
		e.Value = snapshot.Numeric(raw)
	default:
		raw, val, err := modbus.DecodeValue(data, t.Datatype, dev.ByteOrder, dev.WordOrder, t.Scale, t.Offset)
		if err != nil {
			return snapshot.Entry{}, err
		}
		e.Raw = raw
		e.Value = snapshot.Numeric(val)
	}
	return e, nil
}

// link returns the device's connection, dialing a new one when the device
// is first seen or its transport parameters changed through an edit.
func (s *Scheduler) link(dev tags.Device) deviceLink {
	cfg := dev.ConnConfig()

	s.connMu.Lock()
	defer s.connMu.Unlock()

	if dc, ok := s.conns[dev.ID]; ok {
		if dc.cfg == cfg {
			return dc.link
		}
		_ = dc.link.Close()
	}
	dc := &deviceConn{cfg: cfg, link: s.dial(dev)}
	s.conns[dev.ID] = dc
	return dc.link
}

// WriteTag writes an engineering value to a tag's register, inverting the
// tag's scale and offset. Only coil and holding-register tags with
// single-register datatypes are writable. The write shares the device link
// with the poll path, so it serializes against in-flight reads.
func (s *Scheduler) WriteTag(tagID int64, value float64) error {
	t, ok := s.registry.Tag(tagID)
	if !ok {
		return fmt.Errorf("unknown tag %d", tagID)
	}
	dev, ok := s.registry.Device(t.DeviceID)
	if !ok {
		return fmt.Errorf("unknown device %d", t.DeviceID)
	}
	if !dev.Active {
		return fmt.Errorf("device %q is inactive", dev.Name)
	}

	raw, err := modbus.EncodeRegister(value, t.Datatype, t.Scale, t.Offset)
	if err != nil {
		return err
	}

	if err := s.link(dev).Write(t.RegisterType, t.WireAddress, raw); err != nil {
		s.logger.Warn("tag write failed",
			zap.String("device", dev.Name),
			zap.String("tag", t.Name),
			zap.Error(err))
		return err
	}

	s.logger.Info("tag written",
		zap.String("device", dev.Name),
		zap.String("tag", t.Name),
		zap.Float64("value", value),
		zap.Uint16("raw", raw))
	return nil
}

// Cycles reports how many cycles have completed.
func (s *Scheduler) Cycles() uint64 { return s.cycles.Load() }

// SkippedTicks reports how many ticks were dropped due to overlap.
func (s *Scheduler) SkippedTicks() uint64 { return s.skipped.Load() }

// LastCycleAt reports the completion time of the most recent cycle in unix
// milliseconds, zero before the first cycle finishes.
func (s *Scheduler) LastCycleAt() int64 { return s.lastCycleMS.Load() }
