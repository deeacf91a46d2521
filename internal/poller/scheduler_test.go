package poller

import (
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modbusmon/modbusmon/internal/modbus"
	"github.com/modbusmon/modbusmon/internal/snapshot"
	"github.com/modbusmon/modbusmon/internal/tags"
)

// fakeLink serves canned register data keyed by wire address, or fails
// every read with a fixed error.
type fakeLink struct {
	mu     sync.Mutex
	data   map[uint16][]byte
	err    error
	reads  int
	delay  time.Duration
	writes map[uint16]uint16
}

func (f *fakeLink) Read(rt modbus.RegisterType, address, count uint16) ([]byte, error) {
	f.mu.Lock()
	f.reads++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.data[address]
	if !ok {
		b = make([]byte, int(count)*2)
	}
	return b, nil
}

func (f *fakeLink) Write(rt modbus.RegisterType, address, value uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.writes == nil {
		f.writes = make(map[uint16]uint16)
	}
	f.writes[address] = value
	return nil
}

func (f *fakeLink) Close() error { return nil }

func (f *fakeLink) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// recordingObserver captures cycle and device-failure callbacks.
type recordingObserver struct {
	mu       sync.Mutex
	cycles   []uint64
	last     []snapshot.Entry
	failures map[int64]modbus.Status
}

func (o *recordingObserver) CycleCompleted(cycle uint64, entries []snapshot.Entry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cycles = append(o.cycles, cycle)
	o.last = entries
}

func (o *recordingObserver) DeviceFailed(deviceID int64, name string, status modbus.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failures == nil {
		o.failures = make(map[int64]modbus.Status)
	}
	o.failures[deviceID] = status
}

func (o *recordingObserver) snapshotLast() (int, []snapshot.Entry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.cycles), o.last
}

func (o *recordingObserver) failedDevices() map[int64]modbus.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[int64]modbus.Status, len(o.failures))
	for id, st := range o.failures {
		out[id] = st
	}
	return out
}

func regBytes(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *tags.Registry, *snapshot.Store) {
	t.Helper()
	reg := tags.NewRegistry()
	store := snapshot.NewStore()
	return NewScheduler(reg, store, cfg, zap.NewNop()), reg, store
}

func addDevice(t *testing.T, reg *tags.Registry, id int64, name string) {
	t.Helper()
	require.NoError(t, reg.UpsertDevice(tags.Device{
		ID: id, Name: name, Protocol: tags.ProtocolTCP,
		Host: "192.0.2.1", Port: 502, UnitID: 1,
		Timeout: time.Second, TimeoutMS: 1000,
		ByteOrder: "BigEndian", WordOrder: "AB", Active: true,
	}))
}

func addTag(t *testing.T, reg *tags.Registry, id, deviceID int64, name, address string) {
	t.Helper()
	_, err := reg.UpsertTag(tags.Tag{
		ID: id, DeviceID: deviceID, Name: name, Address: address,
		Datatype: "uint16", Scale: 1, Group: "Group1",
	})
	require.NoError(t, err)
}

func TestRunCycleUpdatesSnapshot(t *testing.T) {
	s, reg, store := newTestScheduler(t, Config{})
	addDevice(t, reg, 1, "plc")
	addTag(t, reg, 10, 1, "speed", "40001")
	addTag(t, reg, 11, 1, "temp", "40002")

	link := &fakeLink{data: map[uint16][]byte{
		0: regBytes(1500),
		1: regBytes(215),
	}}
	s.dial = func(tags.Device) deviceLink { return link }

	s.runCycle()

	e, ok := store.Get(10)
	require.True(t, ok)
	assert.Equal(t, modbus.StatusOK, e.Status)
	f, _ := e.Value.Float()
	assert.Equal(t, 1500.0, f)

	e, ok = store.Get(11)
	require.True(t, ok)
	f, _ = e.Value.Float()
	assert.Equal(t, 215.0, f)

	assert.Equal(t, uint64(1), s.Cycles())
	assert.NotZero(t, s.LastCycleAt())
}

func TestRunCycleFailureRetainsLastValue(t *testing.T) {
	s, reg, store := newTestScheduler(t, Config{})
	addDevice(t, reg, 1, "plc")
	addTag(t, reg, 10, 1, "speed", "40001")

	good := &fakeLink{data: map[uint16][]byte{0: regBytes(1500)}}
	s.dial = func(tags.Device) deviceLink { return good }
	s.runCycle()

	// Swap the link for one that fails with a connection error. The
	// ConnConfig is unchanged so the scheduler keeps the cached link;
	// mutate it in place instead.
	good.mu.Lock()
	good.err = &net.OpError{Op: "dial", Err: assert.AnError}
	good.mu.Unlock()
	s.runCycle()

	e, ok := store.Get(10)
	require.True(t, ok)
	assert.Equal(t, modbus.StatusUnreachable, e.Status)
	f, isNum := e.Value.Float()
	require.True(t, isNum)
	assert.Equal(t, 1500.0, f, "last good value survives the failed cycle")
}

func TestRunCycleUnreachableDeviceDoesNotStallOthers(t *testing.T) {
	s, reg, store := newTestScheduler(t, Config{DeviceTimeout: 50 * time.Millisecond})
	addDevice(t, reg, 1, "dead")
	addDevice(t, reg, 2, "alive")
	addTag(t, reg, 10, 1, "a", "40001")
	addTag(t, reg, 11, 2, "b", "40001")

	dead := &fakeLink{err: &net.OpError{Op: "dial", Err: assert.AnError}}
	alive := &fakeLink{data: map[uint16][]byte{0: regBytes(7)}}
	s.dial = func(d tags.Device) deviceLink {
		if d.ID == 1 {
			return dead
		}
		return alive
	}

	s.runCycle()

	e, ok := store.Get(10)
	require.True(t, ok)
	assert.Equal(t, modbus.StatusUnreachable, e.Status)

	e, ok = store.Get(11)
	require.True(t, ok)
	assert.Equal(t, modbus.StatusOK, e.Status)
	f, _ := e.Value.Float()
	assert.Equal(t, 7.0, f)
}

func TestRunCycleBudgetExpiryMarksRemainingTimeout(t *testing.T) {
	s, reg, store := newTestScheduler(t, Config{DeviceTimeout: 30 * time.Millisecond})
	addDevice(t, reg, 1, "slow")
	addTag(t, reg, 10, 1, "first", "40001")
	addTag(t, reg, 11, 1, "second", "40002")
	addTag(t, reg, 12, 1, "third", "40003")

	// The first read eats the whole device budget; the rest must be
	// marked timeout without touching the wire again.
	slow := &fakeLink{
		data:  map[uint16][]byte{0: regBytes(1), 1: regBytes(2), 2: regBytes(3)},
		delay: 60 * time.Millisecond,
	}
	s.dial = func(tags.Device) deviceLink { return slow }

	s.runCycle()

	assert.Equal(t, 1, slow.readCount())
	for _, id := range []int64{11, 12} {
		e, ok := store.Get(id)
		require.True(t, ok)
		assert.Equal(t, modbus.StatusTimeout, e.Status)
	}
}

func TestStartCycleSkipsOverlappingTick(t *testing.T) {
	s, reg, _ := newTestScheduler(t, Config{})
	addDevice(t, reg, 1, "plc")
	addTag(t, reg, 10, 1, "a", "40001")
	s.dial = func(tags.Device) deviceLink {
		return &fakeLink{data: map[uint16][]byte{0: regBytes(1)}}
	}

	// Simulate a cycle still in flight.
	require.True(t, s.cycleActive.CompareAndSwap(false, true))
	s.startCycle()
	assert.Equal(t, uint64(1), s.SkippedTicks())
	assert.Equal(t, uint64(0), s.Cycles())
	s.cycleActive.Store(false)

	s.startCycle()
	s.wg.Wait()
	assert.Equal(t, uint64(1), s.Cycles())
	assert.Equal(t, uint64(1), s.SkippedTicks())
}

func TestRunCyclePrunesRemovedTags(t *testing.T) {
	s, reg, store := newTestScheduler(t, Config{})
	addDevice(t, reg, 1, "plc")
	addTag(t, reg, 10, 1, "keep", "40001")
	addTag(t, reg, 11, 1, "drop", "40002")
	s.dial = func(tags.Device) deviceLink {
		return &fakeLink{data: map[uint16][]byte{0: regBytes(1), 1: regBytes(2)}}
	}

	s.runCycle()
	assert.Equal(t, 2, store.Len())

	reg.RemoveTag(11)
	s.runCycle()

	assert.Equal(t, 1, store.Len())
	_, ok := store.Get(11)
	assert.False(t, ok)
}

func TestObserverReceivesCycleEntries(t *testing.T) {
	s, reg, _ := newTestScheduler(t, Config{})
	addDevice(t, reg, 1, "plc")
	addTag(t, reg, 10, 1, "a", "40001")
	addTag(t, reg, 11, 1, "b", "40002")
	s.dial = func(tags.Device) deviceLink {
		return &fakeLink{data: map[uint16][]byte{0: regBytes(1), 1: regBytes(2)}}
	}
	obs := &recordingObserver{}
	s.SetObserver(obs)

	s.runCycle()

	n, entries := obs.snapshotLast()
	assert.Equal(t, 1, n)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(10), entries[0].TagID)
	assert.Equal(t, int64(11), entries[1].TagID)
}

func TestObserverReceivesDeviceFailure(t *testing.T) {
	s, reg, _ := newTestScheduler(t, Config{})
	addDevice(t, reg, 1, "dead")
	addDevice(t, reg, 2, "alive")
	addTag(t, reg, 10, 1, "a", "40001")
	addTag(t, reg, 11, 2, "b", "40001")

	dead := &fakeLink{err: &net.OpError{Op: "dial", Err: assert.AnError}}
	alive := &fakeLink{data: map[uint16][]byte{0: regBytes(7)}}
	s.dial = func(d tags.Device) deviceLink {
		if d.ID == 1 {
			return dead
		}
		return alive
	}
	obs := &recordingObserver{}
	s.SetObserver(obs)

	s.runCycle()

	failures := obs.failedDevices()
	require.Len(t, failures, 1, "only the fully failed device is reported")
	assert.Equal(t, modbus.StatusUnreachable, failures[1])
}

func TestWriteTagDeScalesValue(t *testing.T) {
	s, reg, _ := newTestScheduler(t, Config{})
	addDevice(t, reg, 1, "plc")
	// Holding register scaled by 0.1: engineering 21.5 is raw 215.
	_, err := reg.UpsertTag(tags.Tag{
		ID: 10, DeviceID: 1, Name: "setpoint", Address: "40001",
		Datatype: "uint16", Scale: 0.1, Group: "Group1",
	})
	require.NoError(t, err)

	link := &fakeLink{}
	s.dial = func(tags.Device) deviceLink { return link }

	require.NoError(t, s.WriteTag(10, 21.5))
	assert.Equal(t, uint16(215), link.writes[0])
}

func TestWriteTagRejections(t *testing.T) {
	s, reg, _ := newTestScheduler(t, Config{})
	addDevice(t, reg, 1, "plc")
	_, err := reg.UpsertTag(tags.Tag{
		ID: 10, DeviceID: 1, Name: "flow", Address: "40001",
		Datatype: "float32", Scale: 1, Group: "Group1",
	})
	require.NoError(t, err)

	s.dial = func(tags.Device) deviceLink { return &fakeLink{} }

	assert.Error(t, s.WriteTag(99, 1), "unknown tag")
	assert.Error(t, s.WriteTag(10, 1), "32-bit datatype is not writable")

	dev, _ := reg.Device(1)
	dev.Active = false
	require.NoError(t, reg.UpsertDevice(dev))
	assert.Error(t, s.WriteTag(10, 1), "inactive device")
}

func TestLinkRedialsOnTransportChange(t *testing.T) {
	s, reg, _ := newTestScheduler(t, Config{})
	addDevice(t, reg, 1, "plc")

	dials := 0
	s.dial = func(tags.Device) deviceLink {
		dials++
		return &fakeLink{}
	}

	dev, ok := reg.Device(1)
	require.True(t, ok)

	s.link(dev)
	s.link(dev)
	assert.Equal(t, 1, dials, "unchanged transport reuses the link")

	dev.Port = 1502
	require.NoError(t, reg.UpsertDevice(dev))
	edited, _ := reg.Device(1)
	s.link(edited)
	assert.Equal(t, 2, dials, "edited transport forces a redial")
}
