package tags

import (
	"fmt"
	"sort"
	"sync"

	"github.com/modbusmon/modbusmon/internal/modbus"
)

// Registry is the authoritative in-memory set of active devices and tags.
// It is sourced from persisted configuration at startup and mutated through
// the configuration API. Mutations validate synchronously (bad address
// tokens and duplicate bindings are configuration errors) and take effect
// at the next polling cycle boundary: the scheduler works on an immutable
// View taken at cycle start, so an in-flight cycle never observes a
// half-applied edit.
type Registry struct {
	mu      sync.RWMutex
	devices map[int64]Device
	tags    map[int64]Tag
}

func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[int64]Device),
		tags:    make(map[int64]Tag),
	}
}

// ReplaceAll loads the registry from persisted configuration. Tags are
// resolved as they are inserted; the first invalid record aborts the load.
func (r *Registry) ReplaceAll(devices []Device, tags []Tag) error {
	fresh := NewRegistry()
	for _, d := range devices {
		if err := fresh.UpsertDevice(d); err != nil {
			return err
		}
	}
	for _, t := range tags {
		if _, err := fresh.UpsertTag(t); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.devices = fresh.devices
	r.tags = fresh.tags
	r.mu.Unlock()
	return nil
}

func (r *Registry) UpsertDevice(d Device) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.devices[d.ID] = d
	r.mu.Unlock()
	return nil
}

// RemoveDevice drops a device and all tags bound to it.
func (r *Registry) RemoveDevice(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, id)
	for tid, t := range r.tags {
		if t.DeviceID == id {
			delete(r.tags, tid)
		}
	}
}

// ResolveTag validates a tag without mutating the registry: the address
// token must resolve and the resolved binding must be unique within the
// owning device. The returned tag carries the resolved register type and
// wire address.
func (r *Registry) ResolveTag(t Tag) (Tag, error) {
	var hint modbus.RegisterType
	if t.RegisterName != "" {
		var err error
		hint, err = modbus.ParseRegisterType(t.RegisterName)
		if err != nil {
			return Tag{}, err
		}
	}
	rt, addr, err := modbus.ResolveAddress(t.Address, hint, t.ZeroBased)
	if err != nil {
		return Tag{}, err
	}
	t.RegisterType = rt
	t.RegisterName = rt.String()
	t.WireAddress = addr

	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.devices[t.DeviceID]; !ok {
		return Tag{}, fmt.Errorf("tag %q: unknown device %d", t.Name, t.DeviceID)
	}
	for _, other := range r.tags {
		if other.ID == t.ID || other.DeviceID != t.DeviceID {
			continue
		}
		if other.RegisterType == rt && other.WireAddress == addr {
			return Tag{}, fmt.Errorf("tag %q: %s address %d already bound to tag %q",
				t.Name, rt, addr, other.Name)
		}
	}
	return t, nil
}

// UpsertTag resolves, validates, and stores a tag.
func (r *Registry) UpsertTag(t Tag) (Tag, error) {
	resolved, err := r.ResolveTag(t)
	if err != nil {
		return Tag{}, err
	}
	r.mu.Lock()
	r.tags[resolved.ID] = resolved
	r.mu.Unlock()
	return resolved, nil
}

func (r *Registry) RemoveTag(id int64) {
	r.mu.Lock()
	delete(r.tags, id)
	r.mu.Unlock()
}

func (r *Registry) Device(id int64) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	return d, ok
}

func (r *Registry) Tag(id int64) (Tag, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tags[id]
	return t, ok
}

// Devices returns all devices ordered by ID.
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Tags returns all tags ordered by ID.
func (r *Registry) Tags() []Tag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tag, 0, len(r.tags))
	for _, t := range r.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TagIDs returns the set of currently configured tag IDs. The scheduler
// uses it to prune snapshot entries for removed tags.
func (r *Registry) TagIDs() map[int64]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make(map[int64]struct{}, len(r.tags))
	for id := range r.tags {
		ids[id] = struct{}{}
	}
	return ids
}

// View is an immutable copy of the active poll set taken at cycle start.
// Tags are grouped by device in ascending tag ID (declaration order), so
// reads within a device happen in a stable, reproducible order.
type View struct {
	Devices []Device
	Tags    map[int64][]Tag
}

// View snapshots the active devices and their tags. Inactive devices are
// excluded entirely.
func (r *Registry) View() View {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v := View{Tags: make(map[int64][]Tag)}
	active := make(map[int64]bool, len(r.devices))
	for _, d := range r.devices {
		if !d.Active {
			continue
		}
		active[d.ID] = true
		v.Devices = append(v.Devices, d)
	}
	sort.Slice(v.Devices, func(i, j int) bool { return v.Devices[i].ID < v.Devices[j].ID })

	for _, t := range r.tags {
		if active[t.DeviceID] {
			v.Tags[t.DeviceID] = append(v.Tags[t.DeviceID], t)
		}
	}
	for id := range v.Tags {
		ts := v.Tags[id]
		sort.Slice(ts, func(i, j int) bool { return ts[i].ID < ts[j].ID })
		v.Tags[id] = ts
	}
	return v
}
