package provision

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/modbusmon/modbusmon/internal/alarms"
	"github.com/modbusmon/modbusmon/internal/storage"
	"github.com/modbusmon/modbusmon/internal/tags"
)

// Result summarizes what an Apply created.
type Result struct {
	Devices int `json:"devices"`
	Tags    int `json:"tags"`
	Loggers int `json:"loggers"`
	Alarms  int `json:"alarms"`
}

// Apply materializes a document: devices and tags are persisted, loaded
// into the registry, then loggers and alarm rules are linked up by name.
// Validation happens before any write, so a bad document leaves both the
// database and the registry untouched.
func Apply(ctx context.Context, doc *Document, store *storage.PostgresClient, registry *tags.Registry, logger *zap.Logger) (Result, error) {
	var res Result

	staged, err := stage(doc, registry)
	if err != nil {
		return res, err
	}

	// tagIDs maps "device/tag" references to their persisted IDs.
	tagIDs := make(map[string]int64)

	for i, dev := range staged.devices {
		created, err := store.CreateDevice(ctx, dev)
		if err != nil {
			return res, fmt.Errorf("device %q: %w", dev.Name, err)
		}
		if err := registry.UpsertDevice(created); err != nil {
			return res, err
		}
		res.Devices++

		for _, tag := range staged.tags[i] {
			tag.DeviceID = created.ID
			createdTag, err := store.CreateTag(ctx, tag)
			if err != nil {
				return res, fmt.Errorf("tag %q: %w", tag.Name, err)
			}
			if _, err := registry.UpsertTag(createdTag); err != nil {
				return res, err
			}
			tagIDs[created.Name+"/"+createdTag.Name] = createdTag.ID
			res.Tags++
		}
	}

	for _, spec := range doc.Loggers {
		logger := tags.DataLogger{
			Name:        spec.Name,
			Enabled:     boolOr(spec.Enabled, true),
			Description: spec.Description,
		}
		for _, ref := range spec.Tags {
			id, ok := tagIDs[ref]
			if !ok {
				return res, fmt.Errorf("logger %q: unknown tag reference %q", spec.Name, ref)
			}
			logger.TagIDs = append(logger.TagIDs, id)
		}
		if _, err := store.CreateDataLogger(ctx, logger); err != nil {
			return res, fmt.Errorf("logger %q: %w", spec.Name, err)
		}
		res.Loggers++
	}

	for _, spec := range doc.Alarms {
		id, ok := tagIDs[spec.Tag]
		if !ok {
			return res, fmt.Errorf("alarm %q: unknown tag reference %q", spec.Name, spec.Tag)
		}
		rule := alarms.Rule{
			TagID:        id,
			Name:         spec.Name,
			Operator:     spec.Operator,
			Threshold:    spec.Threshold,
			OnStableSec:  spec.OnStableSec,
			OffStableSec: spec.OffStableSec,
			Level:        stringOr(spec.Level, alarms.LevelWarning),
			Enabled:      boolOr(spec.Enabled, true),
		}
		if err := rule.Validate(); err != nil {
			return res, fmt.Errorf("alarm %q: %w", spec.Name, err)
		}
		if _, err := store.CreateAlarmRule(ctx, rule); err != nil {
			return res, fmt.Errorf("alarm %q: %w", spec.Name, err)
		}
		res.Alarms++
	}

	logger.Info("Provisioning applied",
		zap.Int("devices", res.Devices),
		zap.Int("tags", res.Tags),
		zap.Int("loggers", res.Loggers),
		zap.Int("alarms", res.Alarms))
	return res, nil
}

type stagedDoc struct {
	devices []tags.Device
	tags    [][]tags.Tag
}

// stage converts and validates every device and tag before anything is
// written. Tag address resolution runs against a scratch registry so
// duplicate bindings inside the document are caught too.
func stage(doc *Document, registry *tags.Registry) (*stagedDoc, error) {
	staged := &stagedDoc{}
	scratch := tags.NewRegistry()

	for i, spec := range doc.Devices {
		dev := toDevice(spec)
		// Scratch IDs are only used for resolution ordering.
		dev.ID = int64(-(i + 1))
		if err := scratch.UpsertDevice(dev); err != nil {
			return nil, err
		}

		var devTags []tags.Tag
		for j, ts := range spec.Tags {
			tag := toTag(ts)
			tag.ID = int64(-(i*10000 + j + 1))
			tag.DeviceID = dev.ID
			resolved, err := scratch.UpsertTag(tag)
			if err != nil {
				return nil, fmt.Errorf("device %q: %w", spec.Name, err)
			}
			resolved.ID = 0
			devTags = append(devTags, resolved)
		}

		dev.ID = 0
		staged.devices = append(staged.devices, dev)
		staged.tags = append(staged.tags, devTags)
	}
	return staged, nil
}

func toDevice(spec DeviceSpec) tags.Device {
	timeoutMS := spec.TimeoutMS
	if timeoutMS <= 0 {
		timeoutMS = 1000
	}
	return tags.Device{
		Name:       spec.Name,
		Protocol:   spec.Protocol,
		Host:       spec.Host,
		Port:       intOr(spec.Port, 502),
		SerialPort: spec.SerialPort,
		BaudRate:   intOr(spec.BaudRate, 9600),
		DataBits:   intOr(spec.DataBits, 8),
		StopBits:   intOr(spec.StopBits, 1),
		Parity:     stringOr(spec.Parity, "N"),
		UnitID:     uint8(spec.UnitID),
		TimeoutMS:  timeoutMS,
		Timeout:    time.Duration(timeoutMS) * time.Millisecond,
		ByteOrder:  stringOr(spec.ByteOrder, "BigEndian"),
		WordOrder:  stringOr(spec.WordOrder, "AB"),
		Active:     boolOr(spec.Active, true),
	}
}

func toTag(spec TagSpec) tags.Tag {
	scale := spec.Scale
	if scale == 0 {
		scale = 1
	}
	return tags.Tag{
		Name:         spec.Name,
		Address:      spec.Address,
		ZeroBased:    spec.ZeroBased,
		RegisterName: spec.RegisterType,
		Datatype:     spec.Datatype,
		Scale:        scale,
		Offset:       spec.Offset,
		Unit:         spec.Unit,
		Group:        stringOr(spec.Group, "Group1"),
	}
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func stringOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
