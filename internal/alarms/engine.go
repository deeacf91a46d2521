package alarms

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/modbusmon/modbusmon/internal/modbus"
	"github.com/modbusmon/modbusmon/internal/snapshot"
)

// RuleStore loads rules and persists emitted events.
type RuleStore interface {
	ListAlarmRules(ctx context.Context) ([]Rule, error)
	InsertAlarmEvent(ctx context.Context, ev Event) (Event, error)
}

// ValueSource yields the latest observation for a tag. The snapshot
// store satisfies this.
type ValueSource interface {
	Get(tagID int64) (snapshot.Entry, bool)
}

// Notifier receives events after they have been persisted.
type Notifier interface {
	AlarmRaised(ev Event)
}

// ruleState tracks the hysteresis of one rule between evaluations.
type ruleState struct {
	active       bool
	pendingSince time.Time
	pending      bool
}

// Engine periodically evaluates alarm rules against the live snapshot.
// A rule fires only after its condition has held for the configured
// stability window, and clears the same way. Transitions are
// edge-triggered: one INCOMING event when a rule activates, one
// OUTGOING event when it clears.
type Engine struct {
	store    RuleStore
	values   ValueSource
	notifier Notifier
	logger   *zap.Logger

	evalInterval   time.Duration
	reloadInterval time.Duration

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	rules    []Rule
	states   map[int64]*ruleState
	lastLoad time.Time

	now func() time.Time
}

// NewEngine creates an alarm engine. notifier may be nil.
func NewEngine(store RuleStore, values ValueSource, notifier Notifier, logger *zap.Logger) *Engine {
	return &Engine{
		store:          store,
		values:         values,
		notifier:       notifier,
		logger:         logger,
		evalInterval:   time.Second,
		reloadInterval: 30 * time.Second,
		states:         make(map[int64]*ruleState),
		now:            time.Now,
	}
}

// Start begins rule evaluation in a background goroutine.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.mu.Unlock()

	if err := e.reload(ctx); err != nil {
		e.logger.Warn("Initial alarm rule load failed", zap.Error(err))
	}

	e.wg.Add(1)
	go e.loop(ctx)
	e.logger.Info("Alarm engine started",
		zap.Duration("eval_interval", e.evalInterval),
		zap.Int("rules", len(e.rules)))
	return nil
}

// Stop halts evaluation and waits for the loop to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopChan)
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Info("Alarm engine stopped")
}

// Reload forces a rule refresh, used after rules change via the API.
func (e *Engine) Reload(ctx context.Context) error {
	return e.reload(ctx)
}

func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.evalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.reloadDue() {
				if err := e.reload(ctx); err != nil {
					e.logger.Warn("Alarm rule reload failed", zap.Error(err))
				}
			}
			e.evaluate(ctx)
		}
	}
}

// reloadDue reports whether the periodic rule refresh is overdue.
// lastLoad is written by reload() under e.mu, so the check takes the
// same lock.
func (e *Engine) reloadDue() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now().Sub(e.lastLoad) >= e.reloadInterval
}

func (e *Engine) reload(ctx context.Context) error {
	rules, err := e.store.ListAlarmRules(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rules = rules
	e.lastLoad = e.now()

	// Drop state for rules that no longer exist so a re-created rule
	// starts clean.
	keep := make(map[int64]struct{}, len(rules))
	for _, r := range rules {
		keep[r.ID] = struct{}{}
	}
	for id := range e.states {
		if _, ok := keep[id]; !ok {
			delete(e.states, id)
		}
	}
	return nil
}

func (e *Engine) evaluate(ctx context.Context) {
	e.mu.Lock()
	rules := e.rules
	e.mu.Unlock()

	now := e.now()
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		entry, ok := e.values.Get(rule.TagID)
		if !ok || entry.Status != modbus.StatusOK {
			continue
		}
		value, numeric := entry.Value.Float()
		if !numeric {
			continue
		}
		e.step(ctx, rule, value, now)
	}
}

// step advances one rule's state machine for the current observation.
func (e *Engine) step(ctx context.Context, rule Rule, value float64, now time.Time) {
	e.mu.Lock()
	st, ok := e.states[rule.ID]
	if !ok {
		st = &ruleState{}
		e.states[rule.ID] = st
	}

	condition := rule.compare(value)
	var eventType string

	if !st.active {
		if condition {
			if !st.pending {
				st.pending = true
				st.pendingSince = now
			}
			if now.Sub(st.pendingSince) >= time.Duration(rule.OnStableSec)*time.Second {
				st.active = true
				st.pending = false
				eventType = EventIncoming
			}
		} else {
			st.pending = false
		}
	} else {
		if !condition {
			if !st.pending {
				st.pending = true
				st.pendingSince = now
			}
			if now.Sub(st.pendingSince) >= time.Duration(rule.OffStableSec)*time.Second {
				st.active = false
				st.pending = false
				eventType = EventOutgoing
			}
		} else {
			st.pending = false
		}
	}
	e.mu.Unlock()

	if eventType == "" {
		return
	}

	ev := Event{
		Timestamp: now,
		RuleID:    rule.ID,
		Name:      rule.Name,
		Level:     rule.Level,
		TagID:     rule.TagID,
		Value:     value,
		EventType: eventType,
		Operator:  rule.Operator,
		Threshold: rule.Threshold,
	}

	stored, err := e.store.InsertAlarmEvent(ctx, ev)
	if err != nil {
		e.logger.Error("Failed to persist alarm event",
			zap.Int64("rule_id", rule.ID),
			zap.String("event_type", eventType),
			zap.Error(err))
		stored = ev
	}

	e.logger.Info("Alarm transition",
		zap.String("rule", rule.Name),
		zap.String("event_type", eventType),
		zap.String("level", rule.Level),
		zap.Float64("value", value))

	if e.notifier != nil {
		e.notifier.AlarmRaised(stored)
	}
}
