package alarms

import (
	"fmt"
	"time"
)

// Rule describes a threshold check against one tag's live value.
type Rule struct {
	ID           int64   `json:"id"`
	TagID        int64   `json:"tag_id"`
	Name         string  `json:"name"`
	Operator     string  `json:"operator"`
	Threshold    float64 `json:"threshold"`
	OnStableSec  int     `json:"on_stable_sec"`
	OffStableSec int     `json:"off_stable_sec"`
	Level        string  `json:"level"`
	Enabled      bool    `json:"enabled"`
}

// Event types for rule transitions.
const (
	EventIncoming = "INCOMING"
	EventOutgoing = "OUTGOING"
)

// Alarm severity levels.
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

// Event records a single rule transition.
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"ts"`
	RuleID    int64     `json:"rule_id"`
	Name      string    `json:"name"`
	Level     string    `json:"level"`
	TagID     int64     `json:"tag_id"`
	Value     float64   `json:"value"`
	EventType string    `json:"event_type"`
	Operator  string    `json:"operator"`
	Threshold float64   `json:"threshold"`
}

// Validate checks a rule before it is persisted.
func (r Rule) Validate() error {
	switch r.Operator {
	case ">", "<", ">=", "<=", "==", "!=":
	default:
		return fmt.Errorf("unsupported operator %q", r.Operator)
	}
	switch r.Level {
	case LevelInfo, LevelWarning, LevelCritical:
	default:
		return fmt.Errorf("unsupported level %q", r.Level)
	}
	if r.Name == "" {
		return fmt.Errorf("rule name must not be empty")
	}
	if r.OnStableSec < 0 || r.OffStableSec < 0 {
		return fmt.Errorf("stability windows must not be negative")
	}
	return nil
}

// compare evaluates value against the rule's threshold.
func (r Rule) compare(value float64) bool {
	switch r.Operator {
	case ">":
		return value > r.Threshold
	case "<":
		return value < r.Threshold
	case ">=":
		return value >= r.Threshold
	case "<=":
		return value <= r.Threshold
	case "==":
		return value == r.Threshold
	case "!=":
		return value != r.Threshold
	}
	return false
}
