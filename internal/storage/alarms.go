package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/modbusmon/modbusmon/internal/alarms"
)

const alarmRuleColumns = `id, tag_id, name, operator, threshold,
	on_stable_sec, off_stable_sec, level, enabled`

func scanAlarmRule(row pgx.Row) (alarms.Rule, error) {
	var r alarms.Rule
	err := row.Scan(&r.ID, &r.TagID, &r.Name, &r.Operator, &r.Threshold,
		&r.OnStableSec, &r.OffStableSec, &r.Level, &r.Enabled)
	return r, err
}

// ListAlarmRules returns all rules, enabled or not.
func (p *PostgresClient) ListAlarmRules(ctx context.Context) ([]alarms.Rule, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+alarmRuleColumns+` FROM alarm_rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query alarm rules: %w", err)
	}
	defer rows.Close()

	rules := make([]alarms.Rule, 0)
	for rows.Next() {
		r, err := scanAlarmRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alarm rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (p *PostgresClient) GetAlarmRule(ctx context.Context, id int64) (alarms.Rule, error) {
	r, err := scanAlarmRule(p.pool.QueryRow(ctx,
		`SELECT `+alarmRuleColumns+` FROM alarm_rules WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return alarms.Rule{}, ErrNotFound
	}
	if err != nil {
		return alarms.Rule{}, fmt.Errorf("failed to get alarm rule: %w", err)
	}
	return r, nil
}

func (p *PostgresClient) CreateAlarmRule(ctx context.Context, r alarms.Rule) (alarms.Rule, error) {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO alarm_rules
			(tag_id, name, operator, threshold, on_stable_sec, off_stable_sec, level, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, r.TagID, r.Name, r.Operator, r.Threshold,
		r.OnStableSec, r.OffStableSec, r.Level, r.Enabled).Scan(&r.ID)
	if err != nil {
		return alarms.Rule{}, fmt.Errorf("failed to insert alarm rule: %w", err)
	}
	return r, nil
}

func (p *PostgresClient) UpdateAlarmRule(ctx context.Context, r alarms.Rule) error {
	result, err := p.pool.Exec(ctx, `
		UPDATE alarm_rules SET
			tag_id = $2, name = $3, operator = $4, threshold = $5,
			on_stable_sec = $6, off_stable_sec = $7, level = $8, enabled = $9
		WHERE id = $1
	`, r.ID, r.TagID, r.Name, r.Operator, r.Threshold,
		r.OnStableSec, r.OffStableSec, r.Level, r.Enabled)
	if err != nil {
		return fmt.Errorf("failed to update alarm rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresClient) DeleteAlarmRule(ctx context.Context, id int64) error {
	result, err := p.pool.Exec(ctx, `DELETE FROM alarm_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete alarm rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertAlarmEvent persists one transition and returns it with its ID.
func (p *PostgresClient) InsertAlarmEvent(ctx context.Context, ev alarms.Event) (alarms.Event, error) {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO alarm_events
			(ts, rule_id, name, level, tag_id, value, event_type, operator, threshold)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, ev.Timestamp, ev.RuleID, ev.Name, ev.Level, ev.TagID,
		ev.Value, ev.EventType, ev.Operator, ev.Threshold).Scan(&ev.ID)
	if err != nil {
		return alarms.Event{}, fmt.Errorf("failed to insert alarm event: %w", err)
	}
	return ev, nil
}

// ListAlarmEvents returns the most recent events, newest first.
func (p *PostgresClient) ListAlarmEvents(ctx context.Context, limit int) ([]alarms.Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, ts, rule_id, name, level, tag_id, value, event_type, operator, threshold
		FROM alarm_events ORDER BY ts DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alarm events: %w", err)
	}
	defer rows.Close()

	events := make([]alarms.Event, 0, limit)
	for rows.Next() {
		var ev alarms.Event
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.RuleID, &ev.Name, &ev.Level,
			&ev.TagID, &ev.Value, &ev.EventType, &ev.Operator, &ev.Threshold); err != nil {
			return nil, fmt.Errorf("failed to scan alarm event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
