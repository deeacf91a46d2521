package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/modbusmon/modbusmon/internal/tags"
)

// ListDataLoggers returns all loggers with their tag links.
func (p *PostgresClient) ListDataLoggers(ctx context.Context) ([]tags.DataLogger, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, enabled, COALESCE(description, '')
		FROM data_loggers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query data loggers: %w", err)
	}
	defer rows.Close()

	loggers := make([]tags.DataLogger, 0)
	for rows.Next() {
		var l tags.DataLogger
		if err := rows.Scan(&l.ID, &l.Name, &l.Enabled, &l.Description); err != nil {
			return nil, fmt.Errorf("failed to scan data logger: %w", err)
		}
		loggers = append(loggers, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range loggers {
		ids, err := p.ListDataLoggerTags(ctx, loggers[i].ID)
		if err != nil {
			return nil, err
		}
		loggers[i].TagIDs = ids
	}
	return loggers, nil
}

func (p *PostgresClient) GetDataLogger(ctx context.Context, id int64) (tags.DataLogger, error) {
	var l tags.DataLogger
	err := p.pool.QueryRow(ctx, `
		SELECT id, name, enabled, COALESCE(description, '')
		FROM data_loggers WHERE id = $1`, id,
	).Scan(&l.ID, &l.Name, &l.Enabled, &l.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return tags.DataLogger{}, ErrNotFound
	}
	if err != nil {
		return tags.DataLogger{}, fmt.Errorf("failed to get data logger: %w", err)
	}
	l.TagIDs, err = p.ListDataLoggerTags(ctx, id)
	return l, err
}

// ListDataLoggerTags returns the tag IDs linked to a logger in ascending
// order, matching the dashboard's display ordering.
func (p *PostgresClient) ListDataLoggerTags(ctx context.Context, loggerID int64) ([]int64, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT tag_id FROM data_logger_tags WHERE logger_id = $1 ORDER BY tag_id`, loggerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query logger tags: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan logger tag: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateDataLogger inserts a logger and its tag links in one transaction.
func (p *PostgresClient) CreateDataLogger(ctx context.Context, l tags.DataLogger) (tags.DataLogger, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return tags.DataLogger{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO data_loggers (name, enabled, description)
		VALUES ($1, $2, $3) RETURNING id
	`, l.Name, l.Enabled, nullStr(l.Description)).Scan(&l.ID)
	if err != nil {
		return tags.DataLogger{}, fmt.Errorf("failed to insert data logger: %w", err)
	}

	for _, tagID := range l.TagIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO data_logger_tags (logger_id, tag_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, l.ID, tagID); err != nil {
			return tags.DataLogger{}, fmt.Errorf("failed to link tag %d: %w", tagID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return tags.DataLogger{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return l, nil
}

// UpdateDataLogger replaces a logger's fields and tag links.
func (p *PostgresClient) UpdateDataLogger(ctx context.Context, l tags.DataLogger) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE data_loggers SET name = $2, enabled = $3, description = $4
		WHERE id = $1
	`, l.ID, l.Name, l.Enabled, nullStr(l.Description))
	if err != nil {
		return fmt.Errorf("failed to update data logger: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM data_logger_tags WHERE logger_id = $1`, l.ID); err != nil {
		return fmt.Errorf("failed to clear logger tags: %w", err)
	}
	for _, tagID := range l.TagIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO data_logger_tags (logger_id, tag_id) VALUES ($1, $2)
		`, l.ID, tagID); err != nil {
			return fmt.Errorf("failed to link tag %d: %w", tagID, err)
		}
	}

	return tx.Commit(ctx)
}

func (p *PostgresClient) DeleteDataLogger(ctx context.Context, id int64) error {
	result, err := p.pool.Exec(ctx, `DELETE FROM data_loggers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete data logger: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
