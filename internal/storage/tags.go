package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/modbusmon/modbusmon/internal/tags"
)

const tagColumns = `id, device_id, name, address, zero_based, register_type,
	datatype, scale, value_offset, unit, grp`

func scanTag(row pgx.Row) (tags.Tag, error) {
	var (
		t    tags.Tag
		unit *string
	)
	err := row.Scan(&t.ID, &t.DeviceID, &t.Name, &t.Address, &t.ZeroBased,
		&t.RegisterName, &t.Datatype, &t.Scale, &t.Offset, &unit, &t.Group)
	if err != nil {
		return tags.Tag{}, err
	}
	if unit != nil {
		t.Unit = *unit
	}
	return t, nil
}

// ListTags returns every configured tag ordered by ID. Resolution of the
// address token happens in the registry, not here.
func (p *PostgresClient) ListTags(ctx context.Context) ([]tags.Tag, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+tagColumns+` FROM tags ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	out := make([]tags.Tag, 0)
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTagsByDevice returns a device's tags ordered by ID.
func (p *PostgresClient) ListTagsByDevice(ctx context.Context, deviceID int64) ([]tags.Tag, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE device_id = $1 ORDER BY id`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	out := make([]tags.Tag, 0)
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *PostgresClient) GetTag(ctx context.Context, id int64) (tags.Tag, error) {
	t, err := scanTag(p.pool.QueryRow(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return tags.Tag{}, ErrNotFound
	}
	if err != nil {
		return tags.Tag{}, fmt.Errorf("failed to get tag: %w", err)
	}
	return t, nil
}

func (p *PostgresClient) CreateTag(ctx context.Context, t tags.Tag) (tags.Tag, error) {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO tags (device_id, name, address, zero_based, register_type,
			datatype, scale, value_offset, unit, grp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, t.DeviceID, t.Name, t.Address, t.ZeroBased, t.RegisterName,
		t.Datatype, t.Scale, t.Offset, nullStr(t.Unit), t.Group,
	).Scan(&t.ID)
	if err != nil {
		return tags.Tag{}, fmt.Errorf("failed to insert tag: %w", err)
	}
	return t, nil
}

func (p *PostgresClient) UpdateTag(ctx context.Context, t tags.Tag) error {
	result, err := p.pool.Exec(ctx, `
		UPDATE tags SET name = $2, address = $3, zero_based = $4,
			register_type = $5, datatype = $6, scale = $7, value_offset = $8,
			unit = $9, grp = $10
		WHERE id = $1
	`, t.ID, t.Name, t.Address, t.ZeroBased, t.RegisterName,
		t.Datatype, t.Scale, t.Offset, nullStr(t.Unit), t.Group)
	if err != nil {
		return fmt.Errorf("failed to update tag: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresClient) DeleteTag(ctx context.Context, id int64) error {
	result, err := p.pool.Exec(ctx, `DELETE FROM tags WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
