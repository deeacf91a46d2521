package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/modbusmon/modbusmon/internal/tags"
)

// ErrNotFound is returned when a configuration record does not exist.
var ErrNotFound = errors.New("storage: not found")

const deviceColumns = `id, name, protocol, host, port, serial_port, baud_rate,
	data_bits, parity, stop_bits, unit_id, timeout_ms, byte_order, word_order, active`

func scanDevice(row pgx.Row) (tags.Device, error) {
	var (
		d          tags.Device
		host       *string
		port       *int
		serialPort *string
		baudRate   *int
		dataBits   *int
		parity     *string
		stopBits   *int
	)
	err := row.Scan(&d.ID, &d.Name, &d.Protocol, &host, &port, &serialPort,
		&baudRate, &dataBits, &parity, &stopBits, &d.UnitID, &d.TimeoutMS,
		&d.ByteOrder, &d.WordOrder, &d.Active)
	if err != nil {
		return tags.Device{}, err
	}
	if host != nil {
		d.Host = *host
	}
	if port != nil {
		d.Port = *port
	}
	if serialPort != nil {
		d.SerialPort = *serialPort
	}
	if baudRate != nil {
		d.BaudRate = *baudRate
	}
	if dataBits != nil {
		d.DataBits = *dataBits
	}
	if parity != nil {
		d.Parity = *parity
	}
	if stopBits != nil {
		d.StopBits = *stopBits
	}
	d.Timeout = time.Duration(d.TimeoutMS) * time.Millisecond
	return d, nil
}

// ListDevices returns all configured devices ordered by ID.
func (p *PostgresClient) ListDevices(ctx context.Context) ([]tags.Device, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := make([]tags.Device, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (p *PostgresClient) GetDevice(ctx context.Context, id int64) (tags.Device, error) {
	d, err := scanDevice(p.pool.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return tags.Device{}, ErrNotFound
	}
	if err != nil {
		return tags.Device{}, fmt.Errorf("failed to get device: %w", err)
	}
	return d, nil
}

// CreateDevice inserts a device and returns it with its assigned ID.
func (p *PostgresClient) CreateDevice(ctx context.Context, d tags.Device) (tags.Device, error) {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO devices (name, protocol, host, port, serial_port, baud_rate,
			data_bits, parity, stop_bits, unit_id, timeout_ms, byte_order, word_order, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`, d.Name, d.Protocol, nullStr(d.Host), nullInt(d.Port), nullStr(d.SerialPort),
		nullInt(d.BaudRate), nullInt(d.DataBits), nullStr(d.Parity), nullInt(d.StopBits),
		d.UnitID, d.TimeoutMS, d.ByteOrder, d.WordOrder, d.Active,
	).Scan(&d.ID)
	if err != nil {
		return tags.Device{}, fmt.Errorf("failed to insert device: %w", err)
	}
	d.Timeout = time.Duration(d.TimeoutMS) * time.Millisecond
	return d, nil
}

func (p *PostgresClient) UpdateDevice(ctx context.Context, d tags.Device) error {
	result, err := p.pool.Exec(ctx, `
		UPDATE devices SET name = $2, protocol = $3, host = $4, port = $5,
			serial_port = $6, baud_rate = $7, data_bits = $8, parity = $9,
			stop_bits = $10, unit_id = $11, timeout_ms = $12, byte_order = $13,
			word_order = $14, active = $15, updated_at = NOW()
		WHERE id = $1
	`, d.ID, d.Name, d.Protocol, nullStr(d.Host), nullInt(d.Port), nullStr(d.SerialPort),
		nullInt(d.BaudRate), nullInt(d.DataBits), nullStr(d.Parity), nullInt(d.StopBits),
		d.UnitID, d.TimeoutMS, d.ByteOrder, d.WordOrder, d.Active)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDevice removes a device; its tags cascade.
func (p *PostgresClient) DeleteDevice(ctx context.Context, id int64) error {
	result, err := p.pool.Exec(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountDevices reports how many devices are configured. Used to decide
// whether the seed file applies.
func (p *PostgresClient) CountDevices(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM devices`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count devices: %w", err)
	}
	return n, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}
