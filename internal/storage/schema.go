package storage

// schemaStatements is executed in order by Bootstrap. Statements use
// IF NOT EXISTS so restarting against a provisioned database is a no-op.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS devices (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		protocol TEXT NOT NULL DEFAULT 'ModbusTCP',
		host TEXT,
		port INT,
		serial_port TEXT,
		baud_rate INT,
		data_bits INT,
		parity TEXT,
		stop_bits INT,
		unit_id INT NOT NULL DEFAULT 1,
		timeout_ms INT NOT NULL DEFAULT 1000,
		byte_order TEXT NOT NULL DEFAULT 'BigEndian',
		word_order TEXT NOT NULL DEFAULT 'AB',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id BIGSERIAL PRIMARY KEY,
		device_id BIGINT NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		address TEXT NOT NULL,
		zero_based BOOLEAN NOT NULL DEFAULT FALSE,
		register_type TEXT NOT NULL DEFAULT 'holding',
		datatype TEXT NOT NULL DEFAULT 'uint16',
		scale DOUBLE PRECISION NOT NULL DEFAULT 1,
		value_offset DOUBLE PRECISION NOT NULL DEFAULT 0,
		unit TEXT,
		grp TEXT NOT NULL DEFAULT 'Group1',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tags_device_id ON tags(device_id)`,
	`CREATE TABLE IF NOT EXISTS data_loggers (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		description TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS data_logger_tags (
		logger_id BIGINT NOT NULL REFERENCES data_loggers(id) ON DELETE CASCADE,
		tag_id BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		PRIMARY KEY (logger_id, tag_id)
	)`,
	`CREATE TABLE IF NOT EXISTS alarm_rules (
		id BIGSERIAL PRIMARY KEY,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		name TEXT NOT NULL,
		level TEXT NOT NULL DEFAULT 'warning',
		tag_id BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		operator TEXT NOT NULL,
		threshold DOUBLE PRECISION NOT NULL,
		on_stable_sec INT NOT NULL DEFAULT 0,
		off_stable_sec INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS alarm_events (
		id BIGSERIAL PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL,
		rule_id BIGINT,
		name TEXT,
		level TEXT,
		tag_id BIGINT NOT NULL,
		value DOUBLE PRECISION,
		event_type TEXT NOT NULL,
		operator TEXT,
		threshold DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'operator',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_login_at TIMESTAMPTZ,
		failed_login_attempts INT NOT NULL DEFAULT 0,
		locked_until TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		token_hash TEXT PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		expires_at TIMESTAMPTZ NOT NULL,
		revoked BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}
