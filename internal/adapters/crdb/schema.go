package crdb

// Schema holds the DDL for the reservation store and payment ledger.
// Applied by tests and by deploy tooling; CockroachDB dialect.
const Schema = `
CREATE TABLE IF NOT EXISTS reservations (
	id UUID PRIMARY KEY,
	place_id UUID NOT NULL,
	user_id UUID NOT NULL,
	operator_id UUID,
	start_time TIMESTAMPTZ NOT NULL,
	duration_minutes INT NOT NULL CHECK (duration_minutes > 0),
	status TEXT NOT NULL CHECK (status IN ('provisional', 'active', 'completed', 'cancelled')),
	expires_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	INDEX reservations_place_status_idx (place_id, status),
	INDEX reservations_user_start_idx (user_id, start_time DESC)
);

CREATE TABLE IF NOT EXISTS payments (
	id UUID PRIMARY KEY,
	reservation_id UUID NOT NULL,
	user_id UUID NOT NULL,
	operator_id UUID NOT NULL,
	amount FLOAT8 NOT NULL,
	method TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('paid', 'refunded')),
	paid_at TIMESTAMPTZ NOT NULL,
	UNIQUE INDEX payments_paid_reservation_idx (reservation_id) WHERE status = 'paid'
);

CREATE TABLE IF NOT EXISTS accounts (
	user_id UUID PRIMARY KEY,
	balance FLOAT8 NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json BYTES NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key TEXT NOT NULL
);
`
