package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresDeviceRepository stores devices in the devices table. Registration
// serializes per account with a transaction-scoped advisory lock.
type PostgresDeviceRepository struct {
	db DBTX
}

func NewPostgresDeviceRepository(db DBTX) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{db: db}
}

const deviceColumns = `account_id, device_id, physical_device_id, device_type, browser, os, device_name,
	last_active, registered_at, is_active, remember_me, remember_me_expiry, push_subscription`

func (r *PostgresDeviceRepository) RegisterWithinLimit(ctx context.Context, d Device, limit int) (RegisterOutcome, error) {
	beginner, ok := r.db.(txBeginner)
	if !ok {
		return RegisterOutcome{}, fmt.Errorf("register requires a pool or transaction, got %s", reflect.TypeOf(r.db))
	}

	var outcome RegisterOutcome
	err := pgx.BeginFunc(ctx, beginner, func(tx pgx.Tx) error {
		var err error
		outcome, err = registerTx(ctx, tx, d, limit)
		return err
	})
	if err != nil {
		return RegisterOutcome{}, fmt.Errorf("failed to register device: %w", err)
	}
	return outcome, nil
}

func registerTx(ctx context.Context, tx DBTX, d Device, limit int) (RegisterOutcome, error) {
	// Held until commit; every registration for the account queues here.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, d.AccountID.String()); err != nil {
		return RegisterOutcome{}, fmt.Errorf("failed to acquire account lock: %w", err)
	}

	existing, err := getDevice(ctx, tx, d.AccountID, d.DeviceID)
	exists := err == nil
	if err != nil && !errors.Is(err, ErrDeviceNotFound) {
		return RegisterOutcome{}, err
	}

	if exists && existing.IsActive {
		stored, err := upsertDevice(ctx, tx, mergeRegistration(existing, d))
		if err != nil {
			return RegisterOutcome{}, err
		}
		return RegisterOutcome{Device: stored, Registered: true}, nil
	}

	active, err := findActiveDevices(ctx, tx, d.AccountID)
	if err != nil {
		return RegisterOutcome{}, err
	}
	if len(active) >= limit {
		slog.Debug("Device limit reached", "account_id", d.AccountID, "device_id", d.DeviceID, "active", len(active))
		return RegisterOutcome{ActiveDevices: active}, nil
	}

	incoming := d
	incoming.IsActive = true
	if exists {
		incoming = mergeRegistration(existing, d)
	}
	stored, err := upsertDevice(ctx, tx, incoming)
	if err != nil {
		return RegisterOutcome{}, err
	}
	return RegisterOutcome{Device: stored, Registered: true, Created: !exists, Reactivated: exists}, nil
}

func upsertDevice(ctx context.Context, db DBTX, d Device) (Device, error) {
	sub, err := marshalSubscription(d.PushSubscription)
	if err != nil {
		return Device{}, err
	}

	query := `
		INSERT INTO devices (` + deviceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, $10, $11, $12)
		ON CONFLICT (account_id, device_id) DO UPDATE SET
			physical_device_id = EXCLUDED.physical_device_id,
			device_type = EXCLUDED.device_type,
			browser = EXCLUDED.browser,
			os = EXCLUDED.os,
			device_name = EXCLUDED.device_name,
			last_active = EXCLUDED.last_active,
			is_active = TRUE,
			remember_me = EXCLUDED.remember_me,
			remember_me_expiry = EXCLUDED.remember_me_expiry,
			push_subscription = EXCLUDED.push_subscription
		RETURNING ` + deviceColumns

	row := db.QueryRow(ctx, query,
		d.AccountID, d.DeviceID, d.PhysicalDeviceID, string(d.DeviceType), d.Browser, d.OS, d.DeviceName,
		d.LastActive, d.RegisteredAt, d.RememberMe, d.RememberMeExpiry, sub,
	)
	stored, err := scanDevice(row)
	if err != nil {
		slog.Error("Failed to upsert device", "err", err, "account_id", d.AccountID, "device_id", d.DeviceID)
		return Device{}, fmt.Errorf("failed to upsert device: %w", err)
	}
	return stored, nil
}

func (r *PostgresDeviceRepository) GetDevice(ctx context.Context, accountID uuid.UUID, deviceID string) (Device, error) {
	return getDevice(ctx, r.db, accountID, deviceID)
}

func getDevice(ctx context.Context, db DBTX, accountID uuid.UUID, deviceID string) (Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE account_id = $1 AND device_id = $2`

	d, err := scanDevice(db.QueryRow(ctx, query, accountID, deviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Device{}, ErrDeviceNotFound
		}
		return Device{}, fmt.Errorf("failed to get device: %w", err)
	}
	return d, nil
}

func (r *PostgresDeviceRepository) FindActiveDevices(ctx context.Context, accountID uuid.UUID) ([]Device, error) {
	return findActiveDevices(ctx, r.db, accountID)
}

func findActiveDevices(ctx context.Context, db DBTX, accountID uuid.UUID) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices
		WHERE account_id = $1 AND is_active
		ORDER BY last_active DESC`

	rows, err := db.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active devices: %w", err)
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}
	return devices, nil
}

// sessionLiveCondition mirrors SessionLive. $3 is the evaluation time and $4
// the inactivity cutoff (at - timeout).
const sessionLiveCondition = `((remember_me AND COALESCE(remember_me_expiry > $3, FALSE))
		OR (NOT remember_me AND last_active > $4))`

func (r *PostgresDeviceRepository) UpdateLastActive(ctx context.Context, accountID uuid.UUID, deviceID string, at time.Time, inactivityTimeout time.Duration) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE devices SET last_active = $3
		WHERE account_id = $1 AND device_id = $2 AND is_active AND `+sessionLiveCondition,
		accountID, deviceID, at, at.Add(-inactivityTimeout))
	if err != nil {
		return false, fmt.Errorf("failed to update last active: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresDeviceRepository) Deactivate(ctx context.Context, accountID uuid.UUID, deviceID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE devices
		SET is_active = FALSE, remember_me = FALSE, remember_me_expiry = NULL
		WHERE account_id = $1 AND device_id = $2 AND is_active`,
		accountID, deviceID)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate device: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresDeviceRepository) DeactivateExpired(ctx context.Context, accountID uuid.UUID, deviceID string, at time.Time, inactivityTimeout time.Duration) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE devices
		SET is_active = FALSE, remember_me = FALSE, remember_me_expiry = NULL
		WHERE account_id = $1 AND device_id = $2 AND is_active AND NOT `+sessionLiveCondition,
		accountID, deviceID, at, at.Add(-inactivityTimeout))
	if err != nil {
		return false, fmt.Errorf("failed to deactivate expired device: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresDeviceRepository) UpdatePushSubscription(ctx context.Context, accountID uuid.UUID, deviceID string, sub *PushSubscription) (bool, error) {
	raw, err := marshalSubscription(sub)
	if err != nil {
		return false, err
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE devices SET push_subscription = $3 WHERE account_id = $1 AND device_id = $2`,
		accountID, deviceID, raw)
	if err != nil {
		return false, fmt.Errorf("failed to update push subscription: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// WithTx returns a new repository with the given transaction
func (r *PostgresDeviceRepository) WithTx(tx interface{}) Repository {
	if tx == nil {
		return r
	}
	pgxTx, ok := tx.(pgx.Tx)
	if !ok {
		slog.Warn("Unsupported transaction type", "type", reflect.TypeOf(tx))
		return r
	}
	return NewPostgresDeviceRepository(pgxTx)
}

func scanDevice(row pgx.Row) (Device, error) {
	var d Device
	var deviceType string
	var sub []byte
	err := row.Scan(
		&d.AccountID,
		&d.DeviceID,
		&d.PhysicalDeviceID,
		&deviceType,
		&d.Browser,
		&d.OS,
		&d.DeviceName,
		&d.LastActive,
		&d.RegisteredAt,
		&d.IsActive,
		&d.RememberMe,
		&d.RememberMeExpiry,
		&sub,
	)
	if err != nil {
		return Device{}, err
	}
	d.DeviceType = DeviceType(deviceType)
	if len(sub) > 0 {
		var s PushSubscription
		if err := json.Unmarshal(sub, &s); err != nil {
			return Device{}, fmt.Errorf("failed to decode push subscription: %w", err)
		}
		d.PushSubscription = &s
	}
	return d, nil
}

// marshalSubscription returns nil for a nil subscription so the column is NULL.
func marshalSubscription(sub *PushSubscription) (any, error) {
	if sub == nil {
		return nil, nil
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to encode push subscription: %w", err)
	}
	return raw, nil
}
