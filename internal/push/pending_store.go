package push

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/h-mdm/hmdm-server-sub001/internal/device"
	"github.com/h-mdm/hmdm-server-sub001/internal/infrastructure/database"
)

// SQLPendingStore keeps messages for offline polling devices in the
// pending_push_messages table.
type SQLPendingStore struct {
	db *sql.DB
}

// NewSQLPendingStore creates a store on db.
func NewSQLPendingStore(db *sql.DB) *SQLPendingStore {
	return &SQLPendingStore{db: db}
}

// Enqueue appends m to the device's pending messages.
func (s *SQLPendingStore) Enqueue(ctx context.Context, m *Message) error {
	if err := m.Validate(); err != nil {
		return err
	}

	var payload sql.NullString
	if m.Payload != "" {
		payload = sql.NullString{String: m.Payload, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_push_messages (device_id, message_type, payload) VALUES (?, ?, ?)`,
		m.DeviceID, m.MessageType, payload)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("inserting pending message for device %d: %w", m.DeviceID, device.ErrDeviceNotFound)
		}
		return fmt.Errorf("inserting pending message: %w", err)
	}
	return nil
}

// PendingForDelivery returns the device's pending messages oldest first and
// deletes them in the same transaction.
func (s *SQLPendingStore) PendingForDelivery(ctx context.Context, deviceID int64) ([]Message, error) {
	var msgs []Message

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, message_type, payload FROM pending_push_messages
			 WHERE device_id = ? ORDER BY id`, deviceID)
		if err != nil {
			return fmt.Errorf("querying pending messages: %w", err)
		}
		defer rows.Close()

		var lastID int64
		for rows.Next() {
			var (
				m       = Message{DeviceID: deviceID}
				payload sql.NullString
			)
			if err := rows.Scan(&lastID, &m.MessageType, &payload); err != nil {
				return fmt.Errorf("scanning pending message: %w", err)
			}
			m.Payload = payload.String
			msgs = append(msgs, m)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating pending messages: %w", err)
		}
		if len(msgs) == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM pending_push_messages WHERE device_id = ? AND id <= ?`,
			deviceID, lastID); err != nil {
			return fmt.Errorf("deleting delivered messages: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// Count returns the number of messages waiting for deviceID.
func (s *SQLPendingStore) Count(ctx context.Context, deviceID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_push_messages WHERE device_id = ?`, deviceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting pending messages: %w", err)
	}
	return n, nil
}

// isForeignKeyError reports a SQLite foreign key violation; pending rows
// reference devices(id).
func isForeignKeyError(err error) bool {
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
