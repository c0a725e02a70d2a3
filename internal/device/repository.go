package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the persistence operations the push subsystem needs
// from the device directory.
type Repository interface {
	// GetByID retrieves a device by its identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id int64) (*Device, error)

	// GetByNumber retrieves a device by its current number.
	// Returns ErrDeviceNotFound if no device carries that number.
	GetByNumber(ctx context.Context, number string) (*Device, error)

	// GetConfigurationByID retrieves a configuration.
	// Returns ErrConfigurationNotFound if it does not exist.
	GetConfigurationByID(ctx context.Context, id int64) (*Configuration, error)

	// ListIDsByConfiguration returns the IDs of every device assigned to a
	// configuration, in ascending order.
	ListIDsByConfiguration(ctx context.Context, configurationID int64) ([]int64, error)

	// Create inserts a new device and sets its ID.
	// Returns ErrDeviceExists if the number is already taken.
	Create(ctx context.Context, device *Device) error

	// CreateConfiguration inserts a new configuration and sets its ID.
	CreateConfiguration(ctx context.Context, cfg *Configuration) error

	// Rename moves a device to a new number, keeping the current one as
	// old_number until ClearOldNumber is called.
	Rename(ctx context.Context, id int64, newNumber string) error

	// ClearOldNumber finishes a rename once the device has re-subscribed.
	ClearOldNumber(ctx context.Context, id int64) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, number, old_number, customer_id, configuration_id,
	description, created_at, updated_at`

// GetByID retrieves a device by its identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)

	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// GetByNumber retrieves a device by its current number.
func (r *SQLiteRepository) GetByNumber(ctx context.Context, number string) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE number = ?`, number)

	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by number: %w", err)
	}
	return d, nil
}

// GetConfigurationByID retrieves a configuration.
func (r *SQLiteRepository) GetConfigurationByID(ctx context.Context, id int64) (*Configuration, error) {
	var (
		c         Configuration
		createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, customer_id, name, created_at FROM configurations WHERE id = ?`, id,
	).Scan(&c.ID, &c.CustomerID, &c.Name, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConfigurationNotFound
		}
		return nil, fmt.Errorf("querying configuration by id: %w", err)
	}

	c.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &c, nil
}

// ListIDsByConfiguration returns the IDs of every device assigned to a configuration.
func (r *SQLiteRepository) ListIDsByConfiguration(ctx context.Context, configurationID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM devices WHERE configuration_id = ? ORDER BY id`, configurationID)
	if err != nil {
		return nil, fmt.Errorf("querying devices by configuration: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning device id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device ids: %w", err)
	}
	return ids, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	if err := ValidateDevice(device); err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Second)
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (number, old_number, customer_id, configuration_id,
			description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		device.Number,
		nullableString(device.OldNumber),
		device.CustomerID,
		nullableID(device.ConfigurationID),
		nullableString(device.Description),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading device id: %w", err)
	}
	device.ID = id
	device.CreatedAt = now
	device.UpdatedAt = now
	return nil
}

// CreateConfiguration inserts a new configuration.
func (r *SQLiteRepository) CreateConfiguration(ctx context.Context, cfg *Configuration) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: configuration name is required", ErrInvalidDevice)
	}

	now := time.Now().UTC().Truncate(time.Second)
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO configurations (customer_id, name, created_at) VALUES (?, ?, ?)`,
		cfg.CustomerID, cfg.Name, now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting configuration: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading configuration id: %w", err)
	}
	cfg.ID = id
	cfg.CreatedAt = now
	return nil
}

// Rename moves a device to a new number. A second rename before the first
// completes keeps the oldest number, which is the one the device is still
// subscribed to.
func (r *SQLiteRepository) Rename(ctx context.Context, id int64, newNumber string) error {
	if err := ValidateNumber(newNumber); err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET old_number = COALESCE(old_number, number),
			number = ?,
			updated_at = ?
		WHERE id = ?`,
		newNumber,
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("renaming device: %w", err)
	}
	return requireOneRow(result)
}

// ClearOldNumber finishes a rename.
func (r *SQLiteRepository) ClearOldNumber(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET old_number = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("clearing old number: %w", err)
	}
	return requireOneRow(result)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var (
		d               Device
		oldNumber       sql.NullString
		configurationID sql.NullInt64
		description     sql.NullString
		createdAt       string
		updatedAt       string
	)

	err := row.Scan(
		&d.ID,
		&d.Number,
		&oldNumber,
		&d.CustomerID,
		&configurationID,
		&description,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.OldNumber = oldNumber.String
	d.ConfigurationID = configurationID.Int64
	d.Description = description.String

	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &d, nil
}

func requireOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableID(id int64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
