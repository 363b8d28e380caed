package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/skolbridge/skolbridge/internal/domain/children"
	"github.com/skolbridge/skolbridge/internal/domain/shared"
	"github.com/skolbridge/skolbridge/pkg/seal"
)

// ══════════════════════════════════════════════════════════════════════════════
// OPTIONS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// OptionsRepository implements children.OptionsRepository for PostgreSQL.
// Token pairs are sealed before they touch the database and opened on
// read; the database never holds a plaintext token.
type OptionsRepository struct {
	conn   *Connection
	sealer *seal.Sealer
}

// NewOptionsRepository creates a new OptionsRepository.
func NewOptionsRepository(conn *Connection, sealer *seal.Sealer) *OptionsRepository {
	return &OptionsRepository{conn: conn, sealer: sealer}
}

// Children returns all child records keyed by slot.
func (r *OptionsRepository) Children(ctx context.Context) (map[string]children.Record, error) {
	query := `
		SELECT slot, user_id, username, name, surname, school, server,
		       access_token_sealed, refresh_token_sealed
		FROM child_records
		ORDER BY slot
	`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, shared.WrapError("options", "Children", shared.ErrServiceUnavailable,
			"failed to query child records", err)
	}
	defer rows.Close()

	out := make(map[string]children.Record)
	for rows.Next() {
		var slot string
		rec, err := r.scanRecord(rows, &slot)
		if err != nil {
			return nil, err
		}
		out[slot] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapError("options", "Children", shared.ErrServiceUnavailable,
			"failed to iterate child records", err)
	}
	return out, nil
}

// Child returns the record stored under the slot.
func (r *OptionsRepository) Child(ctx context.Context, slot string) (children.Record, error) {
	query := `
		SELECT slot, user_id, username, name, surname, school, server,
		       access_token_sealed, refresh_token_sealed
		FROM child_records
		WHERE slot = $1
	`

	row := r.conn.QueryRow(ctx, query, slot)
	var gotSlot string
	rec, err := r.scanRecord(row, &gotSlot)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return children.Record{}, shared.WrapError("options", "Child", shared.ErrNotFound,
				"no record in slot "+slot, shared.ErrChildNotFound)
		}
		return children.Record{}, err
	}
	return rec, nil
}

// PutChild stores the record under the slot, replacing any previous one.
func (r *OptionsRepository) PutChild(ctx context.Context, slot string, rec children.Record) error {
	access, err := r.sealer.Seal(rec.AccessToken)
	if err != nil {
		return fmt.Errorf("postgres: seal access token: %w", err)
	}
	refresh, err := r.sealer.Seal(rec.RefreshToken)
	if err != nil {
		return fmt.Errorf("postgres: seal refresh token: %w", err)
	}

	query := `
		INSERT INTO child_records (
			slot, user_id, username, name, surname, school, server,
			access_token_sealed, refresh_token_sealed, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (slot) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			username = EXCLUDED.username,
			name = EXCLUDED.name,
			surname = EXCLUDED.surname,
			school = EXCLUDED.school,
			server = EXCLUDED.server,
			access_token_sealed = EXCLUDED.access_token_sealed,
			refresh_token_sealed = EXCLUDED.refresh_token_sealed,
			updated_at = NOW()
	`

	_, err = r.conn.Exec(ctx, query,
		slot, rec.UserID, rec.Username, rec.Name, rec.Surname,
		rec.School, rec.Server, access, refresh,
	)
	if err != nil {
		return shared.WrapError("options", "PutChild", shared.ErrServiceUnavailable,
			"failed to store child record", err)
	}
	return nil
}

// DeleteChild removes the slot. Deleting a missing slot is a no-op.
func (r *OptionsRepository) DeleteChild(ctx context.Context, slot string) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM child_records WHERE slot = $1`, slot)
	if err != nil {
		return shared.WrapError("options", "DeleteChild", shared.ErrServiceUnavailable,
			"failed to delete child record", err)
	}
	return nil
}

// UpdateTokens replaces only the token pair of the stored record.
func (r *OptionsRepository) UpdateTokens(ctx context.Context, slot, access, refresh string) error {
	sealedAccess, err := r.sealer.Seal(access)
	if err != nil {
		return fmt.Errorf("postgres: seal access token: %w", err)
	}
	sealedRefresh, err := r.sealer.Seal(refresh)
	if err != nil {
		return fmt.Errorf("postgres: seal refresh token: %w", err)
	}

	query := `
		UPDATE child_records
		SET access_token_sealed = $2, refresh_token_sealed = $3, updated_at = NOW()
		WHERE slot = $1
	`

	tag, err := r.conn.Exec(ctx, query, slot, sealedAccess, sealedRefresh)
	if err != nil {
		return shared.WrapError("options", "UpdateTokens", shared.ErrServiceUnavailable,
			"failed to update tokens", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.WrapError("options", "UpdateTokens", shared.ErrNotFound,
			"no record in slot "+slot, shared.ErrChildNotFound)
	}
	return nil
}

// ClearTokens empties both tokens of the stored record.
func (r *OptionsRepository) ClearTokens(ctx context.Context, slot string) error {
	query := `
		UPDATE child_records
		SET access_token_sealed = '', refresh_token_sealed = '', updated_at = NOW()
		WHERE slot = $1
	`

	tag, err := r.conn.Exec(ctx, query, slot)
	if err != nil {
		return shared.WrapError("options", "ClearTokens", shared.ErrServiceUnavailable,
			"failed to clear tokens", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.WrapError("options", "ClearTokens", shared.ErrNotFound,
			"no record in slot "+slot, shared.ErrChildNotFound)
	}
	return nil
}

// scanRecord scans one row and opens the sealed token pair.
func (r *OptionsRepository) scanRecord(row interface {
	Scan(dest ...interface{}) error
}, slot *string) (children.Record, error) {
	var rec children.Record
	var sealedAccess, sealedRefresh string

	err := row.Scan(slot, &rec.UserID, &rec.Username, &rec.Name, &rec.Surname,
		&rec.School, &rec.Server, &sealedAccess, &sealedRefresh)
	if err != nil {
		return children.Record{}, err
	}

	if rec.AccessToken, err = r.sealer.Open(sealedAccess); err != nil {
		return children.Record{}, fmt.Errorf("postgres: open access token: %w", err)
	}
	if rec.RefreshToken, err = r.sealer.Open(sealedRefresh); err != nil {
		return children.Record{}, fmt.Errorf("postgres: open refresh token: %w", err)
	}
	return rec, nil
}
