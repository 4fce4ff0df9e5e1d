package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/paper-analysis-service/internal/domain"
)

const credentialColumns = `id, user_id, provider, api_key_encrypted, model_name,
			is_default, is_active, last_used_at, created_at, updated_at`

// Compile-time interface verification.
var _ CredentialRepository = (*PgCredentialRepository)(nil)

// PgCredentialRepository is a PostgreSQL implementation of CredentialRepository.
//
// The one-default-per-provider rule is kept by clearing the other defaults
// in the same statement that sets a new one. Two concurrent statements that
// set different defaults can still both commit.
type PgCredentialRepository struct {
	db DBTX
}

// NewPgCredentialRepository creates a new PostgreSQL credential repository.
func NewPgCredentialRepository(db DBTX) *PgCredentialRepository {
	return &PgCredentialRepository{db: db}
}

// Create inserts a credential, clearing sibling defaults when it is the default.
func (r *PgCredentialRepository) Create(ctx context.Context, cred *domain.Credential) (*domain.Credential, error) {
	if cred == nil {
		return nil, domain.NewValidationError("credential", "credential cannot be nil")
	}
	if !cred.Provider.IsValid() {
		return nil, &domain.UnsupportedProviderError{Provider: string(cred.Provider)}
	}
	if cred.EncryptedSecret == "" {
		return nil, domain.NewValidationError("api_key", "encrypted secret is required")
	}

	query := `
		WITH cleared AS (
			UPDATE api_keys SET is_default = FALSE, updated_at = $6
			WHERE $5 AND user_id = $1 AND provider = $2 AND is_default
		)
		INSERT INTO api_keys (
			user_id, provider, api_key_encrypted, model_name,
			is_default, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6)
		RETURNING id, created_at, updated_at`

	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, query,
		cred.UserID, cred.Provider, cred.EncryptedSecret, cred.ModelName, cred.IsDefault, now,
	).Scan(&cred.ID, &cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert credential: %w", err)
	}

	cred.IsActive = true
	return cred, nil
}

// GetByID retrieves an active credential owned by userID.
func (r *PgCredentialRepository) GetByID(ctx context.Context, userID, id int64) (*domain.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM api_keys
		WHERE id = $1 AND user_id = $2 AND is_active`

	cred, err := scanCredential(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError(domain.EntityAPIKey, strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return cred, nil
}

// ListByUser returns the user's active credentials, oldest first.
func (r *PgCredentialRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM api_keys
		WHERE user_id = $1 AND is_active
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	creds := make([]*domain.Credential, 0)
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credentials: %w", err)
	}

	return creds, nil
}

// Update applies the non-nil fields of upd in one statement.
func (r *PgCredentialRepository) Update(ctx context.Context, userID, id int64, upd domain.CredentialUpdate) (*domain.Credential, error) {
	if upd.IsEmpty() {
		return r.GetByID(ctx, userID, id)
	}

	query := `
		WITH target AS (
			UPDATE api_keys SET
				api_key_encrypted = COALESCE($3, api_key_encrypted),
				model_name = COALESCE($4, model_name),
				is_default = COALESCE($5, is_default),
				is_active = COALESCE($6, is_active),
				updated_at = $7
			WHERE id = $1 AND user_id = $2 AND is_active
			RETURNING ` + credentialColumns + `
		), cleared AS (
			UPDATE api_keys k SET is_default = FALSE, updated_at = $7
			FROM target t
			WHERE $5::boolean IS TRUE
				AND k.user_id = t.user_id AND k.provider = t.provider
				AND k.id <> t.id AND k.is_default
		)
		SELECT ` + credentialColumns + ` FROM target`

	cred, err := scanCredential(r.db.QueryRow(ctx, query,
		id, userID, upd.EncryptedSecret, upd.ModelName, upd.IsDefault, upd.IsActive, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError(domain.EntityAPIKey, strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("failed to update credential: %w", err)
	}
	return cred, nil
}

// SoftDelete marks a credential inactive.
func (r *PgCredentialRepository) SoftDelete(ctx context.Context, userID, id int64) error {
	query := `
		UPDATE api_keys
		SET is_active = FALSE, is_default = FALSE, updated_at = $3
		WHERE id = $1 AND user_id = $2 AND is_active`

	result, err := r.db.Exec(ctx, query, id, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError(domain.EntityAPIKey, strconv.FormatInt(id, 10))
	}
	return nil
}

// TouchLastUsed sets last_used_at.
func (r *PgCredentialRepository) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	result, err := r.db.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to touch credential: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError(domain.EntityAPIKey, strconv.FormatInt(id, 10))
	}
	return nil
}

// scanCredential scans one row from either pgx.Row or pgx.Rows.
func scanCredential(row pgx.Row) (*domain.Credential, error) {
	var c domain.Credential
	err := row.Scan(
		&c.ID, &c.UserID, &c.Provider, &c.EncryptedSecret, &c.ModelName,
		&c.IsDefault, &c.IsActive, &c.LastUsedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
