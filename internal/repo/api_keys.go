package repo

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"giveaway/internal/domain"
)

// apiKeyPrefix marks plaintext keys so they are recognizable in logs and
// secret scanners.
const apiKeyPrefix = "gw_"

// HashAPIKey returns the sha256 hex digest stored in place of a key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// NewAPIKey mints a key for actorID. The plaintext is returned once; only the
// record with its hash should be persisted.
func NewAPIKey(actorID, name string, now time.Time) (string, domain.APIKey, error) {
	if strings.TrimSpace(actorID) == "" {
		return "", domain.APIKey{}, domain.Errorf(domain.ErrConfiguration, "api key needs an actor id")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", domain.APIKey{}, fmt.Errorf("generate api key: %w", err)
	}
	plain := apiKeyPrefix + hex.EncodeToString(buf)
	return plain, domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   HashAPIKey(plain),
		CreatedAt: now.UTC().Format(time.RFC3339),
	}, nil
}

// InsertAPIKey stores a key record. KeyHash must already be hashed.
func (r Repo) InsertAPIKey(ctx context.Context, tx *sql.Tx, key domain.APIKey) error {
	switch {
	case key.ID == "":
		return domain.Errorf(domain.ErrConfiguration, "api key id required")
	case key.ActorID == "":
		return domain.Errorf(domain.ErrConfiguration, "api key actor_id required")
	case key.KeyHash == "":
		return domain.Errorf(domain.ErrConfiguration, "api key hash required")
	}
	if key.CreatedAt == "" {
		key.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := r.execer(tx).ExecContext(ctx, `INSERT INTO api_keys(id, actor_id, name, key_hash, created_at) VALUES (?,?,?,?,?)`,
		key.ID, key.ActorID, nullable(key.Name), key.KeyHash, key.CreatedAt)
	return err
}

const apiKeyColumns = `id, actor_id, COALESCE(name,''), key_hash, created_at`

func scanAPIKey(row rowScanner) (domain.APIKey, error) {
	var key domain.APIKey
	err := row.Scan(&key.ID, &key.ActorID, &key.Name, &key.KeyHash, &key.CreatedAt)
	return key, err
}

// GetAPIKeyByHash resolves a presented key's hash to its record.
func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	key, err := scanAPIKey(r.DB.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash=?`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.APIKey{}, ErrNotFound
	}
	return key, err
}

// ListAPIKeys returns keys newest first; an empty actorID lists all.
func (r Repo) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if actorID == "" {
		rows, err = r.DB.QueryContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys ORDER BY created_at DESC, id`)
	} else {
		rows, err = r.DB.QueryContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE actor_id=? ORDER BY created_at DESC, id`, actorID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []domain.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// DeleteAPIKey revokes a key by ID.
func (r Repo) DeleteAPIKey(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM api_keys WHERE id=?`, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
