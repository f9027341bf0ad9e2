package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/user/verdandi/internal/storage"
	"github.com/user/verdandi/pkg/crypto"
)

// Credential values are secret material wholesale, so every value is
// encrypted at rest, not just a known-sensitive subset.
func encryptData(data map[string]string) (map[string]string, error) {
	encrypted := make(map[string]string, len(data))
	for k, v := range data {
		if v == "" {
			encrypted[k] = v
			continue
		}
		sealed, err := crypto.Seal(v)
		if err != nil {
			return nil, err
		}
		encrypted[k] = sealed
	}
	return encrypted, nil
}

// decryptData keeps the stored form when a value cannot be opened, so a key
// rotation surfaces as a bad credential at use time instead of a read error.
func decryptData(data map[string]string) map[string]string {
	decrypted := make(map[string]string, len(data))
	for k, v := range data {
		if plain, err := crypto.Open(v); err == nil {
			decrypted[k] = plain
		} else {
			decrypted[k] = v
		}
	}
	return decrypted
}

const credentialColumns = "id, owner, provider, name, data, created_at, updated_at"

func scanCredential(row rowScanner) (*storage.Credential, error) {
	var (
		c       storage.Credential
		dataStr sql.NullString
	)
	err := row.Scan(&c.ID, &c.Owner, &c.Provider, &c.Name, &dataStr, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if dataStr.Valid && dataStr.String != "" {
		if err := json.Unmarshal([]byte(dataStr.String), &c.Data); err != nil {
			return nil, err
		}
		c.Data = decryptData(c.Data)
	}
	return &c, nil
}

func (s *sqlStorage) GetCredential(ctx context.Context, owner, provider, name string) (*storage.Credential, error) {
	row := s.queryRow(ctx, "SELECT "+credentialColumns+" FROM credentials WHERE owner = ? AND provider = ? AND name = ?",
		owner, provider, name)
	c, err := scanCredential(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *sqlStorage) SaveCredential(ctx context.Context, c *storage.Credential) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	encrypted, err := encryptData(c.Data)
	if err != nil {
		return err
	}
	dataBytes, err := json.Marshal(encrypted)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO credentials (`+credentialColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner, provider, name) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`,
		c.ID, c.Owner, c.Provider, c.Name, string(dataBytes), c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *sqlStorage) ListCredentials(ctx context.Context, owner string) ([]*storage.Credential, error) {
	rows, err := s.query(ctx, "SELECT "+credentialColumns+" FROM credentials WHERE owner = ? ORDER BY provider, name", owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var credentials []*storage.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		credentials = append(credentials, c)
	}
	return credentials, rows.Err()
}

func (s *sqlStorage) DeleteCredential(ctx context.Context, id string) error {
	res, err := s.exec(ctx, "DELETE FROM credentials WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
