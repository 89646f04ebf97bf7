package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"kilnfire"
)

// ProfileSQLite keeps each profile as an opaque JSON blob keyed by the
// sanitized profile id, plus a single index blob listing the stored ids —
// the firmware's flash blob layout carried over. Keys are truncated to the
// 15-byte key namespace the original store imposed.
type ProfileSQLite struct {
	db *sql.DB
}

func NewProfileSQLite(db *sql.DB) *ProfileSQLite {
	return &ProfileSQLite{db: db}
}

var _ ProfileRepo = (*ProfileSQLite)(nil)

const (
	profileNS       = "profiles"
	profileIndexKey = "idx"
	profileKeyMax   = 15
)

const (
	upsertBlobSQL = `
		INSERT INTO kv_blobs (ns, key, value) VALUES (?, ?, ?)
		ON CONFLICT(ns, key) DO UPDATE SET value=excluded.value
	`
	selectBlobSQL = `SELECT value FROM kv_blobs WHERE ns=? AND key=?`
	deleteBlobSQL = `DELETE FROM kv_blobs WHERE ns=? AND key=?`
)

// BlobKey sanitizes a profile id into a storage key: non-alphanumerics
// become underscores and the result is truncated to the key limit.
func BlobKey(id string) string {
	b := []byte(id)
	if len(b) > profileKeyMax {
		b = b[:profileKeyMax]
	}
	for i, c := range b {
		alnum := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
		if !alnum {
			b[i] = '_'
		}
	}
	return string(b)
}

func (r *ProfileSQLite) loadIndex(ctx context.Context) ([]string, error) {
	var blob []byte
	err := r.db.QueryRowContext(ctx, selectBlobSQL, profileNS, profileIndexKey).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile index: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(blob, &ids); err != nil {
		return nil, fmt.Errorf("decode profile index: %w", err)
	}
	return ids, nil
}

func (r *ProfileSQLite) saveIndex(ctx context.Context, ids []string) error {
	blob, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, upsertBlobSQL, profileNS, profileIndexKey, blob); err != nil {
		return fmt.Errorf("save profile index: %w", err)
	}
	return nil
}

// Save upserts the profile blob and adds the id to the index when new and
// the store has room.
func (r *ProfileSQLite) Save(ctx context.Context, p kilnfire.FiringProfile) error {
	blob, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %q: %w", p.ID, err)
	}
	if _, err := r.db.ExecContext(ctx, upsertBlobSQL, profileNS, BlobKey(p.ID), blob); err != nil {
		return fmt.Errorf("save profile %q: %w", p.ID, err)
	}

	ids, err := r.loadIndex(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == p.ID {
			return nil
		}
	}
	if len(ids) >= kilnfire.MaxProfiles {
		return fmt.Errorf("profile store full (%d)", kilnfire.MaxProfiles)
	}
	return r.saveIndex(ctx, append(ids, p.ID))
}

// Load fetches a profile by id. Returns kilnfire.ErrNotFound when absent.
func (r *ProfileSQLite) Load(ctx context.Context, id string) (kilnfire.FiringProfile, error) {
	var blob []byte
	err := r.db.QueryRowContext(ctx, selectBlobSQL, profileNS, BlobKey(id)).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return kilnfire.FiringProfile{}, fmt.Errorf("profile %q: %w", id, kilnfire.ErrNotFound)
	}
	if err != nil {
		return kilnfire.FiringProfile{}, fmt.Errorf("load profile %q: %w", id, err)
	}

	var p kilnfire.FiringProfile
	if err := json.Unmarshal(blob, &p); err != nil {
		return kilnfire.FiringProfile{}, fmt.Errorf("decode profile %q: %w", id, err)
	}
	return p, nil
}

// Delete removes the blob and the index entry. Deleting a missing profile
// is a no-op success.
func (r *ProfileSQLite) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, deleteBlobSQL, profileNS, BlobKey(id)); err != nil {
		return fmt.Errorf("delete profile %q: %w", id, err)
	}

	ids, err := r.loadIndex(ctx)
	if err != nil {
		return err
	}
	for i, got := range ids {
		if got == id {
			return r.saveIndex(ctx, append(ids[:i], ids[i+1:]...))
		}
	}
	return nil
}

// List returns the stored profile ids in index order.
func (r *ProfileSQLite) List(ctx context.Context) ([]string, error) {
	return r.loadIndex(ctx)
}
