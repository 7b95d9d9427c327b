package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) UpsertSettings(ctx context.Context, guild string) (*Settings, error) {
	_, _ = r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings(guild_id) VALUES (?)`, guild,
	)
	return r.GetSettings(ctx, guild)
}

func (r *Repo) GetSettings(ctx context.Context, guild string) (*Settings, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT guild_id, default_volume, save_media, seconds_wait_after_empty
	FROM settings WHERE guild_id = ?`, guild)

	var s Settings
	var saveMedia int
	if err := row.Scan(&s.GuildID, &s.DefaultVolume, &saveMedia, &s.SecondsWaitAfterEmpty); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	s.SaveMedia = saveMedia != 0
	return &s, nil
}

func (r *Repo) UpdateSettings(ctx context.Context, s *Settings) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE settings SET
		  default_volume=?,
		  save_media=?,
		  seconds_wait_after_empty=?
		WHERE guild_id=?`,
		s.DefaultVolume, boolToInt(s.SaveMedia), s.SecondsWaitAfterEmpty, s.GuildID,
	)
	return err
}

func (r *Repo) SaveSession(ctx context.Context, guild string, payload []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions(guild_id, payload, updated_at) VALUES (?,?,?)`,
		guild, string(payload), time.Now().Unix(),
	)
	return err
}

func (r *Repo) GetSession(ctx context.Context, guild string) ([]byte, error) {
	row := r.db.QueryRowContext(ctx, `SELECT payload FROM sessions WHERE guild_id=?`, guild)
	var payload string
	if err := row.Scan(&payload); err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

func (r *Repo) ListSessions(ctx context.Context) (map[string][]byte, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT guild_id, payload FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]byte)
	for rows.Next() {
		var guild, payload string
		if err := rows.Scan(&guild, &payload); err != nil {
			return nil, err
		}
		out[guild] = []byte(payload)
	}
	return out, rows.Err()
}

func (r *Repo) DeleteSession(ctx context.Context, guild string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE guild_id=?`, guild)
	return err
}

func (r *Repo) CacheTouch(ctx context.Context, hash string, size int64, created bool) error {
	now := time.Now().Unix()
	if created {
		_, err := r.db.ExecContext(ctx, `INSERT OR REPLACE INTO file_cache(hash,bytes,accessed_at,created_at) VALUES (?,?,?,COALESCE((SELECT created_at FROM file_cache WHERE hash=?),?))`,
			hash, size, now, hash, now)
		return err
	}
	_, err := r.db.ExecContext(ctx, `UPDATE file_cache SET accessed_at=? WHERE hash=?`, now, hash)
	return err
}

func (r *Repo) CacheRemove(ctx context.Context, hash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM file_cache WHERE hash=?`, hash)
	return err
}

func (r *Repo) CacheTotalBytes(ctx context.Context) (int64, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(bytes),0) FROM file_cache`)
	var v int64
	if err := row.Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func (r *Repo) CacheOldest(ctx context.Context) (string, error) {
	row := r.db.QueryRowContext(ctx, `SELECT hash FROM file_cache ORDER BY accessed_at ASC LIMIT 1`)
	var hash string
	if err := row.Scan(&hash); err != nil {
		return "", err
	}
	return hash, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
