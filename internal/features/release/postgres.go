// Package release — postgres.go реализует Store поверх PostgreSQL
// для установок, где бот уже живёт рядом с базой.
package release

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/captcha-bot/internal/db/postgres"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS ban_release_jobs (
	chat_id       BIGINT NOT NULL,
	user_id       BIGINT NOT NULL,
	release_at    TIMESTAMPTZ NOT NULL,
	user_name     TEXT NOT NULL DEFAULT '',
	user_username TEXT NOT NULL DEFAULT '',
	chat_title    TEXT NOT NULL DEFAULT '',
	chat_username TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (chat_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_ban_release_jobs_release_at
	ON ban_release_jobs (release_at);
`

// PostgresStore — хранилище заданий в PostgreSQL через пул pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore подключается к базе и накатывает схему.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("не удалось создать схему заданий: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Upsert сохраняет задание, перезаписывая существующее с тем же ключом.
func (s *PostgresStore) Upsert(ctx context.Context, job Job) error {
	query := `
		INSERT INTO ban_release_jobs
			(chat_id, user_id, release_at, user_name, user_username, chat_title, chat_username)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (chat_id, user_id) DO UPDATE SET
			release_at    = EXCLUDED.release_at,
			user_name     = EXCLUDED.user_name,
			user_username = EXCLUDED.user_username,
			chat_title    = EXCLUDED.chat_title,
			chat_username = EXCLUDED.chat_username
	`
	_, err := s.pool.Exec(ctx, query,
		job.ChatID, job.UserID, job.ReleaseAt,
		job.UserName, job.UserUsername, job.ChatTitle, job.ChatUsername,
	)
	if err != nil {
		return fmt.Errorf("не удалось сохранить задание: %w", err)
	}
	return nil
}

// FetchDue возвращает задания со сроком <= now по возрастанию срока.
func (s *PostgresStore) FetchDue(ctx context.Context, now time.Time) ([]Job, error) {
	query := `
		SELECT chat_id, user_id, release_at, user_name, user_username, chat_title, chat_username
		FROM ban_release_jobs
		WHERE release_at <= $1
		ORDER BY release_at ASC
	`
	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("не удалось выбрать задания: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ChatID, &j.UserID, &j.ReleaseAt,
			&j.UserName, &j.UserUsername, &j.ChatTitle, &j.ChatUsername); err != nil {
			return nil, fmt.Errorf("не удалось прочитать задание: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения заданий: %w", err)
	}
	return jobs, nil
}

// Delete удаляет задание; отсутствие задания — не ошибка.
func (s *PostgresStore) Delete(ctx context.Context, chatID, userID int64) error {
	query := `DELETE FROM ban_release_jobs WHERE chat_id = $1 AND user_id = $2`
	if _, err := s.pool.Exec(ctx, query, chatID, userID); err != nil {
		return fmt.Errorf("не удалось удалить задание: %w", err)
	}
	return nil
}

// Close закрывает пул соединений.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
