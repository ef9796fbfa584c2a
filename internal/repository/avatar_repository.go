package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"avatarsvc/internal/models"
)

var ErrAvatarNotFound = errors.New("avatar not found")

const avatarColumns = `id, username, image_key, image_content_type, image_size, created_at, updated_at`

type AvatarRepository struct {
	pool *pgxpool.Pool
}

func NewAvatarRepository(pool *pgxpool.Pool) *AvatarRepository {
	return &AvatarRepository{pool: pool}
}

func scanAvatar(row pgx.Row) (models.AvatarRow, error) {
	var avatar models.AvatarRow
	err := row.Scan(
		&avatar.ID,
		&avatar.Username,
		&avatar.ImageKey,
		&avatar.ImageContentType,
		&avatar.ImageSize,
		&avatar.CreatedAt,
		&avatar.UpdatedAt,
	)
	return avatar, err
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertAvatar(ctx context.Context, q queryRower, avatar models.AvatarRow) (models.AvatarRow, error) {
	const query = `
		INSERT INTO avatars (username, image_key, image_content_type, image_size, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING ` + avatarColumns

	return scanAvatar(q.QueryRow(ctx, query,
		avatar.Username,
		avatar.ImageKey,
		avatar.ImageContentType,
		avatar.ImageSize,
	))
}

func (r *AvatarRepository) Insert(ctx context.Context, avatar models.AvatarRow) (models.AvatarRow, error) {
	created, err := insertAvatar(ctx, r.pool, avatar)
	if err != nil {
		return models.AvatarRow{}, fmt.Errorf("insert avatar: %w", err)
	}
	return created, nil
}

// ReplaceByUsername deletes every row of avatar.Username and inserts avatar in
// one transaction. It returns the image keys of the deleted rows. Concurrent
// replaces of one username are serialized by a transaction-scoped advisory lock.
func (r *AvatarRepository) ReplaceByUsername(ctx context.Context, avatar models.AvatarRow) (models.AvatarRow, []string, error) {
	var (
		created models.AvatarRow
		removed []string
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, avatar.Username); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `DELETE FROM avatars WHERE username = $1 RETURNING image_key`, avatar.Username)
		if err != nil {
			return err
		}
		removed, err = pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}

		created, err = insertAvatar(ctx, tx, avatar)
		return err
	})
	if err != nil {
		return models.AvatarRow{}, nil, fmt.Errorf("replace avatar %s: %w", avatar.Username, err)
	}
	return created, removed, nil
}

// Update overwrites the row with avatar.ID and returns the updated row and the
// image key it replaced.
func (r *AvatarRepository) Update(ctx context.Context, avatar models.AvatarRow) (models.AvatarRow, string, error) {
	var (
		updated models.AvatarRow
		oldKey  string
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT image_key FROM avatars WHERE id = $1 FOR UPDATE`, avatar.ID).Scan(&oldKey)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAvatarNotFound
			}
			return err
		}

		const query = `
			UPDATE avatars
			SET username = $2,
			    image_key = $3,
			    image_content_type = $4,
			    image_size = $5,
			    updated_at = NOW()
			WHERE id = $1
			RETURNING ` + avatarColumns

		updated, err = scanAvatar(tx.QueryRow(ctx, query,
			avatar.ID,
			avatar.Username,
			avatar.ImageKey,
			avatar.ImageContentType,
			avatar.ImageSize,
		))
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAvatarNotFound) {
			return models.AvatarRow{}, "", err
		}
		return models.AvatarRow{}, "", fmt.Errorf("update avatar %d: %w", avatar.ID, err)
	}
	return updated, oldKey, nil
}

func (r *AvatarRepository) GetByID(ctx context.Context, id int64) (models.AvatarRow, error) {
	query := `SELECT ` + avatarColumns + ` FROM avatars WHERE id = $1`

	avatar, err := scanAvatar(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AvatarRow{}, ErrAvatarNotFound
		}
		return models.AvatarRow{}, err
	}
	return avatar, nil
}

// LatestByUsername returns the most recently created row for username.
func (r *AvatarRepository) LatestByUsername(ctx context.Context, username string) (models.AvatarRow, error) {
	query := `
		SELECT ` + avatarColumns + `
		FROM avatars
		WHERE username = $1
		ORDER BY id DESC
		LIMIT 1
	`

	avatar, err := scanAvatar(r.pool.QueryRow(ctx, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AvatarRow{}, ErrAvatarNotFound
		}
		return models.AvatarRow{}, err
	}
	return avatar, nil
}

func (r *AvatarRepository) List(ctx context.Context) ([]models.AvatarRow, error) {
	query := `SELECT ` + avatarColumns + ` FROM avatars ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var avatars []models.AvatarRow
	for rows.Next() {
		avatar, err := scanAvatar(rows)
		if err != nil {
			return nil, err
		}
		avatars = append(avatars, avatar)
	}
	return avatars, rows.Err()
}

// DeleteByID returns the image key of the deleted row, or ErrAvatarNotFound.
func (r *AvatarRepository) DeleteByID(ctx context.Context, id int64) (string, error) {
	var key string
	err := r.pool.QueryRow(ctx, `DELETE FROM avatars WHERE id = $1 RETURNING image_key`, id).Scan(&key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrAvatarNotFound
		}
		return "", err
	}
	return key, nil
}

// DeleteByUsername returns the image keys of the deleted rows; none is not an error.
func (r *AvatarRepository) DeleteByUsername(ctx context.Context, username string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `DELETE FROM avatars WHERE username = $1 RETURNING image_key`, username)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ExistingKeys reports which of keys are still referenced by a row.
func (r *AvatarRepository) ExistingKeys(ctx context.Context, keys []string) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `SELECT image_key FROM avatars WHERE image_key = ANY($1)`, keys)
	if err != nil {
		return nil, err
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}

	existing := make(map[string]struct{}, len(found))
	for _, key := range found {
		existing[key] = struct{}{}
	}
	return existing, nil
}
