package postgres

import (
	"context"
	"strconv"

	"github.com/UniReviews/community-service/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const SEARCH_USERS_MAX_LIMIT = 20

type userRepo struct {
	db *pgxpool.Pool
}

func newUserRepo(db *pgxpool.Pool) User {
	return &userRepo{
		db: db,
	}
}

func (r *userRepo) Create(ctx context.Context, user model.User) error {
	_, err := r.db.Exec(
		ctx,
		"INSERT INTO users(id, username, email, display_name, avatar_url) VALUES($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING",
		user.ID, user.Username, user.Email, user.DisplayName, user.AvatarURL,
	)
	return err
}

func (r *userRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := r.db.QueryRow(ctx, "SELECT u.id, u.username, u.email, u.display_name, u.avatar_url FROM users u WHERE u.id = $1", id).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.DisplayName,
		&user.AvatarURL,
	); err != nil {
		return nil, err
	}

	return &user, nil
}

func (r *userRepo) UpdateByID(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	query := "UPDATE users SET "
	args := []interface{}{}
	i := 1

	for column, value := range updates {
		query += (column + " = $" + strconv.Itoa(i) + ", ")
		args = append(args, value)
		i++
	}

	query = query[:len(query)-2] + " WHERE id = $" + strconv.Itoa(i) + " RETURNING id"
	args = append(args, id)

	var returnedID uuid.UUID
	err := r.db.QueryRow(ctx, query, args...).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return nil
	}
	return err
}

// UpdateDisplayName renames the user and rewrites the denormalized author names
// on their forum topics and messages in the same transaction.
func (r *userRepo) UpdateDisplayName(ctx context.Context, id uuid.UUID, displayName string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, "UPDATE users SET display_name = $1 WHERE id = $2", displayName, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	if _, err := tx.Exec(ctx, "UPDATE forum_topics SET creator_name = $1 WHERE creator_id = $2", displayName, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "UPDATE forum_messages SET author_name = $1 WHERE author_id = $2", displayName, id); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *userRepo) FindIDByDisplayName(ctx context.Context, displayName string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(
		ctx,
		"SELECT u.id FROM users u WHERE LOWER(TRIM(u.display_name)) = LOWER(TRIM($1)) LIMIT 1",
		displayName,
	).Scan(&id)
	return id, err
}

func (r *userRepo) SearchByDisplayName(ctx context.Context, term string, limit int) ([]*model.UserSearchResult, error) {
	if limit <= 0 || limit > SEARCH_USERS_MAX_LIMIT {
		limit = SEARCH_USERS_MAX_LIMIT
	}

	rows, err := r.db.Query(
		ctx,
		`
		SELECT u.id, u.display_name, u.email
		FROM users u
		WHERE u.display_name ILIKE '%' || $1 || '%'
		ORDER BY u.display_name
		LIMIT $2
		`,
		term, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*model.UserSearchResult
	for rows.Next() {
		var res model.UserSearchResult
		if err := rows.Scan(&res.ID, &res.DisplayName, &res.Email); err != nil {
			return nil, err
		}
		results = append(results, &res)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
