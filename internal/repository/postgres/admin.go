package postgres

import (
	"context"

	"github.com/UniReviews/community-service/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type adminRepo struct {
	db *pgxpool.Pool
}

func newAdminRepo(db *pgxpool.Pool) Admin {
	return &adminRepo{
		db: db,
	}
}

func (r *adminRepo) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM admins WHERE user_id = $1)", userID).Scan(&exists)
	return exists, err
}

func (r *adminRepo) IsSuperAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM superadmins WHERE user_id = $1)", userID).Scan(&exists)
	return exists, err
}

func (r *adminRepo) Add(ctx context.Context, admin model.Admin) error {
	_, err := r.db.Exec(
		ctx,
		"INSERT INTO admins(user_id, added_by) VALUES($1, $2) ON CONFLICT (user_id) DO UPDATE SET added_by = EXCLUDED.added_by, added_at = NOW()",
		admin.UserID, admin.AddedBy,
	)
	return err
}

func (r *adminRepo) Remove(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx, "DELETE FROM admins WHERE user_id = $1", userID)
	return err
}

func (r *adminRepo) List(ctx context.Context) ([]*model.Admin, error) {
	rows, err := r.db.Query(ctx, "SELECT a.user_id, a.added_by, a.added_at FROM admins a ORDER BY a.added_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var admins []*model.Admin
	for rows.Next() {
		var a model.Admin
		if err := rows.Scan(&a.UserID, &a.AddedBy, &a.AddedAt); err != nil {
			return nil, err
		}
		admins = append(admins, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return admins, nil
}
