package repository

import (
	"github.com/UniReviews/community-service/internal/repository/postgres"
	"github.com/UniReviews/community-service/internal/repository/realtime"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	Postgres *postgres.PGRepo
	Realtime realtime.Store
}

func New(db *pgxpool.Pool, store realtime.Store) *Repository {
	return &Repository{
		Postgres: postgres.New(db),
		Realtime: store,
	}
}
