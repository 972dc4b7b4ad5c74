package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/UniReviews/community-service/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// testPool connects to POSTGRES_TEST_DSN and applies the schema. The tests that
// need a database are skipped without it.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(db.Close)

	schema, err := os.ReadFile("../../../migrations/0001_init.sql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if _, err := db.Exec(ctx, string(schema)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

func TestForumRepoKeepsIDAndCreatedAt(t *testing.T) {
	db := testPool(t)
	ctx := context.Background()
	r := newForumRepo(db)

	createdAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	topic := model.Topic{
		ID:          uuid.New(),
		Title:       "Exams",
		CreatorID:   uuid.New(),
		CreatorName: "Ana",
		CreatedAt:   createdAt,
	}
	t.Cleanup(func() { _ = r.DeleteTopic(ctx, topic.ID) })

	id, err := r.CreateTopic(ctx, topic)
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	if id != topic.ID {
		t.Errorf("CreateTopic id = %s, want %s", id, topic.ID)
	}
	got, err := r.FindTopic(ctx, topic.ID)
	if err != nil {
		t.Fatalf("FindTopic: %v", err)
	}
	if !got.CreatedAt.Equal(createdAt) {
		t.Errorf("topic CreatedAt = %v, want %v", got.CreatedAt, createdAt)
	}

	msg := model.Message{
		ID:         uuid.New(),
		TopicID:    topic.ID,
		Content:    "hello",
		AuthorID:   uuid.New(),
		AuthorName: "Ben",
		CreatedAt:  createdAt.Add(time.Minute),
	}
	msgID, err := r.CreateMessage(ctx, msg)
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if msgID != msg.ID {
		t.Errorf("CreateMessage id = %s, want %s", msgID, msg.ID)
	}
	stored, err := r.FindMessage(ctx, topic.ID, msg.ID)
	if err != nil {
		t.Fatalf("FindMessage: %v", err)
	}
	if !stored.CreatedAt.Equal(msg.CreatedAt) {
		t.Errorf("message CreatedAt = %v, want %v", stored.CreatedAt, msg.CreatedAt)
	}
}

func TestForumRepoDeleteMessageReportsRemoval(t *testing.T) {
	db := testPool(t)
	ctx := context.Background()
	r := newForumRepo(db)

	msg := model.Message{
		ID:         uuid.New(),
		TopicID:    uuid.New(),
		Content:    "bye",
		AuthorID:   uuid.New(),
		AuthorName: "Ana",
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
	if _, err := r.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	deleted, err := r.DeleteMessage(ctx, msg.TopicID, msg.ID)
	if err != nil || !deleted {
		t.Fatalf("first DeleteMessage = (%v, %v), want (true, nil)", deleted, err)
	}
	deleted, err = r.DeleteMessage(ctx, msg.TopicID, msg.ID)
	if err != nil || deleted {
		t.Errorf("second DeleteMessage = (%v, %v), want (false, nil)", deleted, err)
	}
}
