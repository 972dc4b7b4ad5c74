package postgres

import (
	"context"

	"github.com/UniReviews/community-service/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const GET_TOPICS_MAX_LIMIT = 50

type forumRepo struct {
	db *pgxpool.Pool
}

func newForumRepo(db *pgxpool.Pool) Forum {
	return &forumRepo{
		db: db,
	}
}

func (r *forumRepo) ListTopics(ctx context.Context, limit, offset int) ([]*model.Topic, error) {
	if limit <= 0 || limit > GET_TOPICS_MAX_LIMIT {
		limit = GET_TOPICS_MAX_LIMIT
	}

	rows, err := r.db.Query(
		ctx,
		`
		SELECT t.id, t.title, t.description, t.creator_id, t.creator_name, t.created_at, t.message_count
		FROM forum_topics t
		ORDER BY t.created_at DESC
		LIMIT $1
		OFFSET $2
		`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []*model.Topic
	for rows.Next() {
		var t model.Topic
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.CreatorID, &t.CreatorName, &t.CreatedAt, &t.MessageCount); err != nil {
			return nil, err
		}
		topics = append(topics, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return topics, nil
}

func (r *forumRepo) FindTopic(ctx context.Context, id uuid.UUID) (*model.Topic, error) {
	var t model.Topic
	if err := r.db.QueryRow(
		ctx,
		"SELECT t.id, t.title, t.description, t.creator_id, t.creator_name, t.created_at, t.message_count FROM forum_topics t WHERE t.id = $1",
		id,
	).Scan(&t.ID, &t.Title, &t.Description, &t.CreatorID, &t.CreatorName, &t.CreatedAt, &t.MessageCount); err != nil {
		return nil, err
	}

	return &t, nil
}

func (r *forumRepo) CreateTopic(ctx context.Context, topic model.Topic) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(
		ctx,
		"INSERT INTO forum_topics(id, title, description, creator_id, creator_name, created_at) VALUES($1, $2, $3, $4, $5, $6) RETURNING id",
		topic.ID, topic.Title, topic.Description, topic.CreatorID, topic.CreatorName, topic.CreatedAt,
	).Scan(&id)
	return id, err
}

func (r *forumRepo) DeleteTopic(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, "DELETE FROM forum_topics WHERE id = $1", id)
	return err
}

func (r *forumRepo) ListMessages(ctx context.Context, topicID uuid.UUID) ([]*model.Message, error) {
	rows, err := r.db.Query(
		ctx,
		`
		SELECT m.id, m.topic_id, m.content, m.author_id, m.author_name, m.created_at
		FROM forum_messages m
		WHERE m.topic_id = $1
		ORDER BY m.created_at ASC
		`,
		topicID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.TopicID, &m.Content, &m.AuthorID, &m.AuthorName, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

func (r *forumRepo) FindMessage(ctx context.Context, topicID, id uuid.UUID) (*model.Message, error) {
	var m model.Message
	if err := r.db.QueryRow(
		ctx,
		"SELECT m.id, m.topic_id, m.content, m.author_id, m.author_name, m.created_at FROM forum_messages m WHERE m.topic_id = $1 AND m.id = $2",
		topicID, id,
	).Scan(&m.ID, &m.TopicID, &m.Content, &m.AuthorID, &m.AuthorName, &m.CreatedAt); err != nil {
		return nil, err
	}

	return &m, nil
}

func (r *forumRepo) CreateMessage(ctx context.Context, msg model.Message) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(
		ctx,
		"INSERT INTO forum_messages(id, topic_id, content, author_id, author_name, created_at) VALUES($1, $2, $3, $4, $5, $6) RETURNING id",
		msg.ID, msg.TopicID, msg.Content, msg.AuthorID, msg.AuthorName, msg.CreatedAt,
	).Scan(&id)
	return id, err
}

// DeleteMessage reports whether a row was actually removed.
func (r *forumRepo) DeleteMessage(ctx context.Context, topicID, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, "DELETE FROM forum_messages WHERE topic_id = $1 AND id = $2", topicID, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *forumRepo) IncrementMessageCount(ctx context.Context, topicID uuid.UUID, delta int) error {
	_, err := r.db.Exec(ctx, "UPDATE forum_topics SET message_count = GREATEST(message_count + $1, 0) WHERE id = $2", delta, topicID)
	return err
}
