package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/UniReviews/community-service/internal/repository/realtime"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const maxTxRetries = 10

// Store keeps every realtime collection in one redis hash (field = child key,
// value = JSON) and announces changes on a per-collection pub/sub channel, so
// every instance subscribed to a collection re-reads it after each write.
type Store struct {
	logger *zap.Logger
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

func NewStore(logger *zap.Logger, rdb *redis.Client, prefix string) *Store {
	return &Store{
		logger: logger,
		rdb:    rdb,
		prefix: prefix,
		now:    time.Now,
	}
}

var _ realtime.Store = (*Store)(nil)

func (s *Store) hashKey(collection string) string {
	return StoreCollectionKey(s.prefix, collection)
}

func (s *Store) channel(collection string) string {
	return StoreChangesChannel(s.prefix, collection)
}

func (s *Store) Subscribe(ctx context.Context, path string, fn realtime.Listener) (func(), error) {
	if err := realtime.ValidatePath(path); err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	pubsub := s.rdb.Subscribe(ctx, s.channel(path))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		pubsub.Close()
		return nil, err
	}
	msgs := pubsub.Channel()

	go func() {
		s.deliver(subCtx, path, fn)
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				s.deliver(subCtx, path, fn)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			if err := pubsub.Close(); err != nil {
				s.logger.Sugar().Errorf("failed to close subscription(%s): %s", path, err.Error())
			}
		})
	}, nil
}

func (s *Store) deliver(ctx context.Context, path string, fn realtime.Listener) {
	snap, err := s.Get(ctx, path)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Sugar().Errorf("failed to read collection(%s) for subscriber: %s", path, err.Error())
		}
		return
	}
	if ctx.Err() != nil {
		return
	}
	fn(snap)
}

func (s *Store) Get(ctx context.Context, path string) (realtime.Snapshot, error) {
	fields, err := s.rdb.HGetAll(ctx, s.hashKey(path)).Result()
	if err != nil {
		return realtime.Snapshot{}, err
	}

	snap := realtime.Snapshot{Path: path}
	for k, v := range fields {
		snap.Children = append(snap.Children, realtime.Child{Key: k, Value: json.RawMessage(v)})
	}
	sort.Slice(snap.Children, func(i, j int) bool {
		return snap.Children[i].Key < snap.Children[j].Key
	})
	return snap, nil
}

func (s *Store) GetChild(ctx context.Context, path string) (json.RawMessage, error) {
	coll, key, err := realtime.Split(path)
	if err != nil {
		return nil, err
	}

	v, err := s.rdb.HGet(ctx, s.hashKey(coll), key).Bytes()
	if err == redis.Nil {
		return nil, realtime.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Store) Push(ctx context.Context, path string, value any) (string, error) {
	key := realtime.NewKey(s.now())
	if err := s.Set(ctx, realtime.Join(path, key), value); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Store) Set(ctx context.Context, path string, value any) error {
	coll, key, err := realtime.Split(path)
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.hashKey(coll), key, data)
		pipe.Publish(ctx, s.channel(coll), key)
		return nil
	})
	return err
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	return s.MultiUpdate(ctx, map[string]map[string]any{path: fields})
}

// MultiUpdate reads every target under WATCH and writes all merged values in one
// MULTI/EXEC, retrying when another client touched a watched hash in between.
func (s *Store) MultiUpdate(ctx context.Context, updates map[string]map[string]any) error {
	type target struct {
		coll, key string
		fields    map[string]any
	}
	targets := make([]target, 0, len(updates))
	watched := map[string]struct{}{}
	for path, fields := range updates {
		coll, key, err := realtime.Split(path)
		if err != nil {
			return err
		}
		targets = append(targets, target{coll, key, fields})
		watched[coll] = struct{}{}
	}
	if len(targets) == 0 {
		return nil
	}
	keys := make([]string, 0, len(watched))
	for coll := range watched {
		keys = append(keys, s.hashKey(coll))
	}

	txf := func(tx *redis.Tx) error {
		merged := make([][]byte, len(targets))
		for i, t := range targets {
			current, err := tx.HGet(ctx, s.hashKey(t.coll), t.key).Bytes()
			if err != nil && err != redis.Nil {
				return err
			}
			v, err := realtime.Merge(current, t.fields)
			if err != nil {
				return err
			}
			merged[i] = v
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, t := range targets {
				pipe.HSet(ctx, s.hashKey(t.coll), t.key, merged[i])
			}
			for coll := range watched {
				pipe.Publish(ctx, s.channel(coll), "")
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, keys...)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return redis.TxFailedErr
}

func (s *Store) Remove(ctx context.Context, path string) error {
	coll, key, err := realtime.Split(path)
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.hashKey(coll), key)
		pipe.Publish(ctx, s.channel(coll), key)
		return nil
	})
	return err
}

func (s *Store) Increment(ctx context.Context, path string, delta int64) (int64, error) {
	coll, key, err := realtime.Split(path)
	if err != nil {
		return 0, err
	}

	var incr *redis.IntCmd
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, s.hashKey(coll), key, delta)
		pipe.Publish(ctx, s.channel(coll), key)
		return nil
	})
	if err != nil {
		if strings.Contains(err.Error(), "not an integer") {
			return 0, realtime.ErrNotObject
		}
		return 0, err
	}
	return incr.Val(), nil
}

func (s *Store) Collections(ctx context.Context, prefix string) ([]string, error) {
	base := s.hashKey("")
	iter := s.rdb.Scan(ctx, 0, base+prefix+"*", 100).Iterator()

	var out []string
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), base))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
