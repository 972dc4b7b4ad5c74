// Package realtime defines the path-addressable realtime data store the service
// keeps its notification and chat state in, plus an in-process implementation.
//
// Paths are slash separated. A collection path ("notifications",
// "userNotifications/<uid>") names a set of children; a child path is the
// collection path plus one more segment holding the child key. Child values are
// JSON documents.
package realtime

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ErrNotFound    = errors.New("realtime: not found")
	ErrInvalidPath = errors.New("realtime: invalid path")
	ErrNotObject   = errors.New("realtime: value is not an object")
)

const (
	BroadcastPath    = "notifications"
	TargetedRoot     = "userNotifications"
	ReadStatusRoot   = "userNotificationStatus"
	ChatMessagesPath = "chat/messages"
	ChatStatsPath    = "chat/stats"
)

func TargetedPath(userID string) string {
	return TargetedRoot + "/" + userID
}

func ReadStatusPath(userID string) string {
	return ReadStatusRoot + "/" + userID
}

func Join(parts ...string) string {
	return strings.Join(parts, "/")
}

// Split separates a child path into its collection path and key.
func Split(path string) (collection string, key string, err error) {
	if err := ValidatePath(path); err != nil {
		return "", "", err
	}
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", "", ErrInvalidPath
	}
	return path[:i], path[i+1:], nil
}

// ValidatePath rejects empty segments and characters redis treats as glob patterns.
func ValidatePath(path string) error {
	if path == "" {
		return ErrInvalidPath
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || strings.ContainsAny(seg, " \t\n*?[]") {
			return ErrInvalidPath
		}
	}
	return nil
}

type Child struct {
	Key   string
	Value json.RawMessage
}

// Snapshot is the content of a collection at one moment, children ordered by key.
type Snapshot struct {
	Path     string
	Children []Child
}

func (s Snapshot) Exists() bool {
	return len(s.Children) > 0
}

// Listener receives the full collection every time it changes.
type Listener func(Snapshot)

type Store interface {
	// Subscribe delivers the current snapshot of the collection at path, then a
	// fresh snapshot after every change to it, until the returned func is called.
	Subscribe(ctx context.Context, path string, fn Listener) (func(), error)
	Get(ctx context.Context, path string) (Snapshot, error)
	GetChild(ctx context.Context, path string) (json.RawMessage, error)
	// Push adds value under a new creation-ordered key and returns the key.
	Push(ctx context.Context, path string, value any) (string, error)
	Set(ctx context.Context, path string, value any) error
	// Update merges fields into the object at path, creating it when absent.
	Update(ctx context.Context, path string, fields map[string]any) error
	// MultiUpdate applies Update to several child paths as one atomic write.
	MultiUpdate(ctx context.Context, updates map[string]map[string]any) error
	Remove(ctx context.Context, path string) error
	// Increment atomically adds delta to the numeric value at path.
	Increment(ctx context.Context, path string, delta int64) (int64, error)
	// Collections lists collection paths that start with prefix.
	Collections(ctx context.Context, prefix string) ([]string, error)
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewKey returns a key that sorts after every key generated earlier in this process.
func NewKey(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Merge applies fields on top of the JSON object current, which may be nil.
func Merge(current json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	obj := map[string]any{}
	if len(current) > 0 {
		if err := json.Unmarshal(current, &obj); err != nil {
			return nil, ErrNotObject
		}
		if obj == nil {
			obj = map[string]any{}
		}
	}
	for k, v := range fields {
		obj[k] = v
	}
	return json.Marshal(obj)
}

func sortChildren(children []Child) {
	sort.Slice(children, func(i, j int) bool {
		return children[i].Key < children[j].Key
	})
}
