package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/UniReviews/community-service/internal/model"
	"github.com/UniReviews/community-service/internal/repository/realtime"
	"github.com/UniReviews/community-service/internal/session"
	"go.uber.org/zap"
)

func decodeNotifications(logger *zap.Logger, snap realtime.Snapshot, partition model.Partition) []model.Notification {
	notifications := make([]model.Notification, 0, len(snap.Children))
	for _, child := range snap.Children {
		var rec model.NotificationRecord
		if err := json.Unmarshal(child.Value, &rec); err != nil {
			logger.Sugar().Errorf("failed to decode notification(%s/%s): %s", snap.Path, child.Key, err.Error())
			continue
		}

		n := model.Notification{
			ID:             child.Key,
			Partition:      partition,
			Title:          rec.Title,
			Message:        rec.Message,
			Type:           rec.Type,
			CreatedAt:      rec.CreatedAt,
			CreatedBy:      rec.CreatedBy,
			CreatedByEmail: rec.CreatedByEmail,
		}
		if partition == model.PartitionTargeted {
			n.Read = rec.Read != nil && *rec.Read
			n.ReadAt = rec.ReadAt
		}
		notifications = append(notifications, n)
	}
	return notifications
}

func decodeReadStatus(logger *zap.Logger, snap realtime.Snapshot) map[string]model.ReadStatus {
	overlay := make(map[string]model.ReadStatus, len(snap.Children))
	for _, child := range snap.Children {
		var rs model.ReadStatus
		if err := json.Unmarshal(child.Value, &rs); err != nil {
			logger.Sugar().Errorf("failed to decode read status(%s/%s): %s", snap.Path, child.Key, err.Error())
			continue
		}
		rs.NotificationID = child.Key
		overlay[child.Key] = rs
	}
	return overlay
}

// mergeFeed resolves broadcast read state from the overlay, appends the targeted
// notifications as they are and sorts newest first. Equal timestamps fall back
// to the store key, newest first, then broadcast before targeted.
func mergeFeed(broadcast, targeted []model.Notification, overlay map[string]model.ReadStatus) []model.Notification {
	feed := make([]model.Notification, 0, len(broadcast)+len(targeted))

	for _, n := range broadcast {
		rs, ok := overlay[n.ID]
		n.Read = ok && rs.Read
		n.ReadAt = 0
		if n.Read {
			n.ReadAt = rs.ReadAt
		}
		feed = append(feed, n)
	}
	feed = append(feed, targeted...)

	sortFeed(feed)
	return feed
}

func sortFeed(feed []model.Notification) {
	sort.SliceStable(feed, func(i, j int) bool {
		a, b := feed[i], feed[j]
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt > b.CreatedAt
		}
		if a.ID != b.ID {
			return a.ID > b.ID
		}
		return a.Partition == model.PartitionBroadcast && b.Partition != model.PartitionBroadcast
	})
}

type feedPart int

const (
	partBroadcast feedPart = iota
	partTargeted
	partReadStatus
	partCount
)

// feedSubscription is the merged view of one user's three partitions. It emits
// nothing until every partition has reported (or failed to subscribe) once, then
// emits the whole merged feed after every change of any partition.
type feedSubscription struct {
	logger *zap.Logger
	fn     func([]model.Notification)

	mu        sync.Mutex
	closed    bool
	settled   [partCount]bool
	delivered bool
	broadcast []model.Notification
	targeted  []model.Notification
	overlay   map[string]model.ReadStatus
	unsubs    []func()
}

func (f *feedSubscription) apply(part feedPart, snap realtime.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	switch part {
	case partBroadcast:
		f.broadcast = decodeNotifications(f.logger, snap, model.PartitionBroadcast)
	case partTargeted:
		f.targeted = decodeNotifications(f.logger, snap, model.PartitionTargeted)
	case partReadStatus:
		f.overlay = decodeReadStatus(f.logger, snap)
	}
	f.settled[part] = true
	f.delivered = true
	f.emitLocked()
}

func (f *feedSubscription) fail(part feedPart) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.settled[part] = true
	if f.delivered {
		f.emitLocked()
	}
}

func (f *feedSubscription) emitLocked() {
	for _, ok := range f.settled {
		if !ok {
			return
		}
	}
	f.fn(mergeFeed(f.broadcast, f.targeted, f.overlay))
}

func (f *feedSubscription) close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	unsubs := f.unsubs
	f.unsubs = nil
	f.mu.Unlock()

	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
}

type FeedState int

const (
	FeedLoggedOut FeedState = iota
	FeedSubscribing
	FeedActive
	FeedTornDown
)

func (s FeedState) String() string {
	switch s {
	case FeedLoggedOut:
		return "logged_out"
	case FeedSubscribing:
		return "subscribing"
	case FeedActive:
		return "active"
	case FeedTornDown:
		return "torn_down"
	}
	return "unknown"
}

// FeedLifecycle couples one feed subscription to the session of a client.
//
//	LoggedOut --login--> Subscribing --subscribed--> Active
//	Active --login as someone else--> Subscribing
//	Active --logout--> LoggedOut
//	any --Close--> TornDown (terminal)
//
// Every session change releases the previous subscription as a whole and
// clears the toast history.
type FeedLifecycle struct {
	notifications Notification
	toasts        *ToastTrigger
	onFeed        func([]model.Notification)
	onToast       func(model.Notification)

	mu          sync.Mutex
	state       FeedState
	gen         uint64
	session     *session.Session
	unsubscribe func()
}

func NewFeedLifecycle(notifications Notification, onFeed func([]model.Notification), onToast func(model.Notification)) *FeedLifecycle {
	return &FeedLifecycle{
		notifications: notifications,
		toasts:        NewToastTrigger(),
		onFeed:        onFeed,
		onToast:       onToast,
		state:         FeedLoggedOut,
	}
}

func (l *FeedLifecycle) State() FeedState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *FeedLifecycle) Session() *session.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// SessionChanged handles a login (s != nil) or a logout (s == nil).
func (l *FeedLifecycle) SessionChanged(ctx context.Context, s *session.Session) {
	l.mu.Lock()
	if l.state == FeedTornDown {
		l.mu.Unlock()
		return
	}
	old := l.unsubscribe
	l.unsubscribe = nil
	l.gen++
	gen := l.gen
	l.toasts.Reset()
	l.session = s
	if s == nil {
		l.state = FeedLoggedOut
	} else {
		l.state = FeedSubscribing
	}
	l.mu.Unlock()

	if old != nil {
		old()
	}
	if s == nil {
		return
	}

	unsubscribe := l.notifications.Subscribe(session.WithSession(ctx, s), func(feed []model.Notification) {
		l.deliver(gen, feed)
	})

	l.mu.Lock()
	if l.gen != gen {
		l.mu.Unlock()
		unsubscribe()
		return
	}
	l.unsubscribe = unsubscribe
	l.state = FeedActive
	l.mu.Unlock()
}

func (l *FeedLifecycle) deliver(gen uint64, feed []model.Notification) {
	l.mu.Lock()
	if l.gen != gen {
		l.mu.Unlock()
		return
	}
	toast, ok := l.toasts.Observe(feed)
	l.mu.Unlock()

	if l.onFeed != nil {
		l.onFeed(feed)
	}
	if ok && l.onToast != nil {
		l.onToast(toast)
	}
}

// Close tears the subscription down for good.
func (l *FeedLifecycle) Close() {
	l.mu.Lock()
	if l.state == FeedTornDown {
		l.mu.Unlock()
		return
	}
	old := l.unsubscribe
	l.unsubscribe = nil
	l.gen++
	l.state = FeedTornDown
	l.session = nil
	l.toasts.Reset()
	l.mu.Unlock()

	if old != nil {
		old()
	}
}
