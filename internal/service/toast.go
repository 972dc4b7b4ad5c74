package service

import (
	"sync"
	"time"

	"github.com/UniReviews/community-service/internal/model"
)

const DefaultToastTTL = 5 * time.Second

// ToastTrigger decides which feed entries deserve a toast. It only looks at the
// newest entry of each feed, so when several notifications land between two
// feeds only the newest one is toasted. It is not safe for concurrent use.
type ToastTrigger struct {
	shown map[model.NotificationRef]struct{}
}

func NewToastTrigger() *ToastTrigger {
	return &ToastTrigger{
		shown: make(map[model.NotificationRef]struct{}),
	}
}

func (t *ToastTrigger) Observe(feed []model.Notification) (model.Notification, bool) {
	if len(feed) == 0 {
		return model.Notification{}, false
	}

	newest := feed[0]
	if _, ok := t.shown[newest.Ref()]; ok {
		return model.Notification{}, false
	}
	t.shown[newest.Ref()] = struct{}{}
	return newest, true
}

// Reset forgets what was shown; called on logout and reconnect.
func (t *ToastTrigger) Reset() {
	clear(t.shown)
}

type toastEntry struct {
	notification model.Notification
	token        uint64
	timer        *time.Timer
}

// ToastStack holds the toasts currently on screen. Each one leaves by itself
// after ttl or earlier through Dismiss. onChange receives the visible toasts,
// oldest first, after every change.
type ToastStack struct {
	ttl      time.Duration
	onChange func([]model.Notification)

	mu      sync.Mutex
	entries []*toastEntry
	nextTok uint64
}

func NewToastStack(ttl time.Duration, onChange func([]model.Notification)) *ToastStack {
	if ttl <= 0 {
		ttl = DefaultToastTTL
	}
	return &ToastStack{
		ttl:      ttl,
		onChange: onChange,
	}
}

func (s *ToastStack) Push(n model.Notification) {
	s.mu.Lock()
	for _, e := range s.entries {
		if e.notification.Ref() == n.Ref() {
			s.mu.Unlock()
			return
		}
	}
	s.nextTok++
	e := &toastEntry{notification: n, token: s.nextTok}
	ref, token := n.Ref(), e.token
	e.timer = time.AfterFunc(s.ttl, func() {
		s.expire(ref, token)
	})
	s.entries = append(s.entries, e)
	visible := s.visibleLocked()
	s.mu.Unlock()

	s.changed(visible)
}

// Dismiss removes a toast before its time. It reports whether it was visible.
func (s *ToastStack) Dismiss(ref model.NotificationRef) bool {
	return s.remove(func(e *toastEntry) bool { return e.notification.Ref() == ref })
}

func (s *ToastStack) expire(ref model.NotificationRef, token uint64) {
	s.remove(func(e *toastEntry) bool { return e.notification.Ref() == ref && e.token == token })
}

func (s *ToastStack) remove(match func(*toastEntry) bool) bool {
	s.mu.Lock()
	for i, e := range s.entries {
		if !match(e) {
			continue
		}
		e.timer.Stop()
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
		visible := s.visibleLocked()
		s.mu.Unlock()

		s.changed(visible)
		return true
	}
	s.mu.Unlock()
	return false
}

func (s *ToastStack) Visible() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleLocked()
}

// Clear drops every toast without calling onChange.
func (s *ToastStack) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		e.timer.Stop()
	}
	s.entries = nil
}

func (s *ToastStack) visibleLocked() []model.Notification {
	visible := make([]model.Notification, 0, len(s.entries))
	for _, e := range s.entries {
		visible = append(visible, e.notification)
	}
	return visible
}

func (s *ToastStack) changed(visible []model.Notification) {
	if s.onChange != nil {
		s.onChange(visible)
	}
}
