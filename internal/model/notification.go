package model

type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationWarning NotificationType = "warning"
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationInfo, NotificationWarning, NotificationSuccess, NotificationError:
		return true
	}
	return false
}

// Partition tells where a notification lives and therefore where its read state is kept.
type Partition string

const (
	// PartitionBroadcast notifications are visible to everyone; read state lives in the per-user overlay.
	PartitionBroadcast Partition = "broadcast"
	// PartitionTargeted notifications live under one recipient and carry their own read flag.
	PartitionTargeted Partition = "targeted"
)

func (p Partition) Valid() bool {
	return p == PartitionBroadcast || p == PartitionTargeted
}

// NotificationRef identifies a notification inside the merged feed.
// IDs are only unique within a partition, so both parts are needed.
type NotificationRef struct {
	Partition Partition `json:"partition"`
	ID        string    `json:"id"`
}

func Broadcast(id string) NotificationRef {
	return NotificationRef{Partition: PartitionBroadcast, ID: id}
}

func Targeted(id string) NotificationRef {
	return NotificationRef{Partition: PartitionTargeted, ID: id}
}

func (r NotificationRef) String() string {
	return string(r.Partition) + ":" + r.ID
}

type Notification struct {
	ID             string           `json:"id"`
	Partition      Partition        `json:"partition"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	Type           NotificationType `json:"type"`
	CreatedAt      int64            `json:"createdAt"`
	CreatedBy      string           `json:"createdBy"`
	CreatedByEmail string           `json:"createdByEmail,omitempty"`
	Read           bool             `json:"read"`
	ReadAt         int64            `json:"readAt,omitempty"`
}

func (n Notification) Ref() NotificationRef {
	return NotificationRef{Partition: n.Partition, ID: n.ID}
}

// NotificationRecord is the stored shape of a notification. Broadcast records never
// carry Read; targeted records are written with Read set to false.
type NotificationRecord struct {
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	Type           NotificationType `json:"type"`
	CreatedAt      int64            `json:"createdAt"`
	CreatedBy      string           `json:"createdBy"`
	CreatedByEmail string           `json:"createdByEmail,omitempty"`
	Read           *bool            `json:"read,omitempty"`
	ReadAt         int64            `json:"readAt,omitempty"`
}
