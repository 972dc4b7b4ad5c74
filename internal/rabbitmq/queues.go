package rabbitmq

const (
	USERS_CREATED_EXCHANGE = "users.created"
	USERS_UPDATE_EXCHANGE  = "users.update"
	FORUM_EVENTS_EXCHANGE  = "forum.events"

	NOTIFICATIONS_CREATE_QUEUE = "notifications.create"
	NOTIFICATION_EMAIL_QUEUE   = "notifications.email"
)
