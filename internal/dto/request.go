package dto

import "github.com/google/uuid"

type CreateNotification struct {
	Title             string     `json:"title"`
	Message           string     `json:"message"`
	Type              string     `json:"type"`
	TargetUserID      *uuid.UUID `json:"target_user_id"`
	TargetDisplayName string     `json:"target_display_name"`
}

type CreateTopic struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type CreateMessage struct {
	Content string `json:"content"`
}

type SendChatMessage struct {
	Text     string  `json:"text"`
	PhotoURL *string `json:"photo_url"`
}

type UpdateProfile struct {
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

type AddAdmin struct {
	UserID uuid.UUID `json:"user_id"`
}
