package model

type ChatMessage struct {
	ID        string  `json:"id,omitempty"`
	Text      string  `json:"text"`
	UserID    string  `json:"userId"`
	Username  string  `json:"username"`
	IsAdmin   bool    `json:"isAdmin"`
	PhotoURL  *string `json:"photoURL,omitempty"`
	CreatedAt int64   `json:"createdAt"`
}
