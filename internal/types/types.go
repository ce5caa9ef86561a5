package types

import (
	"time"
)

// User is the identity resolved from a bearer credential. It is immutable
// for the lifetime of a connection.
type User struct {
	Id           string    `json:"id"`
	Username     string    `json:"username,omitempty"`
	EmailAddress string    `json:"email_address,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Profile holds the sender display fields denormalized into outbound
// message frames.
type Profile struct {
	FullName  string `json:"full_name,omitempty"`
	Username  string `json:"username,omitempty"`
	AvatarUrl string `json:"avatar_url,omitempty"`
}

type Room struct {
	Id        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	IsGroup   bool      `json:"is_group"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Message is a persisted chat message. Id and CreatedAt are assigned by the
// message store, never by the client.
type Message struct {
	Id          string    `json:"id"`
	RoomId      string    `json:"room_id"`
	SenderId    string    `json:"sender_id"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	CreatedAt   time.Time `json:"created_at"`
	Sender      Profile   `json:"sender"`
}
