package database

import "time"

type Account struct {
	Id           string
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Profile struct {
	AccountId string
	FullName  string
	Username  string
	AvatarUrl string
}

type Room struct {
	Id        string
	Name      string
	IsGroup   bool
	CreatedBy string
	CreatedAt time.Time
}

// Participant is a (room, user) membership tuple. The gateway only ever
// reads these rows.
type Participant struct {
	RoomId    string
	AccountId string
	CreatedAt time.Time
}

type Message struct {
	Id          string
	RoomId      string
	SenderId    string
	Content     string
	MessageType string
	CreatedAt   time.Time
	// Sender display fields joined from profiles at read time.
	Sender Profile
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
	FullName     string
}

type CreateRoomParams struct {
	Id           string
	Name         string
	IsGroup      bool
	CreatedBy    string
	Participants []string
}

type CreateMessageParams struct {
	RoomId      string
	SenderId    string
	Content     string
	MessageType string
}
