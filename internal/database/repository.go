package database

import "time"

type ChatRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (Account, error)
	GetAccountById(accountId string) (Account, error)
	GetAccountByEmail(email string) (Account, error)
	GetProfile(accountId string) (Profile, error)
	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoomById(roomId string) (Room, error)
	ListRoomsForAccount(accountId string) ([]Room, error)
	IsParticipant(roomId, accountId string) (bool, error)
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessages(roomId string, before time.Time, limit int) ([]Message, error)
}
