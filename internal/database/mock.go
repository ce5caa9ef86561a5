package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockChatRepository) GetAccountById(accountId string) (Account, error) {
	args := m.Called(accountId)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockChatRepository) GetAccountByEmail(email string) (Account, error) {
	args := m.Called(email)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockChatRepository) GetProfile(accountId string) (Profile, error) {
	args := m.Called(accountId)
	return args.Get(0).(Profile), args.Error(1)
}
func (m *MockChatRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) GetRoomById(roomId string) (Room, error) {
	args := m.Called(roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) ListRoomsForAccount(accountId string) ([]Room, error) {
	args := m.Called(accountId)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockChatRepository) IsParticipant(roomId, accountId string) (bool, error) {
	args := m.Called(roomId, accountId)
	return args.Bool(0), args.Error(1)
}
func (m *MockChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) GetMessages(roomId string, before time.Time, limit int) ([]Message, error) {
	args := m.Called(roomId, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}
