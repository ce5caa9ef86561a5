package auth

import (
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/tbuckley/go-chat-gateway/internal/types"
)

type MockSessionManager struct {
	mock.Mock
}

func (m *MockSessionManager) Verify(token string) (types.User, error) {
	args := m.Called(token)
	return args.Get(0).(types.User), args.Error(1)
}

func (m *MockSessionManager) Issue(user types.User, exp time.Duration) (string, error) {
	args := m.Called(user, exp)
	return args.String(0), args.Error(1)
}
