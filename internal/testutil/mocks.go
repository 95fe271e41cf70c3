package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"golang.org/x/oauth2"
)

// MockProvider is a testify mock of idp.Provider
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Type() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockProvider) Host() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockProvider) AuthURL(state string) string {
	args := m.Called(state)
	return args.String(0)
}

func (m *MockProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth2.Token), args.Error(1)
}

// MockStateStore is a testify mock of storage.StateStore
type MockStateStore struct {
	mock.Mock
}

func (m *MockStateStore) Consume(ctx context.Context, state string, expiresAt time.Time) (bool, error) {
	args := m.Called(ctx, state, expiresAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockStateStore) CleanupExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockStateStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
