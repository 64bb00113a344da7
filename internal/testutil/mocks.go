package testutil

import (
	"context"

	"github.com/dgellow/authcallback/internal/cookie"
	"github.com/dgellow/authcallback/internal/idp"
	"github.com/dgellow/authcallback/internal/storage"
	"github.com/stretchr/testify/mock"
	"golang.org/x/oauth2"
)

// MockProvider implements idp.Provider
type MockProvider struct {
	mock.Mock
}

var _ idp.Provider = (*MockProvider)(nil)

func (m *MockProvider) Type() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockProvider) AuthURL(state string, opts ...oauth2.AuthCodeOption) string {
	args := m.Called(state, opts)
	return args.String(0)
}

func (m *MockProvider) ExchangeCode(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	args := m.Called(ctx, code, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth2.Token), args.Error(1)
}

func (m *MockProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*idp.Identity, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*idp.Identity), args.Error(1)
}

// MockExchanger implements the callback handler's exchanger
type MockExchanger struct {
	mock.Mock
}

func (m *MockExchanger) ExchangeCodeForSession(ctx context.Context, code string, cookies cookie.Store) error {
	args := m.Called(ctx, code, cookies)
	return args.Error(0)
}

// MockCookieStore implements cookie.Store
type MockCookieStore struct {
	mock.Mock
}

var _ cookie.Store = (*MockCookieStore)(nil)

func (m *MockCookieStore) Get(name string) (string, bool) {
	args := m.Called(name)
	return args.String(0), args.Bool(1)
}

func (m *MockCookieStore) Set(name, value string, opts cookie.Options) {
	m.Called(name, value, opts)
}

func (m *MockCookieStore) Remove(name string, opts cookie.Options) {
	m.Called(name, opts)
}

// MockRecorder records sign-ins
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) UpsertUser(ctx context.Context, provider, subject, email string) (*storage.UserRecord, error) {
	args := m.Called(ctx, provider, subject, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.UserRecord), args.Error(1)
}
