package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/foliosite/siterelay/internal/crypto"
	"github.com/foliosite/siterelay/internal/idp"
	"github.com/foliosite/siterelay/internal/storage"
	"github.com/foliosite/siterelay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testIssuer(t *testing.T) *crypto.StateIssuer {
	t.Helper()
	key, err := crypto.DeriveKey([]byte("0123456789abcdef0123456789abcdef"), "decap-oauth-state")
	require.NoError(t, err)
	return crypto.NewStateIssuer(key, 10*time.Minute)
}

func newMockProvider() *testutil.MockProvider {
	provider := &testutil.MockProvider{}
	provider.On("Type").Return("github").Maybe()
	return provider
}

func TestAuthorizer_Begin(t *testing.T) {
	provider := idp.NewGitHubProvider("client-id", "client-secret", "https://example.com/api/decap/callback", "", []string{"repo", "user"}, nil)
	authorizer := NewAuthorizer(provider, testIssuer(t), true)

	first, err := authorizer.Begin(false)
	require.NoError(t, err)
	second, err := authorizer.Begin(false)
	require.NoError(t, err)

	assert.NotEqual(t, first.State, second.State)
	assert.Equal(t, "github", first.Provider)
	assert.False(t, first.DryRun)

	redirect, err := url.Parse(first.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "github.com", redirect.Host)
	assert.Equal(t, first.State, redirect.Query().Get("state"))
	assert.Equal(t, "client-id", redirect.Query().Get("client_id"))
}

func TestAuthorizer_DryRun(t *testing.T) {
	provider := idp.NewGitHubProvider("client-id", "client-secret", "https://example.com/api/decap/callback", "", nil, nil)
	authorizer := NewAuthorizer(provider, testIssuer(t), true)

	auth, err := authorizer.Begin(true)
	require.NoError(t, err)
	assert.True(t, auth.DryRun)
	assert.NotEmpty(t, auth.State)
	assert.Contains(t, auth.RedirectURL, url.QueryEscape(auth.State))
}

func TestAuthorizer_MissingConfiguration(t *testing.T) {
	provider := idp.NewGitHubProvider("", "", "", "", nil, nil)
	authorizer := NewAuthorizer(provider, testIssuer(t), false)

	auth, err := authorizer.Begin(false)
	assert.Nil(t, auth)

	relayErr := AsError(err)
	assert.Equal(t, KindMissingConfiguration, relayErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, relayErr.Status())
}

func TestExchanger_Success(t *testing.T) {
	issuer := testIssuer(t)
	state, err := issuer.Issue()
	require.NoError(t, err)

	provider := newMockProvider()
	token := (&oauth2.Token{AccessToken: "gho_token", TokenType: "bearer"}).WithExtra(map[string]any{"scope": "repo,user"})
	provider.On("ExchangeCode", mock.Anything, "good-code").Return(token, nil).Once()

	exchanger := NewExchanger(provider, issuer, storage.NewMemoryStorage(), time.Second, true)
	result, err := exchanger.Exchange(context.Background(), ExchangeRequest{Code: "good-code", State: state, CookieState: state})
	require.NoError(t, err)

	assert.Equal(t, "gho_token", result.Token)
	assert.Equal(t, "github", result.Provider)
	assert.Equal(t, "repo,user", result.Scope)
	provider.AssertExpectations(t)
}

func TestExchanger_StateRejectedBeforeProviderCall(t *testing.T) {
	issuer := testIssuer(t)
	issued, err := issuer.Issue()
	require.NoError(t, err)
	forged, err := testIssuer(t).Issue()
	require.NoError(t, err)

	tests := []struct {
		name   string
		state  string
		cookie string
		kind   Kind
		status int
	}{
		{name: "no cookie", state: issued, cookie: "", kind: KindMissingState, status: http.StatusUnauthorized},
		{name: "no state", state: "", cookie: issued, kind: KindMissingState, status: http.StatusUnauthorized},
		{name: "never issued", state: forged, cookie: issued, kind: KindBadState, status: http.StatusBadRequest},
		{name: "garbage", state: "not-a-state", cookie: "not-a-state", kind: KindBadState, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newMockProvider()
			store := &testutil.MockStateStore{}
			exchanger := NewExchanger(provider, issuer, store, time.Second, true)

			_, err := exchanger.Exchange(context.Background(), ExchangeRequest{Code: "code", State: tt.state, CookieState: tt.cookie})
			require.Error(t, err)

			relayErr := AsError(err)
			assert.Equal(t, tt.kind, relayErr.Kind)
			assert.Equal(t, tt.status, relayErr.Status())
			provider.AssertNotCalled(t, "ExchangeCode", mock.Anything, mock.Anything)
			store.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestExchanger_ReplayRejected(t *testing.T) {
	issuer := testIssuer(t)
	state, err := issuer.Issue()
	require.NoError(t, err)

	provider := newMockProvider()
	provider.On("ExchangeCode", mock.Anything, "code").Return(&oauth2.Token{AccessToken: "gho_token"}, nil).Once()

	exchanger := NewExchanger(provider, issuer, storage.NewMemoryStorage(), time.Second, true)
	req := ExchangeRequest{Code: "code", State: state, CookieState: state}

	_, err = exchanger.Exchange(context.Background(), req)
	require.NoError(t, err)

	_, err = exchanger.Exchange(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, KindBadState, AsError(err).Kind)
	provider.AssertNumberOfCalls(t, "ExchangeCode", 1)
}

func TestExchanger_MissingCode(t *testing.T) {
	issuer := testIssuer(t)
	state, err := issuer.Issue()
	require.NoError(t, err)

	provider := newMockProvider()
	exchanger := NewExchanger(provider, issuer, storage.NewMemoryStorage(), time.Second, true)

	_, err = exchanger.Exchange(context.Background(), ExchangeRequest{State: state, CookieState: state})
	assert.Equal(t, KindBadRequest, AsError(err).Kind)
	provider.AssertNotCalled(t, "ExchangeCode", mock.Anything, mock.Anything)
}

func TestExchanger_MissingConfiguration(t *testing.T) {
	provider := newMockProvider()
	exchanger := NewExchanger(provider, testIssuer(t), storage.NewMemoryStorage(), time.Second, false)

	_, err := exchanger.Exchange(context.Background(), ExchangeRequest{Code: "c", State: "s", CookieState: "s"})
	assert.Equal(t, KindMissingConfiguration, AsError(err).Kind)
}

func TestExchanger_StorageFailureFailsClosed(t *testing.T) {
	issuer := testIssuer(t)
	state, err := issuer.Issue()
	require.NoError(t, err)

	provider := newMockProvider()
	store := &testutil.MockStateStore{}
	store.On("Consume", mock.Anything, state, mock.Anything).Return(false, errors.New("unavailable"))

	exchanger := NewExchanger(provider, issuer, store, time.Second, true)
	_, err = exchanger.Exchange(context.Background(), ExchangeRequest{Code: "c", State: state, CookieState: state})

	assert.Equal(t, KindServerError, AsError(err).Kind)
	provider.AssertNotCalled(t, "ExchangeCode", mock.Anything, mock.Anything)
}

func TestExchanger_ErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		kind        Kind
		status      int
		reason      string
		description string
	}{
		{
			name: "provider rejects code",
			err: &oauth2.RetrieveError{
				ErrorCode:        "bad_verification_code",
				ErrorDescription: "The code passed is incorrect or expired.",
			},
			kind:        KindProviderError,
			status:      http.StatusBadRequest,
			reason:      "bad_verification_code",
			description: "The code passed is incorrect or expired.",
		},
		{
			name:   "provider status without body",
			err:    &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusServiceUnavailable}},
			kind:   KindProviderError,
			status: http.StatusBadRequest,
			reason: string(KindProviderError),
		},
		{
			name:   "timeout",
			err:    fmt.Errorf("Post \"https://github.com/login/oauth/access_token\": %w", context.DeadlineExceeded),
			kind:   KindNetworkError,
			status: http.StatusGatewayTimeout,
			reason: string(KindNetworkError),
		},
		{
			name:   "connection refused",
			err:    errors.New("dial tcp 127.0.0.1:443: connect: connection refused"),
			kind:   KindNetworkError,
			status: http.StatusBadGateway,
			reason: string(KindNetworkError),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer := testIssuer(t)
			state, err := issuer.Issue()
			require.NoError(t, err)

			provider := newMockProvider()
			provider.On("ExchangeCode", mock.Anything, "code").Return(nil, tt.err).Once()

			exchanger := NewExchanger(provider, issuer, storage.NewMemoryStorage(), time.Second, true)
			_, err = exchanger.Exchange(context.Background(), ExchangeRequest{Code: "code", State: state, CookieState: state})
			require.Error(t, err)

			relayErr := AsError(err)
			assert.Equal(t, tt.kind, relayErr.Kind)
			assert.Equal(t, tt.status, relayErr.Status())
			assert.Equal(t, tt.reason, relayErr.Reason())
			assert.Equal(t, tt.description, relayErr.ProviderDescription)
			assert.ErrorIs(t, err, tt.err)
			provider.AssertNumberOfCalls(t, "ExchangeCode", 1)
		})
	}
}

func TestExchanger_TimeoutBoundsProviderCall(t *testing.T) {
	issuer := testIssuer(t)
	state, err := issuer.Issue()
	require.NoError(t, err)

	provider := newMockProvider()
	provider.On("ExchangeCode", mock.Anything, "code").
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 50*time.Millisecond)
		}).
		Return(&oauth2.Token{AccessToken: "t"}, nil).Once()

	exchanger := NewExchanger(provider, issuer, storage.NewMemoryStorage(), 50*time.Millisecond, true)
	_, err = exchanger.Exchange(context.Background(), ExchangeRequest{Code: "code", State: state, CookieState: state})
	require.NoError(t, err)
}

func TestError_Message(t *testing.T) {
	err := &Error{Kind: KindProviderError, Message: "bad code", ProviderCode: "bad_verification_code"}
	assert.Equal(t, "provider-error: bad code (provider: bad_verification_code)", err.Error())

	assert.Equal(t, KindServerError, AsError(errors.New("boom")).Kind)
}
