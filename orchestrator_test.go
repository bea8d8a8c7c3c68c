package authkit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/stefmil/authkit/phone"
)

var testTokenSecret = []byte("root-test-secret")

func signIdentityToken(t *testing.T, subject, email string) string {
	t.Helper()

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   subject,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testTokenSecret)
	require.NoError(t, err)
	return signed
}

type mockHandle struct {
	mu       sync.Mutex
	accepted string
	confirms int
}

func (h *mockHandle) Confirm(_ context.Context, code string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.confirms++
	if code != h.accepted {
		return errors.New("code rejected")
	}
	return nil
}

type mockVerifier struct{}

func (mockVerifier) Token(context.Context) (string, error) { return "proof-token", nil }
func (mockVerifier) Reset()                                {}

// mockBackend counts every call and lets tests script failures per method.
type mockBackend struct {
	mu sync.Mutex

	signInCalls   int
	signInEmail   string
	signInPass    string
	signInErr     error
	oauthErr      error
	createCalls   int
	createEmail   string
	displayCalls  int
	displayName   string
	verifyCalls   int
	passwordCalls int
	newPassword   string
	updatePassCtx context.Context
	issueCalls    int
	issuePhone    string
	issueProof    string
	handle        *mockHandle
	regChallenge      []byte
	assertChallenge   []byte
	verifyRegCalls    int
	verifyAssertCalls int

	reauthCalls   int
	reauthErr     error
	linkCalls     int
	linkErr       error
	signOutCalls  int

	changes chan SessionEvent
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		handle:  &mockHandle{accepted: "123456"},
		changes: make(chan SessionEvent, 8),
	}
}

func (m *mockBackend) SignInWithPassword(_ context.Context, email, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signInCalls++
	m.signInEmail = email
	m.signInPass = password
	return m.signInErr
}

func (m *mockBackend) SignInWithOAuth(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.oauthErr
}

func (m *mockBackend) CreateAccount(_ context.Context, email, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	m.createEmail = email
	return nil
}

func (m *mockBackend) UpdateDisplayName(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.displayCalls++
	m.displayName = name
	return nil
}

func (m *mockBackend) SendEmailVerification(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyCalls++
	return nil
}

func (m *mockBackend) UpdatePassword(ctx context.Context, newPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passwordCalls++
	m.newPassword = newPassword
	m.updatePassCtx = ctx
	return nil
}

func (m *mockBackend) IssuePhoneChallenge(_ context.Context, phoneE164, proof string) (PhoneConfirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issueCalls++
	m.issuePhone = phoneE164
	m.issueProof = proof
	return m.handle, nil
}

func (m *mockBackend) PasskeyRegistrationChallenge(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.regChallenge == nil {
		return nil, errors.New("not scripted")
	}
	return m.regChallenge, nil
}

func (m *mockBackend) VerifyPasskeyRegistration(context.Context, []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyRegCalls++
	return nil
}

func (m *mockBackend) PasskeyAssertionChallenge(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assertChallenge == nil {
		return nil, errors.New("not scripted")
	}
	return m.assertChallenge, nil
}

func (m *mockBackend) VerifyPasskeyAssertion(context.Context, []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyAssertCalls++
	return nil
}

func (m *mockBackend) Reauthenticate(context.Context, string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reauthCalls++
	if m.reauthErr != nil {
		return "", m.reauthErr
	}
	return "reauth-proof", nil
}

func (m *mockBackend) LinkOAuthProvider(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linkCalls++
	return m.linkErr
}

func (m *mockBackend) SignOut(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signOutCalls++
	return nil
}

func (m *mockBackend) SessionChanges() <-chan SessionEvent {
	return m.changes
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.VerifyKey = testTokenSecret
	cfg.Audit.Enabled = false
	return cfg
}

func newTestOrchestrator(t *testing.T, backend *mockBackend, mutate func(*Config)) *Orchestrator {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	o, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithBackend(backend).
		WithHumanVerifier(func() (phone.HumanVerifier, error) { return mockVerifier{}, nil }).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })

	return o
}

func pushSignIn(t *testing.T, o *Orchestrator, backend *mockBackend, subject, email string) {
	t.Helper()

	sessions, cancel := o.Subscribe()
	defer cancel()

	backend.changes <- SessionEvent{
		Kind:          SessionSignedIn,
		IdentityToken: signIdentityToken(t, subject, email),
	}

	select {
	case s := <-sessions:
		require.NotNil(t, s)
		require.Equal(t, subject, s.SubjectID)
	case <-time.After(2 * time.Second):
		t.Fatal("session change not observed")
	}
}

func TestLoginEmailDispatchesPassword(t *testing.T) {
	backend := newMockBackend()
	o := newTestOrchestrator(t, backend, nil)

	res, err := o.Login(context.Background(), "kim@example.com", "hunter2")
	require.NoError(t, err)
	require.Equal(t, StepNone, res.Step)
	require.Empty(t, res.ChallengeID)

	require.Equal(t, 1, backend.signInCalls)
	require.Equal(t, "kim@example.com", backend.signInEmail)
	require.Equal(t, "hunter2", backend.signInPass)

	pushSignIn(t, o, backend, "uid-1", "kim@example.com")
	s := o.Session()
	require.NotNil(t, s)
	require.Equal(t, "kim@example.com", s.Email)
}

func TestLoginEmailPreservesCase(t *testing.T) {
	backend := newMockBackend()
	o := newTestOrchestrator(t, backend, nil)

	_, err := o.Login(context.Background(), "Kim.Lee@Example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, "Kim.Lee@Example.com", backend.signInEmail)
}

func TestLoginUsernameResolvesToEmail(t *testing.T) {
	backend := newMockBackend()
	o := newTestOrchestrator(t, backend, nil)

	require.NoError(t, o.LinkUsernameToEmail(context.Background(), "Kim_Lee", "kim@example.com"))

	res, err := o.Login(context.Background(), "kim_lee", "hunter2")
	require.NoError(t, err)
	require.Equal(t, StepNone, res.Step)
	require.Equal(t, "kim@example.com", backend.signInEmail)
}

func TestLoginUnknownUsernameFailsBeforeCredential(t *testing.T) {
	backend := newMockBackend()
	o := newTestOrchestrator(t, backend, nil)

	_, err := o.Login(context.Background(), "ghost_user", "hunter2")
	require.ErrorIs(t, err, ErrIdentityNotFound)
	require.Zero(t, backend.signInCalls)
}

func TestLoginUnclassifiableIdentifier(t *testing.T) {
	backend := newMockBackend()
	o := newTestOrchestrator(t, backend, nil)

	_, err := o.Login(context.Background(), "not an identifier!!", "pw")
	require.ErrorIs(t, err, ErrValidation)
	require.Zero(t, backend.signInCalls)
	require.Zero(t, backend.issueCalls)
}

func TestLoginPhoneOpensChallengeAndConfirms(t *testing.T) {
	backend := newMockBackend()
	o := newTestOrchestrator(t, backend, nil)

	res, err := o.Login(context.Background(), "+31612345678", "")
	require.NoError(t, err)
	require.Equal(t, StepPhoneCode, res.Step)
	require.NotEmpty(t, res.ChallengeID)
	require.Equal(t, "+31612345678", backend.issuePhone)
	require.Equal(t, "proof-token", backend.issueProof)
	require.Zero(t, backend.signInCalls)

	require.NoError(t, o.ConfirmPhoneCode(context.Background(), res.ChallengeID, "123456"))
	require.Equal(t, phone.StateConfirmed, o.PhoneState())
	require.Equal(t, 1, backend.handle.confirms)
}

func TestLoginPhoneNormalizesBareDigits(t *testing.T) {
	backend := newMockBackend()
	o := newTestOrchestrator(t, backend, nil)

	res, err := o.Login(context.Background(), "31612345678", "")
	require.NoError(t, err)
	require.Equal(t, StepPhoneCode, res.Step)
	require.Equal(t, "+31612345678", backend.issuePhone)
}

func TestConfirmWrongCodeConsumesChallenge(t *testing.T) {
	backend := newMockBackend()
	o := newTestOrchestrator(t, backend, nil)

	res, err := o.Login(context.Background(), "+31612345678", "")
	require.NoError(t, err)

	require.Error(t, o.ConfirmPhoneCode(context.Background(), res.ChallengeID, "000000"))
	require.Equal(t, phone.StateFailed, o.PhoneState())

	// The consumed challenge cannot be retried.
	err = o.ConfirmPhoneCode(context.Background(), res.ChallengeID, "123456")
	require.ErrorIs(t, err, ErrChallengeExpired)
	require.Equal(t, 1, backend.handle.confirms)
}

func TestPhoneResendBudget(t *testing.T) {
	backend := newMockBackend()
	o := newTestOrchestrator(t, backend, func(cfg *Config) {
		cfg.Phone.MaxIssuesPerWindow = 2
	})

	for i := 0; i < 2; i++ {
		_, err := o.Login(context.Background(), "+31612345678", "")
		require.NoError(t, err)
	}

	_, err := o.Login(context.Background(), "+31612345678", "")
	require.ErrorIs(t, err, ErrRateLimited)
	require.Equal(t, 2, backend.issueCalls)
}

func TestConfirmResetsResendBudget(t *testing.T) {
	backend := newMockBackend()
	o := newTestOrchestrator(t, backend, func(cfg *Config) {
		cfg.Phone.MaxIssuesPerWindow = 1
	})

	res, err := o.Login(context.Background(), "+31612345678", "")
	require.NoError(t, err)
	require.NoError(t, o.ConfirmPhoneCode(context.Background(), res.ChallengeID, "123456"))

	// Without the reset this second issue would be over budget.
	_, err = o.Login(context.Background(), "+31612345678", "")
	require.NoError(t, err)
}

func TestRegisterEmailSendsVerification(t *testing.T) {
	backend := newMockBackend()
	o := newTestOrchestrator(t, backend, nil)

	res, err := o.Register(context.Background(), RegisterRequest{
		Identifier:  "new@example.com",
		Password:    "initial-pw",
		DisplayName: "Kim Lee",
	})
	require.NoError(t, err)
	require.Equal(t, StepEmailVerify, res.Step)

	require.Equal(t, 1, backend.createCalls)
	require.Equal(t, "new@example.com", backend.createEmail)
	require.Equal(t, "Kim Lee", backend.displayName)
	require.Equal(t, 1, backend.verifyCalls)
}

func TestRegisterUsernameRejected(t *testing.T) {
	backend := newMockBackend()
	o := newTestOrchestrator(t, backend, nil)

	_, err := o.Register(context.Background(), RegisterRequest{Identifier: "kim_lee"})
	require.ErrorIs(t, err, ErrRegistrationChannel)
	require.Zero(t, backend.createCalls)
}

func TestRegisterPhoneOpensChallenge(t *testing.T) {
	backend := newMockBackend()
	o := newTestOrchestrator(t, backend, nil)

	res, err := o.Register(context.Background(), RegisterRequest{Identifier: "+31612345678"})
	require.NoError(t, err)
	require.Equal(t, StepPhoneCode, res.Step)
	require.NotEmpty(t, res.ChallengeID)
	require.Zero(t, backend.createCalls)
}

func TestLinkUsernameConflict(t *testing.T) {
	backend := newMockBackend()
	o := newTestOrchestrator(t, backend, nil)

	ctx := context.Background()
	require.NoError(t, o.LinkUsernameToEmail(ctx, "kim_lee", "kim@example.com"))
	require.NoError(t, o.LinkUsernameToEmail(ctx, "kim_lee", "kim@example.com"))

	err := o.LinkUsernameToEmail(ctx, "kim_lee", "other@example.com")
	require.ErrorIs(t, err, ErrUsernameTaken)
}

func TestWithReauthWrongPasswordSkipsMutation(t *testing.T) {
	backend := newMockBackend()
	backend.reauthErr = ErrWrongCredential
	o := newTestOrchestrator(t, backend, nil)
	pushSignIn(t, o, backend, "uid-1", "kim@example.com")

	ran := 0
	err := o.WithReauth(context.Background(), "bad-pw", func(context.Context) error {
		ran++
		return nil
	})
	require.ErrorIs(t, err, ErrWrongCredential)
	require.Zero(t, ran)
}

func TestWithReauthRequiresSession(t *testing.T) {
	backend := newMockBackend()
	o := newTestOrchestrator(t, backend, nil)

	err := o.WithReauth(context.Background(), "pw", func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrNotAuthenticated)
	require.Zero(t, backend.reauthCalls)
}

func TestChangePasswordCarriesProof(t *testing.T) {
	backend := newMockBackend()
	o := newTestOrchestrator(t, backend, nil)
	pushSignIn(t, o, backend, "uid-1", "kim@example.com")

	require.NoError(t, o.ChangePassword(context.Background(), "old-pw", "new-pw"))
	require.Equal(t, 1, backend.passwordCalls)
	require.Equal(t, "new-pw", backend.newPassword)

	proof, ok := ReauthProofFromContext(backend.updatePassCtx)
	require.True(t, ok)
	require.Equal(t, "reauth-proof", proof)
}

func TestLinkProviderDuplicateRejectedLocally(t *testing.T) {
	backend := newMockBackend()
	o := newTestOrchestrator(t, backend, nil)
	pushSignIn(t, o, backend, "uid-1", "kim@example.com")

	ctx := context.Background()
	require.NoError(t, o.LinkOAuthProvider(ctx, "github.com"))
	require.Equal(t, 1, backend.linkCalls)

	err := o.LinkOAuthProvider(ctx, "github.com")
	require.ErrorIs(t, err, ErrProviderAlreadyLinked)
	require.Equal(t, 1, backend.linkCalls)

	linked := o.LinkedProviders()
	require.Len(t, linked, 1)
	require.Equal(t, "github.com", linked[0].ProviderID)
}

func TestLinkProviderRequiresSession(t *testing.T) {
	backend := newMockBackend()
	o := newTestOrchestrator(t, backend, nil)

	err := o.LinkOAuthProvider(context.Background(), "github.com")
	require.ErrorIs(t, err, ErrNotAuthenticated)
	require.Zero(t, backend.linkCalls)
}

func TestSignOutClearsSessionAndLinks(t *testing.T) {
	backend := newMockBackend()
	o := newTestOrchestrator(t, backend, nil)
	pushSignIn(t, o, backend, "uid-1", "kim@example.com")

	require.NoError(t, o.LinkOAuthProvider(context.Background(), "github.com"))

	sessions, cancel := o.Subscribe()
	defer cancel()
	backend.changes <- SessionEvent{Kind: SessionSignedOut}

	select {
	case s := <-sessions:
		require.Nil(t, s)
	case <-time.After(2 * time.Second):
		t.Fatal("sign-out not observed")
	}

	require.Nil(t, o.Session())
	require.Empty(t, o.LinkedProviders())
}

func TestBadIdentityTokenIgnored(t *testing.T) {
	backend := newMockBackend()
	o := newTestOrchestrator(t, backend, nil)
	pushSignIn(t, o, backend, "uid-1", "kim@example.com")

	backend.changes <- SessionEvent{Kind: SessionUpdated, IdentityToken: "garbage"}

	// The watcher drops the event; the existing session must survive.
	require.Eventually(t, func() bool {
		s := o.Session()
		return s != nil && s.SubjectID == "uid-1"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLoginSupersedesPendingPhoneChallenge(t *testing.T) {
	backend := newMockBackend()
	o := newTestOrchestrator(t, backend, nil)

	res, err := o.Login(context.Background(), "+31612345678", "")
	require.NoError(t, err)

	_, err = o.Login(context.Background(), "kim@example.com", "pw")
	require.NoError(t, err)

	err = o.ConfirmPhoneCode(context.Background(), res.ChallengeID, "123456")
	require.ErrorIs(t, err, ErrNoPendingChallenge)
}

func TestBuilderValidation(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	factory := func() (phone.HumanVerifier, error) { return mockVerifier{}, nil }

	_, err = New().WithConfig(testConfig()).WithRedis(client).WithHumanVerifier(factory).Build()
	require.EqualError(t, err, "credential backend required")

	_, err = New().WithConfig(testConfig()).WithRedis(client).WithBackend(newMockBackend()).Build()
	require.EqualError(t, err, "human verifier factory required")

	cfg := testConfig()
	cfg.Token.VerifyKey = nil
	_, err = New().WithConfig(cfg).WithRedis(client).WithBackend(newMockBackend()).WithHumanVerifier(factory).Build()
	require.EqualError(t, err, "token verification key required")

	_, err = New().WithConfig(testConfig()).WithBackend(newMockBackend()).WithHumanVerifier(factory).Build()
	require.EqualError(t, err, "resend throttle requires redis client")

	b := New().WithConfig(testConfig()).WithRedis(client).WithBackend(newMockBackend()).WithHumanVerifier(factory)
	o, err := b.Build()
	require.NoError(t, err)
	defer o.Close()

	_, err = b.Build()
	require.EqualError(t, err, "builder already used")
}
