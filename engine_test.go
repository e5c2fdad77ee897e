package defauth

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sainik-portal/defauth/notify"
	"github.com/sainik-portal/defauth/roles"
)

// recorderSender captures outbound messages so tests can read delivered
// codes and tokens.
type recorderSender struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recorderSender) Send(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorderSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recorderSender) last() notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return notify.Message{}
	}
	return r.msgs[len(r.msgs)-1]
}

var otpPattern = regexp.MustCompile(`\b[0-9]{6}\b`)

func (r *recorderSender) lastOTP(t *testing.T) string {
	t.Helper()
	code := otpPattern.FindString(r.last().Text)
	if code == "" {
		t.Fatalf("no otp code found in message %q", r.last().Text)
	}
	return code
}

var tokenPattern = regexp.MustCompile(`address: (\S+)`)

func (r *recorderSender) lastToken(t *testing.T) string {
	t.Helper()
	m := tokenPattern.FindStringSubmatch(r.last().Text)
	if len(m) != 2 {
		t.Fatalf("no verification token found in message %q", r.last().Text)
	}
	return m[1]
}

// mockProvider is an in-memory AccountProvider with call counters.
type mockProvider struct {
	mu       sync.Mutex
	byID     map[string]AccountRecord
	byKey    map[string]AccountRecord
	codes    map[string][]RecoveryCodeRecord
	getCalls int
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		byID:  map[string]AccountRecord{},
		byKey: map[string]AccountRecord{},
		codes: map[string][]RecoveryCodeRecord{},
	}
}

func accountKey(role roles.Role, identity string) string {
	return string(role) + "/" + identity
}

func (p *mockProvider) GetAccount(_ context.Context, role roles.Role, identity string) (AccountRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getCalls++
	account, ok := p.byKey[accountKey(role, identity)]
	if !ok {
		return AccountRecord{}, ErrAccountNotFound
	}
	return account, nil
}

func (p *mockProvider) GetAccountByID(_ context.Context, accountID string) (AccountRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	account, ok := p.byID[accountID]
	if !ok {
		return AccountRecord{}, ErrAccountNotFound
	}
	return account, nil
}

func (p *mockProvider) CreateAccount(_ context.Context, input CreateAccountInput) (AccountRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := accountKey(input.Role, input.Identity)
	if _, exists := p.byKey[key]; exists {
		return AccountRecord{}, ErrAccountExists
	}
	now := time.Now()
	account := AccountRecord{
		AccountID:           input.AccountID,
		FullName:            input.FullName,
		Role:                input.Role,
		Identity:            input.Identity,
		Email:               input.Email,
		PasswordHash:        input.PasswordHash,
		MFAMethod:           input.MFAMethod,
		AuthenticatorSecret: input.AuthenticatorSecret,
		Status:              input.Status,
		Active:              input.Active,
		EmailVerified:       input.EmailVerified,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	p.byKey[key] = account
	p.byID[account.AccountID] = account
	return account, nil
}

func (p *mockProvider) MarkEmailVerified(_ context.Context, accountID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	account, ok := p.byID[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	account.EmailVerified = true
	if account.Status == AccountVerifiedPath {
		account.Active = true
	}
	account.UpdatedAt = time.Now()
	p.byID[accountID] = account
	p.byKey[accountKey(account.Role, account.Identity)] = account
	return nil
}

func (p *mockProvider) GetRecoveryCodes(_ context.Context, accountID string) ([]RecoveryCodeRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.codes[accountID], nil
}

func (p *mockProvider) ReplaceRecoveryCodes(_ context.Context, accountID string, codes []RecoveryCodeRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes[accountID] = codes
	return nil
}

func (p *mockProvider) ConsumeRecoveryCode(_ context.Context, accountID string, codeHash [32]byte) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	codes := p.codes[accountID]
	for i, c := range codes {
		if c.Hash == codeHash {
			p.codes[accountID] = append(codes[:i], codes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// set replaces an account record in both indexes, for test seeding.
func (p *mockProvider) set(account AccountRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID[account.AccountID] = account
	p.byKey[accountKey(account.Role, account.Identity)] = account
}

func (p *mockProvider) lookups() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getCalls
}

type testEnv struct {
	engine   *Engine
	provider *mockProvider
	sender   *recorderSender
	redis    *miniredis.Miniredis
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Session.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Session.Issuer = "sainik-portal"
	cfg.Session.Audience = "portal-api"
	// keep hashing cheap in tests
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	return cfg
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	provider := newMockProvider()
	sender := &recorderSender{}

	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(client).
		WithAccountProvider(provider).
		WithSender(sender).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, provider: provider, sender: sender, redis: mr}
}

var seededAccounts int

// seedAccount creates an active, verified account directly in the provider.
func (env *testEnv) seedAccount(t *testing.T, role roles.Role, identity, email, passwordInput string, method MFAMethod) AccountRecord {
	t.Helper()

	hash, err := env.engine.hasher.Hash(passwordInput)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	seededAccounts++
	account := AccountRecord{
		AccountID:     fmt.Sprintf("acct-%d", seededAccounts),
		FullName:      "Test Account",
		Role:          role,
		Identity:      identity,
		Email:         email,
		PasswordHash:  hash,
		MFAMethod:     method,
		Active:        true,
		EmailVerified: true,
	}
	if method == MFAMethodAuthenticator {
		secret, _, err := env.engine.totp.Provision(email)
		if err != nil {
			t.Fatalf("provision totp: %v", err)
		}
		account.AuthenticatorSecret = secret
	}
	env.provider.set(account)
	return account
}
