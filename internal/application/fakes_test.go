package application_test

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/GertsDev/burgerverse-backend/internal/application"
	"github.com/GertsDev/burgerverse-backend/internal/domain"
	"github.com/GertsDev/burgerverse-backend/internal/ports"
	"github.com/google/uuid"
)

type fixture struct {
	service    *application.Service
	clock      *fakeClock
	identities *fakeIdentities
	registry   *fakeRegistry
	outbox     *fakeOutbox
	lockouts   *fakeLockouts
	tokens     *fakeTokens
	mailer     *fakeMailer
}

func defaultTestConfig() application.Config {
	return application.Config{
		ResetCodeTTL:               time.Hour,
		FailedLoginThreshold:       5,
		LockoutDuration:            15 * time.Minute,
		RegisterRateLimitThreshold: 50,
		RegisterRateLimitWindow:    time.Minute,
		ResetRateLimitThreshold:    20,
		ResetRateLimitWindow:       time.Minute,
		MailTimeout:                time.Second,
	}
}

func newFixture() *fixture {
	return newFixtureWithConfig(defaultTestConfig())
}

func newFixtureWithConfig(cfg application.Config) *fixture {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	identities := &fakeIdentities{
		byEmail: make(map[string]uuid.UUID),
		byID:    make(map[uuid.UUID]domain.Identity),
	}
	registry := &fakeRegistry{byHash: make(map[string]domain.RefreshSession)}
	outbox := &fakeOutbox{}
	lockouts := &fakeLockouts{state: map[string]ports.LockoutState{}}
	tokens := &fakeTokens{
		clock:      clock,
		claims:     map[string]ports.TokenClaims{},
		accessTTL:  15 * time.Minute,
		refreshTTL: 7 * 24 * time.Hour,
	}
	mailer := &fakeMailer{}

	svc := application.NewService(application.Dependencies{
		Config:     cfg,
		Identities: identities,
		Registry:   registry,
		Outbox:     outbox,
		Lockouts:   lockouts,
		Hasher:     &fakeHasher{},
		Tokens:     tokens,
		Mailer:     mailer,
		Now:        clock.Now,
	})

	return &fixture{
		service:    svc,
		clock:      clock,
		identities: identities,
		registry:   registry,
		outbox:     outbox,
		lockouts:   lockouts,
		tokens:     tokens,
		mailer:     mailer,
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeIdentities struct {
	mu      sync.Mutex
	byEmail map[string]uuid.UUID
	byID    map[uuid.UUID]domain.Identity
	events  []ports.OutboxEvent
}

func (f *fakeIdentities) CreateWithOutboxTx(_ context.Context, params ports.CreateIdentityParams, outboxEvent ports.OutboxEvent) (domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[params.Email]; ok {
		return domain.Identity{}, domain.ErrConflict
	}
	identity := domain.Identity{
		ID:           uuid.New(),
		Email:        params.Email,
		Name:         params.Name,
		PasswordHash: params.PasswordHash,
		CreatedAt:    params.RegisteredAtUTC,
		UpdatedAt:    params.RegisteredAtUTC,
	}
	f.byEmail[identity.Email] = identity.ID
	f.byID[identity.ID] = identity
	f.events = append(f.events, outboxEvent)
	return identity, nil
}

func (f *fakeIdentities) GetByEmail(_ context.Context, email string) (domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byEmail[email]
	if !ok {
		return domain.Identity{}, domain.ErrNotFound
	}
	return f.byID[id], nil
}

func (f *fakeIdentities) GetByID(_ context.Context, identityID uuid.UUID) (domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity, ok := f.byID[identityID]
	if !ok {
		return domain.Identity{}, domain.ErrNotFound
	}
	return identity, nil
}

func (f *fakeIdentities) UpdateProfile(_ context.Context, identityID uuid.UUID, update ports.ProfileUpdate, at time.Time) (domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity, ok := f.byID[identityID]
	if !ok {
		return domain.Identity{}, domain.ErrNotFound
	}
	if update.Email != nil && *update.Email != identity.Email {
		if _, taken := f.byEmail[*update.Email]; taken {
			return domain.Identity{}, domain.ErrConflict
		}
		delete(f.byEmail, identity.Email)
		identity.Email = *update.Email
		f.byEmail[identity.Email] = identity.ID
	}
	if update.Name != nil {
		identity.Name = *update.Name
	}
	if update.PasswordHash != nil {
		identity.PasswordHash = *update.PasswordHash
	}
	identity.UpdatedAt = at
	f.byID[identityID] = identity
	return identity, nil
}

func (f *fakeIdentities) SetResetChallenge(_ context.Context, identityID uuid.UUID, codeHash string, expiresAt, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, other := range f.byID {
		if id == identityID || other.ResetCodeHash == nil || *other.ResetCodeHash != codeHash {
			continue
		}
		if other.HasActiveResetChallenge(at) {
			return domain.ErrConflict
		}
		other.ResetCodeHash, other.ResetCodeExpiresAt = nil, nil
		f.byID[id] = other
	}
	identity, ok := f.byID[identityID]
	if !ok {
		return domain.ErrNotFound
	}
	identity.ResetCodeHash = &codeHash
	identity.ResetCodeExpiresAt = &expiresAt
	identity.UpdatedAt = at
	f.byID[identityID] = identity
	return nil
}

func (f *fakeIdentities) ConsumeResetChallenge(_ context.Context, codeHash, newPasswordHash string, at time.Time) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, identity := range f.byID {
		if identity.ResetCodeHash == nil || *identity.ResetCodeHash != codeHash {
			continue
		}
		if !identity.ResetCodeExpiresAt.After(at) {
			return uuid.Nil, domain.ErrNotFound
		}
		identity.PasswordHash = newPasswordHash
		identity.ResetCodeHash, identity.ResetCodeExpiresAt = nil, nil
		identity.UpdatedAt = at
		f.byID[id] = identity
		return id, nil
	}
	return uuid.Nil, domain.ErrNotFound
}

func (f *fakeIdentities) get(email string) domain.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[f.byEmail[email]]
}

type fakeRegistry struct {
	mu     sync.Mutex
	byHash map[string]domain.RefreshSession
	// failRevokeAll makes RevokeAllForIdentity return an error.
	failRevokeAll bool
}

func (f *fakeRegistry) Persist(_ context.Context, session domain.RefreshSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byHash[session.TokenHash]; ok {
		return domain.ErrDuplicateToken
	}
	f.byHash[session.TokenHash] = session
	return nil
}

func (f *fakeRegistry) FindByToken(_ context.Context, tokenHash string) (domain.RefreshSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.byHash[tokenHash]
	if !ok {
		return domain.RefreshSession{}, domain.ErrNotFound
	}
	return session, nil
}

func (f *fakeRegistry) Rotate(_ context.Context, oldHash, newHash string, newExpiresAt, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.byHash[oldHash]
	if !ok || !session.ExpiresAt.After(at) {
		return domain.ErrNotFound
	}
	if _, taken := f.byHash[newHash]; taken {
		return domain.ErrDuplicateToken
	}
	delete(f.byHash, oldHash)
	rotatedAt := at
	session.TokenHash = newHash
	session.ExpiresAt = newExpiresAt
	session.RotatedAt = &rotatedAt
	session.RotationCount++
	f.byHash[newHash] = session
	return nil
}

func (f *fakeRegistry) Revoke(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byHash, tokenHash)
	return nil
}

func (f *fakeRegistry) RevokeAllForIdentity(_ context.Context, identityID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRevokeAll {
		return 0, errors.New("registry unavailable")
	}
	count := 0
	for hash, session := range f.byHash {
		if session.IdentityID == identityID {
			delete(f.byHash, hash)
			count++
		}
	}
	return count, nil
}

func (f *fakeRegistry) ListByIdentity(_ context.Context, identityID uuid.UUID) ([]domain.RefreshSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.RefreshSession, 0)
	for _, session := range f.byHash {
		if session.IdentityID == identityID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeRegistry) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for hash, session := range f.byHash {
		if count >= limit {
			break
		}
		if !session.ExpiresAt.After(before) {
			delete(f.byHash, hash)
			count++
		}
	}
	return count, nil
}

func (f *fakeRegistry) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byHash)
}

type fakeOutbox struct {
	mu     sync.Mutex
	events []ports.OutboxEvent
}

func (f *fakeOutbox) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}
func (f *fakeOutbox) ClaimUnpublished(context.Context, int, string, time.Time) ([]ports.OutboxRecord, error) {
	return nil, nil
}
func (f *fakeOutbox) MarkPublished(context.Context, uuid.UUID, string, time.Time) error { return nil }
func (f *fakeOutbox) MarkFailed(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}
func (f *fakeOutbox) MarkDeadLettered(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

func (f *fakeOutbox) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

type fakeLockouts struct {
	mu    sync.Mutex
	state map[string]ports.LockoutState
}

func (f *fakeLockouts) Get(_ context.Context, key string) (ports.LockoutState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state[key], nil
}

func (f *fakeLockouts) RecordFailure(_ context.Context, key string, now time.Time, threshold int, lockoutWindow time.Duration) (ports.LockoutState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.state[key]
	st.FailedCount++
	if st.FailedCount >= threshold {
		lockUntil := now.Add(lockoutWindow)
		st.LockedUntil = &lockUntil
	}
	f.state[key] = st
	return st, nil
}

func (f *fakeLockouts) Clear(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.state, key)
	return nil
}

type fakeHasher struct {
	mu       sync.Mutex
	compares int
}

func (f *fakeHasher) Hash(_ context.Context, password string) (string, error) {
	return "hash:" + password, nil
}

func (f *fakeHasher) Compare(_ context.Context, hash, password string) error {
	f.mu.Lock()
	f.compares++
	f.mu.Unlock()
	if hash != "hash:"+password {
		return errors.New("hash mismatch")
	}
	return nil
}

// fakeTokens issues opaque tokens and enforces kind and expiry on Verify.
type fakeTokens struct {
	mu         sync.Mutex
	clock      *fakeClock
	claims     map[string]ports.TokenClaims
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func (f *fakeTokens) IssueAccess(identityID uuid.UUID, now time.Time) (ports.IssuedToken, error) {
	return f.issue(identityID, ports.TokenKindAccess, now, f.accessTTL)
}

func (f *fakeTokens) IssueRefresh(identityID uuid.UUID, now time.Time) (ports.IssuedToken, error) {
	return f.issue(identityID, ports.TokenKindRefresh, now, f.refreshTTL)
}

func (f *fakeTokens) RefreshTTL() time.Duration { return f.refreshTTL }

func (f *fakeTokens) issue(identityID uuid.UUID, kind ports.TokenKind, now time.Time, ttl time.Duration) (ports.IssuedToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := string(kind) + "." + uuid.NewString()
	f.claims[token] = ports.TokenClaims{
		IdentityID: identityID,
		Kind:       kind,
		ID:         uuid.NewString(),
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}
	return ports.IssuedToken{Token: token, ExpiresAt: now.Add(ttl)}, nil
}

func (f *fakeTokens) Verify(token string, kind ports.TokenKind) (ports.TokenClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claims, ok := f.claims[token]
	if !ok || claims.Kind != kind {
		return ports.TokenClaims{}, domain.ErrInvalidSignature
	}
	if !f.clock.Now().Before(claims.ExpiresAt) {
		return ports.TokenClaims{}, domain.ErrTokenExpired
	}
	return claims, nil
}

var resetCodePattern = regexp.MustCompile(`code is (\d{6})`)

type fakeMailer struct {
	mu       sync.Mutex
	messages []ports.MailMessage
	err      error
}

func (f *fakeMailer) Send(_ context.Context, msg ports.MailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeMailer) lastCode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return ""
	}
	m := resetCodePattern.FindStringSubmatch(f.messages[len(f.messages)-1].Body)
	if len(m) != 2 {
		return ""
	}
	return m[1]
}
