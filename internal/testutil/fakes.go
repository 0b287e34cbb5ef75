// Package testutil provides in-memory collaborator implementations for
// service and handler tests. The fakes honor the same atomicity contracts as
// the MongoDB stores: unique keys, compare-and-set transitions, and
// create-if-absent semantics.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/migoVanDingo/ed-user-management/domain"
	"github.com/migoVanDingo/ed-user-management/log"
	"github.com/migoVanDingo/ed-user-management/notify"
)

// NewTestLogger returns a Logger that discards everything.
func NewTestLogger() log.Logger {
	return log.NewZerologAdapter(zerolog.Disabled, false)
}

func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// FakeUserRepository is an in-memory domain.UserRepository.
type FakeUserRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func NewFakeUserRepository() *FakeUserRepository {
	return &FakeUserRepository{users: make(map[string]*domain.User)}
}

func (f *FakeUserRepository) CreateUser(_ context.Context, user *domain.User) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if (user.ExternalID != "" && existing.ExternalID == user.ExternalID) || existing.Email == user.Email {
			return nil, domain.ErrDuplicate
		}
	}
	clone := *user
	if clone.ID == "" {
		clone.ID = newID("user")
	}
	now := time.Now().UTC()
	clone.CreatedAt = now
	clone.UpdatedAt = now
	f.users[clone.ID] = &clone
	out := clone
	return &out, nil
}

func (f *FakeUserRepository) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[id]; ok {
		out := *user
		return &out, nil
	}
	return nil, domain.ErrNotFound
}

func (f *FakeUserRepository) GetUserByExternalID(_ context.Context, externalID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.ExternalID == externalID {
			out := *user
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *FakeUserRepository) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			out := *user
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *FakeUserRepository) ListUsers(_ context.Context) ([]*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.User, 0, len(f.users))
	for _, user := range f.users {
		clone := *user
		out = append(out, &clone)
	}
	return out, nil
}

func (f *FakeUserRepository) UpdateUser(_ context.Context, id string, update domain.UserUpdate) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if update.Email != nil {
		user.Email = *update.Email
	}
	if update.Username != nil {
		user.Username = *update.Username
	}
	user.UpdatedAt = time.Now().UTC()
	out := *user
	return &out, nil
}

func (f *FakeUserRepository) SetVerified(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	user.IsVerified = true
	user.UpdatedAt = time.Now().UTC()
	out := *user
	return &out, nil
}

func (f *FakeUserRepository) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

// Count returns the number of stored users.
func (f *FakeUserRepository) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

var _ domain.UserRepository = (*FakeUserRepository)(nil)

// FakeSessionRepository is an in-memory domain.SessionRepository.
type FakeSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	TouchErr error
}

func NewFakeSessionRepository() *FakeSessionRepository {
	return &FakeSessionRepository{sessions: make(map[string]*domain.Session)}
}

func (f *FakeSessionRepository) CreateSession(_ context.Context, session *domain.Session) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.sessions {
		if existing.RefreshTokenHash == session.RefreshTokenHash {
			return nil, domain.ErrDuplicate
		}
	}
	clone := *session
	if clone.ID == "" {
		clone.ID = newID("session")
	}
	f.sessions[clone.ID] = &clone
	out := clone
	return &out, nil
}

func (f *FakeSessionRepository) GetSessionByID(_ context.Context, id string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session, ok := f.sessions[id]; ok {
		out := *session
		return &out, nil
	}
	return nil, domain.ErrNotFound
}

func (f *FakeSessionRepository) GetSessionByRefreshTokenHash(_ context.Context, tokenHash string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, session := range f.sessions {
		if session.RefreshTokenHash == tokenHash {
			out := *session
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *FakeSessionRepository) RevokeSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if session.RevokedAt == nil {
		now := time.Now().UTC()
		session.RevokedAt = &now
	}
	return nil
}

func (f *FakeSessionRepository) TouchLastActive(_ context.Context, id string) error {
	if f.TouchErr != nil {
		return f.TouchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if session, ok := f.sessions[id]; ok {
		session.LastActiveAt = time.Now().UTC()
	}
	return nil
}

func (f *FakeSessionRepository) ListSessionsByUserID(_ context.Context, userID string) ([]*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Session
	for _, session := range f.sessions {
		if session.UserID == userID {
			clone := *session
			out = append(out, &clone)
		}
	}
	return out, nil
}

// Count returns the number of stored sessions.
func (f *FakeSessionRepository) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

var _ domain.SessionRepository = (*FakeSessionRepository)(nil)

// FakeMembershipRepository is an in-memory domain.MembershipRepository.
type FakeMembershipRepository struct {
	mu      sync.Mutex
	members map[string]*domain.OrganizationMembership
}

func NewFakeMembershipRepository() *FakeMembershipRepository {
	return &FakeMembershipRepository{members: make(map[string]*domain.OrganizationMembership)}
}

func membershipKey(userID, organizationID string) string {
	return userID + "|" + organizationID
}

func (f *FakeMembershipRepository) GetActiveMembership(_ context.Context, userID, organizationID string) (*domain.OrganizationMembership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.members[membershipKey(userID, organizationID)]; ok && m.Status == domain.MembershipStatusActive {
		out := *m
		return &out, nil
	}
	return nil, domain.ErrNotFound
}

func (f *FakeMembershipRepository) CreateIfAbsent(_ context.Context, membership *domain.OrganizationMembership) (*domain.OrganizationMembership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := membershipKey(membership.UserID, membership.OrganizationID)
	if existing, ok := f.members[key]; ok {
		out := *existing
		return &out, nil
	}
	clone := *membership
	if clone.ID == "" {
		clone.ID = newID("membership")
	}
	if clone.Status == "" {
		clone.Status = domain.MembershipStatusActive
	}
	clone.CreatedAt = time.Now().UTC()
	f.members[key] = &clone
	out := clone
	return &out, nil
}

// Count returns the number of stored memberships.
func (f *FakeMembershipRepository) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.members)
}

var _ domain.MembershipRepository = (*FakeMembershipRepository)(nil)

// FakeOrganizationInviteRepository is an in-memory
// domain.OrganizationInviteRepository. It shares a membership repository so
// AcceptWithMembership can create the membership the way the MongoDB store
// does.
type FakeOrganizationInviteRepository struct {
	mu      sync.Mutex
	invites map[string]*domain.OrganizationInvite
	Members *FakeMembershipRepository
}

func NewFakeOrganizationInviteRepository(members *FakeMembershipRepository) *FakeOrganizationInviteRepository {
	return &FakeOrganizationInviteRepository{
		invites: make(map[string]*domain.OrganizationInvite),
		Members: members,
	}
}

func (f *FakeOrganizationInviteRepository) CreateInvite(_ context.Context, invite *domain.OrganizationInvite) (*domain.OrganizationInvite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *invite
	if clone.ID == "" {
		clone.ID = newID("invite")
	}
	if clone.Status == "" {
		clone.Status = domain.InviteStatusPending
	}
	clone.CreatedAt = time.Now().UTC()
	f.invites[clone.ID] = &clone
	out := clone
	return &out, nil
}

func (f *FakeOrganizationInviteRepository) GetInviteByTokenHash(_ context.Context, tokenHash string) (*domain.OrganizationInvite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, invite := range f.invites {
		if invite.TokenHash == tokenHash {
			out := *invite
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

// GetInviteByID returns a copy of the stored invite, for assertions.
func (f *FakeOrganizationInviteRepository) GetInviteByID(id string) *domain.OrganizationInvite {
	f.mu.Lock()
	defer f.mu.Unlock()
	if invite, ok := f.invites[id]; ok {
		out := *invite
		return &out
	}
	return nil
}

func (f *FakeOrganizationInviteRepository) MarkExpired(_ context.Context, inviteID string) error {
	return f.transition(inviteID, func(invite *domain.OrganizationInvite) {
		invite.Status = domain.InviteStatusExpired
	})
}

func (f *FakeOrganizationInviteRepository) MarkAccepted(_ context.Context, inviteID, userID string) error {
	err := f.transition(inviteID, func(invite *domain.OrganizationInvite) {
		invite.Status = domain.InviteStatusAccepted
		invite.AcceptedBy = userID
		now := time.Now().UTC()
		invite.AcceptedAt = &now
	})
	if err == domain.ErrInviteNotPending {
		f.mu.Lock()
		invite := f.invites[inviteID]
		f.mu.Unlock()
		if invite != nil && invite.Status == domain.InviteStatusAccepted && invite.AcceptedBy == userID {
			return nil
		}
	}
	return err
}

func (f *FakeOrganizationInviteRepository) AcceptWithMembership(ctx context.Context, invite *domain.OrganizationInvite, userID string) error {
	if _, err := f.Members.CreateIfAbsent(ctx, &domain.OrganizationMembership{
		UserID:         userID,
		OrganizationID: invite.OrganizationID,
		Role:           invite.Role,
		Status:         domain.MembershipStatusActive,
	}); err != nil {
		return err
	}
	return f.MarkAccepted(ctx, invite.ID, userID)
}

func (f *FakeOrganizationInviteRepository) transition(inviteID string, apply func(*domain.OrganizationInvite)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	invite, ok := f.invites[inviteID]
	if !ok {
		return domain.ErrNotFound
	}
	if invite.Status != domain.InviteStatusPending {
		return domain.ErrInviteNotPending
	}
	apply(invite)
	return nil
}

var _ domain.OrganizationInviteRepository = (*FakeOrganizationInviteRepository)(nil)

// FakeRegistrationInviteRepository is an in-memory
// domain.RegistrationInviteRepository.
type FakeRegistrationInviteRepository struct {
	mu      sync.Mutex
	invites map[string]*domain.RegistrationInvite
}

func NewFakeRegistrationInviteRepository() *FakeRegistrationInviteRepository {
	return &FakeRegistrationInviteRepository{invites: make(map[string]*domain.RegistrationInvite)}
}

func (f *FakeRegistrationInviteRepository) CreateInvite(_ context.Context, invite *domain.RegistrationInvite) (*domain.RegistrationInvite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.invites {
		if existing.Token == invite.Token {
			return nil, domain.ErrDuplicate
		}
	}
	clone := *invite
	if clone.ID == "" {
		clone.ID = newID("reg-invite")
	}
	clone.CreatedAt = time.Now().UTC()
	f.invites[clone.ID] = &clone
	out := clone
	return &out, nil
}

func (f *FakeRegistrationInviteRepository) GetInviteByToken(_ context.Context, token string) (*domain.RegistrationInvite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, invite := range f.invites {
		if invite.Token == token {
			out := *invite
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *FakeRegistrationInviteRepository) Redeem(_ context.Context, inviteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	invite, ok := f.invites[inviteID]
	if !ok {
		return domain.ErrNotFound
	}
	if invite.Redeemed {
		return domain.ErrInviteRedeemed
	}
	invite.Redeemed = true
	now := time.Now().UTC()
	invite.RedeemedAt = &now
	return nil
}

var _ domain.RegistrationInviteRepository = (*FakeRegistrationInviteRepository)(nil)

// StubVerifier returns fixed claims or a fixed error.
type StubVerifier struct {
	Claims *domain.IdentityClaims
	Err    error
}

func (s *StubVerifier) Verify(_ context.Context, _ string) (*domain.IdentityClaims, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Claims, nil
}

var _ domain.IdentityVerifier = (*StubVerifier)(nil)

// PublishedEvent records one EventBus.Publish call.
type PublishedEvent struct {
	Channel string
	Event   domain.Event
}

// RecordingBus records published events and can be told to fail.
type RecordingBus struct {
	mu     sync.Mutex
	events []PublishedEvent
	Err    error
}

func (b *RecordingBus) Publish(_ context.Context, channel string, event domain.Event) error {
	if b.Err != nil {
		return b.Err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, PublishedEvent{Channel: channel, Event: event})
	return nil
}

// Events returns a copy of the recorded events.
func (b *RecordingBus) Events() []PublishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PublishedEvent, len(b.events))
	copy(out, b.events)
	return out
}

var _ domain.EventBus = (*RecordingBus)(nil)

// RecordingSender records outbound emails and can be told to fail.
type RecordingSender struct {
	mu     sync.Mutex
	emails []notify.Email
	Err    error
}

func (s *RecordingSender) Send(_ context.Context, email notify.Email) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emails = append(s.emails, email)
	return nil
}

// Emails returns a copy of the recorded emails.
func (s *RecordingSender) Emails() []notify.Email {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notify.Email, len(s.emails))
	copy(out, s.emails)
	return out
}

var _ notify.Sender = (*RecordingSender)(nil)
