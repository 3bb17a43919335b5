package security

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/audit"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/auth"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/config"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/repository"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/session"
)

// mockUserRepository implements repository.UserRepository for testing
type mockUserRepository struct {
	mu    sync.Mutex
	users map[string]*repository.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[string]*repository.User)}
}

func (m *mockUserRepository) add(user *repository.User) *repository.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	m.users[user.ID.String()] = user
	return user
}

func (m *mockUserRepository) Create(ctx context.Context, user *repository.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == user.Username {
			return repository.ErrUsernameAlreadyExists
		}
	}
	user.ID = uuid.New()
	m.users[user.ID.String()] = user
	return nil
}

func (m *mockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id.String()]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (m *mockUserRepository) GetByUsername(ctx context.Context, username string) (*repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Username == username {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserRepository) RecordFailedLogin(ctx context.Context, id uuid.UUID, maxAttempts int, lockUntil time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id.String()]
	if !ok {
		return false, repository.ErrUserNotFound
	}
	user.FailedLoginAttempts++
	if user.FailedLoginAttempts >= maxAttempts {
		user.AccountLocked = true
		until := lockUntil
		user.LockExpiresAt = &until
		return true, nil
	}
	return false, nil
}

func (m *mockUserRepository) ResetLoginState(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id.String()]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.FailedLoginAttempts = 0
	user.AccountLocked = false
	user.LockExpiresAt = nil
	now := time.Now().UTC()
	user.LastLoginAt = &now
	return nil
}

func (m *mockUserRepository) SetTwoFactorSecret(ctx context.Context, id uuid.UUID, secret string, hashedBackupCodes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id.String()]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.TwoFactorSecret = &secret
	user.BackupCodes = hashedBackupCodes
	return nil
}

func (m *mockUserRepository) EnableTwoFactor(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id.String()]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.TwoFactorEnabled = true
	return nil
}

func (m *mockUserRepository) DisableTwoFactor(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id.String()]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.TwoFactorEnabled = false
	user.TwoFactorSecret = nil
	user.BackupCodes = nil
	return nil
}

func (m *mockUserRepository) RemoveBackupCode(ctx context.Context, id uuid.UUID, hashedCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id.String()]
	if !ok {
		return repository.ErrUserNotFound
	}
	kept := make([]string, 0, len(user.BackupCodes))
	for _, hash := range user.BackupCodes {
		if hash != hashedCode {
			kept = append(kept, hash)
		}
	}
	user.BackupCodes = kept
	return nil
}

func (m *mockUserRepository) SetPasswordResetToken(ctx context.Context, id uuid.UUID, token string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id.String()]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.PasswordResetToken = &token
	exp := expires
	user.PasswordResetExpires = &exp
	return nil
}

func (m *mockUserRepository) GetByResetToken(ctx context.Context, token string) (*repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, user := range m.users {
		if user.PasswordResetToken != nil && *user.PasswordResetToken == token &&
			user.PasswordResetExpires != nil && user.PasswordResetExpires.After(now) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id.String()]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	user.PasswordResetToken = nil
	user.PasswordResetExpires = nil
	user.FailedLoginAttempts = 0
	user.AccountLocked = false
	user.LockExpiresAt = nil
	return nil
}

// mockStudentRepository implements repository.StudentRepository for testing
type mockStudentRepository struct {
	mu       sync.Mutex
	students map[string]*repository.Student
}

func newMockStudentRepository() *mockStudentRepository {
	return &mockStudentRepository{students: make(map[string]*repository.Student)}
}

func (m *mockStudentRepository) Create(ctx context.Context, student *repository.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prn := strings.TrimSpace(student.PRN)
	if _, ok := m.students[prn]; ok {
		return repository.ErrPRNAlreadyExists
	}
	student.ID = uuid.New()
	student.CreatedAt = time.Now().UTC()
	m.students[prn] = student
	return nil
}

func (m *mockStudentRepository) GetByID(ctx context.Context, id uuid.UUID) (*repository.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, student := range m.students {
		if student.ID == id {
			return student, nil
		}
	}
	return nil, repository.ErrStudentNotFound
}

func (m *mockStudentRepository) GetByPRN(ctx context.Context, prn string) (*repository.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if student, ok := m.students[prn]; ok {
		return student, nil
	}
	return nil, repository.ErrStudentNotFound
}

func (m *mockStudentRepository) PRNExists(ctx context.Context, prn string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.students[prn]
	return ok, nil
}

// mockSessionRepository implements repository.SessionRepository for testing
type mockSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*repository.Session
}

func newMockSessionRepository() *mockSessionRepository {
	return &mockSessionRepository{sessions: make(map[string]*repository.Session)}
}

func (m *mockSessionRepository) Create(ctx context.Context, rec *repository.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = uuid.New()
	rec.IsActive = true
	rec.CreatedAt = time.Now().UTC()
	rec.LastActivity = rec.CreatedAt
	m.sessions[rec.SessionID] = rec
	return nil
}

func (m *mockSessionRepository) Validate(ctx context.Context, sessionID, tokenHash string) (*repository.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok || !rec.IsActive || rec.TokenHash != tokenHash || !rec.ExpiresAt.After(time.Now().UTC()) {
		return nil, repository.ErrSessionNotFound
	}
	rec.LastActivity = time.Now().UTC()
	copied := *rec
	return &copied, nil
}

func (m *mockSessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*repository.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	copied := *rec
	return &copied, nil
}

func (m *mockSessionRepository) Invalidate(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.sessions[sessionID]; ok {
		rec.IsActive = false
	}
	return nil
}

func (m *mockSessionRepository) InvalidateAllForUser(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.sessions {
		if rec.UserID == userID {
			rec.IsActive = false
		}
	}
	return nil
}

func (m *mockSessionRepository) ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]repository.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.Session
	now := time.Now().UTC()
	for _, rec := range m.sessions {
		if rec.UserID == userID && rec.IsActive && rec.ExpiresAt.After(now) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

func (m *mockSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	now := time.Now().UTC()
	for id, rec := range m.sessions {
		if !rec.ExpiresAt.After(now) {
			delete(m.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *mockSessionRepository) activeCount(userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, rec := range m.sessions {
		if rec.UserID == userID && rec.IsActive {
			count++
		}
	}
	return count
}

// mockSecurityLogRepository implements repository.SecurityLogRepository for testing
type mockSecurityLogRepository struct {
	mu      sync.Mutex
	entries []repository.SecurityLog
}

func newMockSecurityLogRepository() *mockSecurityLogRepository {
	return &mockSecurityLogRepository{}
}

func (m *mockSecurityLogRepository) Append(ctx context.Context, entry *repository.SecurityLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now().UTC()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockSecurityLogRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]repository.SecurityLog, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []repository.SecurityLog
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].UserID != nil && *m.entries[i].UserID == userID {
			matched = append(matched, m.entries[i])
		}
	}
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *mockSecurityLogRepository) eventsOfType(eventType string) []repository.SecurityLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.SecurityLog
	for _, entry := range m.entries {
		if entry.EventType == eventType {
			out = append(out, entry)
		}
	}
	return out
}

// mockMailer records deliveries and can be made to fail
type mockMailer struct {
	mu         sync.Mutex
	failSend   bool
	resets     []string
	setupMails []string
}

var errMailDown = errors.New("relay unreachable")

func (m *mockMailer) SendPasswordReset(ctx context.Context, recipient, resetToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSend {
		return errMailDown
	}
	m.resets = append(m.resets, recipient+":"+resetToken)
	return nil
}

func (m *mockMailer) SendTwoFactorSetup(ctx context.Context, recipient, secret, provisioningURI string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSend {
		return errMailDown
	}
	m.setupMails = append(m.setupMails, recipient)
	return nil
}

func testSecurityConfig() config.SecurityConfig {
	return config.SecurityConfig{
		MaxFailedAttempts: 5,
		LockDuration:      15 * time.Minute,
		SessionTimeout:    24 * time.Hour,
		MaxSessions:       5,
		TOTPTimeStep:      30 * time.Second,
		TOTPWindow:        1,
		ResetTokenExpiry:  time.Hour,
	}
}

// newTestSecurityService wires a security Service over in-memory mocks
func newTestSecurityService() (*Service, *mockUserRepository, *mockSessionRepository, *mockSecurityLogRepository, *mockMailer) {
	userRepo := newMockUserRepository()
	sessionRepo := newMockSessionRepository()
	logRepo := newMockSecurityLogRepository()
	mail := &mockMailer{}

	sessions := session.NewService(sessionRepo, testSecurityConfig().SessionTimeout, nil)
	auditSvc := audit.NewService(logRepo, nil)

	svc := NewService(
		userRepo,
		sessions,
		auditSvc,
		mail,
		auth.NewPasswordValidator(),
		testSecurityConfig(),
		nil,
	)
	return svc, userRepo, sessionRepo, logRepo, mail
}
