package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/repository"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/totp"
)

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := NewPasswordValidator().HashPassword(password)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return hash
}

func seedStudent(t *testing.T, users *mockUserRepository, username, password string) *repository.User {
	t.Helper()
	return users.add(&repository.User{
		Username:     username,
		PasswordHash: mustHash(t, password),
		Role:         repository.RoleStudent,
	})
}

func TestStudentLogin_Success(t *testing.T) {
	svc, users, _, sessionRepo, logRepo := newTestService()
	ctx := context.Background()

	user := seedStudent(t, users, "PRN2024001", "Passw0rdOk")

	result, err := svc.StudentLogin(ctx, LoginRequest{
		Username: "PRN2024001",
		Password: "Passw0rdOk",
	}, "10.0.0.1", "go-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.RequiresTwoFactor {
		t.Fatal("2FA should not be required for this account")
	}
	if result.Token == "" {
		t.Error("token should not be empty")
	}
	if len(strings.Split(result.Token, ".")) != 3 {
		t.Error("token should be a three-part JWT")
	}
	if result.Role != repository.RoleStudent {
		t.Errorf("role = %q, want student", result.Role)
	}
	if result.SessionID == "" {
		t.Error("session ID should not be empty")
	}

	if sessionRepo.activeCount(user.ID) != 1 {
		t.Errorf("active sessions = %d, want 1", sessionRepo.activeCount(user.ID))
	}

	stored, _ := users.GetByID(ctx, user.ID)
	if stored.LastLoginAt == nil {
		t.Error("last login timestamp should be set")
	}
	if stored.FailedLoginAttempts != 0 {
		t.Error("failed attempt counter should be zero after success")
	}

	logins := logRepo.eventsOfType(repository.EventLogin)
	if len(logins) != 1 {
		t.Fatalf("login audit entries = %d, want 1", len(logins))
	}
	if logins[0].Status != repository.StatusSuccess || *logins[0].UserID != user.ID {
		t.Error("login audit entry should record success for the user")
	}
}

// Unknown usernames and wrong passwords must be indistinguishable to the
// caller, and the unknown-user failure must still be audit logged.
func TestLogin_UnknownUsername(t *testing.T) {
	svc, _, _, _, logRepo := newTestService()

	_, err := svc.StudentLogin(context.Background(), LoginRequest{
		Username: "nobody",
		Password: "Passw0rdOk",
	}, "10.0.0.1", "go-test")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}

	failures := logRepo.eventsOfType(repository.EventLoginFailed)
	if len(failures) != 1 {
		t.Fatalf("failed-login audit entries = %d, want 1", len(failures))
	}
	if failures[0].UserID != nil {
		t.Error("unknown-user entry should carry a nil user ID")
	}
}

func TestLogin_RoleMismatch(t *testing.T) {
	svc, users, _, _, _ := newTestService()

	users.add(&repository.User{
		Username:     "admin",
		PasswordHash: mustHash(t, "Passw0rdOk"),
		Role:         repository.RoleOperator,
	})

	// An operator credential presented at the student endpoint gets the same
	// generic rejection as a bad password.
	_, err := svc.StudentLogin(context.Background(), LoginRequest{
		Username: "admin",
		Password: "Passw0rdOk",
	}, "10.0.0.1", "go-test")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLogin_WrongPasswordIncrementsCounter(t *testing.T) {
	svc, users, _, _, _ := newTestService()
	ctx := context.Background()

	user := seedStudent(t, users, "PRN2024001", "Passw0rdOk")

	_, err := svc.StudentLogin(ctx, LoginRequest{
		Username: "PRN2024001",
		Password: "WrongPass1",
	}, "10.0.0.1", "go-test")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}

	stored, _ := users.GetByID(ctx, user.ID)
	if stored.FailedLoginAttempts != 1 {
		t.Errorf("failed attempts = %d, want 1", stored.FailedLoginAttempts)
	}
	if stored.AccountLocked {
		t.Error("account should not be locked after a single failure")
	}
}

func TestLogin_LockoutAfterMaxAttempts(t *testing.T) {
	svc, users, _, sessionRepo, logRepo := newTestService()
	ctx := context.Background()

	user := seedStudent(t, users, "PRN2024001", "Passw0rdOk")

	// An existing session that must be revoked when the lock trips.
	_, err := svc.StudentLogin(ctx, LoginRequest{Username: "PRN2024001", Password: "Passw0rdOk"}, "10.0.0.1", "go-test")
	if err != nil {
		t.Fatalf("seed login failed: %v", err)
	}

	for i := 0; i < testSecurityConfig().MaxFailedAttempts; i++ {
		_, err := svc.StudentLogin(ctx, LoginRequest{
			Username: "PRN2024001",
			Password: "WrongPass1",
		}, "10.0.0.1", "go-test")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: err = %v, want ErrInvalidCredentials", i+1, err)
		}
	}

	stored, _ := users.GetByID(ctx, user.ID)
	if !stored.AccountLocked {
		t.Fatal("account should be locked after max failed attempts")
	}
	if stored.LockExpiresAt == nil || !stored.LockExpiresAt.After(time.Now()) {
		t.Fatal("lock expiry should be in the future")
	}

	// Locked accounts reject even the correct password.
	_, err = svc.StudentLogin(ctx, LoginRequest{
		Username: "PRN2024001",
		Password: "Passw0rdOk",
	}, "10.0.0.1", "go-test")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("err = %v, want ErrAccountLocked", err)
	}

	if sessionRepo.activeCount(user.ID) != 0 {
		t.Error("all sessions should be revoked when the account locks")
	}

	suspicious := logRepo.eventsOfType(repository.EventSuspiciousActivity)
	if len(suspicious) != 1 {
		t.Errorf("suspicious-activity entries = %d, want 1", len(suspicious))
	}
}

func TestLogin_ExpiredLockAdmitsAndResets(t *testing.T) {
	svc, users, _, _, _ := newTestService()
	ctx := context.Background()

	expired := time.Now().UTC().Add(-time.Minute)
	user := users.add(&repository.User{
		Username:            "PRN2024001",
		PasswordHash:        mustHash(t, "Passw0rdOk"),
		Role:                repository.RoleStudent,
		FailedLoginAttempts: 5,
		AccountLocked:       true,
		LockExpiresAt:       &expired,
	})

	result, err := svc.StudentLogin(ctx, LoginRequest{
		Username: "PRN2024001",
		Password: "Passw0rdOk",
	}, "10.0.0.1", "go-test")
	if err != nil {
		t.Fatalf("login after lock expiry should succeed, got %v", err)
	}
	if result.Token == "" {
		t.Error("token should be issued")
	}

	stored, _ := users.GetByID(ctx, user.ID)
	if stored.AccountLocked || stored.FailedLoginAttempts != 0 || stored.LockExpiresAt != nil {
		t.Error("lock state should be fully cleared on successful login")
	}
}

func newTwoFactorUser(t *testing.T, users *mockUserRepository, backupCodes []string) (*repository.User, string) {
	t.Helper()
	secret, err := totp.GenerateSecret()
	if err != nil {
		t.Fatalf("failed to generate secret: %v", err)
	}

	hashes := make([]string, 0, len(backupCodes))
	for _, code := range backupCodes {
		hash, err := totp.HashBackupCode(code)
		if err != nil {
			t.Fatalf("failed to hash backup code: %v", err)
		}
		hashes = append(hashes, hash)
	}

	user := users.add(&repository.User{
		Username:         "PRN2024001",
		PasswordHash:     mustHash(t, "Passw0rdOk"),
		Role:             repository.RoleStudent,
		TwoFactorEnabled: true,
		TwoFactorSecret:  &secret,
		BackupCodes:      hashes,
	})
	return user, secret
}

func TestLogin_TwoFactorChallenge(t *testing.T) {
	svc, users, _, sessionRepo, _ := newTestService()
	ctx := context.Background()

	user, secret := newTwoFactorUser(t, users, nil)

	// Correct credentials yield a challenge, not a session.
	result, err := svc.StudentLogin(ctx, LoginRequest{
		Username: "PRN2024001",
		Password: "Passw0rdOk",
	}, "10.0.0.1", "go-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.RequiresTwoFactor {
		t.Fatal("challenge expected for 2FA-enabled account")
	}
	if result.Token != "" || result.SessionID != "" {
		t.Fatal("no token or session may be issued before the second factor")
	}
	if sessionRepo.activeCount(user.ID) != 0 {
		t.Fatal("no session may exist before the second factor")
	}

	// A valid TOTP code completes the login.
	code := totp.GenerateCode(secret, time.Now(), testSecurityConfig().TOTPTimeStep)
	completed, err := svc.VerifyTwoFactor(ctx, TwoFactorRequest{
		Username: "PRN2024001",
		Code:     code,
	}, "10.0.0.1", "go-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if completed.Token == "" || completed.SessionID == "" {
		t.Error("completed challenge should issue token and session")
	}
	if sessionRepo.activeCount(user.ID) != 1 {
		t.Errorf("active sessions = %d, want 1", sessionRepo.activeCount(user.ID))
	}
}

func TestVerifyTwoFactor_WrongCode(t *testing.T) {
	svc, users, _, _, _ := newTestService()
	ctx := context.Background()

	user, secret := newTwoFactorUser(t, users, nil)

	// Any code that is not the current one (or its neighbors) must fail and
	// count toward the lockout.
	wrong := totp.GenerateCode(secret, time.Now().Add(-10*time.Minute), testSecurityConfig().TOTPTimeStep)
	current := totp.GenerateCode(secret, time.Now(), testSecurityConfig().TOTPTimeStep)
	if wrong == current {
		t.Skip("generated codes collided")
	}

	_, err := svc.VerifyTwoFactor(ctx, TwoFactorRequest{
		Username: "PRN2024001",
		Code:     wrong,
	}, "10.0.0.1", "go-test")
	if !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Fatalf("err = %v, want ErrInvalidTwoFactorCode", err)
	}

	stored, _ := users.GetByID(ctx, user.ID)
	if stored.FailedLoginAttempts != 1 {
		t.Errorf("failed attempts = %d, want 1", stored.FailedLoginAttempts)
	}
}

func TestVerifyTwoFactor_NotEnabled(t *testing.T) {
	svc, users, _, _, _ := newTestService()

	seedStudent(t, users, "PRN2024001", "Passw0rdOk")

	_, err := svc.VerifyTwoFactor(context.Background(), TwoFactorRequest{
		Username: "PRN2024001",
		Code:     "123456",
	}, "10.0.0.1", "go-test")
	if !errors.Is(err, ErrTwoFactorNotEnabled) {
		t.Fatalf("err = %v, want ErrTwoFactorNotEnabled", err)
	}
}

func TestUseBackupCode_SingleUse(t *testing.T) {
	svc, users, _, _, _ := newTestService()
	ctx := context.Background()

	codes, err := totp.GenerateBackupCodes(2)
	if err != nil {
		t.Fatalf("failed to generate backup codes: %v", err)
	}
	user, _ := newTwoFactorUser(t, users, codes)

	result, err := svc.UseBackupCode(ctx, BackupCodeRequest{
		Username:   "PRN2024001",
		BackupCode: codes[0],
	}, "10.0.0.1", "go-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Token == "" {
		t.Error("backup code login should issue a token")
	}

	stored, _ := users.GetByID(ctx, user.ID)
	if len(stored.BackupCodes) != 1 {
		t.Fatalf("remaining backup codes = %d, want 1", len(stored.BackupCodes))
	}

	// The consumed code can never be accepted again.
	_, err = svc.UseBackupCode(ctx, BackupCodeRequest{
		Username:   "PRN2024001",
		BackupCode: codes[0],
	}, "10.0.0.1", "go-test")
	if !errors.Is(err, ErrInvalidBackupCode) {
		t.Fatalf("err = %v, want ErrInvalidBackupCode", err)
	}

	// The sibling code is still valid.
	_, err = svc.UseBackupCode(ctx, BackupCodeRequest{
		Username:   "PRN2024001",
		BackupCode: codes[1],
	}, "10.0.0.1", "go-test")
	if err != nil {
		t.Fatalf("second backup code should still work, got %v", err)
	}
}

func TestIssueSession_EnforcesCap(t *testing.T) {
	svc, users, _, sessionRepo, _ := newTestService()
	ctx := context.Background()

	user := users.add(&repository.User{
		Username:     "PRN2024001",
		PasswordHash: mustHash(t, "Passw0rdOk"),
		Role:         repository.RoleStudent,
		MaxSessions:  2,
	})

	for i := 0; i < 4; i++ {
		if _, err := svc.StudentLogin(ctx, LoginRequest{
			Username: "PRN2024001",
			Password: "Passw0rdOk",
		}, "10.0.0.1", "go-test"); err != nil {
			t.Fatalf("login %d failed: %v", i+1, err)
		}
	}

	if got := sessionRepo.activeCount(user.ID); got != 2 {
		t.Errorf("active sessions = %d, want cap of 2", got)
	}
}

func TestLogin_MissingFields(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	_, err := svc.StudentLogin(context.Background(), LoginRequest{}, "10.0.0.1", "go-test")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func validRegisterRequest() RegisterRequest {
	return RegisterRequest{
		Name:         "Test Student",
		Branch:       "Computer Engineering",
		DOB:          "2004-06-15",
		Phone:        "9876543210",
		AcademicYear: "2024-25",
		Address:      "Pune",
		PRN:          "PRN2024001",
		Password:     "Passw0rdOk",
	}
}

func TestRegister_Success(t *testing.T) {
	svc, users, students, _, _ := newTestService()
	ctx := context.Background()

	validationErrors, err := svc.Register(ctx, validRegisterRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(validationErrors) > 0 {
		t.Fatalf("unexpected validation errors: %v", validationErrors)
	}

	student, err := students.GetByPRN(ctx, "PRN2024001")
	if err != nil {
		t.Fatal("student profile should exist after registration")
	}

	user, err := users.GetByUsername(ctx, "PRN2024001")
	if err != nil {
		t.Fatal("credential record should exist after registration")
	}
	if user.Role != repository.RoleStudent {
		t.Errorf("role = %q, want student", user.Role)
	}
	if user.StudentID == nil || *user.StudentID != student.ID {
		t.Error("credential record should reference the student profile")
	}
	if user.PasswordHash == "Passw0rdOk" {
		t.Error("password must be stored hashed")
	}
}

func TestRegister_DuplicatePRN(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, validRegisterRequest()); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}

	_, err := svc.Register(ctx, validRegisterRequest())
	if !errors.Is(err, ErrPRNExists) {
		t.Fatalf("err = %v, want ErrPRNExists", err)
	}
}

func TestRegister_FieldValidation(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	tests := []struct {
		name   string
		mutate func(*RegisterRequest)
		field  string
	}{
		{"missing name", func(r *RegisterRequest) { r.Name = "" }, "name"},
		{"bad dob format", func(r *RegisterRequest) { r.DOB = "15-06-2004" }, "dob"},
		{"weak password", func(r *RegisterRequest) { r.Password = "short" }, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRegisterRequest()
			tt.mutate(&req)

			validationErrors, err := svc.Register(context.Background(), req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(validationErrors) == 0 {
				t.Fatal("expected validation errors")
			}
			found := false
			for _, ve := range validationErrors {
				if ve.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected a validation error for field %q, got %v", tt.field, validationErrors)
			}
		})
	}
}

// For any credential that registers successfully, the same credential must be
// able to log in immediately afterwards.
func TestRegisterThenLoginRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		svc, _, _, _, _ := newTestService()
		ctx := context.Background()

		prn := "PRN" + rapid.StringMatching(`[0-9]{7}`).Draw(t, "prn")
		upper := rapid.StringMatching(`[A-Z]{2}`).Draw(t, "upper")
		lower := rapid.StringMatching(`[a-z]{4}`).Draw(t, "lower")
		digits := rapid.StringMatching(`[0-9]{2}`).Draw(t, "digits")
		password := upper + lower + digits

		req := validRegisterRequest()
		req.PRN = prn
		req.Password = password

		validationErrors, err := svc.Register(ctx, req)
		if err != nil {
			t.Fatalf("registration failed: %v", err)
		}
		if len(validationErrors) > 0 {
			t.Fatalf("unexpected validation errors: %v", validationErrors)
		}

		result, err := svc.StudentLogin(ctx, LoginRequest{
			Username: prn,
			Password: password,
		}, "10.0.0.1", "go-test")
		if err != nil {
			t.Fatalf("login after registration failed: %v", err)
		}
		if result.Token == "" {
			t.Fatal("token should be issued")
		}
	})
}
