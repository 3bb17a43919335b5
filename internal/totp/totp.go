// Package totp implements time-based one-time passwords (HOTP dynamic
// truncation over a sliding time counter), backup code generation, and the
// one-way hashing used to store backup codes.
//
// Verification here is stateless: a code that matches any counter inside the
// accepted window verifies every time it is presented within that window.
// Replay prevention, if any, is policy for the caller.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultTimeStep is the interval for which a single code is valid.
	DefaultTimeStep = 30 * time.Second
	// DefaultWindow is the number of adjacent time steps accepted on either
	// side of the current one, tolerating clock skew of window*step seconds.
	DefaultWindow = 1
	// Digits is the length of a generated code.
	Digits = 6
	// DefaultBackupCodeCount is the number of backup codes issued at 2FA setup.
	DefaultBackupCodeCount = 8

	secretBytes     = 20 // 160 bits, sufficient for HMAC-SHA1 keying
	backupCodeBytes = 4  // 8 hex characters
	backupCodeCost  = 10
)

// GenerateSecret produces a fresh random shared secret, hex-encoded.
// An entropy-source failure is returned as an error and must be treated
// as fatal by the caller.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate totp secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateCode derives the 6-digit code for the time step containing at.
// Deterministic for a given secret and counter.
func GenerateCode(secret string, at time.Time, timeStep time.Duration) string {
	if timeStep <= 0 {
		timeStep = DefaultTimeStep
	}
	counter := uint64(at.Unix() / int64(timeStep/time.Second))
	return hotp(secret, counter)
}

// VerifyCode checks a submitted code against all counters in
// [current-window, current+window]. Comparison is constant-time per counter.
func VerifyCode(secret, code string, at time.Time, timeStep time.Duration, window int) bool {
	if len(code) != Digits {
		return false
	}
	if timeStep <= 0 {
		timeStep = DefaultTimeStep
	}
	if window < 0 {
		window = DefaultWindow
	}

	counter := at.Unix() / int64(timeStep/time.Second)
	matched := false
	for i := -window; i <= window; i++ {
		expected := hotp(secret, uint64(counter+int64(i)))
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			matched = true
		}
	}
	return matched
}

// hotp computes the RFC 4226 dynamic truncation of HMAC-SHA1(secret, counter):
// the low nibble of the final hash byte selects a 4-byte window, the top bit
// is masked, and the value is reduced modulo 10^6 and zero-padded.
func hotp(secret string, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := (uint32(sum[offset]&0x7f) << 24) |
		(uint32(sum[offset+1]) << 16) |
		(uint32(sum[offset+2]) << 8) |
		uint32(sum[offset+3])

	return fmt.Sprintf("%06d", value%1000000)
}

// GenerateBackupCodes produces count single-use recovery codes in plaintext.
// Callers return them to the user exactly once and persist only hashes.
func GenerateBackupCodes(count int) ([]string, error) {
	if count <= 0 {
		count = DefaultBackupCodeCount
	}

	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		buf := make([]byte, backupCodeBytes)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		codes = append(codes, strings.ToUpper(hex.EncodeToString(buf)))
	}
	return codes, nil
}

// HashBackupCode returns a one-way hash of a backup code for storage.
func HashBackupCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), backupCodeCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyBackupCode reports whether code matches the stored hash.
func VerifyBackupCode(code, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}

// ProvisioningURI renders the otpauth:// URL consumed by authenticator apps.
// The shared secret is base32-encoded as those apps expect.
func ProvisioningURI(issuer, account, secret string) string {
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(secret))
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s",
		url.PathEscape(issuer),
		url.PathEscape(account),
		encoded,
		url.QueryEscape(issuer),
	)
}
