package auth

import (
	"crypto/sha256"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse/gatehouse/pkg/config"
)

// CredentialStore hashes and verifies passwords.
type CredentialStore struct {
	secret string
	cost   int
}

// NewCredentialStore creates a credential store from the auth configuration.
// An empty signing secret is tolerated but logged as a security warning:
// hashes produced without a secret are verifiable by anyone holding the
// database alone.
func NewCredentialStore(cfg config.AuthConfig, logger *logrus.Logger) *CredentialStore {
	if cfg.SigningSecret == "" && logger != nil {
		logger.Warn("GATEHOUSE_SECRET_KEY is not set; password hashes are peppered with an empty secret (insecure)")
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = config.DefaultBcryptCost
	}
	return &CredentialStore{secret: cfg.SigningSecret, cost: cost}
}

// prehash digests password||secret with SHA-256, producing a fixed 32-byte
// input for bcrypt regardless of password length.
func (s *CredentialStore) prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password + s.secret))
	return sum[:]
}

// Hash returns the bcrypt hash of the pre-hashed password. Each call salts
// independently, so hashing the same password twice yields different strings.
func (s *CredentialStore) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword(s.prehash(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether password matches the stored hash. A malformed
// stored hash verifies false; no error ever escapes to the caller.
func (s *CredentialStore) Verify(password, storedHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(storedHash), s.prehash(password))
	return err == nil
}
