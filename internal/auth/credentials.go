package auth

import (
	"fmt"

	"github.com/BradenHooton/cyberarcade/internal/models"
	pkgauth "github.com/BradenHooton/cyberarcade/pkg/auth"
)

// dummyPassword seeds the hash used to burn bcrypt time for unknown identifiers.
const dummyPassword = "cyberarcade-timing-equalizer"

// Verification is the outcome of checking a supplied password.
type Verification struct {
	OK       bool
	External bool // account has no local credential; OK is trivially true
}

// CredentialVerifier checks passwords against stored bcrypt hashes.
// The plaintext is never logged or retained.
type CredentialVerifier struct {
	cost      int
	dummyHash string
}

// NewCredentialVerifier hashes new passwords at cost. The dummy hash shares
// that cost so unknown identifiers take as long as real comparisons.
func NewCredentialVerifier(cost int) (*CredentialVerifier, error) {
	dummy, err := pkgauth.HashPasswordWithCost(dummyPassword, cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare timing hash: %w", err)
	}
	return &CredentialVerifier{cost: cost, dummyHash: dummy}, nil
}

// Verify compares supplied against the account's credential hash.
func (v *CredentialVerifier) Verify(acct *models.Account, supplied string) Verification {
	if acct.IsExternal() {
		return Verification{OK: true, External: true}
	}
	return Verification{OK: pkgauth.ComparePassword(*acct.CredentialHash, supplied) == nil}
}

// EqualizeTiming performs a throwaway comparison so a miss on the account
// lookup costs the same as a wrong password.
func (v *CredentialVerifier) EqualizeTiming(supplied string) {
	_ = pkgauth.ComparePassword(v.dummyHash, supplied)
}

// Hash derives a credential hash at the verifier's cost.
func (v *CredentialVerifier) Hash(password string) (string, error) {
	return pkgauth.HashPasswordWithCost(password, v.cost)
}
