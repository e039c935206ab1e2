// Package pkce generates Proof Key for Code Exchange material (RFC 7636) for the
// Spotify authorization-code flow.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// VerifierLength is the number of characters in a generated code verifier.
// RFC 7636 allows 43-128; the maximum gives ~762 bits of entropy over the alphabet below.
const VerifierLength = 128

const verifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// maxUnbiasedByte is the largest multiple of len(verifierAlphabet) that fits in a byte.
// Random bytes at or above it are rejected so every character is equally likely.
const maxUnbiasedByte = 256 - (256 % len(verifierAlphabet))

// Codes holds a verifier and its derived challenge for one login attempt.
type Codes struct {
	// CodeVerifier is persisted until the code exchange consumes it.
	CodeVerifier string `json:"code_verifier"`
	// CodeChallenge is sent on the authorize redirect only and never stored.
	CodeChallenge string `json:"code_challenge"`
}

// GeneratePKCECodes generates a fresh verifier and its S256 challenge.
//
// Returns:
//   - *Codes: The verifier/challenge pair
//   - error: An error if the system random source fails
func GeneratePKCECodes() (*Codes, error) {
	verifier, err := GenerateVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return &Codes{
		CodeVerifier:  verifier,
		CodeChallenge: DeriveChallenge(verifier),
	}, nil
}

// GenerateVerifier returns a VerifierLength string drawn uniformly from [A-Za-z0-9].
func GenerateVerifier() (string, error) {
	out := make([]byte, 0, VerifierLength)
	buf := make([]byte, VerifierLength)
	for len(out) < VerifierLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiasedByte {
				continue
			}
			out = append(out, verifierAlphabet[int(b)%len(verifierAlphabet)])
			if len(out) == VerifierLength {
				break
			}
		}
	}
	return string(out), nil
}

// DeriveChallenge computes BASE64URL(SHA256(verifier)) without padding.
func DeriveChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
