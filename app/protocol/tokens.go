package protocol

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
)

// Lengths of the generated secrets, matching what peer installations expect.
const (
	TokenLength    = 128
	StateLength    = 56
	VerifierLength = 90
)

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateToken returns a random alphanumeric secret of the given length.
func GenerateToken(length int) string {
	var sb strings.Builder
	sb.Grow(length)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		sb.WriteByte(tokenAlphabet[n.Int64()])
	}
	return sb.String()
}

func Sha1Hex(value string) string {
	sum := sha1.Sum([]byte(value))
	return hex.EncodeToString(sum[:])
}

// RequestHash derives the storage key for a pending request correlation id.
// Only the hash is kept on the requesting side, so a database leak does not
// expose the id needed to forge an acceptance.
func RequestHash(requestID string) string {
	return Sha1Hex(requestID)
}

// Proof demonstrates knowledge of the token exchanged during the initial
// friend request without sending it again.
func Proof(token, requestID string) string {
	return Sha1Hex(token + requestID)
}

// Signature seals the handshake over both token halves. Each side computes
// it with its own out token first.
func Signature(outToken, inToken string) string {
	return Sha1Hex(outToken + inToken)
}

// ChallengeFromVerifier computes the S256 code challenge for a verifier.
func ChallengeFromVerifier(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return hex.EncodeToString(sum[:])
}

// SanitizeCodeChallenge normalizes a stored code challenge. Anything that is
// not a well-formed S256 challenge becomes an unmatchable marker rather than
// an empty value, so a mangled challenge can never be bypassed.
func SanitizeCodeChallenge(challenge string) string {
	if strings.HasPrefix(challenge, "S256$") && len(challenge) == 69 {
		return challenge
	}
	return "S256$invalid"
}

// VerifyChallenge reports whether verifier satisfies the stored challenge.
func VerifyChallenge(challenge, verifier string) bool {
	if verifier == "" {
		return false
	}
	return SanitizeCodeChallenge(challenge) == "S256$"+ChallengeFromVerifier(verifier)
}
