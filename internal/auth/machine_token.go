package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const machineTokenPrefix = "wss_"

// GenerateMachineToken creates a token and the hash to put in
// auth.machine_token_hashes. Format: wss_<uuid>_<random_secret>
func GenerateMachineToken() (token, hash string, err error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate secret: %w", err)
	}
	token = fmt.Sprintf("%s%s_%s", machineTokenPrefix, uuid.New().String(), hex.EncodeToString(secretBytes))
	return token, HashToken(token), nil
}

// HashToken hashes a machine token for storage
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidTokenFormat checks prefix and length only.
func ValidTokenFormat(token string) bool {
	return len(token) >= len(machineTokenPrefix)+36+1+64 && strings.HasPrefix(token, machineTokenPrefix)
}

// MachineTokens is the static set of accepted token hashes.
type MachineTokens struct {
	hashes [][]byte
}

func NewMachineTokens(hexHashes []string) (*MachineTokens, error) {
	m := &MachineTokens{}
	for _, h := range hexHashes {
		raw, err := hex.DecodeString(strings.TrimSpace(h))
		if err != nil || len(raw) != sha256.Size {
			return nil, fmt.Errorf("invalid machine token hash %q", h)
		}
		m.hashes = append(m.hashes, raw)
	}
	return m, nil
}

func (m *MachineTokens) Len() int { return len(m.hashes) }

// Accepts compares against every hash so timing does not depend on the match.
func (m *MachineTokens) Accepts(token string) bool {
	if !ValidTokenFormat(token) {
		return false
	}
	sum := sha256.Sum256([]byte(token))
	found := 0
	for _, h := range m.hashes {
		found |= subtle.ConstantTimeCompare(sum[:], h)
	}
	return found == 1
}
