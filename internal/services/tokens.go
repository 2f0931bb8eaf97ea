package services

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

// inviteTokenBytes gives 256 bits of entropy per link.
const inviteTokenBytes = 32

func generateToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// generateCode returns a zero-padded six digit login code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
