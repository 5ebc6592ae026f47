package key

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	DefaultPrefix = "|Aethra|"
	DefaultLength = 16

	charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Generate returns prefix followed by length random alphanumeric characters.
func Generate(prefix string, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("%w: key length must be positive, got %d", ErrInvalidArgument, length)
	}
	limit := big.NewInt(int64(len(charset)))
	body := make([]byte, length)
	for i := range body {
		num, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate random key part: %w", err)
		}
		body[i] = charset[num.Int64()]
	}
	return prefix + string(body), nil
}
