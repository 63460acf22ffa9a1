package auth

import "crypto/rand"

// KeyLength is the length of activation and reset keys, matching the
// 20-character key columns in the schema.
const KeyLength = 20

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateKey returns a cryptographically unpredictable opaque key of n
// alphanumeric characters.
func GenerateKey(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	// Map bytes onto the alphabet by rejection sampling so every
	// character is uniformly distributed.
	out := make([]byte, 0, n)
	max := byte(256 - 256%len(keyAlphabet))
	for len(out) < n {
		for _, b := range buf {
			if b >= max {
				continue
			}
			out = append(out, keyAlphabet[int(b)%len(keyAlphabet)])
			if len(out) == n {
				break
			}
		}
		if len(out) < n {
			if _, err := rand.Read(buf); err != nil {
				return "", err
			}
		}
	}
	return string(out), nil
}

// KeyGenerator adapts GenerateKey to the lifecycle.KeyGenerator interface.
type KeyGenerator struct{}

// Generate returns a fresh opaque key of n characters.
func (KeyGenerator) Generate(n int) (string, error) {
	return GenerateKey(n)
}
