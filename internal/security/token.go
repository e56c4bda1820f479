package security

import "encoding/base64"

const resetTokenSize = 32

// NewResetToken returns a URL safe random token for password resets.
func NewResetToken() (string, error) {
	b, err := randomBytes(resetTokenSize)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
