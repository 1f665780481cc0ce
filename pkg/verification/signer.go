package verification

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidToken is returned for malformed or forged verification tokens.
var ErrInvalidToken = errors.New("invalid verification token")

// Signer binds a request id to its verification code so that a scanned card can be
// checked without trusting the code alone.
type Signer struct {
	secret  []byte
	baseURL string
}

// NewSigner constructs a signer. baseURL may be empty, in which case URL returns the bare token.
func NewSigner(secret, baseURL string) *Signer {
	return &Signer{secret: []byte(secret), baseURL: strings.TrimRight(baseURL, "/")}
}

// Token returns "<id>.<code>.<signature>".
func (s *Signer) Token(requestID int64, code string) (string, error) {
	if requestID <= 0 || code == "" {
		return "", fmt.Errorf("request id and verification code required")
	}
	id := strconv.FormatInt(requestID, 10)
	return strings.Join([]string{id, code, s.sign(id, code)}, "."), nil
}

// URL returns the public verification link encoded into the card's QR.
func (s *Signer) URL(requestID int64, code string) (string, error) {
	token, err := s.Token(requestID, code)
	if err != nil {
		return "", err
	}
	if s.baseURL == "" {
		return token, nil
	}
	return s.baseURL + "/" + token, nil
}

// Parse validates a token and returns the embedded request id and code.
func (s *Signer) Parse(token string) (int64, string, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return 0, "", ErrInvalidToken
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 || parts[1] == "" {
		return 0, "", ErrInvalidToken
	}
	expected := s.sign(parts[0], parts[1])
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return 0, "", ErrInvalidToken
	}
	return id, parts[1], nil
}

func (s *Signer) sign(id, code string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(id + "|" + code))
	return hex.EncodeToString(mac.Sum(nil))[:32]
}
