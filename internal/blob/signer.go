// Package blob issues time-limited read URLs for stored application images.
// Raw image bytes never pass through this service; callers hold opaque
// storage keys and exchange them for signed URLs here.
package blob

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	dErrors "civid/pkg/domain-errors"
)

// Signer mints and verifies HMAC-signed blob URLs. Read access only; there
// is deliberately no signing path for writes.
type Signer struct {
	baseURL string
	key     []byte
	ttl     time.Duration
	now     func() time.Time
}

func NewSigner(baseURL, signingKey string, ttl time.Duration) *Signer {
	return &Signer{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     []byte(signingKey),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SignedURL returns a read URL for key that expires after the configured TTL.
func (s *Signer) SignedURL(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "blob key cannot be empty")
	}
	if strings.Contains(key, "..") {
		return "", dErrors.New(dErrors.CodeInvalidInput, "blob key cannot contain path traversal")
	}

	expires := s.now().Add(s.ttl).Unix()
	sig := s.sign(key, expires)
	return fmt.Sprintf("%s/%s?expires=%d&sig=%s", s.baseURL, url.PathEscape(key), expires, sig), nil
}

// Verify checks a presented key, expiry and signature. It is used by the
// blob-serving edge; the comparison is constant-time.
func (s *Signer) Verify(key string, expires int64, sig string) error {
	if s.now().Unix() > expires {
		return dErrors.New(dErrors.CodeUnauthorized, "signed URL has expired")
	}
	expected := s.sign(key, expires)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return dErrors.New(dErrors.CodeUnauthorized, "invalid signature")
	}
	return nil
}

// VerifyRequest is a convenience for query-string parameters.
func (s *Signer) VerifyRequest(key, expiresParam, sig string) error {
	expires, err := strconv.ParseInt(expiresParam, 10, 64)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid expires parameter")
	}
	return s.Verify(key, expires, sig)
}

func (s *Signer) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.key)
	fmt.Fprintf(mac, "%s\n%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
