// Package signing issues and verifies expiring HMAC signatures for asset keys.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL is how long a signed URL stays valid when the caller does not say.
const DefaultTTL = time.Hour

// Signer signs "{key}|{exp}" with a shared secret. There is no rotation: a
// new secret invalidates every outstanding signature.
type Signer struct {
	secret []byte
	now    func() time.Time
}

func New(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

// WithClock returns a copy of s that reads time from now.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	return &Signer{secret: s.secret, now: now}
}

func (s *Signer) mac(key string, exp int64) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(key + "|" + strconv.FormatInt(exp, 10)))
	return h.Sum(nil)
}

// Sign returns the unpadded base64url signature for key valid until exp
// (unix seconds).
func (s *Signer) Sign(key string, exp int64) string {
	return base64.RawURLEncoding.EncodeToString(s.mac(key, exp))
}

// Verify reports whether sig is valid for key and exp. A zero or elapsed
// expiry fails before any MAC is computed.
func (s *Signer) Verify(key string, exp int64, sig string) bool {
	if exp <= 0 || s.now().Unix() >= exp {
		return false
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(got, s.mac(key, exp))
}

// SignedURL builds "{base}/assets/get?key=..&exp=..&sig=..". A non-positive
// ttl uses DefaultTTL.
func (s *Signer) SignedURL(baseURL, key string, ttl time.Duration) string {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	exp := s.now().Add(ttl).Unix()

	q := url.Values{}
	q.Set("key", key)
	q.Set("exp", strconv.FormatInt(exp, 10))
	q.Set("sig", s.Sign(key, exp))
	return fmt.Sprintf("%s/assets/get?%s", strings.TrimRight(baseURL, "/"), q.Encode())
}
