// Package signing authenticates admin requests with an HMAC over the method,
// path and an expiry timestamp. The CLI signs, the server verifies.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Header names carried by signed requests.
const (
	HeaderExpires   = "X-Admin-Expires"
	HeaderSignature = "X-Admin-Signature"
)

var (
	ErrMissing = errors.New("missing admin signature")
	ErrExpired = errors.New("admin signature expired")
	ErrInvalid = errors.New("invalid admin signature")
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	maxTTL time.Duration
	now    func() time.Time
}

// NewSigner creates a Signer. Signatures expiring further than maxTTL in the
// future are rejected; zero disables that check.
func NewSigner(secret []byte, maxTTL time.Duration) *Signer {
	return &Signer{secret: secret, maxTTL: maxTTL, now: time.Now}
}

// Sign returns the hex signature for a request.
func (s *Signer) Sign(method, path string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s %s:%d", method, path, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate compares the provided signature with the expected one.
func (s *Signer) Validate(method, path, expires, signature string) error {
	if expires == "" || signature == "" {
		return ErrMissing
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrInvalid
	}
	now := s.now()
	if now.Unix() > exp {
		return ErrExpired
	}
	if s.maxTTL > 0 && time.Unix(exp, 0).Sub(now) > s.maxTTL {
		return ErrInvalid
	}
	// hmac.Equal compares in constant time.
	if !hmac.Equal([]byte(s.Sign(method, path, exp)), []byte(signature)) {
		return ErrInvalid
	}
	return nil
}

// SignRequest sets the signature headers on req, valid for ttl.
func (s *Signer) SignRequest(req *http.Request, ttl time.Duration) {
	exp := s.now().Add(ttl).Unix()
	req.Header.Set(HeaderExpires, strconv.FormatInt(exp, 10))
	req.Header.Set(HeaderSignature, s.Sign(req.Method, req.URL.Path, exp))
}

// VerifyRequest checks the signature headers of req.
func (s *Signer) VerifyRequest(req *http.Request) error {
	return s.Validate(req.Method, req.URL.Path, req.Header.Get(HeaderExpires), req.Header.Get(HeaderSignature))
}
