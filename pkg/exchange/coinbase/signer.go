package coinbase

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gdax-broker/pkg/exchange"
)

// Signer produces CB-ACCESS-SIGN values for authenticated requests.
type Signer struct {
	key        string
	passphrase string
	secret     []byte
	clock      Clock
}

// NewSigner decodes the base64 secret once. A malformed secret fails here so
// no request is ever sent with an unusable key.
func NewSigner(creds exchange.Credentials, clock Clock) (*Signer, error) {
	if creds.Secret == "" {
		return nil, exchange.SigningError(errors.New("api secret is empty"))
	}
	secret, err := base64.StdEncoding.DecodeString(creds.Secret)
	if err != nil {
		return nil, exchange.SigningError(fmt.Errorf("decode api secret: %w", err))
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &Signer{key: creds.Key, passphrase: creds.Passphrase, secret: secret, clock: clock}, nil
}

// Sign signs with the current time.
func (s *Signer) Sign(method, path, body string) (timestamp, signature string, err error) {
	if s == nil || s.clock == nil {
		return "", "", exchange.SigningError(errors.New("signer not initialised"))
	}
	return s.SignAt(s.clock.Now(), method, path, body)
}

// SignAt returns base64(HMAC-SHA256(secret, ts+method+path+body)) where ts is
// at in Unix seconds. path includes the query string.
func (s *Signer) SignAt(at time.Time, method, path, body string) (timestamp, signature string, err error) {
	if s == nil || len(s.secret) == 0 {
		return "", "", exchange.SigningError(errors.New("signer not initialised"))
	}
	timestamp = strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, s.secret)
	if _, err := mac.Write([]byte(timestamp + method + path + body)); err != nil {
		return "", "", exchange.SigningError(err)
	}
	return timestamp, base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
