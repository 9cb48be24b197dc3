package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// Signed cookie values look like "s:<value>.<base64url-signature>".
// The prefix marks the value as signed; the signature is an HMAC-SHA256
// over the raw value.
const signedPrefix = "s:"

var (
	// ErrMalformedValue means the cookie value is too short or has no
	// value/signature separator.
	ErrMalformedValue = errors.New("session: malformed signed value")
	// ErrWrongPrefix means the cookie value does not carry the signed-value
	// prefix.
	ErrWrongPrefix = errors.New("session: missing signed prefix")
	// ErrVerificationFailed means no configured secret produced a matching
	// signature.
	ErrVerificationFailed = errors.New("session: signature verification failed")
)

// Sign produces a tamper-evident cookie value for the given secret.
func Sign(value, secret string) string {
	return signedPrefix + value + "." + signature(value, secret)
}

// Unsign verifies a signed cookie value against each secret in order and
// returns the embedded value on the first match. Trying every secret is
// what allows rotating secrets without invalidating live sessions: keep
// the old secret in the list until the last cookie signed with it expires.
func Unsign(signed string, secrets []string) (string, error) {
	if len(signed) <= len(signedPrefix) {
		return "", ErrMalformedValue
	}
	if !strings.HasPrefix(signed, signedPrefix) {
		return "", ErrWrongPrefix
	}

	rest := signed[len(signedPrefix):]
	dot := strings.LastIndexByte(rest, '.')
	if dot <= 0 || dot == len(rest)-1 {
		return "", ErrMalformedValue
	}

	value, sig := rest[:dot], rest[dot+1:]
	for _, secret := range secrets {
		if hmac.Equal([]byte(sig), []byte(signature(value, secret))) {
			return value, nil
		}
	}

	return "", ErrVerificationFailed
}

func signature(value, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
