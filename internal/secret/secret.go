// Package secret holds credentials in memguard enclaves so they are
// encrypted while at rest in memory.
package secret

import (
	"fmt"

	"github.com/awnumar/memguard"
)

// Token is an access token or shared secret. The zero value and a nil
// *Token are both empty.
type Token struct {
	enclave *memguard.Enclave
}

// NewToken seals s. An empty string yields an empty Token.
func NewToken(s string) *Token {
	if s == "" {
		return &Token{}
	}
	return &Token{enclave: memguard.NewEnclave([]byte(s))}
}

// Empty reports whether no secret is held.
func (t *Token) Empty() bool {
	return t == nil || t.enclave == nil
}

// Use opens the enclave and passes the plaintext to fn. The buffer is
// wiped when fn returns and must not be retained.
func (t *Token) Use(fn func(plain []byte) error) error {
	if t.Empty() {
		return fn(nil)
	}
	buf, err := t.enclave.Open()
	if err != nil {
		return fmt.Errorf("open secret: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// Reveal returns a copy of the plaintext for APIs that need a string.
func (t *Token) Reveal() (string, error) {
	var out string
	err := t.Use(func(plain []byte) error {
		out = string(plain)
		return nil
	})
	return out, err
}

// Equal compares candidate against the secret in constant time. An empty
// Token matches nothing.
func (t *Token) Equal(candidate string) bool {
	if t.Empty() {
		return false
	}
	buf, err := t.enclave.Open()
	if err != nil {
		return false
	}
	defer buf.Destroy()
	return buf.EqualTo([]byte(candidate))
}

func (t *Token) String() string {
	if t.Empty() {
		return ""
	}
	return "[redacted]"
}
