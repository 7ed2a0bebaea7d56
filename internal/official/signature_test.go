package official

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignatureMatchesSortedSHA1(t *testing.T) {
	sum := sha1.Sum([]byte("1700000000nonce42token"))
	want := hex.EncodeToString(sum[:])

	assert.Equal(t, want, Signature("token", "1700000000", "nonce42"))
	assert.True(t, VerifySignature("token", "1700000000", "nonce42", want))
}

func TestSignatureIsOrderIndependent(t *testing.T) {
	values := []string{"token", "1700000000", "nonce42"}
	base := Signature(values[0], values[1], values[2])

	perms := [][3]int{{0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for _, p := range perms {
		assert.Equal(t, base, Signature(values[p[0]], values[p[1]], values[p[2]]))
	}
}

func TestVerifySignatureRejects(t *testing.T) {
	good := Signature("token", "1700000000", "nonce42")

	cases := map[string]struct {
		token, timestamp, nonce, signature string
	}{
		"wrong token":      {"other", "1700000000", "nonce42", good},
		"tampered nonce":   {"token", "1700000000", "nonce43", good},
		"uppercase digest": {"token", "1700000000", "nonce42", strings.ToUpper(good)},
		"empty signature":  {"token", "1700000000", "nonce42", ""},
		"empty token":      {"", "1700000000", "nonce42", Signature("", "1700000000", "nonce42")},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.False(t, VerifySignature(tc.token, tc.timestamp, tc.nonce, tc.signature))
		})
	}
}
