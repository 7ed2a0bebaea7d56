package official

import (
	"crypto/subtle"

	"github.com/silenceper/wechat/v2/util"
)

// Signature computes the handshake signature: SHA-1 over the lexicographically
// sorted concatenation of token, timestamp and nonce, lowercase hex.
func Signature(token, timestamp, nonce string) string {
	return util.Signature(token, timestamp, nonce)
}

// VerifySignature checks a handshake signature. An empty token never verifies.
func VerifySignature(token, timestamp, nonce, signature string) bool {
	if token == "" || signature == "" {
		return false
	}
	expected := Signature(token, timestamp, nonce)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
