package kite

import (
	"crypto/sha256"
	"encoding/hex"
)

// Checksum computes the token-exchange checksum required by the Kite Connect
// session API: the hex SHA-256 digest of api_key + request_token + api_secret.
func Checksum(apiKey, requestToken, apiSecret string) string {
	sum := sha256.Sum256([]byte(apiKey + requestToken + apiSecret))
	return hex.EncodeToString(sum[:])
}
