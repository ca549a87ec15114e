package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifySignature checks a GitHub webhook HMAC-SHA256 signature
// ("sha256=<hex>"). An empty secret rejects everything: deployments
// without a configured secret never accept webhook traffic.
func VerifySignature(secret, signature string, body []byte) bool {
	if secret == "" {
		return false
	}
	hexDigest, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return false
	}
	received, err := hex.DecodeString(hexDigest)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(received, mac.Sum(nil))
}
