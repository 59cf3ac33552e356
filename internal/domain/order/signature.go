package order

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// PaymentSignature returns the hex HMAC-SHA256 the gateway attaches to a
// checkout callback: HMAC(gatewayOrderID + "|" + paymentID, secret).
func PaymentSignature(secret []byte, gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// WebhookSignature returns the hex HMAC-SHA256 of a webhook body.
func WebhookSignature(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// signatureEqual compares two signatures in constant time.
func signatureEqual(expected, got string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}
