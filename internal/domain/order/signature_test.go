package order

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentSignature(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("order_ABC|pay_XYZ"))
	want := hex.EncodeToString(mac.Sum(nil))

	got := PaymentSignature([]byte("secret"), "order_ABC", "pay_XYZ")
	assert.Equal(t, want, got)
	assert.Len(t, got, 64)
	assert.NotEqual(t, got, PaymentSignature([]byte("secret"), "order_ABC|", "pay_XYZ"))
}

func TestWebhookSignature(t *testing.T) {
	a := WebhookSignature([]byte("whsec"), []byte(`{"a":1}`))
	b := WebhookSignature([]byte("whsec"), []byte(`{"a":2}`))
	assert.NotEqual(t, a, b)
	assert.True(t, signatureEqual(a, WebhookSignature([]byte("whsec"), []byte(`{"a":1}`))))
	assert.False(t, signatureEqual(a, a[:63]))
}
