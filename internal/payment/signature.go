package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the lowercase hex HMAC-SHA256 of message under secret.
func Sign(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPayment checks the checkout callback signature, HMAC(secret, orderID + "|" + paymentID).
func VerifyPayment(orderID, paymentID, signature, secret string) bool {
	return verify(secret, []byte(orderID+"|"+paymentID), signature)
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header against the raw body.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	return verify(secret, body, signature)
}

// verify compares the claimed bytes as given; padded or re-cased signatures are forged.
func verify(secret string, message []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, message)), []byte(signature))
}
