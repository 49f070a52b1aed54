package events

// Topic constants for checkout events.
const (
	TopicPaymentVerified = "payment.verified"
	TopicPaymentCaptured = "payment.captured"
	TopicPaymentFailed   = "payment.failed"
	TopicCouponRedeemed  = "coupon.redeemed"
)

// DefaultTopics returns every topic the service emits.
func DefaultTopics() []string {
	return []string{
		TopicPaymentVerified,
		TopicPaymentCaptured,
		TopicPaymentFailed,
		TopicCouponRedeemed,
	}
}
