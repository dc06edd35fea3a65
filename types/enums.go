package types

type SubscriptionStatus string

const (
	SubscriptionPending  SubscriptionStatus = "pending"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionExpired  SubscriptionStatus = "expired"
	SubscriptionRejected SubscriptionStatus = "rejected"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

// Terminal reports whether an admin already decided the payment.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentApproved || s == PaymentRejected
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentApproved, PaymentRejected:
		return true
	}
	return false
}

type StatusKind string

const (
	StatusIdle    StatusKind = "idle"
	StatusQueued  StatusKind = "queued"
	StatusRunning StatusKind = "running"
)

const (
	NoteSubscriptionCreated   = "Subscription created, awaiting payment verification"
	NoteSubscriptionActivated = "Subscription activated"
	NotePaymentReceived       = "Payment proof received"
)

// PaymentNote is the history note for a payment transition.
func PaymentNote(status PaymentStatus, note string) string {
	if note != "" {
		return note
	}
	return "Status changed to " + string(status)
}
