package notify

import (
	"context"
	"errors"
	"strings"
)

// Kind classifies what a message carries so senders can route or template it.
type Kind string

const (
	KindLoginOTP          Kind = "login_otp"
	KindEmailVerification Kind = "email_verification"
)

// Message is one outbound delivery to a single recipient.
type Message struct {
	Kind    Kind
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a message. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ErrDeliveryFailed wraps provider-side failures so callers can treat all
// delivery problems uniformly.
var ErrDeliveryFailed = errors.New("notification delivery failed")

// MaskEmail redacts an address for logs and audit records: "jane@army.mil.in"
// becomes "j***@army.mil.in".
func MaskEmail(addr string) string {
	at := strings.IndexByte(addr, '@')
	if at <= 0 {
		return "***"
	}
	return addr[:1] + "***" + addr[at:]
}
