// Package notify delivers OTP codes and verification links to users. The
// engine talks to the Sender interface only; the Resend-backed sender is the
// production implementation and tests plug in recorders.
package notify
