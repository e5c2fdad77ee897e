package notify

import (
	"context"
	"fmt"

	"github.com/resendlabs/resend-go"
	"github.com/sirupsen/logrus"
)

// ResendSender delivers messages through the Resend email API.
type ResendSender struct {
	client *resend.Client
	from   string
	log    *logrus.Logger
}

// NewResendSender builds a sender using the given API key. The from address
// must be a verified sender on the Resend account.
func NewResendSender(apiKey, from string, log *logrus.Logger) (*ResendSender, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend sender: missing api key")
	}
	if from == "" {
		return nil, fmt.Errorf("resend sender: missing from address")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
		log:    log,
	}, nil
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Text,
		Html:    msg.HTML,
	}

	sent, err := s.client.Emails.Send(req)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"kind": msg.Kind,
			"to":   MaskEmail(msg.To),
		}).WithError(err).Warn("email delivery failed")
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	s.log.WithFields(logrus.Fields{
		"kind":     msg.Kind,
		"to":       MaskEmail(msg.To),
		"email_id": sent.Id,
	}).Debug("email delivered")
	return nil
}
