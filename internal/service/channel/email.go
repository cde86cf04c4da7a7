package channel

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"notifyrouter/pkg/circuitbreaker"
	"notifyrouter/pkg/logger"
	"notifyrouter/pkg/metrics"
)

// DefaultFromAddress is used when mail.from is not configured.
const DefaultFromAddress = "noreply@notificationservice.com"

// Message is one outbound email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
	HTML    bool
}

// MailTransport delivers a composed message. SMTP, Postmark and the log
// transport implement it.
type MailTransport interface {
	Send(ctx context.Context, msg Message) error
}

// EmailSender is the email channel. Calls to the transport go through a
// circuit breaker when one is configured.
type EmailSender struct {
	transport MailTransport
	from      string
	breaker   *circuitbreaker.CircuitBreaker
	logger    *zap.Logger
}

func NewEmailSender(transport MailTransport, from string, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *EmailSender {
	if from == "" {
		from = DefaultFromAddress
	}
	return &EmailSender{
		transport: transport,
		from:      from,
		breaker:   breaker,
		logger:    logger,
	}
}

// NewEmailBreaker builds the breaker guarding the mail transport and reports its state as a metric.
func NewEmailBreaker(cfg circuitbreaker.Config, logger *zap.Logger) *circuitbreaker.CircuitBreaker {
	cfg.OnStateChange = func(from, to circuitbreaker.State) {
		metrics.SetCircuitBreakerState("email", int(to))
		logger.Warn("Email circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return circuitbreaker.NewCircuitBreaker(cfg)
}

// Send delivers one email and reports the transport outcome.
func (s *EmailSender) Send(ctx context.Context, to, subject, body string, isHTML bool) error {
	msg := Message{From: s.from, To: to, Subject: subject, Body: body, HTML: isHTML}

	send := func() error { return s.transport.Send(ctx, msg) }
	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(send)
	} else {
		err = send()
	}
	if err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}

	logger.WithTrace(ctx, s.logger).Info("Email sent",
		zap.String("to", to),
		zap.Bool("html", isHTML),
	)
	return nil
}

func (s *EmailSender) SendSimple(ctx context.Context, to, subject, body string) error {
	return s.Send(ctx, to, subject, body, false)
}

func (s *EmailSender) SendHTML(ctx context.Context, to, subject, html string) error {
	return s.Send(ctx, to, subject, html, true)
}
