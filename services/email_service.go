// services/email_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPEmailSender implements EmailSender over plain SMTP.
type SMTPEmailSender struct {
	host     string
	port     string
	username string
	password string
	from     string
	sendMail sendMailFunc
}

func NewSMTPEmailSender(host, port, username, password, from string) *SMTPEmailSender {
	return &SMTPEmailSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		sendMail: smtp.SendMail,
	}
}

// Send delivers one plain text email. Permanent SMTP replies (5xx) and
// malformed addresses are terminal; everything else is worth retrying.
func (es *SMTPEmailSender) Send(ctx context.Context, address, subject, body string) (bool, error) {
	to, err := mail.ParseAddress(address)
	if err != nil {
		return false, fmt.Errorf("invalid email address %q: %w", address, err)
	}
	if err := ctx.Err(); err != nil {
		return true, err
	}

	var auth smtp.Auth
	if es.username != "" {
		auth = smtp.PlainAuth("", es.username, es.password, es.host)
	}
	addr := fmt.Sprintf("%s:%s", es.host, es.port)

	err = es.sendMail(addr, auth, es.from, []string{to.Address}, es.buildMessage(to.Address, subject, body))
	if err != nil {
		logrus.Errorf("Failed to send email to %s: %v", to.Address, err)
		return isRetryableSMTPError(err), err
	}

	logrus.Infof("Email sent successfully to %s", to.Address)
	return false, nil
}

func (es *SMTPEmailSender) buildMessage(to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", es.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("X-Priority: 1\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

func isRetryableSMTPError(err error) bool {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code < 500
	}
	return true
}

// MockEmailSender records sends instead of delivering them. Failures can be
// scripted per address for development and tests.
type MockEmailSender struct {
	mu       sync.Mutex
	sent     []MockMessage
	failures map[string][]MockFailure
}

// MockMessage is a message captured by a mock sender.
type MockMessage struct {
	To      string
	Subject string
	Body    string
}

// MockFailure is one scripted failure, consumed in order.
type MockFailure struct {
	Err       error
	Retryable bool
}

func NewMockEmailSender() *MockEmailSender {
	return &MockEmailSender{failures: make(map[string][]MockFailure)}
}

// FailNext queues failures for address; each Send consumes one.
func (es *MockEmailSender) FailNext(address string, failures ...MockFailure) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.failures[address] = append(es.failures[address], failures...)
}

func (es *MockEmailSender) Send(ctx context.Context, address, subject, body string) (bool, error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	if queued := es.failures[address]; len(queued) > 0 {
		es.failures[address] = queued[1:]
		return queued[0].Retryable, queued[0].Err
	}

	es.sent = append(es.sent, MockMessage{To: address, Subject: subject, Body: body})
	logrus.Infof("[MOCK EMAIL] To: %s, Subject: %s", address, subject)
	return false, nil
}

func (es *MockEmailSender) Sent() []MockMessage {
	es.mu.Lock()
	defer es.mu.Unlock()
	return append([]MockMessage{}, es.sent...)
}
