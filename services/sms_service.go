// services/sms_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"riderx/utils"

	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the part of the Twilio REST API the sender uses.
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// TwilioSMSSender implements SMSSender with the Twilio Messages API.
type TwilioSMSSender struct {
	api  messageCreator
	from string
}

func NewTwilioSMSSender(accountSID, authToken, fromNumber string) *TwilioSMSSender {
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSMSSender{api: rest.Api, from: fromNumber}
}

// Send delivers one SMS. Rate limiting and server side errors are retryable;
// any other rejection from Twilio (bad number, unsubscribed) is terminal.
func (ss *TwilioSMSSender) Send(ctx context.Context, phoneE164, body string) (bool, error) {
	if err := ValidatePhoneNumber(phoneE164); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return true, err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(utils.NormalizePhoneNumber(phoneE164))
	params.SetFrom(ss.from)
	params.SetBody(body)

	resp, err := ss.api.CreateMessage(params)
	if err != nil {
		logrus.Errorf("Twilio API error for %s: %v", utils.MaskPhoneNumber(phoneE164), err)
		return isRetryableTwilioError(err), fmt.Errorf("SMS API error: %w", err)
	}

	sid, status := "", ""
	if resp != nil {
		if resp.Sid != nil {
			sid = *resp.Sid
		}
		if resp.Status != nil {
			status = *resp.Status
		}
	}
	logrus.Infof("SMS sent successfully - SID: %s, Status: %s", sid, status)
	return false, nil
}

func isRetryableTwilioError(err error) bool {
	var restErr *client.TwilioRestError
	if errors.As(err, &restErr) {
		return restErr.Status == http.StatusTooManyRequests || restErr.Status >= 500
	}
	return true
}

// ValidatePhoneNumber accepts numbers in E.164 form, tolerating common
// formatting characters.
func ValidatePhoneNumber(phoneNumber string) error {
	if phoneNumber == "" {
		return fmt.Errorf("phone number cannot be empty")
	}
	if !strings.HasPrefix(strings.TrimSpace(phoneNumber), "+") {
		return fmt.Errorf("phone number must be in international format (+1234567890)")
	}
	if !utils.IsE164(utils.NormalizePhoneNumber(phoneNumber)) {
		return fmt.Errorf("invalid phone number %q", phoneNumber)
	}
	return nil
}

// MockSMSSender records texts instead of sending them.
type MockSMSSender struct {
	mu       sync.Mutex
	sent     []MockMessage
	failures map[string][]MockFailure
}

func NewMockSMSSender() *MockSMSSender {
	return &MockSMSSender{failures: make(map[string][]MockFailure)}
}

// FailNext queues failures for phone; each Send consumes one.
func (ss *MockSMSSender) FailNext(phone string, failures ...MockFailure) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.failures[phone] = append(ss.failures[phone], failures...)
}

func (ss *MockSMSSender) Send(ctx context.Context, phoneE164, body string) (bool, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if queued := ss.failures[phoneE164]; len(queued) > 0 {
		ss.failures[phoneE164] = queued[1:]
		return queued[0].Retryable, queued[0].Err
	}

	ss.sent = append(ss.sent, MockMessage{To: phoneE164, Body: body})
	logrus.Infof("[MOCK SMS] To: %s, Body: %s", utils.MaskPhoneNumber(phoneE164), body)
	return false, nil
}

func (ss *MockSMSSender) Sent() []MockMessage {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return append([]MockMessage{}, ss.sent...)
}
