package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/config"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
)

// Twilio error codes that describe the recipient or content rather than a transient condition
var twilioPermanentCodes = map[int]bool{
	21211: true, // invalid To number
	21408: true, // region not enabled
	21610: true, // recipient unsubscribed
	21612: true, // unreachable via this From number
	21614: true, // not a mobile number
	21617: true, // body exceeds limit
}

type twilioMessageResponse struct {
	SID          string  `json:"sid"`
	Status       string  `json:"status"`
	ErrorCode    *int    `json:"error_code"`
	ErrorMessage *string `json:"error_message"`
}

type twilioErrorResponse struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

// TwilioSMSSender sends SMS through the Twilio Messages API
type TwilioSMSSender struct {
	cfg    *config.SMSConfig
	client *http.Client
}

// NewTwilioSMSSender creates a new Twilio SMS sender
func NewTwilioSMSSender(cfg *config.SMSConfig) *TwilioSMSSender {
	return &TwilioSMSSender{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (s *TwilioSMSSender) Channel() models.MessageChannel { return models.MessageChannelSMS }

func (s *TwilioSMSSender) Provider() string { return "twilio" }

// Send posts one message; the Twilio message SID is the external id
func (s *TwilioSMSSender) Send(ctx context.Context, msg OutboundMessage) (*SendResult, error) {
	if msg.To == "" {
		return nil, Permanent(ErrMissingAddress)
	}

	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("Body", msg.Body)
	if s.cfg.MessagingServiceSID != "" {
		form.Set("MessagingServiceSid", s.cfg.MessagingServiceSID)
	} else {
		form.Set("From", s.cfg.FromNumber)
	}
	if s.cfg.StatusCallbackURL != "" {
		form.Set("StatusCallback", s.cfg.StatusCallbackURL)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create twilio request: %w", err)
	}
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read twilio response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr twilioErrorResponse
		_ = json.Unmarshal(body, &apiErr)
		err := fmt.Errorf("twilio http status %d: code %d: %s", resp.StatusCode, apiErr.Code, apiErr.Message)
		if twilioPermanentCodes[apiErr.Code] {
			return nil, Permanent(err)
		}
		return nil, classifyHTTPStatus(resp.StatusCode, err)
	}

	var out twilioMessageResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode twilio response: %w", err)
	}
	if out.ErrorCode != nil && *out.ErrorCode != 0 {
		err := fmt.Errorf("twilio error %d: %s", *out.ErrorCode, deref(out.ErrorMessage))
		if twilioPermanentCodes[*out.ErrorCode] {
			return nil, Permanent(err)
		}
		return nil, err
	}
	if out.SID == "" {
		return nil, fmt.Errorf("twilio response carried no message sid")
	}
	return &SendResult{ExternalID: out.SID, Provider: s.Provider()}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
