package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/config"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
)

// Graph API error codes that will not succeed on retry
var whatsappPermanentCodes = map[int]bool{
	100:    true, // invalid parameter
	131008: true, // required parameter missing
	131009: true, // parameter value invalid
	131026: true, // recipient cannot receive messages
	131051: true, // unsupported message type
}

type whatsappTextMessage struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		PreviewURL bool   `json:"preview_url"`
		Body       string `json:"body"`
	} `json:"text"`
}

type whatsappSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// WhatsAppCloudSender sends text messages through the WhatsApp Cloud API
type WhatsAppCloudSender struct {
	cfg    *config.WhatsAppConfig
	client *http.Client
}

// NewWhatsAppCloudSender creates a new WhatsApp Cloud API sender
func NewWhatsAppCloudSender(cfg *config.WhatsAppConfig) *WhatsAppCloudSender {
	return &WhatsAppCloudSender{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (s *WhatsAppCloudSender) Channel() models.MessageChannel { return models.MessageChannelWhatsApp }

func (s *WhatsAppCloudSender) Provider() string { return "whatsapp" }

// Send posts a text message; the returned wamid is the external id
func (s *WhatsAppCloudSender) Send(ctx context.Context, msg OutboundMessage) (*SendResult, error) {
	if msg.To == "" {
		return nil, Permanent(ErrMissingAddress)
	}

	payload := whatsappTextMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               strings.TrimPrefix(msg.To, "+"),
		Type:             "text",
	}
	payload.Text.Body = msg.Body
	payload.Text.PreviewURL = strings.Contains(msg.Body, "http")

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal whatsapp payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/messages", strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.APIVersion, s.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("failed to create whatsapp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read whatsapp response: %w", err)
	}

	var out whatsappSendResponse
	_ = json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || out.Error != nil {
		code, message := 0, strings.TrimSpace(string(body))
		if out.Error != nil {
			code, message = out.Error.Code, out.Error.Message
		}
		err := fmt.Errorf("whatsapp http status %d: code %d: %s", resp.StatusCode, code, message)
		if whatsappPermanentCodes[code] {
			return nil, Permanent(err)
		}
		return nil, classifyHTTPStatus(resp.StatusCode, err)
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return nil, fmt.Errorf("whatsapp response carried no message id")
	}
	return &SendResult{ExternalID: out.Messages[0].ID, Provider: s.Provider()}, nil
}
