package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/logging"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/config"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermanentClassification(t *testing.T) {
	base := errors.New("bad number")
	err := Permanent(base)
	assert.True(t, IsPermanentDeliveryError(err))
	assert.ErrorIs(t, err, base)
	assert.Same(t, err, Permanent(err))
	assert.Nil(t, Permanent(nil))
	assert.False(t, IsPermanentDeliveryError(errors.New("timeout")))

	assert.True(t, IsPermanentDeliveryError(classifyHTTPStatus(400, base)))
	assert.False(t, IsPermanentDeliveryError(classifyHTTPStatus(429, base)))
	assert.False(t, IsPermanentDeliveryError(classifyHTTPStatus(503, base)))
}

func TestTwilioSMSSender(t *testing.T) {
	var gotForm url.Values
	var gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, _, _ := r.BasicAuth()
		gotUser = user
		assert.NoError(t, r.ParseForm())
		gotForm = r.PostForm

		switch r.PostForm.Get("To") {
		case "+15550000000":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`)
		case "+15550000001":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"code":20500,"message":"Internal Server Error","status":503}`)
		default:
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"sid":"SM0001","status":"queued","error_code":null}`)
		}
	}))
	defer srv.Close()

	sender := NewTwilioSMSSender(&config.SMSConfig{
		BaseURL:           srv.URL,
		AccountSID:        "AC123",
		AuthToken:         "token",
		FromNumber:        "+15557654321",
		StatusCallbackURL: "https://example.com/webhooks/twilio",
		Timeout:           5 * time.Second,
	})
	assert.Equal(t, models.MessageChannelSMS, sender.Channel())

	res, err := sender.Send(context.Background(), OutboundMessage{To: "+15551234567", Body: "Your interview is tomorrow"})
	require.NoError(t, err)
	assert.Equal(t, "SM0001", res.ExternalID)
	assert.Equal(t, "twilio", res.Provider)
	assert.Equal(t, "AC123", gotUser)
	assert.Equal(t, "+15557654321", gotForm.Get("From"))
	assert.Equal(t, "Your interview is tomorrow", gotForm.Get("Body"))
	assert.Equal(t, "https://example.com/webhooks/twilio", gotForm.Get("StatusCallback"))

	_, err = sender.Send(context.Background(), OutboundMessage{To: "+15550000000", Body: "x"})
	require.Error(t, err)
	assert.True(t, IsPermanentDeliveryError(err))

	_, err = sender.Send(context.Background(), OutboundMessage{To: "+15550000001", Body: "x"})
	require.Error(t, err)
	assert.False(t, IsPermanentDeliveryError(err))

	_, err = sender.Send(context.Background(), OutboundMessage{Body: "x"})
	assert.True(t, IsPermanentDeliveryError(err))
	assert.ErrorIs(t, err, ErrMissingAddress)
}

func TestWhatsAppCloudSender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/PN1/messages", r.URL.Path)
		assert.Equal(t, "Bearer wa-token", r.Header.Get("Authorization"))

		var payload whatsappTextMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "whatsapp", payload.MessagingProduct)

		switch payload.To {
		case "15550000000":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"message":"Recipient not on WhatsApp","type":"OAuthException","code":131026}}`)
		case "15550000001":
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"error":{"message":"Rate limit hit","type":"OAuthException","code":130429}}`)
		default:
			_, _ = io.WriteString(w, `{"messaging_product":"whatsapp","messages":[{"id":"wamid.ABC"}]}`)
		}
	}))
	defer srv.Close()

	sender := NewWhatsAppCloudSender(&config.WhatsAppConfig{
		BaseURL:       srv.URL,
		APIVersion:    "v19.0",
		PhoneNumberID: "PN1",
		AccessToken:   "wa-token",
		Timeout:       5 * time.Second,
	})

	res, err := sender.Send(context.Background(), OutboundMessage{To: "+15551234567", Body: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "wamid.ABC", res.ExternalID)

	_, err = sender.Send(context.Background(), OutboundMessage{To: "+15550000000", Body: "hello"})
	assert.True(t, IsPermanentDeliveryError(err))

	_, err = sender.Send(context.Background(), OutboundMessage{To: "+15550000001", Body: "hello"})
	require.Error(t, err)
	assert.False(t, IsPermanentDeliveryError(err))
}

func TestSMTPEmailSender(t *testing.T) {
	cfg := &config.EmailConfig{
		Host:      "smtp.example.com",
		Port:      587,
		Username:  "user",
		Password:  "pass",
		FromEmail: "talent@acme.test",
		FromName:  "Acme Talent",
		Timeout:   time.Second,
	}

	var gotAddr string
	var gotTo []string
	var gotMsg string
	sender := NewSMTPEmailSender(cfg).WithSendMail(func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	})

	res, err := sender.Send(context.Background(), OutboundMessage{
		To:        "Ada <ada@example.com>",
		Subject:   "Interview invitation",
		Body:      "Hi Ada",
		Reference: "3f0c",
	})
	require.NoError(t, err)
	assert.Equal(t, "3f0c@acme.test", res.ExternalID)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"ada@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Message-ID: <3f0c@acme.test>\r\n")
	assert.Contains(t, gotMsg, "Subject: Interview invitation\r\n")
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n\r\nHi Ada"))

	t.Run("5xx is permanent", func(t *testing.T) {
		s := NewSMTPEmailSender(cfg).WithSendMail(func(string, smtp.Auth, string, []string, []byte) error {
			return &textproto.Error{Code: 550, Msg: "mailbox unavailable"}
		})
		_, err := s.Send(context.Background(), OutboundMessage{To: "ada@example.com", Body: "x"})
		assert.True(t, IsPermanentDeliveryError(err))
	})

	t.Run("4xx is transient", func(t *testing.T) {
		s := NewSMTPEmailSender(cfg).WithSendMail(func(string, smtp.Auth, string, []string, []byte) error {
			return &textproto.Error{Code: 421, Msg: "try later"}
		})
		_, err := s.Send(context.Background(), OutboundMessage{To: "ada@example.com", Body: "x"})
		require.Error(t, err)
		assert.False(t, IsPermanentDeliveryError(err))
	})

	t.Run("invalid address is permanent", func(t *testing.T) {
		_, err := sender.Send(context.Background(), OutboundMessage{To: "not an address", Body: "x"})
		assert.True(t, IsPermanentDeliveryError(err))
	})
}

func TestMockChannelSender(t *testing.T) {
	m := NewMockChannelSender(models.MessageChannelEmail, logging.Discard())
	m.FailNext(errors.New("boom"))

	_, err := m.Send(context.Background(), OutboundMessage{To: "a@b.c", Body: "x"})
	assert.EqualError(t, err, "boom")

	res, err := m.Send(context.Background(), OutboundMessage{To: "a@b.c", Body: "x"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.ExternalID, "mock-"))

	sent := m.GetSentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, res.ExternalID, sent[0].ExternalID)

	m.ClearSentMessages()
	assert.Empty(t, m.GetSentMessages())
}
