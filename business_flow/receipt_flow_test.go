package businessflow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dto"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/logging"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sentMessage(t *testing.T, repo *fakeMessageRepo, channel models.MessageChannel, externalID string) *models.MessageLog {
	t.Helper()
	msg := &models.MessageLog{
		TenantID:      testTenantID,
		Channel:       channel,
		RecipientType: models.RecipientTypeExternal,
		RecipientID:   "x",
		Body:          "hello",
		Status:        models.MessageStatusQueued,
	}
	require.NoError(t, repo.Save(context.Background(), msg))
	require.NoError(t, repo.MarkSent(context.Background(), msg.ID, externalID, time.Now()))
	return repo.get(msg.ID)
}

func TestReceiptFlow_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	t.Run("delivered receipt is idempotent", func(t *testing.T) {
		repo := newFakeMessageRepo()
		flow := NewReceiptFlow(repo, logging.Discard())
		msg := sentMessage(t, repo, models.MessageChannelEmail, "ext-1")
		receipt := dto.DeliveryReceipt{Provider: ProviderMock, ExternalID: "ext-1", Status: ReceiptDelivered, Timestamp: at}

		first, err := flow.UpdateStatus(ctx, receipt)
		require.NoError(t, err)
		assert.True(t, first.Applied)
		once := repo.get(msg.ID)

		_, err = flow.UpdateStatus(ctx, receipt)
		require.NoError(t, err)
		twice := repo.get(msg.ID)

		assert.Equal(t, models.MessageStatusDelivered, twice.Status)
		assert.Equal(t, once.Status, twice.Status)
		assert.Equal(t, once.DeliveredAt, twice.DeliveredAt)
		assert.True(t, twice.DeliveredAt.Equal(at))
	})

	t.Run("late delivered does not regress read", func(t *testing.T) {
		repo := newFakeMessageRepo()
		flow := NewReceiptFlow(repo, logging.Discard())
		msg := sentMessage(t, repo, models.MessageChannelWhatsApp, "wamid.1")

		_, err := flow.UpdateStatus(ctx, dto.DeliveryReceipt{ExternalID: "wamid.1", Status: ReceiptRead, Timestamp: at})
		require.NoError(t, err)
		res, err := flow.UpdateStatus(ctx, dto.DeliveryReceipt{ExternalID: "wamid.1", Status: ReceiptDelivered, Timestamp: at.Add(-time.Minute)})
		require.NoError(t, err)
		assert.False(t, res.Applied)

		stored := repo.get(msg.ID)
		assert.Equal(t, models.MessageStatusRead, stored.Status)
		require.NotNil(t, stored.DeliveredAt)
		assert.True(t, stored.ReadAt.Equal(at))
	})

	t.Run("unknown external id is a no-op", func(t *testing.T) {
		flow := NewReceiptFlow(newFakeMessageRepo(), logging.Discard())
		res, err := flow.UpdateStatus(ctx, dto.DeliveryReceipt{ExternalID: "nobody", Status: ReceiptDelivered})
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Nil(t, res.MessageID)
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		flow := NewReceiptFlow(newFakeMessageRepo(), logging.Discard())
		_, err := flow.UpdateStatus(ctx, dto.DeliveryReceipt{ExternalID: "x", Status: "opened"})
		assert.ErrorIs(t, err, ErrUnknownReceiptStatus)
	})

	t.Run("bounce records failure time and error", func(t *testing.T) {
		repo := newFakeMessageRepo()
		flow := NewReceiptFlow(repo, logging.Discard())
		msg := sentMessage(t, repo, models.MessageChannelEmail, "mid@host")
		_, err := flow.UpdateStatus(ctx, dto.DeliveryReceipt{
			Provider: ProviderSES, ExternalID: "mid@host", Status: ReceiptBounced, Timestamp: at,
			Metadata: map[string]any{"error": "bounce: Permanent"},
		})
		require.NoError(t, err)
		stored := repo.get(msg.ID)
		assert.Equal(t, models.MessageStatusBounced, stored.Status)
		assert.True(t, stored.FailedAt.Equal(at))
		assert.Equal(t, "bounce: Permanent", stored.Metadata["error"])
	})
}

func TestWhatsAppReceipts(t *testing.T) {
	raw := `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{
		"messaging_product":"whatsapp","statuses":[
			{"id":"wamid.A","status":"sent","timestamp":"1775124000","recipient_id":"155"},
			{"id":"wamid.A","status":"delivered","timestamp":"1775124060","recipient_id":"155"},
			{"id":"wamid.B","status":"failed","timestamp":"1775124120","recipient_id":"156","errors":[{"code":131026,"title":"Message undeliverable"}]}
		]}}]}]}`
	var payload dto.WhatsAppWebhook
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))

	receipts := WhatsAppReceipts(&payload)
	require.Len(t, receipts, 2)
	assert.Equal(t, "wamid.A", receipts[0].ExternalID)
	assert.Equal(t, ReceiptDelivered, receipts[0].Status)
	assert.Equal(t, int64(1775124060), receipts[0].Timestamp.Unix())
	assert.Equal(t, ReceiptFailed, receipts[1].Status)
	assert.Equal(t, "Message undeliverable", receipts[1].Metadata["error"])
}

func TestSESReceipt(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantStatus string
		wantID     string
		wantOK     bool
	}{
		{
			name:       "delivery prefers the rfc message id",
			raw:        `{"notificationType":"Delivery","mail":{"messageId":"ses-1","commonHeaders":{"messageId":"<abc@mail.example.com>"}},"delivery":{"timestamp":"2026-04-02T10:00:00.000Z"}}`,
			wantStatus: ReceiptDelivered,
			wantID:     "abc@mail.example.com",
			wantOK:     true,
		},
		{
			name:       "bounce falls back to ses id",
			raw:        `{"notificationType":"Bounce","mail":{"messageId":"ses-2"},"bounce":{"bounceType":"Permanent","timestamp":"2026-04-02T10:00:00Z"}}`,
			wantStatus: ReceiptBounced,
			wantID:     "ses-2",
			wantOK:     true,
		},
		{
			name:       "complaint via event type",
			raw:        `{"eventType":"Complaint","mail":{"messageId":"ses-3"}}`,
			wantStatus: ReceiptBounced,
			wantID:     "ses-3",
			wantOK:     true,
		},
		{
			name:       "reject",
			raw:        `{"eventType":"Reject","mail":{"messageId":"ses-4"},"reject":{"reason":"Bad content"}}`,
			wantStatus: ReceiptFailed,
			wantID:     "ses-4",
			wantOK:     true,
		},
		{
			name: "send events are ignored",
			raw:  `{"eventType":"Send","mail":{"messageId":"ses-5"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n dto.SESNotification
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &n))
			receipt, ok := SESReceipt(&n)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantStatus, receipt.Status)
			assert.Equal(t, tt.wantID, receipt.ExternalID)
		})
	}
}

func TestReceiptFlow_HandleSES(t *testing.T) {
	ctx := context.Background()
	repo := newFakeMessageRepo()
	flow := NewReceiptFlow(repo, logging.Discard())
	msg := sentMessage(t, repo, models.MessageChannelEmail, "abc@mail.example.com")

	results, err := flow.HandleSES(ctx, &dto.SNSEnvelope{Type: "SubscriptionConfirmation", SubscribeURL: "https://sns.example.com/confirm"})
	require.NoError(t, err)
	assert.Empty(t, results)

	notification := `{"notificationType":"Delivery","mail":{"messageId":"ses-1","commonHeaders":{"messageId":"<abc@mail.example.com>"}},"delivery":{"timestamp":"2026-04-02T10:00:00Z"}}`
	results, err = flow.HandleSES(ctx, &dto.SNSEnvelope{Type: "Notification", Message: notification})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Applied)
	assert.Equal(t, models.MessageStatusDelivered, repo.get(msg.ID).Status)

	_, err = flow.HandleSES(ctx, &dto.SNSEnvelope{Type: "Notification", Message: "{not json"})
	assert.Error(t, err)
}

func TestTwilioReceipt(t *testing.T) {
	tests := []struct {
		status string
		want   string
		ok     bool
	}{
		{"delivered", ReceiptDelivered, true},
		{"read", ReceiptRead, true},
		{"undelivered", ReceiptFailed, true},
		{"failed", ReceiptFailed, true},
		{"sent", "", false},
		{"queued", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			receipt, ok := TwilioReceipt(&dto.TwilioStatusCallback{MessageSid: "SM1", MessageStatus: tt.status, ErrorCode: "30003"})
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, receipt.Status)
		})
	}
}

func TestReceiptFlow_HandleTwilioAndMock(t *testing.T) {
	ctx := context.Background()
	repo := newFakeMessageRepo()
	flow := NewReceiptFlow(repo, logging.Discard())
	sms := sentMessage(t, repo, models.MessageChannelSMS, "SM42")

	res, err := flow.HandleTwilio(ctx, &dto.TwilioStatusCallback{MessageSid: "SM42", MessageStatus: "sent"})
	require.NoError(t, err)
	assert.False(t, res.Applied)

	res, err = flow.HandleTwilio(ctx, &dto.TwilioStatusCallback{MessageSid: "SM42", MessageStatus: "undelivered", ErrorCode: "30003"})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, "twilio error 30003", repo.get(sms.ID).Metadata["error"])

	email := sentMessage(t, repo, models.MessageChannelEmail, "mock-1")
	res, err = flow.HandleMock(ctx, &dto.MockReceiptRequest{ExternalID: "mock-1", Status: "READ", Timestamp: utils.ToPtr(time.Now())})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	stored := repo.get(email.ID)
	assert.Equal(t, models.MessageStatusRead, stored.Status)
	assert.NotNil(t, stored.DeliveredAt)
}
