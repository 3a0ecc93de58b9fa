package models

import (
	"testing"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageStatus_AcceptsReceipt(t *testing.T) {
	tests := []struct {
		from MessageStatus
		to   MessageStatus
		want bool
	}{
		{MessageStatusSent, MessageStatusDelivered, true},
		{MessageStatusQueued, MessageStatusDelivered, true},
		{MessageStatusDelivered, MessageStatusDelivered, true},
		{MessageStatusRead, MessageStatusDelivered, false},
		{MessageStatusDelivered, MessageStatusRead, true},
		{MessageStatusFailed, MessageStatusRead, false},
		{MessageStatusSent, MessageStatusBounced, true},
		{MessageStatusRead, MessageStatusFailed, false},
		{MessageStatusSent, MessageStatusQueued, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.AcceptsReceipt(tt.to))
		})
	}
}

func TestMessageLog_Address(t *testing.T) {
	msg := &MessageLog{
		RecipientEmail: utils.ToPtr("a@example.com"),
		RecipientPhone: utils.ToPtr("+15550001"),
	}

	msg.Channel = MessageChannelEmail
	assert.Equal(t, "a@example.com", msg.Address())
	msg.Channel = MessageChannelSMS
	assert.Equal(t, "+15550001", msg.Address())
	msg.Channel = MessageChannelWhatsApp
	assert.Equal(t, "+15550001", msg.Address())

	msg.RecipientPhone = nil
	assert.Empty(t, msg.Address())
}

func TestMessageChannel_Valid(t *testing.T) {
	for _, c := range AllMessageChannels {
		assert.True(t, c.Valid())
	}
	assert.False(t, MessageChannel("FAX").Valid())
	assert.False(t, MessageChannel("email").Valid())
}

func TestAutomationTrigger(t *testing.T) {
	offset, ok := TriggerInterviewReminder24H.ReminderOffset()
	require.True(t, ok)
	assert.Equal(t, 24*time.Hour, offset)

	_, ok = TriggerCandidateCreated.ReminderOffset()
	assert.False(t, ok)

	assert.True(t, TriggerInterviewCancelled.IsInterviewScoped())
	assert.False(t, TriggerFeedbackSubmitted.IsInterviewScoped())
	assert.False(t, AutomationTrigger("NOPE").Valid())
}

func TestTemplate_SnapshotIsDetached(t *testing.T) {
	tpl := Template{
		Name:      "welcome",
		Channel:   MessageChannelEmail,
		Subject:   utils.ToPtr("Hi"),
		Body:      "Hello {{candidate.first_name}}",
		Variables: []string{"candidate.first_name"},
		Version:   2,
	}
	snap := tpl.Snapshot()

	tpl.Variables[0] = "changed"
	*tpl.Subject = "changed"

	assert.Equal(t, []string{"candidate.first_name"}, snap.Variables)
	assert.Equal(t, "Hi", *snap.Subject)
	assert.Equal(t, 2, snap.Version)
}

func TestTenant_Location(t *testing.T) {
	assert.Equal(t, time.UTC, Tenant{}.Location())
	assert.Equal(t, time.UTC, Tenant{Timezone: "Not/AZone"}.Location())
	assert.Equal(t, "Europe/Berlin", Tenant{Timezone: "Europe/Berlin"}.Location().String())
}

func TestScheduledPayload_ScanValue(t *testing.T) {
	in := ScheduledPayload{Body: "hi", Subject: utils.ToPtr("s"), RuleID: utils.ToPtr(uint(3))}
	raw, err := in.Value()
	require.NoError(t, err)

	var out ScheduledPayload
	require.NoError(t, out.Scan([]byte(raw.(string))))
	assert.Equal(t, in, out)

	assert.NoError(t, out.Scan(nil))
	assert.Equal(t, ScheduledPayload{}, out)
	assert.Error(t, out.Scan(42))
}

func TestDomainModels(t *testing.T) {
	assert.Len(t, DomainModels(), 9)
}
