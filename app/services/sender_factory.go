package services

import (
	"fmt"
	"log/slog"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/config"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
)

// NewChannelSenders builds one sender per channel from the provider settings
func NewChannelSenders(cfg *config.ProductionConfig, logger *slog.Logger) (map[models.MessageChannel]ChannelSender, error) {
	senders := make(map[models.MessageChannel]ChannelSender, len(models.AllMessageChannels))

	switch cfg.Email.Provider {
	case "smtp":
		senders[models.MessageChannelEmail] = NewSMTPEmailSender(&cfg.Email)
	case "mock":
		senders[models.MessageChannelEmail] = NewMockChannelSender(models.MessageChannelEmail, logger)
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Email.Provider)
	}

	switch cfg.SMS.Provider {
	case "twilio":
		senders[models.MessageChannelSMS] = NewTwilioSMSSender(&cfg.SMS)
	case "mock":
		senders[models.MessageChannelSMS] = NewMockChannelSender(models.MessageChannelSMS, logger)
	default:
		return nil, fmt.Errorf("unknown sms provider %q", cfg.SMS.Provider)
	}

	switch cfg.WhatsApp.Provider {
	case "cloud":
		senders[models.MessageChannelWhatsApp] = NewWhatsAppCloudSender(&cfg.WhatsApp)
	case "mock":
		senders[models.MessageChannelWhatsApp] = NewMockChannelSender(models.MessageChannelWhatsApp, logger)
	default:
		return nil, fmt.Errorf("unknown whatsapp provider %q", cfg.WhatsApp.Provider)
	}

	return senders, nil
}
