package telegram

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"homematch/server/internal/models"
)

type Service struct {
	logger  *logrus.Logger
	client  *http.Client
	config  *models.TelegramConfig
	filters *models.TelegramFilters
}

func NewService(logger *logrus.Logger) *Service {
	return &Service{
		logger: logger,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *Service) UpdateConfig(config *models.TelegramConfig) {
	s.config = config
}

func (s *Service) UpdateFilters(filters *models.TelegramFilters) {
	s.filters = filters
}

// SendMessage sends a message to the configured Telegram chat
func (s *Service) SendMessage(message string) error {
	if s.config == nil || !s.config.IsEnabled {
		return nil
	}

	if s.config.BotToken == "" {
		return errors.New("Telegram bot token is not configured")
	}

	if s.config.ChatID == "" {
		return errors.New("Telegram chat ID is not configured")
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.config.BotToken)
	payload := map[string]interface{}{
		"chat_id":    s.config.ChatID,
		"text":       message,
		"parse_mode": "HTML",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %v", err)
	}

	resp, err := s.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send message to Telegram API: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return errors.New("invalid bot token - please check your token from @BotFather")
		case http.StatusBadRequest:
			return fmt.Errorf("invalid chat ID or message format: %s", string(body))
		case http.StatusForbidden:
			return errors.New("bot was blocked by the user or chat")
		case http.StatusNotFound:
			return errors.New("bot not found - please check your token from @BotFather")
		default:
			return fmt.Errorf("Telegram API error (status %d): %s", resp.StatusCode, string(body))
		}
	}

	return nil
}

// NotifyOfferDecision sends a notification when a counterparty decides on an
// offer. The filters decide which offers are interesting enough to notify on.
func (s *Service) NotifyOfferDecision(offer *models.Offer, decision *models.OfferDecision) error {
	if s.config == nil || !s.config.IsEnabled {
		return nil
	}

	if !s.filters.IsDecisionAllowed(offer) {
		s.logger.WithFields(logrus.Fields{
			"offer_id": offer.ID,
			"status":   decision.Status,
		}).Debug("Decision filtered out of notifications")
		return nil
	}

	var title string
	switch decision.Status {
	case models.OfferStatusAccepted:
		title = "<b>✅ Offer Accepted!</b>"
	case models.OfferStatusRejected:
		title = "<b>❌ Offer Rejected</b>"
	case models.OfferStatusWithdrawn:
		title = "<b>↩️ Offer Withdrawn</b>"
	default:
		title = fmt.Sprintf("<b>Offer %s</b>", decision.Status)
	}

	message := fmt.Sprintf(
		"%s\n\n"+
			"🏠 Listing #%d\n"+
			"💰 %s %d/month\n"+
			"📅 Move-in: %s\n"+
			"🕐 Decided: %s",
		title,
		offer.ListingID,
		offer.Currency,
		offer.ProposedAmount,
		offer.MoveInDate.Format("2006-01-02"),
		decision.DecidedAt.Format("2006-01-02 15:04"),
	)

	return s.SendMessage(message)
}

// NotifyWorkflowComplete sends a notification when an applicant's workflow
// reaches the complete stage.
func (s *Service) NotifyWorkflowComplete(offer *models.Offer, amountPaid string) error {
	if s.config == nil || !s.config.IsEnabled {
		return nil
	}

	message := fmt.Sprintf(
		"<b>🎉 Rental Complete!</b>\n\n"+
			"🏠 Listing #%d\n"+
			"💰 Rent: %s %d/month\n"+
			"💳 Paid: %s\n"+
			"📅 Move-in: %s",
		offer.ListingID,
		offer.Currency,
		offer.ProposedAmount,
		amountPaid,
		offer.MoveInDate.Format("2006-01-02"),
	)

	return s.SendMessage(message)
}
