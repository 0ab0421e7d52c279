package models

import "time"

// TelegramConfig stores the bot credentials and basic settings
type TelegramConfig struct {
	ID        int64     `json:"id"`
	IsEnabled bool      `json:"is_enabled"`
	BotToken  string    `json:"bot_token"`
	ChatID    string    `json:"chat_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TelegramConfigRequest is used when updating the configuration
type TelegramConfigRequest struct {
	IsEnabled bool   `json:"is_enabled"`
	BotToken  string `json:"bot_token"`
	ChatID    string `json:"chat_id"`
}

// TelegramFilters stores the notification filter settings
type TelegramFilters struct {
	MinAmount *int          `json:"min_amount"`
	MaxAmount *int          `json:"max_amount"`
	Statuses  []OfferStatus `json:"statuses"`
}

// IsDecisionAllowed checks if an offer decision matches the filter criteria
func (f *TelegramFilters) IsDecisionAllowed(offer *Offer) bool {
	if f == nil {
		return true // No filters means allow all
	}

	if f.MinAmount != nil && offer.ProposedAmount < *f.MinAmount {
		return false
	}
	if f.MaxAmount != nil && offer.ProposedAmount > *f.MaxAmount {
		return false
	}

	if len(f.Statuses) > 0 {
		allowed := false
		for _, status := range f.Statuses {
			if status == offer.Status {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	return true
}
