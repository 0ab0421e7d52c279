package database

import (
	"database/sql"
	"fmt"

	"homematch/server/internal/models"
)

// GetTelegramConfig returns the stored notification settings, or nil when
// none have been saved yet.
func (d *Database) GetTelegramConfig() (*models.TelegramConfig, error) {
	var config models.TelegramConfig
	err := d.db.QueryRow(`
		SELECT id, is_enabled, bot_token, chat_id, created_at, updated_at
		FROM telegram_config
		ORDER BY id DESC
		LIMIT 1
	`).Scan(
		&config.ID,
		&config.IsEnabled,
		&config.BotToken,
		&config.ChatID,
		&config.CreatedAt,
		&config.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load telegram config: %v", err)
	}
	return &config, nil
}

// SaveTelegramConfig stores new notification settings.
func (d *Database) SaveTelegramConfig(req *models.TelegramConfigRequest) error {
	_, err := d.db.Exec(`
		INSERT INTO telegram_config (is_enabled, bot_token, chat_id)
		VALUES (?, ?, ?)
	`, req.IsEnabled, req.BotToken, req.ChatID)
	if err != nil {
		return fmt.Errorf("failed to save telegram config: %v", err)
	}
	return nil
}
