package database

import "fmt"

func (d *Database) RunMigrations() error {
	// Listings are written by the search side; the table is created here so a
	// fresh database can serve the API without a separate provisioning step.
	_, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS listings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT,
			street TEXT,
			neighborhood TEXT,
			city TEXT,
			postal_code TEXT,
			price INTEGER,
			monthly_rent INTEGER,
			currency TEXT DEFAULT 'EUR',
			status TEXT DEFAULT 'active',
			listing_date DATE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create listings table: %v", err)
	}

	_, err = d.db.Exec(`
		CREATE TABLE IF NOT EXISTS offers (
			id TEXT PRIMARY KEY,
			listing_id INTEGER NOT NULL,
			applicant_id TEXT NOT NULL,
			counterparty_id TEXT NOT NULL,
			proposed_amount INTEGER NOT NULL,
			currency TEXT DEFAULT 'EUR',
			move_in_date TIMESTAMP,
			lease_term_months INTEGER,
			status TEXT NOT NULL DEFAULT 'pending',
			revision_count INTEGER DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create offers table: %v", err)
	}

	_, err = d.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_offers_applicant_listing
		ON offers(applicant_id, listing_id);
	`)
	if err != nil {
		return err
	}

	// Audit trail of counterparty decisions delivered over the queue.
	_, err = d.db.Exec(`
		CREATE TABLE IF NOT EXISTS offer_decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			offer_id TEXT NOT NULL,
			status TEXT NOT NULL,
			decided_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create offer_decisions table: %v", err)
	}

	_, err = d.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflow_snapshots (
			id TEXT PRIMARY KEY,
			offer_id TEXT NOT NULL,
			listing_id INTEGER NOT NULL,
			applicant_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			terminated BOOLEAN DEFAULT 0,
			terminal_status TEXT,
			state TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create workflow_snapshots table: %v", err)
	}

	_, err = d.db.Exec(`
		CREATE TABLE IF NOT EXISTS applications (
			workflow_id TEXT PRIMARY KEY,
			full_name TEXT,
			email TEXT,
			phone TEXT,
			employer TEXT,
			monthly_income INTEGER,
			agree_to_credit BOOLEAN DEFAULT 0,
			agree_to_terms BOOLEAN DEFAULT 0,
			submitted_at TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create applications table: %v", err)
	}

	_, err = d.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			workflow_id TEXT NOT NULL,
			slot TEXT NOT NULL,
			uploaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (workflow_id, slot)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create documents table: %v", err)
	}

	_, err = d.db.Exec(`
		CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			amount_due TEXT NOT NULL,
			currency TEXT DEFAULT 'EUR',
			method TEXT,
			completed BOOLEAN DEFAULT 0,
			completed_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create payments table: %v", err)
	}

	_, err = d.db.Exec(`
		CREATE TABLE IF NOT EXISTS telegram_config (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			is_enabled BOOLEAN DEFAULT 0,
			bot_token TEXT,
			chat_id TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create telegram_config table: %v", err)
	}

	return nil
}
