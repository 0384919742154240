package database

import "database/sql"

// Schema for the four keyed collections.  Timestamp columns hold UTC
// "YYYY-MM-DD HH:MM:SS" strings written by the repositories.
var schemaMySQL = []string{
	`CREATE TABLE IF NOT EXISTS patrons (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		display_name VARCHAR(255) NOT NULL,
		category VARCHAR(32) NOT NULL,
		max_active_loans INT NOT NULL,
		max_electronic_loans INT NOT NULL,
		active_loans INT NOT NULL DEFAULT 0,
		active_electronic INT NOT NULL DEFAULT 0,
		suspended TINYINT(1) NOT NULL DEFAULT 0,
		suspended_until VARCHAR(19) NULL,
		suspension_reason VARCHAR(255) NULL,
		created_at VARCHAR(19) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS catalog_items (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		author VARCHAR(255) NOT NULL,
		media_type VARCHAR(32) NOT NULL,
		created_at VARCHAR(19) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS copies (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		item_id BIGINT NOT NULL,
		status VARCHAR(32) NOT NULL,
		created_at VARCHAR(19) NOT NULL,
		INDEX idx_copies_item (item_id)
	)`,
	`CREATE TABLE IF NOT EXISTS loans (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		patron_id BIGINT NOT NULL,
		item_id BIGINT NOT NULL,
		copy_id BIGINT NOT NULL,
		borrowed_at VARCHAR(19) NOT NULL,
		due_at VARCHAR(19) NOT NULL,
		returned_at VARCHAR(19) NULL,
		fine_cents BIGINT NOT NULL DEFAULT 0,
		due_notice_sent TINYINT(1) NOT NULL DEFAULT 0,
		status VARCHAR(32) NOT NULL,
		INDEX idx_loans_patron_status (patron_id, status),
		INDEX idx_loans_item (item_id)
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		patron_id BIGINT NOT NULL,
		item_id BIGINT NOT NULL,
		copy_id BIGINT NULL,
		pickup_code VARCHAR(64) NOT NULL,
		requested_at VARCHAR(19) NOT NULL,
		ready_at VARCHAR(19) NULL,
		status VARCHAR(32) NOT NULL,
		INDEX idx_reservations_item_status (item_id, status)
	)`,
}

// EnsureSchema creates any missing tables.  Statements are idempotent
// so it is safe to run on every startup.
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range schemaMySQL {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
