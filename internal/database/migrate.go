package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order on startup. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email         VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		full_name     VARCHAR(255) NOT NULL DEFAULT '',
		role          VARCHAR(32)  NOT NULL DEFAULT 'CUSTOMER',
		is_active     TINYINT(1)   NOT NULL DEFAULT 1,
		drivers_license_url VARCHAR(1024) NULL,
		id_document_url     VARCHAR(1024) NULL,
		created_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id    BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64)        NOT NULL UNIQUE,
		expires_at DATETIME        NOT NULL,
		revoked_at DATETIME        NULL,
		created_at DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_refresh_user (user_id),
		CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id                    CHAR(36)        NOT NULL PRIMARY KEY,
		draft_id              CHAR(36)        NOT NULL UNIQUE,
		user_id               BIGINT UNSIGNED NOT NULL,
		vehicle_id            VARCHAR(64)     NOT NULL,
		vehicle_name          VARCHAR(255)    NOT NULL DEFAULT '',
		vehicle_type          VARCHAR(64)     NOT NULL DEFAULT '',
		pickup_location       VARCHAR(255)    NOT NULL DEFAULT '',
		pickup_date           DATE            NOT NULL,
		return_date           DATE            NOT NULL,
		rental_days           INT             NOT NULL,
		price_per_day         DECIMAL(10,2)   NOT NULL,
		total_price           DECIMAL(10,2)   NOT NULL,
		status                VARCHAR(16)     NOT NULL DEFAULT 'confirmed',
		drivers_license_url   TEXT            NULL,
		id_document_url       TEXT            NULL,
		checkin_fuel_level    INT             NULL,
		checkin_mileage       INT             NULL,
		checkin_signature     TEXT            NULL,
		checkin_completed_at  DATETIME        NULL,
		checkout_fuel_level   INT             NULL,
		checkout_mileage      INT             NULL,
		checkout_signature    TEXT            NULL,
		checkout_completed_at DATETIME        NULL,
		created_at            DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at            DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		KEY idx_bookings_user (user_id, created_at),
		CONSTRAINT fk_bookings_user FOREIGN KEY (user_id) REFERENCES users(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS booking_photos (
		id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		booking_id CHAR(36)     NOT NULL,
		phase      VARCHAR(16)  NOT NULL,
		photo_type VARCHAR(64)  NOT NULL,
		photo_url  TEXT         NOT NULL,
		created_at DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_photos_booking (booking_id, phase),
		CONSTRAINT fk_photos_booking FOREIGN KEY (booking_id) REFERENCES bookings(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the tables the service needs when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
