package templates

import (
	"context"
	"fmt"

	"github.com/wiserhq/templates/internal/storage"
)

// Schema DDL for the template module. All statements are idempotent so that
// EnsureSchema can run on every startup, including the first open of the
// module inside a branch database (which is how branch schemas catch up).
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS wiser_template (
		id BIGINT NOT NULL AUTO_INCREMENT,
		template_id BIGINT NOT NULL,
		parent_id BIGINT NOT NULL DEFAULT 0,
		template_name VARCHAR(255) NOT NULL,
		template_type VARCHAR(20) NOT NULL,
		version INT NOT NULL,
		template_data MEDIUMTEXT,
		template_data_minified MEDIUMTEXT,
		published_environment TINYINT NOT NULL DEFAULT 0,
		url_regex VARCHAR(255) NOT NULL DEFAULT '',
		load_always TINYINT(1) NOT NULL DEFAULT 0,
		external_files TEXT,
		routine_type VARCHAR(10) NOT NULL DEFAULT '',
		routine_parameters TEXT,
		routine_return_type VARCHAR(64) NOT NULL DEFAULT '',
		trigger_timing VARCHAR(6) NOT NULL DEFAULT '',
		trigger_event VARCHAR(6) NOT NULL DEFAULT '',
		trigger_table_name VARCHAR(255) NOT NULL DEFAULT '',
		ordering INT NOT NULL DEFAULT 0,
		changed_on DATETIME NOT NULL,
		changed_by VARCHAR(100) NOT NULL DEFAULT '',
		removed TINYINT(1) NOT NULL DEFAULT 0,
		PRIMARY KEY (id),
		UNIQUE KEY idx_template_version (template_id, version),
		KEY idx_parent (parent_id),
		KEY idx_name (template_name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS wiser_template_publish_log (
		id BIGINT NOT NULL AUTO_INCREMENT,
		template_id BIGINT NOT NULL,
		old_live INT NOT NULL DEFAULT 0,
		new_live INT NOT NULL DEFAULT 0,
		old_accept INT NOT NULL DEFAULT 0,
		new_accept INT NOT NULL DEFAULT 0,
		old_test INT NOT NULL DEFAULT 0,
		new_test INT NOT NULL DEFAULT 0,
		old_development INT NOT NULL DEFAULT 0,
		new_development INT NOT NULL DEFAULT 0,
		changed_on DATETIME NOT NULL,
		changed_by VARCHAR(100) NOT NULL DEFAULT '',
		PRIMARY KEY (id),
		KEY idx_template (template_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS wiser_dynamic_content (
		id BIGINT NOT NULL AUTO_INCREMENT,
		component VARCHAR(100) NOT NULL,
		component_mode INT NOT NULL DEFAULT 0,
		title VARCHAR(255) NOT NULL DEFAULT '',
		settings MEDIUMTEXT,
		changed_on DATETIME NOT NULL,
		changed_by VARCHAR(100) NOT NULL DEFAULT '',
		PRIMARY KEY (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS wiser_template_dynamic_content (
		content_id BIGINT NOT NULL,
		destination_template_id BIGINT NOT NULL,
		added_on DATETIME NOT NULL,
		added_by VARCHAR(100) NOT NULL DEFAULT '',
		PRIMARY KEY (content_id, destination_template_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS wiser_branches (
		id BIGINT NOT NULL AUTO_INCREMENT,
		name VARCHAR(255) NOT NULL,
		database_name VARCHAR(64) NOT NULL,
		added_on DATETIME NOT NULL,
		added_by VARCHAR(100) NOT NULL DEFAULT '',
		PRIMARY KEY (id),
		UNIQUE KEY idx_database (database_name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates the template module tables when missing.
func EnsureSchema(ctx context.Context, gw storage.Gateway) error {
	for _, stmt := range schemaStatements {
		if _, err := gw.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure template schema: %w", err)
		}
	}
	return nil
}
