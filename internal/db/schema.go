package db

// Schema statements per dialect. Each entry is one statement: the MySQL
// driver rejects multi-statement Exec unless the DSN opts in.
//
// The JSON "timestamp" of a form is its updated_at column and that of a
// submission its created_at column. Both hold unix seconds.

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS forms (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    form_id TEXT NOT NULL UNIQUE CHECK (form_id <> ''),
    form_name TEXT NOT NULL CHECK (form_name <> ''),
    config TEXT NOT NULL CHECK (json_valid(config)),
    hook TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,        -- Unix timestamp
    updated_at INTEGER NOT NULL         -- Unix timestamp
)`,
	`CREATE TABLE IF NOT EXISTS submissions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    form_id TEXT NOT NULL,
    data TEXT NOT NULL CHECK (json_valid(data)),
    metadata TEXT NOT NULL CHECK (json_valid(metadata)),
    created_at INTEGER NOT NULL,        -- Unix timestamp
    FOREIGN KEY (form_id) REFERENCES forms(form_id) ON DELETE CASCADE
)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_form_id ON submissions(form_id)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at)`,
}

// MySQL has no CREATE INDEX IF NOT EXISTS; indexes are declared inline.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS forms (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    form_id VARCHAR(191) NOT NULL UNIQUE,
    form_name VARCHAR(255) NOT NULL,
    config JSON NOT NULL,
    hook TEXT NOT NULL,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    CONSTRAINT forms_form_id_not_empty CHECK (form_id <> ''),
    CONSTRAINT forms_form_name_not_empty CHECK (form_name <> '')
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS submissions (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    form_id VARCHAR(191) NOT NULL,
    data JSON NOT NULL,
    metadata JSON NOT NULL,
    created_at BIGINT NOT NULL,
    INDEX idx_submissions_form_id (form_id),
    INDEX idx_submissions_created_at (created_at),
    CONSTRAINT submissions_form_fk FOREIGN KEY (form_id) REFERENCES forms(form_id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS forms (
    id BIGSERIAL PRIMARY KEY,
    form_id TEXT NOT NULL UNIQUE CHECK (form_id <> ''),
    form_name TEXT NOT NULL CHECK (form_name <> ''),
    config JSON NOT NULL,
    hook TEXT NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS submissions (
    id BIGSERIAL PRIMARY KEY,
    form_id TEXT NOT NULL REFERENCES forms(form_id) ON DELETE CASCADE,
    data JSON NOT NULL,
    metadata JSON NOT NULL,
    created_at BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_form_id ON submissions(form_id)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at)`,
}

// Schema returns the statements creating the forms and submissions tables
// for dialect d.
func Schema(d Dialect) []string {
	switch d {
	case MySQL:
		return mysqlSchema
	case Postgres:
		return postgresSchema
	default:
		return sqliteSchema
	}
}
