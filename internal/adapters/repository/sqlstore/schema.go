package sqlstore

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS books (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		isbn TEXT NOT NULL UNIQUE,
		total_copies INTEGER NOT NULL CHECK (total_copies >= 0),
		available_copies INTEGER NOT NULL CHECK (available_copies >= 0 AND available_copies <= total_copies)
	)`,
	`CREATE TABLE IF NOT EXISTS members (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS loans (
		id BIGSERIAL PRIMARY KEY,
		book_id BIGINT NOT NULL REFERENCES books(id),
		member_id BIGINT NOT NULL REFERENCES members(id),
		borrowed_at TIMESTAMPTZ NOT NULL,
		due_date TIMESTAMPTZ NOT NULL,
		returned_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_loans_member_active ON loans (member_id) WHERE returned_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_loans_book ON loans (book_id)`,
	`CREATE INDEX IF NOT EXISTS idx_loans_overdue ON loans (due_date) WHERE returned_at IS NULL`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS books (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		isbn TEXT NOT NULL UNIQUE,
		total_copies INTEGER NOT NULL CHECK (total_copies >= 0),
		available_copies INTEGER NOT NULL CHECK (available_copies >= 0 AND available_copies <= total_copies)
	)`,
	`CREATE TABLE IF NOT EXISTS members (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS loans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		book_id INTEGER NOT NULL REFERENCES books(id),
		member_id INTEGER NOT NULL REFERENCES members(id),
		borrowed_at TIMESTAMP NOT NULL,
		due_date TIMESTAMP NOT NULL,
		returned_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_loans_member_active ON loans (member_id) WHERE returned_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_loans_book ON loans (book_id)`,
	`CREATE INDEX IF NOT EXISTS idx_loans_overdue ON loans (due_date) WHERE returned_at IS NULL`,
}
