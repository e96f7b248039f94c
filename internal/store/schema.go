package store

// schema is applied in order on every open. Column types are chosen to be
// valid in both SQLite and PostgreSQL.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id       TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    password TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS news_articles (
    id           TEXT PRIMARY KEY,
    title        TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    content      TEXT NOT NULL DEFAULT '',
    url          TEXT NOT NULL UNIQUE,
    image_url    TEXT,
    published_at TIMESTAMP NOT NULL,
    source       TEXT NOT NULL,
    author       TEXT,
    category     TEXT NOT NULL DEFAULT 'General',
    created_at   TIMESTAMP NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS payments (
    id                 TEXT PRIMARY KEY,
    coinbase_charge_id TEXT NOT NULL UNIQUE,
    sponsorship_type   TEXT NOT NULL,
    amount             TEXT NOT NULL,
    currency           TEXT NOT NULL DEFAULT 'USDC',
    status             TEXT NOT NULL DEFAULT 'pending',
    sponsorship_id     TEXT,
    metadata           TEXT NOT NULL DEFAULT '',
    hosted_url         TEXT NOT NULL DEFAULT '',
    expires_at         TIMESTAMP,
    created_at         TIMESTAMP NOT NULL,
    updated_at         TIMESTAMP NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS sponsored_icos (
    id                   TEXT PRIMARY KEY,
    name                 TEXT NOT NULL,
    description          TEXT NOT NULL,
    category             TEXT NOT NULL,
    logo_url             TEXT,
    website_url          TEXT,
    whitepaper_url       TEXT,
    target_amount        TEXT NOT NULL,
    raised_amount        TEXT NOT NULL DEFAULT '0',
    start_date           TIMESTAMP NOT NULL,
    end_date             TIMESTAMP NOT NULL,
    is_active            BOOLEAN NOT NULL DEFAULT TRUE,
    sponsorship_end_date TIMESTAMP NOT NULL,
    payment_id           TEXT REFERENCES payments(id),
    created_at           TIMESTAMP NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS banner_ads (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    description TEXT,
    image_url   TEXT NOT NULL,
    target_url  TEXT NOT NULL,
    duration    TEXT NOT NULL,
    start_date  TIMESTAMP NOT NULL,
    end_date    TIMESTAMP NOT NULL,
    is_active   BOOLEAN NOT NULL DEFAULT TRUE,
    payment_id  TEXT REFERENCES payments(id),
    created_at  TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments (status)`,
	`CREATE INDEX IF NOT EXISTS idx_news_published ON news_articles (published_at)`,
	`CREATE INDEX IF NOT EXISTS idx_icos_active ON sponsored_icos (is_active, sponsorship_end_date)`,
	`CREATE INDEX IF NOT EXISTS idx_banners_active ON banner_ads (is_active, end_date)`,
}
