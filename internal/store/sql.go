package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/seantiz/coinpulse/internal/model"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// defaultChargeWindow is how long a charge without a known expiry stays payable.
const defaultChargeWindow = time.Hour

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Compile-time interface satisfaction check.
var _ Store = (*SQLStore)(nil)

// SQLStore implements Store on SQLite or PostgreSQL. Queries are written with
// "?" placeholders and rebound for the active driver.
type SQLStore struct {
	db *sqlx.DB // nil when the store is scoped to a transaction
	q  sqlx.ExtContext
}

// Open connects to the database identified by driver and dsn and applies the schema.
func Open(driver, dsn string) (*SQLStore, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if driver == DriverSQLite && strings.HasPrefix(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	s, err := NewSQLStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// sqlitePragmas are applied by the driver to every pooled connection.
// Transactions take the write lock at BEGIN so a read-then-write
// transaction waits on busy_timeout instead of failing to upgrade.
var sqlitePragmas = []string{
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
	"_txlock=immediate",
}

// sqliteDSN appends the connection pragmas to dsn.
func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(sqlitePragmas, "&")
}

// NewSQLStore wraps an open connection and applies the schema.
func NewSQLStore(db *sqlx.DB) (*SQLStore, error) {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &SQLStore{db: db, q: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// WithTx runs fn inside a transaction. Nested calls reuse the outer transaction.
func (s *SQLStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&SQLStore{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// view runs fn against a read-only transaction so that a count and the page it
// describes come from the same snapshot.
func (s *SQLStore) view(ctx context.Context, fn func(q sqlx.ExtContext) error) error {
	if s.db == nil {
		return fn(s.q)
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()
	return fn(tx)
}

func (s *SQLStore) get(ctx context.Context, dest any, query string, args ...any) error {
	err := sqlx.GetContext(ctx, s.q, dest, s.q.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := s.q.ExecContext(ctx, s.q.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return n, nil
}

func (s *SQLStore) insert(ctx context.Context, what, query string, arg any) error {
	if _, err := sqlx.NamedExecContext(ctx, s.q, query, arg); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert %s: %w", what, ErrDuplicate)
		}
		return fmt.Errorf("insert %s: %w", what, err)
	}
	return nil
}

// CreateUser inserts a new administrator account.
func (s *SQLStore) CreateUser(ctx context.Context, u *model.User) error {
	return s.insert(ctx, "user",
		`INSERT INTO users (id, username, password) VALUES (:id, :username, :password)`, u)
}

// GetUser retrieves a user by ID.
func (s *SQLStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	u := &model.User{}
	if err := s.get(ctx, u, `SELECT id, username, password FROM users WHERE id = ?`, id); err != nil {
		return nil, wrapGet("user", err)
	}
	return u, nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u := &model.User{}
	if err := s.get(ctx, u, `SELECT id, username, password FROM users WHERE username = ?`, username); err != nil {
		return nil, wrapGet("user", err)
	}
	return u, nil
}

const newsColumns = `id, title, description, content, url, image_url, published_at, source, author, category, created_at`

// UpsertNewsArticle stores an article, refreshing the existing row when the
// URL has been archived before.
func (s *SQLStore) UpsertNewsArticle(ctx context.Context, a *model.NewsArticle) error {
	if a.ID == "" {
		a.ID = model.NewID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.CreatedAt = utc(a.CreatedAt)
	a.PublishedAt = utc(a.PublishedAt)

	return s.insert(ctx, "news article", `INSERT INTO news_articles (`+newsColumns+`)
		VALUES (:id, :title, :description, :content, :url, :image_url, :published_at, :source, :author, :category, :created_at)
		ON CONFLICT (url) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			content = excluded.content,
			image_url = excluded.image_url,
			published_at = excluded.published_at,
			source = excluded.source,
			author = excluded.author,
			category = excluded.category`, a)
}

// ListNewsArticles returns archived articles, newest first, with the total
// number of articles matching the filter.
func (s *SQLStore) ListNewsArticles(ctx context.Context, f NewsFilter) ([]model.NewsArticle, int, error) {
	where := ""
	var args []any
	if f.Category != "" && !strings.EqualFold(f.Category, "all") {
		where = " WHERE LOWER(category) = LOWER(?)"
		args = append(args, f.Category)
	}

	var (
		total    int
		articles []model.NewsArticle
	)
	err := s.view(ctx, func(q sqlx.ExtContext) error {
		if err := sqlx.GetContext(ctx, q, &total, q.Rebind(`SELECT COUNT(*) FROM news_articles`+where), args...); err != nil {
			return fmt.Errorf("count news articles: %w", err)
		}
		pageArgs := append(append([]any{}, args...), f.Limit, f.Offset)
		if err := sqlx.SelectContext(ctx, q, &articles, q.Rebind(`SELECT `+newsColumns+` FROM news_articles`+where+
			` ORDER BY published_at DESC LIMIT ? OFFSET ?`), pageArgs...); err != nil {
			return fmt.Errorf("list news articles: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return articles, total, nil
}

const icoColumns = `id, name, description, category, logo_url, website_url, whitepaper_url,
	target_amount, raised_amount, start_date, end_date, is_active, sponsorship_end_date, payment_id, created_at`

// CreateSponsoredICO inserts an ICO listing.
func (s *SQLStore) CreateSponsoredICO(ctx context.Context, ico *model.SponsoredICO) error {
	ico.StartDate = utc(ico.StartDate)
	ico.EndDate = utc(ico.EndDate)
	ico.SponsorshipEndDate = utc(ico.SponsorshipEndDate)
	ico.CreatedAt = utc(ico.CreatedAt)
	if ico.RaisedAmount == "" {
		ico.RaisedAmount = "0"
	}
	return s.insert(ctx, "sponsored ico", `INSERT INTO sponsored_icos (`+icoColumns+`)
		VALUES (:id, :name, :description, :category, :logo_url, :website_url, :whitepaper_url,
			:target_amount, :raised_amount, :start_date, :end_date, :is_active, :sponsorship_end_date, :payment_id, :created_at)`, ico)
}

// ListActiveSponsoredICOs returns ICO listings whose sponsorship has not ended.
func (s *SQLStore) ListActiveSponsoredICOs(ctx context.Context, now time.Time) ([]model.SponsoredICO, error) {
	icos := []model.SponsoredICO{}
	err := sqlx.SelectContext(ctx, s.q, &icos, s.q.Rebind(`SELECT `+icoColumns+` FROM sponsored_icos
		WHERE is_active = ? AND sponsorship_end_date >= ? ORDER BY created_at DESC`), true, utc(now))
	if err != nil {
		return nil, fmt.Errorf("list active sponsored icos: %w", err)
	}
	return icos, nil
}

// ListSponsoredICOs returns every ICO listing.
func (s *SQLStore) ListSponsoredICOs(ctx context.Context) ([]model.SponsoredICO, error) {
	icos := []model.SponsoredICO{}
	if err := sqlx.SelectContext(ctx, s.q, &icos, `SELECT `+icoColumns+` FROM sponsored_icos ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("list sponsored icos: %w", err)
	}
	return icos, nil
}

// DeactivateEndedICOs clears the active flag of listings whose sponsorship
// ended before now and reports how many were changed.
func (s *SQLStore) DeactivateEndedICOs(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.exec(ctx, `UPDATE sponsored_icos SET is_active = ? WHERE is_active = ? AND sponsorship_end_date < ?`,
		false, true, utc(now))
	if err != nil {
		return 0, fmt.Errorf("deactivate ended icos: %w", err)
	}
	return n, nil
}

const bannerColumns = `id, title, description, image_url, target_url, duration, start_date, end_date, is_active, payment_id, created_at`

// CreateBannerAd inserts a banner placement.
func (s *SQLStore) CreateBannerAd(ctx context.Context, b *model.BannerAd) error {
	b.StartDate = utc(b.StartDate)
	b.EndDate = utc(b.EndDate)
	b.CreatedAt = utc(b.CreatedAt)
	return s.insert(ctx, "banner ad", `INSERT INTO banner_ads (`+bannerColumns+`)
		VALUES (:id, :title, :description, :image_url, :target_url, :duration, :start_date, :end_date, :is_active, :payment_id, :created_at)`, b)
}

// ListActiveBannerAds returns banners whose run has not ended.
func (s *SQLStore) ListActiveBannerAds(ctx context.Context, now time.Time) ([]model.BannerAd, error) {
	banners := []model.BannerAd{}
	err := sqlx.SelectContext(ctx, s.q, &banners, s.q.Rebind(`SELECT `+bannerColumns+` FROM banner_ads
		WHERE is_active = ? AND end_date >= ? ORDER BY created_at DESC`), true, utc(now))
	if err != nil {
		return nil, fmt.Errorf("list active banner ads: %w", err)
	}
	return banners, nil
}

// ListBannerAds returns every banner placement.
func (s *SQLStore) ListBannerAds(ctx context.Context) ([]model.BannerAd, error) {
	banners := []model.BannerAd{}
	if err := sqlx.SelectContext(ctx, s.q, &banners, `SELECT `+bannerColumns+` FROM banner_ads ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("list banner ads: %w", err)
	}
	return banners, nil
}

// DeactivateEndedBannerAds clears the active flag of banners that ended before now.
func (s *SQLStore) DeactivateEndedBannerAds(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.exec(ctx, `UPDATE banner_ads SET is_active = ? WHERE is_active = ? AND end_date < ?`,
		false, true, utc(now))
	if err != nil {
		return 0, fmt.Errorf("deactivate ended banner ads: %w", err)
	}
	return n, nil
}

const paymentColumns = `id, coinbase_charge_id, sponsorship_type, amount, currency, status,
	sponsorship_id, metadata, hosted_url, expires_at, created_at, updated_at`

// CreatePayment inserts a payment record.
func (s *SQLStore) CreatePayment(ctx context.Context, p *model.Payment) error {
	p.CreatedAt = utc(p.CreatedAt)
	p.UpdatedAt = utc(p.UpdatedAt)
	if p.ExpiresAt != nil {
		t := utc(*p.ExpiresAt)
		p.ExpiresAt = &t
	}
	return s.insert(ctx, "payment", `INSERT INTO payments (`+paymentColumns+`)
		VALUES (:id, :coinbase_charge_id, :sponsorship_type, :amount, :currency, :status,
			:sponsorship_id, :metadata, :hosted_url, :expires_at, :created_at, :updated_at)`, p)
}

// GetPayment retrieves a payment by ID.
func (s *SQLStore) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	p := &model.Payment{}
	if err := s.get(ctx, p, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id); err != nil {
		return nil, wrapGet("payment", err)
	}
	return p, nil
}

// GetPaymentByChargeID retrieves a payment by its Coinbase charge ID.
func (s *SQLStore) GetPaymentByChargeID(ctx context.Context, chargeID string) (*model.Payment, error) {
	p := &model.Payment{}
	if err := s.get(ctx, p, `SELECT `+paymentColumns+` FROM payments WHERE coinbase_charge_id = ?`, chargeID); err != nil {
		return nil, wrapGet("payment", err)
	}
	return p, nil
}

// UpdatePaymentStatus moves the payment for a charge from one status to
// another. ErrNotFound means no payment has that charge; ErrStatusConflict
// means the payment exists but is no longer in status from. Transition rules
// are enforced by the caller.
func (s *SQLStore) UpdatePaymentStatus(ctx context.Context, chargeID, from, to string) error {
	n, err := s.exec(ctx, `UPDATE payments SET status = ?, updated_at = ? WHERE coinbase_charge_id = ? AND status = ?`,
		to, utc(time.Now()), chargeID, from)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists int
	if err := s.get(ctx, &exists, `SELECT COUNT(*) FROM payments WHERE coinbase_charge_id = ?`, chargeID); err != nil {
		return fmt.Errorf("check payment: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrStatusConflict
}

// SetPaymentSponsorship links a payment to the listing it activated.
func (s *SQLStore) SetPaymentSponsorship(ctx context.Context, paymentID, sponsorshipID string) error {
	n, err := s.exec(ctx, `UPDATE payments SET sponsorship_id = ?, updated_at = ? WHERE id = ?`,
		sponsorshipID, utc(time.Now()), paymentID)
	if err != nil {
		return fmt.Errorf("set payment sponsorship: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPayments returns a page of payments ordered by created_at DESC, along
// with the total count of all payments.
func (s *SQLStore) ListPayments(ctx context.Context, limit, offset int) ([]model.Payment, int, error) {
	var (
		total    int
		payments []model.Payment
	)
	err := s.view(ctx, func(q sqlx.ExtContext) error {
		if err := sqlx.GetContext(ctx, q, &total, `SELECT COUNT(*) FROM payments`); err != nil {
			return fmt.Errorf("count payments: %w", err)
		}
		if err := sqlx.SelectContext(ctx, q, &payments, q.Rebind(`SELECT `+paymentColumns+
			` FROM payments ORDER BY created_at DESC LIMIT ? OFFSET ?`), limit, offset); err != nil {
			return fmt.Errorf("list payments: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// ListStalePendingPayments returns pending payments whose charge window closed
// before now. Charges without a recorded expiry use a one hour window.
func (s *SQLStore) ListStalePendingPayments(ctx context.Context, now time.Time) ([]model.Payment, error) {
	var payments []model.Payment
	err := sqlx.SelectContext(ctx, s.q, &payments, s.q.Rebind(`SELECT `+paymentColumns+` FROM payments
		WHERE status = ?
		AND ((expires_at IS NOT NULL AND expires_at < ?) OR (expires_at IS NULL AND created_at < ?))
		ORDER BY created_at`),
		model.StatusPending, utc(now), utc(now.Add(-defaultChargeWindow)))
	if err != nil {
		return nil, fmt.Errorf("list stale payments: %w", err)
	}
	return payments, nil
}

// GetPaymentStats aggregates payment counts and completed revenue.
func (s *SQLStore) GetPaymentStats(ctx context.Context) (*model.PaymentStats, error) {
	var rows []struct {
		Status   string `db:"status"`
		Type     string `db:"sponsorship_type"`
		Currency string `db:"currency"`
		Amount   string `db:"amount"`
	}
	if err := sqlx.SelectContext(ctx, s.q, &rows,
		`SELECT status, sponsorship_type, currency, amount FROM payments`); err != nil {
		return nil, fmt.Errorf("query payment stats: %w", err)
	}

	stats := &model.PaymentStats{
		ByStatus:     make(map[string]int),
		ByType:       make(map[string]int),
		RevenueByCur: make(map[string]string),
	}
	revenue := make(map[string]*big.Rat)
	for _, r := range rows {
		stats.Total++
		stats.ByStatus[r.Status]++
		stats.ByType[r.Type]++
		if r.Status != model.StatusCompleted {
			continue
		}
		amount, ok := new(big.Rat).SetString(r.Amount)
		if !ok {
			return nil, fmt.Errorf("parse payment amount %q", r.Amount)
		}
		if revenue[r.Currency] == nil {
			revenue[r.Currency] = new(big.Rat)
		}
		revenue[r.Currency].Add(revenue[r.Currency], amount)
	}
	for cur, total := range revenue {
		stats.RevenueByCur[cur] = total.FloatString(2)
	}
	return stats, nil
}

func wrapGet(what string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("get %s: %w", what, err)
}

// utc normalizes timestamps so SQLite's text comparison orders them correctly.
func utc(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE")
	}
	return false
}
