package store

import (
	"context"
	"errors"
	"time"

	"github.com/seantiz/coinpulse/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("duplicate record")

	// ErrStatusConflict is returned when a conditional status update finds
	// the record already moved to another status.
	ErrStatusConflict = errors.New("status changed concurrently")
)

// NewsFilter narrows archived news listings.
type NewsFilter struct {
	Category string
	Limit    int
	Offset   int
}

// Store defines the persistence operations for the site.
type Store interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)

	UpsertNewsArticle(ctx context.Context, a *model.NewsArticle) error
	ListNewsArticles(ctx context.Context, f NewsFilter) ([]model.NewsArticle, int, error)

	CreateSponsoredICO(ctx context.Context, ico *model.SponsoredICO) error
	ListActiveSponsoredICOs(ctx context.Context, now time.Time) ([]model.SponsoredICO, error)
	ListSponsoredICOs(ctx context.Context) ([]model.SponsoredICO, error)
	DeactivateEndedICOs(ctx context.Context, now time.Time) (int64, error)

	CreateBannerAd(ctx context.Context, b *model.BannerAd) error
	ListActiveBannerAds(ctx context.Context, now time.Time) ([]model.BannerAd, error)
	ListBannerAds(ctx context.Context) ([]model.BannerAd, error)
	DeactivateEndedBannerAds(ctx context.Context, now time.Time) (int64, error)

	CreatePayment(ctx context.Context, p *model.Payment) error
	GetPayment(ctx context.Context, id string) (*model.Payment, error)
	GetPaymentByChargeID(ctx context.Context, chargeID string) (*model.Payment, error)
	UpdatePaymentStatus(ctx context.Context, chargeID, from, to string) error
	SetPaymentSponsorship(ctx context.Context, paymentID, sponsorshipID string) error
	ListPayments(ctx context.Context, limit, offset int) ([]model.Payment, int, error)
	ListStalePendingPayments(ctx context.Context, now time.Time) ([]model.Payment, error)
	GetPaymentStats(ctx context.Context) (*model.PaymentStats, error)

	// WithTx runs fn against a transactional Store. The transaction commits
	// when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
	Close() error
}
