package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seantiz/coinpulse/internal/model"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeTestPayment(chargeID string) *model.Payment {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.Payment{
		ID:               model.NewID(),
		CoinbaseChargeID: chargeID,
		SponsorshipType:  model.SponsorshipICO,
		Amount:           model.ICOSponsorshipAmount,
		Currency:         model.Currency,
		Status:           model.StatusPending,
		Metadata:         `{"name":"Test"}`,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func strPtr(s string) *string { return &s }

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open("mysql", "dsn"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &model.User{ID: model.NewID(), Username: "admin", PasswordHash: "hash"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := s.GetUserByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if got.ID != u.ID || got.PasswordHash != "hash" {
		t.Errorf("got %+v, want %+v", got, u)
	}

	byID, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if byID.Username != "admin" {
		t.Errorf("Username = %q, want admin", byID.Username)
	}
}

func TestCreateUserDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, &model.User{ID: model.NewID(), Username: "admin", PasswordHash: "x"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	err := s.CreateUser(ctx, &model.User{ID: model.NewID(), Username: "admin", PasswordHash: "y"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("CreateUser duplicate error = %v, want ErrDuplicate", err)
	}
}

func TestGetUserNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetUserByUsername(context.Background(), "nobody"); err != ErrNotFound {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestCreateAndGetPayment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := makeTestPayment("charge-1")

	if err := s.CreatePayment(ctx, p); err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}

	got, err := s.GetPaymentByChargeID(ctx, "charge-1")
	if err != nil {
		t.Fatalf("GetPaymentByChargeID: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("ID = %q, want %q", got.ID, p.ID)
	}
	if got.Status != model.StatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
	if got.SponsorshipID != nil {
		t.Errorf("SponsorshipID = %v, want nil", *got.SponsorshipID)
	}
	if !got.CreatedAt.Equal(p.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, p.CreatedAt)
	}

	byID, err := s.GetPayment(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPayment: %v", err)
	}
	if byID.CoinbaseChargeID != "charge-1" {
		t.Errorf("CoinbaseChargeID = %q, want charge-1", byID.CoinbaseChargeID)
	}
}

func TestCreatePaymentDuplicateCharge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreatePayment(ctx, makeTestPayment("dup")); err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if err := s.CreatePayment(ctx, makeTestPayment("dup")); !errors.Is(err, ErrDuplicate) {
		t.Errorf("error = %v, want ErrDuplicate", err)
	}
}

func TestUpdatePaymentStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := makeTestPayment("charge-2")
	if err := s.CreatePayment(ctx, p); err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}

	if err := s.UpdatePaymentStatus(ctx, "charge-2", model.StatusPending, model.StatusCompleted); err != nil {
		t.Fatalf("UpdatePaymentStatus: %v", err)
	}
	got, _ := s.GetPayment(ctx, p.ID)
	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if !got.UpdatedAt.After(p.UpdatedAt) && !got.UpdatedAt.Equal(p.UpdatedAt) {
		t.Errorf("UpdatedAt = %v moved backwards from %v", got.UpdatedAt, p.UpdatedAt)
	}
}

func TestUpdatePaymentStatusNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdatePaymentStatus(context.Background(), "missing", model.StatusPending, model.StatusFailed)
	if err != ErrNotFound {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestUpdatePaymentStatusConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := makeTestPayment("charge-cas")
	if err := s.CreatePayment(ctx, p); err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if err := s.UpdatePaymentStatus(ctx, "charge-cas", model.StatusPending, model.StatusCompleted); err != nil {
		t.Fatalf("first update: %v", err)
	}

	err := s.UpdatePaymentStatus(ctx, "charge-cas", model.StatusPending, model.StatusFailed)
	if !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("second update error = %v, want ErrStatusConflict", err)
	}
	got, _ := s.GetPayment(ctx, p.ID)
	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
}

func TestSetPaymentSponsorship(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := makeTestPayment("charge-3")
	if err := s.CreatePayment(ctx, p); err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}

	if err := s.SetPaymentSponsorship(ctx, p.ID, "ico-1"); err != nil {
		t.Fatalf("SetPaymentSponsorship: %v", err)
	}
	got, _ := s.GetPayment(ctx, p.ID)
	if got.SponsorshipID == nil || *got.SponsorshipID != "ico-1" {
		t.Errorf("SponsorshipID = %v, want ico-1", got.SponsorshipID)
	}

	if err := s.SetPaymentSponsorship(ctx, "missing", "x"); err != ErrNotFound {
		t.Errorf("missing payment error = %v, want ErrNotFound", err)
	}
}

func TestListPaymentsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		p := makeTestPayment(fmt.Sprintf("charge-%d", i))
		p.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second).Truncate(time.Second)
		if err := s.CreatePayment(ctx, p); err != nil {
			t.Fatalf("CreatePayment[%d]: %v", i, err)
		}
	}

	payments, total, err := s.ListPayments(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListPayments: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(payments) != 2 {
		t.Fatalf("len(payments) = %d, want 2", len(payments))
	}
	if payments[0].CoinbaseChargeID != "charge-4" {
		t.Errorf("first payment = %q, want newest charge-4", payments[0].CoinbaseChargeID)
	}

	page3, _, err := s.ListPayments(ctx, 2, 4)
	if err != nil {
		t.Fatalf("ListPayments page 3: %v", err)
	}
	if len(page3) != 1 {
		t.Errorf("len(page3) = %d, want 1", len(page3))
	}
}

func TestListStalePendingPayments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expired := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	withExpiry := makeTestPayment("stale-expiry")
	withExpiry.ExpiresAt = &expired
	fresh := makeTestPayment("fresh-expiry")
	fresh.ExpiresAt = &future
	oldNoExpiry := makeTestPayment("stale-created")
	oldNoExpiry.CreatedAt = now.Add(-2 * time.Hour)
	completed := makeTestPayment("done")
	completed.ExpiresAt = &expired
	completed.Status = model.StatusCompleted

	for _, p := range []*model.Payment{withExpiry, fresh, oldNoExpiry, completed} {
		if err := s.CreatePayment(ctx, p); err != nil {
			t.Fatalf("CreatePayment(%s): %v", p.CoinbaseChargeID, err)
		}
	}

	stale, err := s.ListStalePendingPayments(ctx, now)
	if err != nil {
		t.Fatalf("ListStalePendingPayments: %v", err)
	}
	got := map[string]bool{}
	for _, p := range stale {
		got[p.CoinbaseChargeID] = true
	}
	if len(got) != 2 || !got["stale-expiry"] || !got["stale-created"] {
		t.Errorf("stale payments = %v, want stale-expiry and stale-created", got)
	}
}

func TestActiveSponsoredICOs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	active := &model.SponsoredICO{
		ID: model.NewID(), Name: "Active", Description: "d", Category: "DeFi",
		TargetAmount: "1000", StartDate: now, EndDate: now.Add(48 * time.Hour),
		IsActive: true, SponsorshipEndDate: now.Add(72 * time.Hour), CreatedAt: now,
		WebsiteURL: strPtr("https://active.example"),
	}
	ended := &model.SponsoredICO{
		ID: model.NewID(), Name: "Ended", Description: "d", Category: "DeFi",
		TargetAmount: "1000", StartDate: now, EndDate: now,
		IsActive: true, SponsorshipEndDate: now.Add(-time.Hour), CreatedAt: now,
	}
	for _, ico := range []*model.SponsoredICO{active, ended} {
		if err := s.CreateSponsoredICO(ctx, ico); err != nil {
			t.Fatalf("CreateSponsoredICO: %v", err)
		}
	}

	icos, err := s.ListActiveSponsoredICOs(ctx, now)
	if err != nil {
		t.Fatalf("ListActiveSponsoredICOs: %v", err)
	}
	if len(icos) != 1 || icos[0].Name != "Active" {
		t.Fatalf("active icos = %+v, want only Active", icos)
	}
	if icos[0].RaisedAmount != "0" {
		t.Errorf("RaisedAmount = %q, want default 0", icos[0].RaisedAmount)
	}
	if icos[0].WebsiteURL == nil || *icos[0].WebsiteURL != "https://active.example" {
		t.Errorf("WebsiteURL = %v", icos[0].WebsiteURL)
	}

	n, err := s.DeactivateEndedICOs(ctx, now)
	if err != nil {
		t.Fatalf("DeactivateEndedICOs: %v", err)
	}
	if n != 1 {
		t.Errorf("deactivated = %d, want 1", n)
	}

	all, err := s.ListSponsoredICOs(ctx)
	if err != nil {
		t.Fatalf("ListSponsoredICOs: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("len(all) = %d, want 2", len(all))
	}
	for _, ico := range all {
		if ico.Name == "Ended" && ico.IsActive {
			t.Error("ended ICO still active after deactivation")
		}
	}
}

func TestActiveBannerAds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	running := &model.BannerAd{
		ID: model.NewID(), Title: "Running", ImageURL: "https://img", TargetURL: "https://t",
		Duration: model.Duration3Days, StartDate: now, EndDate: now.Add(72 * time.Hour),
		IsActive: true, CreatedAt: now,
	}
	finished := &model.BannerAd{
		ID: model.NewID(), Title: "Finished", ImageURL: "https://img", TargetURL: "https://t",
		Duration: model.Duration1Week, StartDate: now.Add(-8 * 24 * time.Hour), EndDate: now.Add(-24 * time.Hour),
		IsActive: true, CreatedAt: now, Description: strPtr("old"),
	}
	for _, b := range []*model.BannerAd{running, finished} {
		if err := s.CreateBannerAd(ctx, b); err != nil {
			t.Fatalf("CreateBannerAd: %v", err)
		}
	}

	banners, err := s.ListActiveBannerAds(ctx, now)
	if err != nil {
		t.Fatalf("ListActiveBannerAds: %v", err)
	}
	if len(banners) != 1 || banners[0].Title != "Running" {
		t.Fatalf("active banners = %+v, want only Running", banners)
	}

	n, err := s.DeactivateEndedBannerAds(ctx, now)
	if err != nil {
		t.Fatalf("DeactivateEndedBannerAds: %v", err)
	}
	if n != 1 {
		t.Errorf("deactivated = %d, want 1", n)
	}

	all, _ := s.ListBannerAds(ctx)
	if len(all) != 2 {
		t.Errorf("len(all) = %d, want 2", len(all))
	}
}

func TestUpsertNewsArticle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	published := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	a := &model.NewsArticle{
		Title: "Bitcoin climbs", URL: "https://news.example/btc", PublishedAt: published,
		Source: "Example", Category: "Bitcoin",
	}
	if err := s.UpsertNewsArticle(ctx, a); err != nil {
		t.Fatalf("UpsertNewsArticle: %v", err)
	}

	again := &model.NewsArticle{
		Title: "Bitcoin climbs further", URL: "https://news.example/btc", PublishedAt: published,
		Source: "Example", Category: "Bitcoin",
	}
	if err := s.UpsertNewsArticle(ctx, again); err != nil {
		t.Fatalf("UpsertNewsArticle again: %v", err)
	}

	articles, total, err := s.ListNewsArticles(ctx, NewsFilter{Limit: 10})
	if err != nil {
		t.Fatalf("ListNewsArticles: %v", err)
	}
	if total != 1 || len(articles) != 1 {
		t.Fatalf("total = %d, len = %d, want 1 and 1", total, len(articles))
	}
	if articles[0].Title != "Bitcoin climbs further" {
		t.Errorf("Title = %q, want updated title", articles[0].Title)
	}
	if articles[0].ID != a.ID {
		t.Errorf("ID = %q, want first %q", articles[0].ID, a.ID)
	}
}

func TestListNewsArticlesCategoryFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, cat := range []string{"Bitcoin", "Ethereum", "Bitcoin"} {
		a := &model.NewsArticle{
			Title: fmt.Sprintf("story %d", i), URL: fmt.Sprintf("https://n/%d", i),
			PublishedAt: base.Add(time.Duration(i) * time.Hour), Source: "S", Category: cat,
		}
		if err := s.UpsertNewsArticle(ctx, a); err != nil {
			t.Fatalf("UpsertNewsArticle: %v", err)
		}
	}

	articles, total, err := s.ListNewsArticles(ctx, NewsFilter{Category: "bitcoin", Limit: 10})
	if err != nil {
		t.Fatalf("ListNewsArticles: %v", err)
	}
	if total != 2 || len(articles) != 2 {
		t.Fatalf("total = %d, len = %d, want 2", total, len(articles))
	}
	if articles[0].Title != "story 2" {
		t.Errorf("first = %q, want newest story 2", articles[0].Title)
	}

	_, all, err := s.ListNewsArticles(ctx, NewsFilter{Category: "all", Limit: 10})
	if err != nil {
		t.Fatalf("ListNewsArticles all: %v", err)
	}
	if all != 3 {
		t.Errorf("total for all = %d, want 3", all)
	}
}

func TestWithTxRollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx Store) error {
		if err := tx.CreatePayment(ctx, makeTestPayment("tx-charge")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx error = %v, want boom", err)
	}

	if _, err := s.GetPaymentByChargeID(ctx, "tx-charge"); err != ErrNotFound {
		t.Errorf("payment after rollback: err = %v, want ErrNotFound", err)
	}
}

func TestWithTxCommit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx Store) error {
		p := makeTestPayment("tx-ok")
		if err := tx.CreatePayment(ctx, p); err != nil {
			return err
		}
		return tx.UpdatePaymentStatus(ctx, "tx-ok", model.StatusPending, model.StatusCompleted)
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	got, err := s.GetPaymentByChargeID(ctx, "tx-ok")
	if err != nil {
		t.Fatalf("GetPaymentByChargeID: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
}

func TestGetPaymentStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	specs := []struct {
		charge, typ, amount, status string
	}{
		{"a", model.SponsorshipICO, "100.00", model.StatusCompleted},
		{"b", model.SponsorshipBanner, "150.00", model.StatusCompleted},
		{"c", model.SponsorshipBanner, "100.00", model.StatusPending},
		{"d", model.SponsorshipICO, "100.00", model.StatusFailed},
	}
	for _, sp := range specs {
		p := makeTestPayment(sp.charge)
		p.SponsorshipType = sp.typ
		p.Amount = sp.amount
		p.Status = sp.status
		if err := s.CreatePayment(ctx, p); err != nil {
			t.Fatalf("CreatePayment: %v", err)
		}
	}

	stats, err := s.GetPaymentStats(ctx)
	if err != nil {
		t.Fatalf("GetPaymentStats: %v", err)
	}
	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
	if stats.ByStatus[model.StatusCompleted] != 2 {
		t.Errorf("completed = %d, want 2", stats.ByStatus[model.StatusCompleted])
	}
	if stats.ByType[model.SponsorshipBanner] != 2 {
		t.Errorf("banner = %d, want 2", stats.ByType[model.SponsorshipBanner])
	}
	if stats.RevenueByCur[model.Currency] != "250.00" {
		t.Errorf("revenue = %q, want 250.00", stats.RevenueByCur[model.Currency])
	}
}

func TestFileDatabaseConcurrentTransactions(t *testing.T) {
	s, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "coinpulse.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	const n = 32
	for i := range n {
		if err := s.CreatePayment(ctx, makeTestPayment(fmt.Sprintf("file-%d", i))); err != nil {
			t.Fatalf("CreatePayment: %v", err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func(chargeID string) {
			defer wg.Done()
			errs <- s.WithTx(ctx, func(tx Store) error {
				p, err := tx.GetPaymentByChargeID(ctx, chargeID)
				if err != nil {
					return err
				}
				if err := tx.UpdatePaymentStatus(ctx, chargeID, p.Status, model.StatusCompleted); err != nil {
					return err
				}
				return tx.CreateBannerAd(ctx, &model.BannerAd{
					ID:        model.NewID(),
					Title:     chargeID,
					ImageURL:  "https://img.example/b.png",
					TargetURL: "https://example.com",
					Duration:  model.Duration3Days,
					StartDate: time.Now(),
					EndDate:   time.Now().Add(72 * time.Hour),
					IsActive:  true,
					PaymentID: &p.ID,
					CreatedAt: time.Now(),
				})
			})
		}(fmt.Sprintf("file-%d", i))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent transaction: %v", err)
		}
	}

	stats, err := s.GetPaymentStats(ctx)
	if err != nil {
		t.Fatalf("GetPaymentStats: %v", err)
	}
	if stats.ByStatus[model.StatusCompleted] != n {
		t.Errorf("completed = %d, want %d", stats.ByStatus[model.StatusCompleted], n)
	}
	banners, err := s.ListBannerAds(ctx)
	if err != nil {
		t.Fatalf("ListBannerAds: %v", err)
	}
	if len(banners) != n {
		t.Errorf("banners = %d, want %d", len(banners), n)
	}
}

func TestSQLiteDSNAppendsPragmas(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"coinpulse.db", "coinpulse.db?"},
		{"file:coinpulse.db?mode=rwc", "file:coinpulse.db?mode=rwc&"},
	}
	for _, tt := range tests {
		got := sqliteDSN(tt.dsn)
		if !strings.HasPrefix(got, tt.want) {
			t.Errorf("sqliteDSN(%q) = %q, want prefix %q", tt.dsn, got, tt.want)
		}
		for _, p := range []string{"_pragma=busy_timeout(5000)", "_txlock=immediate"} {
			if !strings.Contains(got, p) {
				t.Errorf("sqliteDSN(%q) = %q, missing %s", tt.dsn, got, p)
			}
		}
	}
}

func TestSchemaIdempotency(t *testing.T) {
	s := newTestStore(t)
	if _, err := NewSQLStore(s.db); err != nil {
		t.Fatalf("re-applying schema: %v", err)
	}
}
