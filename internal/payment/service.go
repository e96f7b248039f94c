package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/seantiz/coinpulse/internal/coinbase"
	"github.com/seantiz/coinpulse/internal/model"
	"github.com/seantiz/coinpulse/internal/store"
)

// ErrPaymentNotFound is returned when no payment matches a charge or ID.
var ErrPaymentNotFound = errors.New("payment not found")

// ChargeCreator opens hosted checkout charges.
type ChargeCreator interface {
	CreateCharge(ctx context.Context, cr coinbase.ChargeRequest) (*coinbase.Charge, error)
}

// Service implements the sponsorship checkout workflow.
type Service struct {
	store    store.Store
	charges  ChargeCreator
	broker   *StatusBroker
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a payment service.
func NewService(s store.Store, charges ChargeCreator, logger *slog.Logger) *Service {
	return &Service{
		store:    s,
		charges:  charges,
		broker:   NewStatusBroker(),
		validate: newValidator(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Broker returns the status broker used for payment event streams.
func (s *Service) Broker() *StatusBroker {
	return s.broker
}

// GetPayment returns the payment with the given ID.
func (s *Service) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	p, err := s.store.GetPayment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// CreateICOSponsorship opens a charge for a three day ICO listing.
func (s *Service) CreateICOSponsorship(ctx context.Context, req model.ICOSponsorshipRequest) (*model.CheckoutResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode sponsorship data: %w", err)
	}
	return s.checkout(ctx, model.SponsorshipICO, coinbase.ChargeRequest{
		Name:        "ICO Sponsorship: " + req.Name,
		Description: fmt.Sprintf("%d-day ICO sponsorship placement", model.ICOSponsorshipDays),
		Amount:      model.ICOSponsorshipAmount,
		Currency:    model.Currency,
	}, string(data))
}

// CreateBannerSponsorship opens a charge for a banner placement priced by
// its duration.
func (s *Service) CreateBannerSponsorship(ctx context.Context, req model.BannerSponsorshipRequest) (*model.CheckoutResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	offer, err := model.BannerOfferFor(req.Duration)
	if err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "duration", Message: err.Error()}}}
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode sponsorship data: %w", err)
	}
	return s.checkout(ctx, model.SponsorshipBanner, coinbase.ChargeRequest{
		Name:        "Banner Ad: " + req.Title,
		Description: offer.Label + " banner advertisement",
		Amount:      offer.Amount,
		Currency:    model.Currency,
	}, string(data))
}

// checkout opens the charge and records the pending payment. The validated
// request is kept as the payment metadata and replayed on confirmation.
func (s *Service) checkout(ctx context.Context, kind string, cr coinbase.ChargeRequest, data string) (*model.CheckoutResponse, error) {
	cr.Metadata = map[string]any{
		"type":            kind,
		"sponsorshipData": data,
	}
	charge, err := s.charges.CreateCharge(ctx, cr)
	if err != nil {
		return nil, fmt.Errorf("create charge: %w", err)
	}

	now := s.now()
	p := &model.Payment{
		ID:               model.NewID(),
		CoinbaseChargeID: charge.ID,
		SponsorshipType:  kind,
		Amount:           cr.Amount,
		Currency:         cr.Currency,
		Status:           model.StatusPending,
		Metadata:         data,
		HostedURL:        charge.HostedURL,
		ExpiresAt:        charge.ExpiresAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}
	chargesCreated.WithLabelValues(kind).Inc()
	s.logger.Info("checkout opened", "payment_id", p.ID, "charge_id", charge.ID, "type", kind, "amount", cr.Amount)

	resp := &model.CheckoutResponse{
		PaymentID: p.ID,
		ChargeID:  charge.ID,
		HostedURL: charge.HostedURL,
		Amount:    charge.Pricing.Local.Amount,
		Currency:  charge.Pricing.Local.Currency,
	}
	if resp.Amount == "" {
		resp.Amount, resp.Currency = cr.Amount, cr.Currency
	}
	return resp, nil
}

// HandleEvent applies a verified webhook event. Events for unknown charges
// and transitions the payment can no longer make are acknowledged and
// dropped so Coinbase stops redelivering them.
func (s *Service) HandleEvent(ctx context.Context, ev coinbase.Event) error {
	var err error
	switch ev.Type {
	case coinbase.EventChargeConfirmed, coinbase.EventChargeResolved:
		err = s.ConfirmPayment(ctx, ev.ChargeID)
	case coinbase.EventChargeFailed:
		err = s.FailPayment(ctx, ev.ChargeID)
	default:
		webhookEvents.WithLabelValues(ev.Type, "ignored").Inc()
		s.logger.Debug("webhook event ignored", "event_id", ev.ID, "type", ev.Type, "charge_id", ev.ChargeID)
		return nil
	}

	outcome := "applied"
	switch {
	case err == nil:
	case errors.Is(err, ErrPaymentNotFound):
		outcome = "unknown_charge"
		s.logger.Warn("webhook for unknown charge", "event_id", ev.ID, "type", ev.Type, "charge_id", ev.ChargeID)
		err = nil
	case errors.Is(err, model.ErrInvalidTransition):
		outcome = "ignored"
		s.logger.Info("webhook transition skipped", "event_id", ev.ID, "type", ev.Type, "charge_id", ev.ChargeID, "error", err)
		err = nil
	default:
		outcome = "error"
	}
	webhookEvents.WithLabelValues(ev.Type, outcome).Inc()
	return err
}

// ConfirmPayment marks the payment for chargeID completed and activates its
// listing in one transaction. Confirming a completed payment is a no-op.
func (s *Service) ConfirmPayment(ctx context.Context, chargeID string) error {
	var (
		p         *model.Payment
		activated string
	)
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		p, err = lookupCharge(ctx, tx, chargeID)
		if err != nil {
			return err
		}
		if p.Status == model.StatusCompleted {
			return nil
		}
		if !model.ValidTransition(p.Status, model.StatusCompleted) {
			return fmt.Errorf("confirm payment %s from %s: %w", p.ID, p.Status, model.ErrInvalidTransition)
		}
		err = tx.UpdatePaymentStatus(ctx, chargeID, p.Status, model.StatusCompleted)
		if errors.Is(err, store.ErrStatusConflict) {
			// Another delivery moved the payment after our read.
			cur, err := lookupCharge(ctx, tx, chargeID)
			if err != nil {
				return err
			}
			if cur.Status == model.StatusCompleted {
				return nil
			}
			return fmt.Errorf("complete payment %s: now %s: %w", p.ID, cur.Status, store.ErrStatusConflict)
		}
		if err != nil {
			return fmt.Errorf("complete payment: %w", err)
		}
		id, err := s.activate(ctx, tx, p)
		if err != nil {
			return err
		}
		if err := tx.SetPaymentSponsorship(ctx, p.ID, id); err != nil {
			return fmt.Errorf("link sponsorship: %w", err)
		}
		activated = id
		return nil
	})
	if err != nil {
		return err
	}
	if activated == "" {
		s.logger.Debug("payment already completed", "payment_id", p.ID, "charge_id", chargeID)
		return nil
	}

	sponsorshipsActivated.WithLabelValues(p.SponsorshipType).Inc()
	s.broker.Publish(p.ID, model.StatusCompleted)
	s.broker.Close(p.ID)
	s.logger.Info("payment confirmed, sponsorship activated",
		"payment_id", p.ID, "charge_id", chargeID, "type", p.SponsorshipType, "sponsorship_id", activated)
	return nil
}

// activate creates the listing paid for by p and returns its ID.
func (s *Service) activate(ctx context.Context, tx store.Store, p *model.Payment) (string, error) {
	now := s.now()
	switch p.SponsorshipType {
	case model.SponsorshipICO:
		var req model.ICOSponsorshipRequest
		if err := json.Unmarshal([]byte(p.Metadata), &req); err != nil {
			return "", fmt.Errorf("decode ico request: %w", err)
		}
		ico, err := newSponsoredICO(req, p.ID, now)
		if err != nil {
			return "", err
		}
		if err := tx.CreateSponsoredICO(ctx, ico); err != nil {
			return "", fmt.Errorf("create sponsored ico: %w", err)
		}
		return ico.ID, nil

	case model.SponsorshipBanner:
		var req model.BannerSponsorshipRequest
		if err := json.Unmarshal([]byte(p.Metadata), &req); err != nil {
			return "", fmt.Errorf("decode banner request: %w", err)
		}
		offer, err := model.BannerOfferFor(req.Duration)
		if err != nil {
			return "", err
		}
		ad := &model.BannerAd{
			ID:          model.NewID(),
			Title:       req.Title,
			Description: optional(req.Description),
			ImageURL:    req.ImageURL,
			TargetURL:   req.TargetURL,
			Duration:    req.Duration,
			StartDate:   now,
			EndDate:     now.AddDate(0, 0, offer.Days),
			IsActive:    true,
			PaymentID:   &p.ID,
			CreatedAt:   now,
		}
		if err := tx.CreateBannerAd(ctx, ad); err != nil {
			return "", fmt.Errorf("create banner ad: %w", err)
		}
		return ad.ID, nil
	}
	return "", fmt.Errorf("unknown sponsorship type %q", p.SponsorshipType)
}

func newSponsoredICO(req model.ICOSponsorshipRequest, paymentID string, now time.Time) (*model.SponsoredICO, error) {
	start, err := model.ParseDate(req.StartDate)
	if err != nil {
		return nil, fmt.Errorf("ico start date: %w", err)
	}
	end, err := model.ParseDate(req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("ico end date: %w", err)
	}
	raised := req.RaisedAmount
	if raised == "" {
		raised = "0"
	}
	return &model.SponsoredICO{
		ID:                 model.NewID(),
		Name:               req.Name,
		Description:        req.Description,
		Category:           req.Category,
		LogoURL:            optional(req.LogoURL),
		WebsiteURL:         optional(req.WebsiteURL),
		WhitepaperURL:      optional(req.WhitepaperURL),
		TargetAmount:       req.TargetAmount,
		RaisedAmount:       raised,
		StartDate:          start,
		EndDate:            end,
		IsActive:           true,
		SponsorshipEndDate: now.AddDate(0, 0, model.ICOSponsorshipDays),
		PaymentID:          &paymentID,
		CreatedAt:          now,
	}, nil
}

// FailPayment marks the payment for chargeID failed. A completed payment
// stays completed and ErrInvalidTransition is returned.
func (s *Service) FailPayment(ctx context.Context, chargeID string) error {
	var (
		p       *model.Payment
		changed bool
	)
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		p, err = lookupCharge(ctx, tx, chargeID)
		if err != nil {
			return err
		}
		if p.Status == model.StatusFailed {
			return nil
		}
		if !model.ValidTransition(p.Status, model.StatusFailed) {
			return fmt.Errorf("fail payment %s from %s: %w", p.ID, p.Status, model.ErrInvalidTransition)
		}
		err = tx.UpdatePaymentStatus(ctx, chargeID, p.Status, model.StatusFailed)
		if errors.Is(err, store.ErrStatusConflict) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("fail payment: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		s.broker.Publish(p.ID, model.StatusFailed)
		s.logger.Info("payment failed", "payment_id", p.ID, "charge_id", chargeID)
	}
	return nil
}

// ExpireStalePayments marks pending payments whose charge window closed
// before now as expired and returns how many were changed.
func (s *Service) ExpireStalePayments(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.store.ListStalePendingPayments(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, p := range stale {
		changed := false
		err := s.store.WithTx(ctx, func(tx store.Store) error {
			cur, err := tx.GetPayment(ctx, p.ID)
			if err != nil {
				return err
			}
			if cur.Status != model.StatusPending {
				return nil
			}
			err = tx.UpdatePaymentStatus(ctx, cur.CoinbaseChargeID, model.StatusPending, model.StatusExpired)
			if errors.Is(err, store.ErrStatusConflict) {
				return nil
			}
			if err != nil {
				return err
			}
			changed = true
			return nil
		})
		if err != nil {
			return expired, fmt.Errorf("expire payment %s: %w", p.ID, err)
		}
		if changed {
			expired++
			paymentsExpired.Inc()
			s.broker.Publish(p.ID, model.StatusExpired)
		}
	}
	if expired > 0 {
		s.logger.Info("expired stale payments", "count", expired)
	}
	return expired, nil
}

func lookupCharge(ctx context.Context, s store.Store, chargeID string) (*model.Payment, error) {
	p, err := s.GetPaymentByChargeID(ctx, chargeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("charge %s: %w", chargeID, ErrPaymentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment by charge: %w", err)
	}
	return p, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
