package model

import (
	"fmt"
	"time"
)

// Currency every sponsorship charge is priced in.
const Currency = "USDC"

// Banner duration constants.
const (
	Duration3Days = "3_days"
	Duration1Week = "1_week"
)

// ICOSponsorshipDays is how long a confirmed ICO listing stays featured.
const ICOSponsorshipDays = 3

// ICOSponsorshipAmount is the fixed price of an ICO listing.
const ICOSponsorshipAmount = "100.00"

// BannerOffer describes the price and run length of a banner duration.
type BannerOffer struct {
	Amount string
	Days   int
	Label  string
}

var bannerOffers = map[string]BannerOffer{
	Duration3Days: {Amount: "100.00", Days: 3, Label: "3 days"},
	Duration1Week: {Amount: "150.00", Days: 7, Label: "1 week"},
}

// BannerOfferFor returns the offer for a banner duration.
func BannerOfferFor(duration string) (BannerOffer, error) {
	o, ok := bannerOffers[duration]
	if !ok {
		return BannerOffer{}, fmt.Errorf("unknown banner duration %q", duration)
	}
	return o, nil
}

// SponsoredICO is an ICO listing activated by a confirmed payment.
type SponsoredICO struct {
	ID                 string    `json:"id" db:"id"`
	Name               string    `json:"name" db:"name"`
	Description        string    `json:"description" db:"description"`
	Category           string    `json:"category" db:"category"`
	LogoURL            *string   `json:"logoUrl" db:"logo_url"`
	WebsiteURL         *string   `json:"websiteUrl" db:"website_url"`
	WhitepaperURL      *string   `json:"whitepaperUrl" db:"whitepaper_url"`
	TargetAmount       string    `json:"targetAmount" db:"target_amount"`
	RaisedAmount       string    `json:"raisedAmount" db:"raised_amount"`
	StartDate          time.Time `json:"startDate" db:"start_date"`
	EndDate            time.Time `json:"endDate" db:"end_date"`
	IsActive           bool      `json:"isActive" db:"is_active"`
	SponsorshipEndDate time.Time `json:"sponsorshipEndDate" db:"sponsorship_end_date"`
	PaymentID          *string   `json:"paymentId" db:"payment_id"`
	CreatedAt          time.Time `json:"createdAt" db:"created_at"`
}

// BannerAd is a banner placement activated by a confirmed payment.
type BannerAd struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description *string   `json:"description" db:"description"`
	ImageURL    string    `json:"imageUrl" db:"image_url"`
	TargetURL   string    `json:"targetUrl" db:"target_url"`
	Duration    string    `json:"duration" db:"duration"`
	StartDate   time.Time `json:"startDate" db:"start_date"`
	EndDate     time.Time `json:"endDate" db:"end_date"`
	IsActive    bool      `json:"isActive" db:"is_active"`
	PaymentID   *string   `json:"paymentId" db:"payment_id"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// ICOSponsorshipRequest is the checkout body for POST /api/sponsorship/ico.
// Dates accept RFC 3339 timestamps or plain YYYY-MM-DD.
type ICOSponsorshipRequest struct {
	Name          string `json:"name" validate:"required,max=200"`
	Description   string `json:"description" validate:"required,max=5000"`
	Category      string `json:"category" validate:"required,max=100"`
	LogoURL       string `json:"logoUrl,omitempty" validate:"omitempty,url"`
	WebsiteURL    string `json:"websiteUrl,omitempty" validate:"omitempty,url"`
	WhitepaperURL string `json:"whitepaperUrl,omitempty" validate:"omitempty,url"`
	TargetAmount  string `json:"targetAmount" validate:"required,amount"`
	RaisedAmount  string `json:"raisedAmount,omitempty" validate:"omitempty,amount"`
	StartDate     string `json:"startDate" validate:"required,flexdate"`
	EndDate       string `json:"endDate" validate:"required,flexdate"`
}

// BannerSponsorshipRequest is the checkout body for POST /api/sponsorship/banner.
type BannerSponsorshipRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description,omitempty" validate:"max=1000"`
	ImageURL    string `json:"imageUrl" validate:"required,url"`
	TargetURL   string `json:"targetUrl" validate:"required,url"`
	Duration    string `json:"duration" validate:"required,oneof=3_days 1_week"`
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"}

// ParseDate parses a date in any of the layouts accepted by sponsorship requests.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// CheckoutResponse is returned to the client after a charge is opened.
type CheckoutResponse struct {
	PaymentID string `json:"paymentId"`
	ChargeID  string `json:"chargeId"`
	HostedURL string `json:"hostedUrl"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}
