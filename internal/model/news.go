package model

import "time"

// NewsArticle is a crypto news headline as served to the client.
type NewsArticle struct {
	ID          string    `json:"id,omitempty" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Content     string    `json:"content" db:"content"`
	URL         string    `json:"url" db:"url"`
	ImageURL    *string   `json:"imageUrl" db:"image_url"`
	PublishedAt time.Time `json:"publishedAt" db:"published_at"`
	Source      string    `json:"source" db:"source"`
	Author      *string   `json:"author" db:"author"`
	Category    string    `json:"category" db:"category"`
	CreatedAt   time.Time `json:"createdAt,omitzero" db:"created_at"`
}

// NewsPage is one page of news results.
type NewsPage struct {
	Articles     []NewsArticle `json:"articles"`
	TotalResults int           `json:"totalResults"`
	Page         int           `json:"page"`
	PageSize     int           `json:"pageSize"`
	TotalPages   int           `json:"totalPages"`
}

// CryptoPrice is a market snapshot for a single coin.
type CryptoPrice struct {
	ID                       string  `json:"id"`
	Symbol                   string  `json:"symbol"`
	Name                     string  `json:"name"`
	CurrentPrice             float64 `json:"current_price"`
	PriceChangePercentage24h float64 `json:"price_change_percentage_24h"`
	MarketCap                float64 `json:"market_cap"`
	TotalVolume              float64 `json:"total_volume"`
	Image                    string  `json:"image"`
}

// User is an administrator account. The password column holds a bcrypt hash.
type User struct {
	ID           string `json:"id" db:"id"`
	Username     string `json:"username" db:"username"`
	PasswordHash string `json:"-" db:"password"`
}
