package coingecko

import "github.com/seantiz/coinpulse/internal/model"

// fallbackPrices is served when CoinGecko cannot be reached so the price
// ticker never renders empty.
var fallbackPrices = []model.CryptoPrice{
	{
		ID:                       "bitcoin",
		Symbol:                   "BTC",
		Name:                     "Bitcoin",
		CurrentPrice:             43256,
		PriceChangePercentage24h: 2.4,
		MarketCap:                850000000000,
		TotalVolume:              15000000000,
		Image:                    "https://assets.coingecko.com/coins/images/1/large/bitcoin.png",
	},
	{
		ID:                       "ethereum",
		Symbol:                   "ETH",
		Name:                     "Ethereum",
		CurrentPrice:             2678,
		PriceChangePercentage24h: -1.2,
		MarketCap:                320000000000,
		TotalVolume:              8000000000,
		Image:                    "https://assets.coingecko.com/coins/images/279/large/ethereum.png",
	},
	{
		ID:                       "solana",
		Symbol:                   "SOL",
		Name:                     "Solana",
		CurrentPrice:             98.45,
		PriceChangePercentage24h: 5.7,
		MarketCap:                45000000000,
		TotalVolume:              2000000000,
		Image:                    "https://assets.coingecko.com/coins/images/4128/large/solana.png",
	},
}

// Fallback returns a copy of the static price set.
func Fallback() []model.CryptoPrice {
	out := make([]model.CryptoPrice, len(fallbackPrices))
	copy(out, fallbackPrices)
	return out
}
