// Package payment runs the sponsorship checkout workflow: it opens Coinbase
// charges for sponsorship requests, applies webhook notifications to the
// payment records, and activates the paid listings.
package payment
