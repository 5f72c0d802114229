package model

import "strings"

// Payment methods recorded on local orders.
const (
	PaymentCash    = "cash"
	PaymentCard    = "card"
	PaymentVoucher = "voucher"
)

// genericPaymentLabels are the placeholder labels some platform tenants send
// when no concrete payment method was captured upstream.
var genericPaymentLabels = map[string]bool{
	"":               true,
	"online":         true,
	"payment":        true,
	"online payment": true,
}

// ResolvePaymentMethod normalizes the payment method reported by the platform.
//
// Priority rule: an explicit voucher code always wins; a concrete method is
// used as-is; a generic "online"/"payment" label falls back to the configured
// default, and only when no default is configured does the paid-means-card
// heuristic apply. The heuristic is unverified against real tenant data,
// which is why the configured default takes precedence over it.
func ResolvePaymentMethod(method, paymentStatus, voucherCode, configuredDefault string) string {
	if strings.TrimSpace(voucherCode) != "" {
		return PaymentVoucher
	}

	normalized := strings.ToLower(strings.TrimSpace(method))
	if !genericPaymentLabels[normalized] {
		return normalized
	}

	if configuredDefault != "" {
		return strings.ToLower(configuredDefault)
	}

	if strings.EqualFold(strings.TrimSpace(paymentStatus), "paid") {
		return PaymentCard
	}
	return PaymentCash
}
