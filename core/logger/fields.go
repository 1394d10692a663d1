package logger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Caps for customer supplied text that ends up in log lines.
const (
	payloadLimit = 256
	emailLimit   = 128
)

// moneyFields hold amounts. Decimal strings are rewritten to their canonical
// form so "450.00" from one package and "450" from another compare equal.
var moneyFields = []string{"amount", "paid_amount", "price"}

// normalizeShopFields gives order and payment fields one shape no matter
// which package logged them.
func normalizeShopFields(fields map[string]any) {
	if p, ok := stringField(fields, "payload"); ok {
		fields["payload"] = SanitizeLimit(p, payloadLimit)
	}
	if e, ok := stringField(fields, "email"); ok {
		fields["email"] = MaskEmail(SanitizeLimit(e, emailLimit))
	}
	if id, ok := stringField(fields, "order_id"); ok {
		fields["order_id"] = strings.TrimPrefix(id, "#")
	}
	for _, k := range moneyFields {
		s, ok := stringField(fields, k)
		if !ok || s == "" {
			continue
		}
		if d, err := decimal.NewFromString(s); err == nil {
			fields[k] = d.String()
		}
	}
}

// MaskEmail keeps the first rune of the local part and the domain:
// "name@gmail.com" becomes "n***@gmail.com". Values without '@' are
// replaced entirely.
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" {
		return "***"
	}
	return string([]rune(local)[:1]) + "***@" + domain
}
