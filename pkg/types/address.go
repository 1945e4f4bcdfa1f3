package types

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Address is a delivery or pickup address down to street level.
type Address struct {
	RecipientName string    `json:"recipient_name,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Province      string    `json:"province" validate:"required"`
	District      string    `json:"district" validate:"required"`
	Ward          string    `json:"ward" validate:"required"`
	Detail        string    `json:"detail" validate:"required"`
	Location      *GeoPoint `json:"location,omitempty"`
}

// Complete reports whether every administrative level is present.
func (a Address) Complete() bool {
	return strings.TrimSpace(a.Province) != "" &&
		strings.TrimSpace(a.District) != "" &&
		strings.TrimSpace(a.Ward) != "" &&
		strings.TrimSpace(a.Detail) != ""
}

// NormalizedProvince folds case, diacritics and common prefixes so
// "Thành phố Hồ Chí Minh" and "tp ho chi minh" compare equal.
func (a Address) NormalizedProvince() string {
	return NormalizeRegion(a.Province)
}

var regionPrefixes = []string{"thanh pho ", "tp. ", "tp ", "tinh "}

// NormalizeRegion lowercases, strips accents and administrative prefixes.
func NormalizeRegion(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, value)
	if err != nil {
		folded = value
	}
	folded = strings.ReplaceAll(folded, "đ", "d")
	folded = strings.ReplaceAll(folded, "Đ", "d")
	folded = strings.ToLower(strings.Join(strings.Fields(folded), " "))
	for _, prefix := range regionPrefixes {
		if strings.HasPrefix(folded, prefix) {
			folded = strings.TrimSpace(strings.TrimPrefix(folded, prefix))
			break
		}
	}
	return folded
}
