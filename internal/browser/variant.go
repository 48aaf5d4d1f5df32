package browser

import "strings"

// Variant is a browser engine family.
type Variant string

const (
	Chromium Variant = "chromium"
	Firefox  Variant = "firefox"
	WebKit   Variant = "webkit"
)

// Variants lists the supported families; the first entry is the primary one.
var Variants = []Variant{Chromium, Firefox, WebKit}

// ParseVariant resolves a configured browser name. Matching is case
// insensitive and unknown or empty names resolve to the primary variant.
func ParseVariant(name string) Variant {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "firefox":
		return Firefox
	case "webkit":
		return WebKit
	case "chromium", "chrome":
		return Chromium
	}
	return Variants[0]
}

func (v Variant) String() string { return string(v) }
