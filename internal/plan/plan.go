// Package plan holds the subscription tiers and the quota limits attached to
// each of them. The table is static and read-only for the life of the process.
package plan

import "strings"

// Plan identifies a subscription tier as stored in users.plan.
type Plan string

const (
	Free   Plan = "free"
	Pro    Plan = "pro"
	Agency Plan = "agency"
)

// Limits describes what a tier allows.
type Limits struct {
	MaxActiveListings int `json:"max_active_listings"`
	MaxImages         int `json:"max_images"`
}

var limits = map[Plan]Limits{
	Free:   {MaxActiveListings: 3, MaxImages: 5},
	Pro:    {MaxActiveListings: 12, MaxImages: 8},
	Agency: {MaxActiveListings: 100, MaxImages: 20},
}

// LimitsFor returns the limits for p. Unknown or empty plans get the free
// tier's limits.
func LimitsFor(p Plan) Limits {
	if l, ok := limits[Normalize(string(p))]; ok {
		return l
	}
	return limits[Free]
}

// Normalize maps a raw plan value onto a known tier, defaulting to Free.
func Normalize(s string) Plan {
	if p, ok := Parse(s); ok {
		return p
	}
	return Free
}

// Parse is the strict variant of Normalize: it reports whether s names a
// known tier.
func Parse(s string) (Plan, bool) {
	p := Plan(strings.ToLower(strings.TrimSpace(s)))
	_, ok := limits[p]
	return p, ok
}

// Entry pairs a tier with its limits for catalog listings.
type Entry struct {
	Plan   Plan   `json:"plan"`
	Limits Limits `json:"limits"`
}

// All returns every tier, cheapest first.
func All() []Entry {
	return []Entry{
		{Plan: Free, Limits: limits[Free]},
		{Plan: Pro, Limits: limits[Pro]},
		{Plan: Agency, Limits: limits[Agency]},
	}
}

// IsPaid reports whether p is a paid tier.
func (p Plan) IsPaid() bool { return p == Pro || p == Agency }

func (p Plan) String() string { return string(p) }
