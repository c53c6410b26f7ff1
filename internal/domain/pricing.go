package domain

import "math/rand"

// PricingRule decides the price of each seat when a show's inventory is
// materialized. A zero Spread yields a flat price; otherwise each seat gets
// a uniform random price in [BaseCents, BaseCents+SpreadCents].
type PricingRule struct {
	BaseCents   int64
	SpreadCents int64
}

func FlatPrice(cents int64) PricingRule {
	return PricingRule{BaseCents: cents}
}

func RandomPrice(minCents, maxCents int64) PricingRule {
	if maxCents < minCents {
		maxCents = minCents
	}
	return PricingRule{BaseCents: minCents, SpreadCents: maxCents - minCents}
}

func (r PricingRule) Valid() bool {
	return r.BaseCents > 0 && r.SpreadCents >= 0
}

func (r PricingRule) SeatPrice(rng *rand.Rand) int64 {
	if r.SpreadCents == 0 {
		return r.BaseCents
	}
	return r.BaseCents + rng.Int63n(r.SpreadCents+1)
}
