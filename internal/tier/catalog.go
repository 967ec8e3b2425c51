// Package tier holds the static credit-package catalog and the model tier
// tables. Everything here is immutable reference data.
package tier

// Tier is the service level attached to a credit package.
type Tier string

const (
	Basic     Tier = "basic"
	Standard  Tier = "standard"
	Premium   Tier = "premium"
	Unlimited Tier = "unlimited"
)

// Package is one catalog entry. PriceUSD is in cents.
type Package struct {
	ID           uint8
	CreditAmount int64
	PriceUSD     int64
	Access       Tier
}

// Higher ids carry larger bonus-bearing grants; spend preference walks them
// in descending id order.
var packages = []Package{
	{ID: 1, CreditAmount: 100, PriceUSD: 999, Access: Basic},
	{ID: 2, CreditAmount: 300, PriceUSD: 2499, Access: Standard},
	{ID: 3, CreditAmount: 800, PriceUSD: 5999, Access: Premium},
	{ID: 4, CreditAmount: 2000, PriceUSD: 12999, Access: Unlimited},
}

// Packages returns a copy of the catalog.
func Packages() []Package {
	out := make([]Package, len(packages))
	copy(out, packages)
	return out
}

// PackageByID looks up one catalog entry.
func PackageByID(id uint8) (Package, bool) {
	for _, p := range packages {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}

// PackageIDs returns all catalog ids in ascending order.
func PackageIDs() []uint8 {
	ids := make([]uint8, len(packages))
	for i, p := range packages {
		ids[i] = p.ID
	}
	return ids
}

// AccessFor returns the tier a package grants; unknown ids get Basic.
func AccessFor(id uint8) Tier {
	if p, ok := PackageByID(id); ok {
		return p.Access
	}
	return Basic
}
