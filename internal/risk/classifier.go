// Package risk maps a purchase to the verification tier that decides which
// proof the purchaser must provide.
package risk

import (
	"github.com/shopspring/decimal"

	"github.com/veriflow/veriflow/internal/identity"
)

// Tier is the risk classification of a purchase.
type Tier string

const (
	TierNewUser           Tier = "new_user"
	TierHighValueUnlinked Tier = "high_value_unlinked"
	TierHighValueLinked   Tier = "high_value_linked"
	TierStandard          Tier = "standard"
)

// DefaultThreshold is the amount at and above which a purchase is high value.
var DefaultThreshold = decimal.NewFromInt(500)

// Classifier holds the high-value threshold.
type Classifier struct {
	Threshold decimal.Decimal
}

// NewClassifier returns a classifier for threshold.
func NewClassifier(threshold decimal.Decimal) Classifier {
	return Classifier{Threshold: threshold}
}

// Classify returns the tier for amount given the verified user record, which
// is nil when the (device, instrument) pair was never verified. An unknown
// pair always ranks first so it can never reach a high-value path.
func (c Classifier) Classify(amount decimal.Decimal, user *identity.VerifiedUser) Tier {
	if user == nil {
		return TierNewUser
	}
	if amount.LessThan(c.Threshold) {
		return TierStandard
	}
	if user.IsLinked() {
		return TierHighValueLinked
	}
	return TierHighValueUnlinked
}
