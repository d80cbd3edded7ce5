package recommend

import (
	"math"

	"github.com/mrlokans/listenwise/internal/entities"
)

// PurchaseMethod classifies a candidate. A price strictly below the threshold
// is a cash purchase; at or above it, or unknown, a credit.
func PurchaseMethod(price *float64, threshold float64) entities.PurchaseMethod {
	if price == nil || math.IsNaN(*price) {
		return entities.PurchaseMethodCredit
	}
	if toCents(*price) < toCents(threshold) {
		return entities.PurchaseMethodCash
	}
	return entities.PurchaseMethodCredit
}

// toCents rounds to whole cents so 12.65 vs 12.66 compares exactly.
func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// contributorConfidence maps a contributor's share of the visible library
// into (0, 1].
func contributorConfidence(count, total int) float64 {
	if total <= 0 || count <= 0 {
		return 0
	}
	if count >= total {
		return 1
	}
	return float64(count) / float64(total)
}

// seriesConfidence is fixed: finishing a started series is the strongest signal.
const seriesConfidence = 1.0
