package roll

import "github.com/hywave/roll-hub/rollhub/database/models"

// TotalWeight sums the inverse-value weights of the candidates. Lower-value
// items carry proportionally more weight.
func TotalWeight(items []models.Item) float64 {
	var total float64
	for i := range items {
		total += 1 / float64(items[i].Value)
	}
	return total
}

// SelectWeighted walks the cumulative-weight prefix sums and returns the item
// the roll lands on. roll must be drawn uniformly from [0, TotalWeight).
// The first candidate is the fallback when floating-point error pushes the
// roll past the last boundary.
func SelectWeighted(items []models.Item, roll float64) models.Item {
	var cumulative float64
	for i := range items {
		cumulative += 1 / float64(items[i].Value)
		if roll < cumulative {
			return items[i]
		}
	}
	return items[0]
}
