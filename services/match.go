package services

import (
	"strings"

	"craiseek/models"
)

// Matches reports whether a stored listing satisfies a subscriber's
// criteria. Unset listing fields fail closed: a criteria bound on price can
// never match a listing whose price could not be parsed. Noisy matches cost
// subscriber trust; a missed ambiguous one costs nothing.
func Matches(l *models.Listing, c *models.Criteria) bool {
	if c.Empty() {
		return true
	}

	if c.MinPriceCents != nil || c.MaxPriceCents != nil {
		if l.PriceCents == nil {
			return false
		}
		if c.MinPriceCents != nil && *l.PriceCents < *c.MinPriceCents {
			return false
		}
		if c.MaxPriceCents != nil && *l.PriceCents > *c.MaxPriceCents {
			return false
		}
	}

	if c.MinBedrooms != nil || c.MaxBedrooms != nil {
		if l.Bedrooms == nil {
			return false
		}
		if c.MinBedrooms != nil && *l.Bedrooms < *c.MinBedrooms {
			return false
		}
		if c.MaxBedrooms != nil && *l.Bedrooms > *c.MaxBedrooms {
			return false
		}
	}

	if c.Neighborhood != "" {
		if l.Neighborhood == "" {
			return false
		}
		if !strings.Contains(strings.ToLower(l.Neighborhood), strings.ToLower(c.Neighborhood)) {
			return false
		}
	}

	if len(c.Keywords) > 0 {
		haystack := strings.ToLower(l.Title)
		for _, kw := range c.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if !strings.Contains(haystack, kw) {
				return false
			}
		}
	}

	return true
}
