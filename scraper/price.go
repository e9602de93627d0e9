package scraper

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	priceDigitsRegex = regexp.MustCompile(`\d[\d,]*(?:\.\d{1,2})?`)
	bedroomRegex     = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:br|bd|bed|beds|bedroom|bedrooms)\b`)
)

// ParsePriceCents coerces marketplace price text ("$1,800", "1800.50") to
// integer minor units. Unparseable text yields nil; an unknown price is
// kept, not rejected.
func ParsePriceCents(text string) *int64 {
	match := priceDigitsRegex.FindString(text)
	if match == "" {
		return nil
	}
	match = strings.ReplaceAll(match, ",", "")

	if dot := strings.Index(match, "."); dot >= 0 {
		whole, err := strconv.ParseInt(match[:dot], 10, 64)
		if err != nil {
			return nil
		}
		frac := match[dot+1:]
		if len(frac) == 1 {
			frac += "0"
		}
		fracVal, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return nil
		}
		cents := whole*100 + fracVal
		return &cents
	}

	whole, err := strconv.ParseInt(match, 10, 64)
	if err != nil {
		return nil
	}
	cents := whole * 100
	return &cents
}

// ParseBedrooms pulls a bedroom count out of free text ("2BR", "3 bedroom",
// "2 bd"). Absence is normal, not an error.
func ParseBedrooms(text string) *int {
	match := bedroomRegex.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}
	return &n
}
