package notify

import (
	"fmt"
	"strings"

	"craiseek/models"
)

// FormatMessage renders the alert text shared by every channel. Channels
// differ in transport, not content.
func FormatMessage(l *models.Listing) string {
	var b strings.Builder
	b.WriteString("New listing: ")
	b.WriteString(FormatPrice(l.PriceCents))
	b.WriteString(" - ")
	b.WriteString(l.Title)
	if l.Neighborhood != "" {
		b.WriteString(" in ")
		b.WriteString(l.Neighborhood)
	}
	b.WriteString(". Link: ")
	b.WriteString(l.URL)
	return b.String()
}

// FormatPrice renders cents as a dollar amount, dropping a ".00" tail.
func FormatPrice(cents *int64) string {
	if cents == nil {
		return "price unlisted"
	}
	dollars := *cents / 100
	rem := *cents % 100
	if rem == 0 {
		return "$" + groupThousands(dollars)
	}
	return fmt.Sprintf("$%s.%02d", groupThousands(dollars), rem)
}

func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	return s + "," + strings.Join(parts, ",")
}
