package models

import (
	"strings"
	"time"
)

type Tier string

const (
	TierFree      Tier = "FREE"
	TierEssential Tier = "ESSENTIAL"
	TierElite     Tier = "ELITE"
)

func ParseTier(s string) Tier {
	switch Tier(strings.ToUpper(strings.TrimSpace(s))) {
	case TierEssential:
		return TierEssential
	case TierElite:
		return TierElite
	default:
		return TierFree
	}
}

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelChat  Channel = "chat"
	ChannelEmail Channel = "email"
)

// AllChannels is the closed variant set, in dispatch order.
var AllChannels = []Channel{ChannelSMS, ChannelChat, ChannelEmail}

func ParseChannel(s string) (Channel, bool) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelSMS:
		return ChannelSMS, true
	case ChannelChat:
		return ChannelChat, true
	case ChannelEmail:
		return ChannelEmail, true
	}
	return "", false
}

// Criteria is a subscriber's listing filter. Zero value matches everything.
type Criteria struct {
	Keywords      []string `json:"keywords"`
	MinPriceCents *int64   `json:"min_price_cents"`
	MaxPriceCents *int64   `json:"max_price_cents"`
	MinBedrooms   *int     `json:"min_bedrooms"`
	MaxBedrooms   *int     `json:"max_bedrooms"`
	Neighborhood  string   `json:"neighborhood"`
}

// Empty reports whether no filter is configured at all.
func (c *Criteria) Empty() bool {
	return len(c.Keywords) == 0 && c.MinPriceCents == nil && c.MaxPriceCents == nil &&
		c.MinBedrooms == nil && c.MaxBedrooms == nil && c.Neighborhood == ""
}

// Subscriber is owned by the external account/billing side. The core reads
// these records and records delivery outcomes; it never mutates tier or
// contact fields. Empty contact strings mean "no address on file".
type Subscriber struct {
	ID         int64     `json:"id" db:"id"`
	Tier       Tier      `json:"tier" db:"tier"`
	Preference Channel   `json:"channel_preference" db:"channel_preference"` // ESSENTIAL signup choice
	Phone      string    `json:"phone" db:"phone"`
	ChatHandle string    `json:"chat_handle" db:"chat_handle"`
	Email      string    `json:"email" db:"email"`
	Criteria   Criteria  `json:"criteria"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// EntitledChannels resolves the tier to its channel set. FREE rides the
// email digest; ESSENTIAL gets email plus its signup preference; ELITE gets
// everything. The result is a snapshot: dispatch must not re-derive it
// mid-cycle.
func (s *Subscriber) EntitledChannels() []Channel {
	switch s.Tier {
	case TierElite:
		return append([]Channel(nil), AllChannels...)
	case TierEssential:
		channels := []Channel{ChannelEmail}
		if s.Preference == ChannelSMS || s.Preference == ChannelChat {
			channels = append(channels, s.Preference)
		}
		return channels
	default:
		return []Channel{ChannelEmail}
	}
}

// Address returns the contact address for a channel, empty when none is on
// file. A channel is usable only when both entitlement and address exist.
func (s *Subscriber) Address(ch Channel) string {
	switch ch {
	case ChannelSMS:
		return s.Phone
	case ChannelChat:
		return s.ChatHandle
	case ChannelEmail:
		return s.Email
	}
	return ""
}
