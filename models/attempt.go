package models

import (
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	// OutcomePending marks a triple claimed for sending; the dispatcher
	// settles it to a terminal outcome once the send resolves. A pending
	// row left by a crash still blocks redelivery.
	OutcomePending            Outcome = "pending"
	OutcomeDelivered          Outcome = "delivered"
	OutcomeChannelUnavailable Outcome = "channel_unavailable"
	OutcomeTransientFailure   Outcome = "transient_failure"
	OutcomePermanentFailure   Outcome = "permanent_failure"
)

// DeliveryAttempt is the durable record that makes notification at most
// once per (listing, subscriber, channel). Existence of a row, whatever its
// outcome, means the triple has been consumed.
type DeliveryAttempt struct {
	ListingID    uuid.UUID `json:"listing_id" db:"listing_id"`
	SubscriberID int64     `json:"subscriber_id" db:"subscriber_id"`
	Channel      Channel   `json:"channel" db:"channel"`
	Outcome      Outcome   `json:"outcome" db:"outcome"`
	Detail       string    `json:"detail" db:"detail"`
	AttemptedAt  time.Time `json:"attempted_at" db:"attempted_at"`
}
