package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType labels the durable record emitted by each mutating operation.
type EventType string

const (
	EventMarketCreated       EventType = "market_created"
	EventVotesBought         EventType = "votes_bought"
	EventVotesSold           EventType = "votes_sold"
	EventConfigAdded         EventType = "config_added"
	EventConfigRemoved       EventType = "config_removed"
	EventFeesUpdated         EventType = "fees_updated"
	EventRecipientUpdated    EventType = "donation_recipient_updated"
	EventDonationWithdrawn   EventType = "donation_withdrawn"
	EventMarketGraduated     EventType = "market_graduated"
	EventGraduatedWithdrawal EventType = "graduated_funds_withdrawn"
	EventAllowListUpdated    EventType = "allowlist_updated"
)

// MarketEvent is the durable, queryable record of one state transition.
// Payload carries the event-specific JSON document (trade breakdowns include
// pre/post prices and the full fee split).
type MarketEvent struct {
	ID        string
	Type      EventType
	ProfileID uint64
	Actor     common.Address
	Payload   []byte
	CreatedAt time.Time
}
