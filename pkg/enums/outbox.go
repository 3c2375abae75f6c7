package enums

// OutboxEventType enumerates the domain events published via the outbox.
type OutboxEventType string

const (
	EventAuctionActivated    OutboxEventType = "auction.activated"
	EventAuctionEnded        OutboxEventType = "auction.ended"
	EventAuctionSettled      OutboxEventType = "auction.settled"
	EventAuctionSold         OutboxEventType = "auction.sold"
	EventAuctionRolledOver   OutboxEventType = "auction.rolled_over"
	EventAuctionUnsold       OutboxEventType = "auction.unsold"
	EventAuctionCancelled    OutboxEventType = "auction.cancelled"
	EventOrderPaymentExpired OutboxEventType = "order.payment_expired"
)

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateAuction OutboxAggregateType = "auction"
	AggregateOrder   OutboxAggregateType = "order"
)
