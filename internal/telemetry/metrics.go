package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AuctionMetrics records auction engine counters.
type AuctionMetrics struct {
	bidsAccepted metric.Int64Counter
	bidsRejected metric.Int64Counter
	finalized    metric.Int64Counter
	liveRooms    metric.Int64UpDownCounter
}

// NewAuctionMetrics registers the auction instruments on mp.
func NewAuctionMetrics(mp metric.MeterProvider) (*AuctionMetrics, error) {
	meter := mp.Meter("github.com/jensholdgaard/cricket-auction/internal/auction")

	accepted, err := meter.Int64Counter("auction.bids.accepted",
		metric.WithDescription("Bids accepted by the room state machine."))
	if err != nil {
		return nil, fmt.Errorf("creating bids accepted counter: %w", err)
	}
	rejected, err := meter.Int64Counter("auction.bids.rejected",
		metric.WithDescription("Bids rejected, by reason."))
	if err != nil {
		return nil, fmt.Errorf("creating bids rejected counter: %w", err)
	}
	finalized, err := meter.Int64Counter("auction.players.finalized",
		metric.WithDescription("Players written to the ledger, by outcome."))
	if err != nil {
		return nil, fmt.Errorf("creating finalized counter: %w", err)
	}
	live, err := meter.Int64UpDownCounter("auction.rooms.live",
		metric.WithDescription("Rooms with a running auction timer."))
	if err != nil {
		return nil, fmt.Errorf("creating live rooms counter: %w", err)
	}

	return &AuctionMetrics{
		bidsAccepted: accepted,
		bidsRejected: rejected,
		finalized:    finalized,
		liveRooms:    live,
	}, nil
}

// BidAccepted counts an accepted bid.
func (m *AuctionMetrics) BidAccepted(ctx context.Context) {
	m.bidsAccepted.Add(ctx, 1)
}

// BidRejected counts a rejected bid.
func (m *AuctionMetrics) BidRejected(ctx context.Context, reason string) {
	m.bidsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// PlayerFinalized counts a ledger write.
func (m *AuctionMetrics) PlayerFinalized(ctx context.Context, outcome string) {
	m.finalized.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RoomLive adjusts the live room gauge by delta.
func (m *AuctionMetrics) RoomLive(ctx context.Context, delta int64) {
	m.liveRooms.Add(ctx, delta)
}
