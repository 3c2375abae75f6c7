package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/bidhaus/bidhaus-backend/pkg/config"
	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox"
)

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
}

func (f *fakeRepo) FetchUnpublished(limit, maxAttempts int) ([]models.OutboxEvent, error) {
	events := f.events
	f.events = nil
	return events, nil
}

func (f *fakeRepo) MarkPublished(id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailed(id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
}

func (f *fakePublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return fakePublishResult{}
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(ctx context.Context) (string, error) {
	return "msg-id", f.err
}

type fakePinger struct{}

func (fakePinger) Ping(context.Context) error { return nil }

type fakePubSub struct{}

func (fakePubSub) Ping(context.Context) error             { return nil }
func (fakePubSub) AuctionPublisher() *gcppubsub.Publisher { return nil }

func mustEnvelopePayload(t *testing.T, eventID string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}

func newTestService(t *testing.T, repo *fakeRepo, pub *fakePublisher) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:         fakePinger{},
		PubSub:     fakePubSub{},
		Repository: repo,
		Publisher:  pub,
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return service
}

func TestProcessBatchContinuesAfterFailure(t *testing.T) {
	failing := uuid.New()
	succeeding := uuid.New()
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			{
				ID:            failing,
				EventType:     enums.EventAuctionEnded,
				AggregateType: enums.AggregateAuction,
				AggregateID:   uuid.New(),
				Payload:       mustEnvelopePayload(t, "event-one"),
			},
			{
				ID:            succeeding,
				EventType:     enums.EventAuctionEnded,
				AggregateType: enums.AggregateAuction,
				AggregateID:   uuid.New(),
				Payload:       mustEnvelopePayload(t, "event-two"),
			},
		},
	}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	service := newTestService(t, repo, pub)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if !processed {
		t.Fatalf("expected processed batch")
	}
	if len(repo.failed) != 1 || repo.failed[0] != failing {
		t.Fatalf("expected first event marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != succeeding {
		t.Fatalf("expected second event marked published, got %v", repo.published)
	}
}

func TestProcessBatchEmptyIsNotProcessed(t *testing.T) {
	repo := &fakeRepo{}
	service := newTestService(t, repo, &fakePublisher{})

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if processed {
		t.Fatalf("expected no work")
	}
}

func TestPublishAttachesEventAttributes(t *testing.T) {
	aggregateID := uuid.New()
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			{
				ID:            uuid.New(),
				EventType:     enums.EventAuctionRolledOver,
				AggregateType: enums.AggregateAuction,
				AggregateID:   aggregateID,
				Payload:       mustEnvelopePayload(t, "roll-1"),
			},
		},
	}
	pub := &fakePublisher{}
	service := newTestService(t, repo, pub)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one published message")
	}
	attrs := pub.messages[0].Attributes
	if attrs["event_type"] != string(enums.EventAuctionRolledOver) {
		t.Fatalf("unexpected event_type attribute %q", attrs["event_type"])
	}
	if attrs["aggregate_id"] != aggregateID.String() {
		t.Fatalf("unexpected aggregate_id attribute %q", attrs["aggregate_id"])
	}
	if attrs["event_id"] != "roll-1" {
		t.Fatalf("expected envelope event id attribute, got %q", attrs["event_id"])
	}
}
