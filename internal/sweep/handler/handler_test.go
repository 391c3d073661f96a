package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"dealersync_backend/internal/events"
	"dealersync_backend/internal/scheduler"
	"dealersync_backend/platform/validator"
)

type fakeEnqueuer struct {
	feedPayloads []scheduler.FeedRowChangedPayload
	sweeps       int
	syncs        int
}

func (e *fakeEnqueuer) EnqueueFeedRowChanged(_ context.Context, payload scheduler.FeedRowChangedPayload) error {
	e.feedPayloads = append(e.feedPayloads, payload)
	return nil
}

func (e *fakeEnqueuer) EnqueueFullSweep(context.Context, scheduler.FullSweepPayload) error {
	e.sweeps++
	return nil
}

func (e *fakeEnqueuer) EnqueueReservationSync(context.Context, scheduler.ReservationSyncPayload) error {
	e.syncs++
	return nil
}

type fakeBus struct {
	published []events.Event
}

func (b *fakeBus) Publish(_ context.Context, event events.Event) {
	b.published = append(b.published, event)
}

func (b *fakeBus) PublishSync(_ context.Context, event events.Event) error {
	b.published = append(b.published, event)
	return nil
}

func (b *fakeBus) Subscribe(string, events.Handler) {}

func postFeedChanged(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/engine/feed-changed",
		bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")
	h.FeedChanged(c)
	return rec
}

func TestFeedChangedEnqueuesWhenQueueConfigured(t *testing.T) {
	enq := &fakeEnqueuer{}
	bus := &fakeBus{}
	h := New(enq, bus, validator.New())

	rec := postFeedChanged(t, h, `{"licensePlate":"1234ABC"}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(enq.feedPayloads) != 1 || enq.feedPayloads[0].LicensePlate != "1234ABC" {
		t.Fatalf("expected one enqueued payload for 1234ABC, got %v", enq.feedPayloads)
	}
	if len(bus.published) != 0 {
		t.Fatalf("expected no bus publish when queue is configured, got %v", bus.published)
	}
}

func TestFeedChangedPublishesWithoutQueue(t *testing.T) {
	bus := &fakeBus{}
	h := New(nil, bus, validator.New())

	rec := postFeedChanged(t, h, `{"licensePlate":"1234ABC"}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected one published event, got %d", len(bus.published))
	}
	changed, ok := bus.published[0].(events.FeedRowChanged)
	if !ok {
		t.Fatalf("expected FeedRowChanged, got %T", bus.published[0])
	}
	if changed.LicensePlate != "1234ABC" {
		t.Fatalf("expected plate 1234ABC, got %q", changed.LicensePlate)
	}
}

func TestFeedChangedRejectsBadPayload(t *testing.T) {
	bus := &fakeBus{}
	h := New(nil, bus, validator.New())

	rec := postFeedChanged(t, h, `{"licensePlate":"x"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(bus.published) != 0 {
		t.Fatalf("expected no publish for invalid payload, got %v", bus.published)
	}
}
