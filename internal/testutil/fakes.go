package testutil

import (
	"context"
	"sync"
	"time"

	notification "github.com/pawhaven/sustainer/internal/app/service/notification"
	"github.com/pawhaven/sustainer/internal/platform/gateway"
	models "github.com/pawhaven/sustainer/internal/models"
)

// FakeClock is a settable billing.Clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(now time.Time) *FakeClock { return &FakeClock{now: now} }

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FakeGateway answers charges from a scripted queue; when the queue runs
// dry it keeps returning the last result.
type FakeGateway struct {
	mu       sync.Mutex
	results  []*gateway.ChargeResult
	Requests []*gateway.ChargeRequest
}

func NewFakeGateway(results ...*gateway.ChargeResult) *FakeGateway {
	return &FakeGateway{results: results}
}

func (g *FakeGateway) Enqueue(res *gateway.ChargeResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results = append(g.results, res)
}

func (g *FakeGateway) Charge(_ context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Requests = append(g.Requests, req)
	if len(g.results) == 0 {
		return &gateway.ChargeResult{Outcome: "completed"}, nil
	}
	res := g.results[0]
	if len(g.results) > 1 {
		g.results = g.results[1:]
	}
	return res, nil
}

var _ gateway.Gateway = (*FakeGateway)(nil)

// CapturingPublisher records published notification events.
type CapturingPublisher struct {
	mu     sync.Mutex
	events []*notification.Event
}

func NewCapturingPublisher() *CapturingPublisher { return &CapturingPublisher{} }

func (p *CapturingPublisher) Publish(_ context.Context, ev *notification.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *CapturingPublisher) Events() []*notification.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*notification.Event{}, p.events...)
}

func (p *CapturingPublisher) ByKind(kind models.NotificationKind) []*notification.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*notification.Event
	for _, ev := range p.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

var _ notification.Publisher = (*CapturingPublisher)(nil)
