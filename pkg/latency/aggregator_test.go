package latency

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

// fakeLeader lets acquireOrRenewLeadership be tested without a real Redis
// connection; Tick itself still needs a genuine Postgres connection (see
// store_test.go's top-of-file note) and isn't exercised here.
type fakeLeader struct {
	acquireResult bool
	acquireErr    error
	renewResult   bool
	renewErr      error
}

func (f *fakeLeader) TryAcquire(ctx context.Context) (bool, error) { return f.acquireResult, f.acquireErr }
func (f *fakeLeader) Renew(ctx context.Context) (bool, error)      { return f.renewResult, f.renewErr }

func testAggregator(leader Leader) *Aggregator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := NewAggregator(nil, NewStore(), Config{}, logger)
	a.SetLeader(leader)
	return a
}

func TestAcquireOrRenewLeadership_NilLeaderAlwaysTicks(t *testing.T) {
	a := NewAggregator(nil, NewStore(), Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if !a.acquireOrRenewLeadership(context.Background()) {
		t.Fatal("expected nil leader to always permit ticking")
	}
}

func TestAcquireOrRenewLeadership_AcquiresThenRenews(t *testing.T) {
	leader := &fakeLeader{acquireResult: true, renewResult: true}
	a := testAggregator(leader)
	ctx := context.Background()

	if !a.acquireOrRenewLeadership(ctx) {
		t.Fatal("expected first call to acquire leadership")
	}
	if !a.isLeader {
		t.Fatal("expected isLeader to be set after acquiring")
	}
	if !a.acquireOrRenewLeadership(ctx) {
		t.Fatal("expected second call to renew leadership")
	}
}

func TestAcquireOrRenewLeadership_LosesLeadershipOnFailedRenew(t *testing.T) {
	leader := &fakeLeader{acquireResult: true, renewResult: false}
	a := testAggregator(leader)
	ctx := context.Background()

	if !a.acquireOrRenewLeadership(ctx) {
		t.Fatal("expected initial acquire to succeed")
	}
	if a.acquireOrRenewLeadership(ctx) {
		t.Fatal("expected renew failure to skip this tick")
	}
	if a.isLeader {
		t.Fatal("expected isLeader to clear after failed renew")
	}
}

func TestAcquireOrRenewLeadership_FailsToAcquireWhenAlreadyHeldElsewhere(t *testing.T) {
	leader := &fakeLeader{acquireResult: false}
	a := testAggregator(leader)

	if a.acquireOrRenewLeadership(context.Background()) {
		t.Fatal("expected acquire failure to skip this tick")
	}
}
