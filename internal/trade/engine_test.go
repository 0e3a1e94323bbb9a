package trade

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/peerledger/internal/alerts"
	"github.com/sudo-init-do/peerledger/internal/apperr"
	"github.com/sudo-init-do/peerledger/internal/listing"
	"github.com/sudo-init-do/peerledger/internal/marketplace"
	"github.com/sudo-init-do/peerledger/internal/metrics"
	"github.com/sudo-init-do/peerledger/internal/storage"
	"github.com/sudo-init-do/peerledger/internal/testkit"
	"github.com/sudo-init-do/peerledger/internal/user"
	"github.com/sudo-init-do/peerledger/internal/wallet"
)

const authority = "authority"

var fixedNow = time.Date(2026, time.August, 20, 15, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []alerts.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev alerts.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

// failingTransferer delegates to the ledger and fails the call numbered failOn (1-based).
type failingTransferer struct {
	next   Transferer
	failOn int
	calls  int
}

func (f *failingTransferer) Transfer(ctx context.Context, tx storage.Tx, from, to string, amount int64, reference string) error {
	f.calls++
	if f.calls == f.failOn {
		return apperr.Transfer(errors.New("settlement rail unavailable"))
	}
	return f.next.Transfer(ctx, tx, from, to, amount, reference)
}

type harness struct {
	t        *testing.T
	store    storage.Store
	ledger   *wallet.Ledger
	registry *marketplace.Registry
	tracker  *user.Tracker
	listings *listing.Manager
	wallets  *wallet.Service
	engine   *Engine
	notifier *recordingNotifier
	metrics  *metrics.Metrics
}

func newHarness(t *testing.T, feeRate int, users ...string) *harness {
	t.Helper()
	ctx := context.Background()
	store := testkit.OpenStore(t)
	ledger := wallet.NewLedger()
	registry := marketplace.NewRegistry(store, ledger, nil)
	_, err := registry.Initialize(ctx, authority, feeRate)
	require.NoError(t, err)

	tracker := user.NewTracker(store, registry, ledger, nil, nil)
	for _, id := range users {
		_, err := tracker.CreateProfile(ctx, id, user.ProfileInput{DisplayName: id})
		require.NoError(t, err)
	}

	m := metrics.New()
	notifier := &recordingNotifier{}
	engine := NewEngine(store, registry, tracker, ledger, nil)
	engine.SetNowFunc(func() time.Time { return fixedNow })
	engine.SetNotifier(notifier)
	engine.SetMetrics(m)

	return &harness{
		t:        t,
		store:    store,
		ledger:   ledger,
		registry: registry,
		tracker:  tracker,
		listings: listing.NewManager(store, registry, nil, nil),
		wallets:  wallet.NewService(store, ledger, nil, nil),
		engine:   engine,
		notifier: notifier,
		metrics:  m,
	}
}

func (h *harness) fund(owner string, amount int64) {
	h.t.Helper()
	_, err := h.wallets.Deposit(context.Background(), owner, amount)
	require.NoError(h.t, err)
}

func (h *harness) list(seller, title string, price int64) storage.Listing {
	h.t.Helper()
	l, err := h.listings.Create(context.Background(), seller, listing.Input{
		Title:     title,
		Category:  storage.CategoryElectronics,
		Price:     price,
		Condition: storage.ConditionNew,
	})
	require.NoError(h.t, err)
	return l
}

func (h *harness) balance(owner string) int64 {
	h.t.Helper()
	w, err := h.wallets.Balance(context.Background(), owner)
	require.NoError(h.t, err)
	return w.Balance
}

func (h *harness) profile(identity string) storage.Profile {
	h.t.Helper()
	p, err := h.tracker.Get(context.Background(), identity)
	require.NoError(h.t, err)
	return p
}

func (h *harness) listingByID(id string) storage.Listing {
	h.t.Helper()
	l, err := h.listings.Get(context.Background(), id)
	require.NoError(h.t, err)
	return l
}

func TestEndToEndAt250Bps(t *testing.T) {
	h := newHarness(t, 250, "alice", "bob")
	ctx := context.Background()
	h.fund("bob", 1_000_000)
	l := h.list("alice", "Laptop", 1_000_000)

	p, err := h.engine.Purchase(ctx, "bob", l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25_000), p.Fee)
	assert.Equal(t, int64(1_000_000), p.Price)
	assert.False(t, p.IsCompleted)
	assert.False(t, p.IsDisputed)
	assert.True(t, fixedNow.Equal(p.PurchasedAt))

	assert.Equal(t, int64(0), h.balance("bob"))
	assert.Equal(t, int64(975_000), h.balance("alice"))
	assert.Equal(t, int64(25_000), h.balance(wallet.FeeAccount))

	sold := h.listingByID(l.ID)
	assert.True(t, sold.IsSold)
	require.NotNil(t, sold.Buyer)
	assert.Equal(t, "bob", *sold.Buyer)

	m, err := h.registry.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), m.TotalVolume)

	_, err = h.engine.Complete(ctx, "bob", p.ID)
	require.NoError(t, err)

	review, err := h.engine.LeaveReview(ctx, "bob", p.ID, ReviewInput{Rating: 4, Comment: "as described", IsSellerReview: true})
	require.NoError(t, err)
	assert.Equal(t, "alice", review.Reviewee)

	alice := h.profile("alice")
	assert.Equal(t, 4, alice.ReputationScore)
	assert.Equal(t, int64(1), alice.TotalReviews)
	assert.Equal(t, int64(1), alice.TotalSales)
	assert.Equal(t, int64(1), h.profile("bob").TotalPurchases)

	assert.Equal(t, []string{
		alerts.TaskPurchaseCreated,
		alerts.TaskPurchaseCompleted,
		alerts.TaskReviewLeft,
	}, h.notifier.types())

	rec := httptest.NewRecorder()
	h.metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "peerledger_fees_total 25000")
}

func TestEndToEndAtZeroFee(t *testing.T) {
	h := newHarness(t, 0, "alice", "bob")
	ctx := context.Background()
	h.fund("bob", 500)
	l := h.list("alice", "Cable", 500)

	p, err := h.engine.Purchase(ctx, "bob", l.ID)
	require.NoError(t, err)
	assert.Zero(t, p.Fee)
	assert.Equal(t, int64(500), h.balance("alice"))
	assert.Zero(t, h.balance(wallet.FeeAccount))

	entries, err := h.wallets.Entries(ctx, wallet.FeeAccount, 10)
	require.NoError(t, err)
	assert.Empty(t, entries, "a zero fee moves nothing")
}

func TestSecondPurchaseFailsAlreadySold(t *testing.T) {
	h := newHarness(t, 250, "alice", "bob", "carol")
	ctx := context.Background()
	h.fund("bob", 2_000)
	h.fund("carol", 2_000)
	l := h.list("alice", "Phone", 1_000)

	_, err := h.engine.Purchase(ctx, "bob", l.ID)
	require.NoError(t, err)

	_, err = h.engine.Purchase(ctx, "carol", l.ID)
	require.ErrorIs(t, err, apperr.ErrAlreadySold)
	assert.Equal(t, apperr.KindState, apperr.KindOf(err))

	_, err = h.engine.Purchase(ctx, "bob", l.ID)
	require.ErrorIs(t, err, apperr.ErrAlreadySold)

	assert.Equal(t, int64(2_000), h.balance("carol"))
	assert.Equal(t, int64(1_000), h.balance("bob"))
	assert.Equal(t, int64(1), h.profile("alice").TotalSales)
}

func TestConcurrentPurchasesHaveOneWinner(t *testing.T) {
	buyers := []string{"b1", "b2", "b3", "b4", "b5", "b6"}
	h := newHarness(t, 250, append([]string{"alice"}, buyers...)...)
	ctx := context.Background()
	for _, b := range buyers {
		h.fund(b, 10_000)
	}
	l := h.list("alice", "Console", 10_000)

	var wg sync.WaitGroup
	results := make(chan error, len(buyers))
	for _, b := range buyers {
		wg.Add(1)
		go func(buyer string) {
			defer wg.Done()
			_, err := h.engine.Purchase(ctx, buyer, l.ID)
			results <- err
		}(b)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrAlreadySold)
	}
	assert.Equal(t, 1, wins)

	var spent int64
	for _, b := range buyers {
		spent += 10_000 - h.balance(b)
	}
	assert.Equal(t, int64(10_000), spent)
	assert.Equal(t, int64(1), h.profile("alice").TotalSales)

	m, err := h.registry.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), m.TotalVolume)
}

func TestPurchasePreconditions(t *testing.T) {
	h := newHarness(t, 250, "alice", "bob")
	ctx := context.Background()
	h.fund("bob", 5_000)

	paused := h.list("alice", "Paused", 1_000)
	_, err := h.listings.SetActive(ctx, "alice", paused.ID, false)
	require.NoError(t, err)
	_, err = h.engine.Purchase(ctx, "bob", paused.ID)
	assert.ErrorIs(t, err, apperr.ErrListingNotActive)

	own := h.list("alice", "Own", 1_000)
	_, err = h.engine.Purchase(ctx, "alice", own.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = h.engine.Purchase(ctx, "bob", "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = h.engine.Purchase(ctx, "stranger", own.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "buyer needs a profile")

	assert.Empty(t, h.notifier.types())
}

func TestInsufficientFundsLeavesNoTrace(t *testing.T) {
	h := newHarness(t, 250, "alice", "bob")
	ctx := context.Background()
	h.fund("bob", 999)
	l := h.list("alice", "Drone", 1_000)

	_, err := h.engine.Purchase(ctx, "bob", l.ID)
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	assert.Equal(t, apperr.KindTransfer, apperr.KindOf(err))

	assert.False(t, h.listingByID(l.ID).IsSold)
	assert.Equal(t, int64(999), h.balance("bob"))
	assert.Zero(t, h.balance("alice"))
}

func TestFeeTransferFailureRollsBackSellerLeg(t *testing.T) {
	h := newHarness(t, 250, "alice", "bob")
	ctx := context.Background()
	h.fund("bob", 1_000_000)
	l := h.list("alice", "Bike", 1_000_000)

	failing := &failingTransferer{next: h.ledger, failOn: 2}
	engine := NewEngine(h.store, h.registry, h.tracker, failing, nil)

	_, err := engine.Purchase(ctx, "bob", l.ID)
	require.ErrorIs(t, err, apperr.ErrTransferFailed)
	assert.Equal(t, 2, failing.calls)

	assert.Equal(t, int64(1_000_000), h.balance("bob"))
	assert.Zero(t, h.balance("alice"))
	assert.Zero(t, h.balance(wallet.FeeAccount))
	assert.False(t, h.listingByID(l.ID).IsSold)
	assert.Zero(t, h.profile("alice").TotalSales)
	assert.Zero(t, h.profile("bob").TotalPurchases)

	m, err := h.registry.Get(ctx)
	require.NoError(t, err)
	assert.Zero(t, m.TotalVolume)

	entries, err := h.wallets.Entries(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// brokenTransferer fails with a storage error rather than a refused movement.
type brokenTransferer struct{}

func (brokenTransferer) Transfer(context.Context, storage.Tx, string, string, int64, string) error {
	return errors.New("connection reset by peer")
}

func TestTransferStorageFailureSurfacesAsInternal(t *testing.T) {
	h := newHarness(t, 250, "alice", "bob")
	ctx := context.Background()
	h.fund("bob", 1_000)
	l := h.list("alice", "Lamp", 1_000)

	engine := NewEngine(h.store, h.registry, h.tracker, brokenTransferer{}, nil)
	_, err := engine.Purchase(ctx, "bob", l.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.NotErrorIs(t, err, apperr.ErrTransferFailed)
	assert.False(t, h.listingByID(l.ID).IsSold)
	assert.Equal(t, int64(1_000), h.balance("bob"))
}

func TestCompleteRules(t *testing.T) {
	h := newHarness(t, 250, "alice", "bob")
	ctx := context.Background()
	h.fund("bob", 2_000)
	first, err := h.engine.Purchase(ctx, "bob", h.list("alice", "One", 1_000).ID)
	require.NoError(t, err)
	second, err := h.engine.Purchase(ctx, "bob", h.list("alice", "Two", 1_000).ID)
	require.NoError(t, err)

	_, err = h.engine.Complete(ctx, "alice", first.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden, "the seller cannot self-complete")

	done, err := h.engine.Complete(ctx, "bob", first.ID)
	require.NoError(t, err)
	assert.True(t, done.IsCompleted)
	require.NotNil(t, done.CompletedAt)
	assert.True(t, fixedNow.Equal(*done.CompletedAt))

	_, err = h.engine.Complete(ctx, "bob", first.ID)
	require.ErrorIs(t, err, apperr.ErrAlreadyCompleted)
	assert.Equal(t, int64(2), h.profile("alice").TotalSales, "counters are untouched by completion")

	_, err = h.engine.Complete(ctx, authority, second.ID)
	require.NoError(t, err, "the marketplace authority may complete")

	_, err = h.engine.Complete(ctx, "bob", "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReviewRules(t *testing.T) {
	h := newHarness(t, 250, "alice", "bob", "mallory")
	ctx := context.Background()
	h.fund("bob", 1_000)
	p, err := h.engine.Purchase(ctx, "bob", h.list("alice", "Lamp", 1_000).ID)
	require.NoError(t, err)

	_, err = h.engine.LeaveReview(ctx, "bob", p.ID, ReviewInput{Rating: 5, IsSellerReview: true})
	require.ErrorIs(t, err, apperr.ErrPurchaseNotCompleted)
	_, err = h.engine.LeaveReview(ctx, "mallory", p.ID, ReviewInput{Rating: 5, IsSellerReview: true})
	require.ErrorIs(t, err, apperr.ErrPurchaseNotCompleted, "open purchases reject every reviewer")

	_, err = h.engine.Complete(ctx, "bob", p.ID)
	require.NoError(t, err)

	for _, rating := range []int{0, 6} {
		_, err = h.engine.LeaveReview(ctx, "bob", p.ID, ReviewInput{Rating: rating, IsSellerReview: true})
		assert.ErrorIs(t, err, apperr.ErrInvalidRating)
	}
	_, err = h.engine.LeaveReview(ctx, "bob", p.ID, ReviewInput{Rating: 5, Comment: strings.Repeat("x", MaxComment+1), IsSellerReview: true})
	assert.ErrorIs(t, err, apperr.ErrFieldTooLong)

	_, err = h.engine.LeaveReview(ctx, "mallory", p.ID, ReviewInput{Rating: 1, IsSellerReview: true})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = h.engine.LeaveReview(ctx, "alice", p.ID, ReviewInput{Rating: 1, IsSellerReview: true})
	assert.ErrorIs(t, err, apperr.ErrForbidden, "the seller cannot review themselves")

	_, err = h.engine.LeaveReview(ctx, "bob", p.ID, ReviewInput{Rating: 5, IsSellerReview: true})
	require.NoError(t, err)
	_, err = h.engine.LeaveReview(ctx, "bob", p.ID, ReviewInput{Rating: 3, IsSellerReview: true})
	require.ErrorIs(t, err, apperr.ErrDuplicateReview)

	buyerReview, err := h.engine.LeaveReview(ctx, "alice", p.ID, ReviewInput{Rating: 3, IsSellerReview: false})
	require.NoError(t, err)
	assert.Equal(t, "bob", buyerReview.Reviewee)

	assert.Equal(t, 5, h.profile("alice").ReputationScore)
	assert.Equal(t, int64(1), h.profile("alice").TotalReviews)
	assert.Equal(t, 3, h.profile("bob").ReputationScore)

	reviews, err := h.tracker.ListReviews(ctx, "alice", 1, 10)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, 5, reviews[0].Rating)
}

func TestDisputeRules(t *testing.T) {
	h := newHarness(t, 250, "alice", "bob", "mallory")
	ctx := context.Background()
	h.fund("bob", 2_000)
	open, err := h.engine.Purchase(ctx, "bob", h.list("alice", "Chair", 1_000).ID)
	require.NoError(t, err)
	done, err := h.engine.Purchase(ctx, "bob", h.list("alice", "Table", 1_000).ID)
	require.NoError(t, err)
	_, err = h.engine.Complete(ctx, "bob", done.ID)
	require.NoError(t, err)

	_, err = h.engine.OpenDispute(ctx, "bob", open.ID, "")
	assert.ErrorIs(t, err, apperr.ErrFieldRequired)
	_, err = h.engine.OpenDispute(ctx, "bob", open.ID, strings.Repeat("r", MaxDisputeReason+1))
	assert.ErrorIs(t, err, apperr.ErrFieldTooLong)
	_, err = h.engine.OpenDispute(ctx, "mallory", open.ID, "never arrived")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = h.engine.OpenDispute(ctx, "bob", done.ID, "changed my mind")
	assert.ErrorIs(t, err, apperr.ErrAlreadyCompleted)

	disputed, err := h.engine.OpenDispute(ctx, "bob", open.ID, "never arrived")
	require.NoError(t, err)
	assert.True(t, disputed.IsDisputed)
	assert.False(t, disputed.IsCompleted)
	assert.Equal(t, "never arrived", disputed.DisputeReason)

	_, err = h.engine.OpenDispute(ctx, "alice", open.ID, "buyer is lying")
	assert.ErrorIs(t, err, apperr.ErrDisputed)
	_, err = h.engine.Complete(ctx, "bob", open.ID)
	assert.ErrorIs(t, err, apperr.ErrDisputed)
	_, err = h.engine.LeaveReview(ctx, "bob", open.ID, ReviewInput{Rating: 1, IsSellerReview: true})
	assert.ErrorIs(t, err, apperr.ErrPurchaseNotCompleted)

	got, err := h.engine.GetPurchase(ctx, open.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDisputed)
	require.NotNil(t, got.DisputedAt)
}

func TestNotifierFailureDoesNotFailOperation(t *testing.T) {
	h := newHarness(t, 250, "alice", "bob")
	ctx := context.Background()
	h.notifier.err = fmt.Errorf("redis down")
	h.fund("bob", 1_000)

	_, err := h.engine.Purchase(ctx, "bob", h.list("alice", "Pen", 1_000).ID)
	require.NoError(t, err)
	assert.Equal(t, []string{alerts.TaskPurchaseCreated}, h.notifier.types())
}
