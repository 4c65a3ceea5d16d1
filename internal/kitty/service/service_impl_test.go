package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/kitties/internal/clock"
	"github.com/smallbiznis/kitties/internal/config"
	"github.com/smallbiznis/kitties/internal/events"
	"github.com/smallbiznis/kitties/internal/kitty/domain"
	"github.com/smallbiznis/kitties/internal/kitty/memstore"
	"github.com/smallbiznis/kitties/internal/kitty/repository"
	"github.com/smallbiznis/kitties/internal/lock"
	"github.com/smallbiznis/kitties/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Emit(_ context.Context, event events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) all() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.events...)
}

type harness struct {
	svc   domain.Service
	store domain.Store
	sink  *recordingSink
}

type backend struct {
	name  string
	store func(t *testing.T) domain.Store
}

func backends() []backend {
	return []backend{
		{name: "memory", store: func(*testing.T) domain.Store { return memstore.New() }},
		{name: "database", store: func(t *testing.T) domain.Store {
			db := dbtest.Open(t, repository.Models()...)
			require.NoError(t, repository.EnsureCounter(context.Background(), db))
			return repository.New(db)
		}},
	}
}

func newHarness(t *testing.T, store domain.Store, maxOwned int) harness {
	t.Helper()
	sink := &recordingSink{}
	svc := New(Params{
		Store:  store,
		Locker: lock.NewSharded(),
		Clock:  clock.NewFakeClock(testNow),
		Limits: domain.FixedLimit(maxOwned),
		Config: config.Config{LockTimeout: time.Second},
		Log:    zap.NewNop(),
		Sink:   sink,
	})
	return harness{svc: svc, store: store, sink: sink}
}

func forEachBackend(t *testing.T, maxOwned int, fn func(t *testing.T, h harness)) {
	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			fn(t, newHarness(t, b.store(t), maxOwned))
		})
	}
}

func ownedIDs(t *testing.T, h harness, principal domain.PrincipalID) []domain.KittyID {
	t.Helper()
	owned, err := h.svc.ListOwned(context.Background(), principal)
	require.NoError(t, err)
	ids := make([]domain.KittyID, 0, len(owned))
	for _, kitty := range owned {
		ids = append(ids, kitty.ID)
	}
	return ids
}

func snapshot(t *testing.T, h harness) domain.Snapshot {
	t.Helper()
	snap, err := h.store.Snapshot(context.Background())
	require.NoError(t, err)
	return snap
}

func create(t *testing.T, h harness, caller domain.PrincipalID, dna ...byte) domain.Kitty {
	t.Helper()
	kitty, err := h.svc.Create(context.Background(), domain.CreateRequest{Caller: caller, Dna: dna})
	require.NoError(t, err)
	return kitty
}

func TestRegistryScenarios(t *testing.T) {
	forEachBackend(t, 2, func(t *testing.T, h harness) {
		ctx := context.Background()

		first := create(t, h, "alice", 0x01, 0x02)
		assert.Equal(t, domain.KittyID(1), first.ID)
		assert.Equal(t, domain.GenderMale, first.Gender)
		assert.Equal(t, domain.PrincipalID("alice"), first.Owner)
		assert.Equal(t, testNow.Unix(), first.CreatedAt)
		assert.Equal(t, []domain.KittyID{1}, ownedIDs(t, h, "alice"))

		second := create(t, h, "alice", 0x01)
		assert.Equal(t, domain.KittyID(2), second.ID)
		assert.Equal(t, domain.GenderFemale, second.Gender)
		assert.Equal(t, []domain.KittyID{1, 2}, ownedIDs(t, h, "alice"))

		before := snapshot(t, h)
		_, err := h.svc.Create(ctx, domain.CreateRequest{Caller: "alice", Dna: []byte{0x01}})
		require.ErrorIs(t, err, domain.ErrCapacityExceeded)
		assert.Equal(t, before, snapshot(t, h))

		require.NoError(t, h.svc.Transfer(ctx, domain.TransferRequest{Caller: "alice", KittyID: 1, NewOwner: "bob"}))
		assert.Equal(t, []domain.KittyID{2}, ownedIDs(t, h, "alice"))
		assert.Equal(t, []domain.KittyID{1}, ownedIDs(t, h, "bob"))
		record, err := h.svc.GetRecord(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, domain.PrincipalID("bob"), record.Owner)

		third := create(t, h, "alice", 0x03, 0x04, 0x05)
		assert.Equal(t, []domain.KittyID{2, third.ID}, ownedIDs(t, h, "alice"))

		before = snapshot(t, h)
		err = h.svc.Transfer(ctx, domain.TransferRequest{Caller: "bob", KittyID: 1, NewOwner: "alice"})
		require.ErrorIs(t, err, domain.ErrCapacityExceeded)
		assert.Equal(t, before, snapshot(t, h))
		assert.Equal(t, []domain.KittyID{1}, ownedIDs(t, h, "bob"))

		before = snapshot(t, h)
		err = h.svc.Transfer(ctx, domain.TransferRequest{Caller: "alice", KittyID: 999, NewOwner: "bob"})
		require.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, before, snapshot(t, h))
	})
}

func TestCreateIdentifiersStrictlyIncrease(t *testing.T) {
	forEachBackend(t, 100, func(t *testing.T, h harness) {
		var last domain.KittyID
		for i := 0; i < 20; i++ {
			caller := domain.PrincipalID(fmt.Sprintf("p%d", i%3))
			kitty := create(t, h, caller, byte(i))
			assert.Greater(t, kitty.ID, last)
			last = kitty.ID
		}
	})
}

func TestTransferByNonOwnerMutatesNothing(t *testing.T) {
	forEachBackend(t, 5, func(t *testing.T, h harness) {
		kitty := create(t, h, "alice", 0x01)
		before := snapshot(t, h)

		err := h.svc.Transfer(context.Background(), domain.TransferRequest{Caller: "mallory", KittyID: kitty.ID, NewOwner: "mallory"})
		require.ErrorIs(t, err, domain.ErrNotOwner)
		assert.Equal(t, before, snapshot(t, h))

		err = h.svc.Transfer(context.Background(), domain.TransferRequest{Caller: "mallory", KittyID: kitty.ID, NewOwner: "bob"})
		require.ErrorIs(t, err, domain.ErrNotOwner)
		assert.Equal(t, before, snapshot(t, h))
	})
}

func TestTransferPreservesRemainingOrder(t *testing.T) {
	forEachBackend(t, 5, func(t *testing.T, h harness) {
		for i := 0; i < 4; i++ {
			create(t, h, "alice", byte(i))
		}
		require.NoError(t, h.svc.Transfer(context.Background(), domain.TransferRequest{Caller: "alice", KittyID: 2, NewOwner: "bob"}))
		assert.Equal(t, []domain.KittyID{1, 3, 4}, ownedIDs(t, h, "alice"))

		require.NoError(t, h.svc.Transfer(context.Background(), domain.TransferRequest{Caller: "bob", KittyID: 2, NewOwner: "alice"}))
		assert.Equal(t, []domain.KittyID{1, 3, 4, 2}, ownedIDs(t, h, "alice"))
		assert.Empty(t, ownedIDs(t, h, "bob"))
	})
}

func TestSelfTransferIsNoop(t *testing.T) {
	forEachBackend(t, 2, func(t *testing.T, h harness) {
		create(t, h, "alice", 0x01)
		create(t, h, "alice", 0x02)
		emitted := len(h.sink.all())
		before := snapshot(t, h)

		require.NoError(t, h.svc.Transfer(context.Background(), domain.TransferRequest{Caller: "alice", KittyID: 1, NewOwner: "alice"}))
		assert.Equal(t, before, snapshot(t, h))
		assert.Len(t, h.sink.all(), emitted)

		err := h.svc.Transfer(context.Background(), domain.TransferRequest{Caller: "alice", KittyID: 7, NewOwner: "alice"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestUnauthenticatedCallerIsRejected(t *testing.T) {
	forEachBackend(t, 2, func(t *testing.T, h harness) {
		before := snapshot(t, h)

		_, err := h.svc.Create(context.Background(), domain.CreateRequest{Caller: "", Dna: []byte{1}})
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)

		err = h.svc.Transfer(context.Background(), domain.TransferRequest{Caller: " ", KittyID: 1, NewOwner: "bob"})
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)

		assert.Equal(t, before, snapshot(t, h))
	})
}

func TestCreateRejectsNegativePrice(t *testing.T) {
	forEachBackend(t, 2, func(t *testing.T, h harness) {
		_, err := h.svc.Create(context.Background(), domain.CreateRequest{Caller: "alice", Price: -1})
		assert.ErrorIs(t, err, domain.ErrInvalidPrice)
	})
}

func TestReadsDoNotMutate(t *testing.T) {
	forEachBackend(t, 3, func(t *testing.T, h harness) {
		ctx := context.Background()
		create(t, h, "alice", 0x01, 0x02)
		before := snapshot(t, h)

		first, err := h.svc.GetRecord(ctx, 1)
		require.NoError(t, err)
		second, err := h.svc.GetRecord(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		missing, err := h.svc.GetRecord(ctx, 42)
		require.NoError(t, err)
		assert.Nil(t, missing)

		ownedA, err := h.svc.ListOwned(ctx, "alice")
		require.NoError(t, err)
		ownedB, err := h.svc.ListOwned(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, ownedA, ownedB)

		empty, err := h.svc.ListOwned(ctx, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)

		assert.Equal(t, before, snapshot(t, h))
	})
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	forEachBackend(t, 3, func(t *testing.T, h harness) {
		kitty := create(t, h, "alice", 0x01, 0x02)
		kitty.Dna[0] = 0xff

		stored, err := h.svc.GetRecord(context.Background(), kitty.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, []byte{0x01, 0x02}, stored.Dna)
	})
}

func TestEventsEmittedAfterCommit(t *testing.T) {
	forEachBackend(t, 1, func(t *testing.T, h harness) {
		ctx := context.Background()
		kitty := create(t, h, "alice", 0x01)
		require.NoError(t, h.svc.Transfer(ctx, domain.TransferRequest{Caller: "alice", KittyID: kitty.ID, NewOwner: "bob"}))

		_, err := h.svc.Create(ctx, domain.CreateRequest{Caller: "bob", Dna: []byte{0x03}})
		require.ErrorIs(t, err, domain.ErrCapacityExceeded)

		emitted := h.sink.all()
		require.Len(t, emitted, 2)
		assert.Equal(t, events.KindKittyCreated, emitted[0].Kind)
		assert.Equal(t, []string{"alice"}, emitted[0].Principals)
		assert.Equal(t, "AQ==", emitted[0].Payload["dna"])
		assert.Equal(t, events.KindKittyTransferred, emitted[1].Kind)
		assert.Equal(t, []string{"alice", "bob"}, emitted[1].Principals)
		assert.Equal(t, "bob", emitted[1].Payload["to"])
	})
}

func TestConcurrentCreatesReceiveDistinctIDs(t *testing.T) {
	forEachBackend(t, 50, func(t *testing.T, h harness) {
		const workers = 8
		const perWorker = 5

		var mu sync.Mutex
		seen := make(map[domain.KittyID]struct{})

		var g errgroup.Group
		for w := 0; w < workers; w++ {
			caller := domain.PrincipalID(fmt.Sprintf("worker-%d", w%3))
			g.Go(func() error {
				for i := 0; i < perWorker; i++ {
					kitty, err := h.svc.Create(context.Background(), domain.CreateRequest{Caller: caller, Dna: []byte{byte(i)}})
					if err != nil {
						return err
					}
					mu.Lock()
					if _, dup := seen[kitty.ID]; dup {
						mu.Unlock()
						return fmt.Errorf("duplicate id %d", kitty.ID)
					}
					seen[kitty.ID] = struct{}{}
					mu.Unlock()
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		assert.Len(t, seen, workers*perWorker)
		assertIndexConsistent(t, snapshot(t, h))
	})
}

func TestConcurrentTransfersOfSameRecordOnlyOneWins(t *testing.T) {
	forEachBackend(t, 10, func(t *testing.T, h harness) {
		kitty := create(t, h, "alice", 0x01)

		const contenders = 6
		results := make([]error, contenders)
		var g errgroup.Group
		for i := 0; i < contenders; i++ {
			i := i
			g.Go(func() error {
				results[i] = h.svc.Transfer(context.Background(), domain.TransferRequest{
					Caller:   "alice",
					KittyID:  kitty.ID,
					NewOwner: domain.PrincipalID(fmt.Sprintf("bidder-%d", i)),
				})
				return nil
			})
		}
		require.NoError(t, g.Wait())

		wins := 0
		for _, err := range results {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrNotOwner):
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, wins)
		assertIndexConsistent(t, snapshot(t, h))
	})
}

func TestConcurrentMixedOperationsKeepIndexConsistent(t *testing.T) {
	forEachBackend(t, 4, func(t *testing.T, h harness) {
		principals := []domain.PrincipalID{"alice", "bob", "carol"}
		for _, p := range principals {
			create(t, h, p, 0x01)
		}

		var g errgroup.Group
		for i := 0; i < 30; i++ {
			i := i
			g.Go(func() error {
				from := principals[i%len(principals)]
				to := principals[(i+1)%len(principals)]
				if i%2 == 0 {
					_, err := h.svc.Create(context.Background(), domain.CreateRequest{Caller: from, Dna: []byte{byte(i)}})
					if err != nil && !errors.Is(err, domain.ErrCapacityExceeded) {
						return err
					}
					return nil
				}
				err := h.svc.Transfer(context.Background(), domain.TransferRequest{
					Caller:   from,
					KittyID:  domain.KittyID(i%3 + 1),
					NewOwner: to,
				})
				if err != nil &&
					!errors.Is(err, domain.ErrCapacityExceeded) &&
					!errors.Is(err, domain.ErrNotOwner) {
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		snap := snapshot(t, h)
		assertIndexConsistent(t, snap)
		for owner, ids := range snap.Owned {
			assert.LessOrEqual(t, len(ids), 4, "owner %s over capacity", owner)
		}
	})
}

func TestLockTimeoutSurfacesLockUnavailable(t *testing.T) {
	locker := lock.NewSharded()
	svc := New(Params{
		Store:  memstore.New(),
		Locker: locker,
		Clock:  clock.New(),
		Limits: domain.FixedLimit(2),
		Config: config.Config{LockTimeout: 20 * time.Millisecond},
		Log:    zap.NewNop(),
	})

	release, err := locker.Acquire(context.Background(), ownerKey("alice"))
	require.NoError(t, err)
	defer release()

	_, err = svc.Create(context.Background(), domain.CreateRequest{Caller: "alice", Dna: []byte{1}})
	assert.ErrorIs(t, err, domain.ErrLockUnavailable)
}

func TestListOwnedUnusablePrincipalIsEmpty(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			h := newHarness(t, b.store(t), 3)
			for _, principal := range []domain.PrincipalID{"", "   ", domain.PrincipalID(strings.Repeat("p", 300))} {
				owned, err := h.svc.ListOwned(context.Background(), principal)
				require.NoError(t, err)
				assert.NotNil(t, owned)
				assert.Empty(t, owned)
			}
		})
	}
}

// unackedProducer accepts records and never hears back from the broker.
type unackedProducer struct {
	mu       sync.Mutex
	produced int
}

func (p *unackedProducer) ProduceAsync(context.Context, string, []byte, []byte, func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.produced++
}

func TestSlowBrokerDoesNotHoldOwnerLock(t *testing.T) {
	producer := &unackedProducer{}
	svc := New(Params{
		Store:  memstore.New(),
		Locker: lock.NewSharded(),
		Clock:  clock.New(),
		Limits: domain.FixedLimit(10),
		Config: config.Config{LockTimeout: 100 * time.Millisecond},
		Log:    zap.NewNop(),
		Sink:   events.NewKafkaSink(producer, "kitties.events", zap.NewNop()),
	})

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			_, err := svc.Create(context.Background(), domain.CreateRequest{Caller: "alice", Dna: []byte{byte(i)}})
			return err
		})
	}
	require.NoError(t, g.Wait())

	owned, err := svc.ListOwned(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, owned, 4)

	producer.mu.Lock()
	defer producer.mu.Unlock()
	assert.Equal(t, 4, producer.produced)
}

func TestRemoveKittyKeepsOrder(t *testing.T) {
	items := []domain.Kitty{{ID: 1}, {ID: 2}, {ID: 3}}
	got := removeKitty(items, 2)
	assert.Equal(t, []domain.KittyID{1, 3}, []domain.KittyID{got[0].ID, got[1].ID})
	assert.Len(t, removeKitty(items, 9), 3)
}

// assertIndexConsistent checks that every record sits in exactly one
// collection, the one named by its owner field.
func assertIndexConsistent(t *testing.T, snap domain.Snapshot) {
	t.Helper()
	holders := make(map[domain.KittyID][]domain.PrincipalID)
	for owner, ids := range snap.Owned {
		seen := make(map[domain.KittyID]struct{}, len(ids))
		for _, id := range ids {
			_, dup := seen[id]
			require.False(t, dup, "owner %s holds %d twice", owner, id)
			seen[id] = struct{}{}
			holders[id] = append(holders[id], owner)
		}
	}
	for id, kitty := range snap.Records {
		require.Len(t, holders[id], 1, "record %d held by %v", id, holders[id])
		require.Equal(t, kitty.Owner, holders[id][0], "record %d owner mismatch", id)
	}
	require.Len(t, holders, len(snap.Records))
}
