package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupTestStore(t *testing.T, maxTurns int) (*Store, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	cfg := DefaultConfig()
	cfg.MaxTurns = maxTurns
	return NewStore(cfg, WithClock(clock.Now)), clock
}

var testKey = Key{Room: "general", Participant: "chulsoo"}

func TestStore_GetOrCreate(t *testing.T) {
	store, clock := setupTestStore(t, 20)

	sess := store.GetOrCreate(testKey)
	assert.Equal(t, testKey, sess.Key)
	assert.Empty(t, sess.History)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, clock.Now(), sess.CreatedAt)
	assert.Equal(t, clock.Now(), sess.LastActiveAt)

	clock.Advance(time.Minute)
	again := store.GetOrCreate(testKey)
	assert.Equal(t, sess.ID, again.ID)
	assert.Equal(t, sess.CreatedAt, again.CreatedAt)
	assert.Equal(t, clock.Now(), again.LastActiveAt)
	assert.Equal(t, 1, store.Len())
}

func TestStore_KeyIdentity(t *testing.T) {
	store, _ := setupTestStore(t, 20)

	store.Append(Key{Room: "a", Participant: "kim"}, RoleUser, "hi from a")
	store.Append(Key{Room: "b", Participant: "kim"}, RoleUser, "hi from b")
	store.Append(Key{Room: "a", Participant: "kim"}, RoleUser, "again from a")

	assert.Equal(t, 2, store.TurnCount(Key{Room: "a", Participant: "kim"}))
	assert.Equal(t, 1, store.TurnCount(Key{Room: "b", Participant: "kim"}))
	assert.Equal(t, 0, store.TurnCount(Key{Room: "a", Participant: "kim2"}))
	assert.Equal(t, 2, store.Len())
}

func TestStore_AppendThenReadKeepsTurn(t *testing.T) {
	store, clock := setupTestStore(t, 20)

	clock.Advance(time.Second)
	turn, err := store.Append(testKey, RoleUser, "my name is Chulsoo")
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), turn.CreatedAt)

	sess := store.GetOrCreate(testKey)
	require.Len(t, sess.History, 1)
	assert.Equal(t, turn, sess.History[0])
	assert.Equal(t, clock.Now(), sess.LastActiveAt)
}

func TestStore_HistoryCap(t *testing.T) {
	tests := []struct {
		name      string
		exchanges int
		cap       int
	}{
		{"under cap", 3, 20},
		{"exactly cap", 10, 20},
		{"over cap", 13, 20},
		{"odd cap", 4, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := setupTestStore(t, tt.cap)

			for i := 0; i < tt.exchanges; i++ {
				store.Append(testKey, RoleUser, fmt.Sprintf("q%d", i))
				store.Append(testKey, RoleAssistant, fmt.Sprintf("a%d", i))
			}

			sess := store.GetOrCreate(testKey)
			want := min(2*tt.exchanges, tt.cap)
			require.Len(t, sess.History, want)

			// Newest turn is always kept and the window is contiguous.
			last := tt.exchanges - 1
			assert.Equal(t, fmt.Sprintf("a%d", last), sess.History[want-1].Content)

			all := make([]string, 0, 2*tt.exchanges)
			for i := 0; i < tt.exchanges; i++ {
				all = append(all, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
			}
			got := make([]string, len(sess.History))
			for i, turn := range sess.History {
				got[i] = turn.Content
			}
			assert.Equal(t, all[len(all)-want:], got)
		})
	}
}

func TestStore_SnapshotIsolation(t *testing.T) {
	store, _ := setupTestStore(t, 20)
	store.Append(testKey, RoleUser, "original")

	sess := store.GetOrCreate(testKey)
	sess.History[0].Content = "tampered"
	sess.History = append(sess.History, Turn{Role: RoleAssistant, Content: "injected"})

	fresh := store.GetOrCreate(testKey)
	require.Len(t, fresh.History, 1)
	assert.Equal(t, "original", fresh.History[0].Content)
}

func TestStore_ClearThenRecreate(t *testing.T) {
	store, clock := setupTestStore(t, 20)

	store.Append(testKey, RoleUser, "hello")
	before := store.GetOrCreate(testKey)

	assert.True(t, store.Clear(testKey))
	assert.False(t, store.Clear(testKey))
	assert.Equal(t, 0, store.Len())

	clock.Advance(time.Second)
	after := store.GetOrCreate(testKey)
	assert.Empty(t, after.History)
	assert.NotEqual(t, before.ID, after.ID)
	assert.True(t, after.CreatedAt.After(before.CreatedAt))
}

func TestStore_ClearAbsentIsNoop(t *testing.T) {
	store, _ := setupTestStore(t, 20)
	assert.False(t, store.Clear(Key{Room: "nowhere", Participant: "nobody"}))
}

func TestStore_SweepBoundary(t *testing.T) {
	store, clock := setupTestStore(t, 20)
	idle := 30 * time.Minute
	start := clock.Now()

	young := Key{Room: "r", Participant: "young"}
	exact := Key{Room: "r", Participant: "exact"}
	old := Key{Room: "r", Participant: "old"}

	// Ages at sweep time: idle-1ms, idle, idle+1ms.
	store.GetOrCreate(old)
	clock.Advance(time.Millisecond)
	store.GetOrCreate(exact)
	clock.Advance(time.Millisecond)
	store.GetOrCreate(young)

	now := start.Add(idle + time.Millisecond)
	removed := store.SweepExpired(idle, now)

	assert.Equal(t, 1, removed)
	_, ok := store.Lookup(old)
	assert.False(t, ok)
	_, ok = store.Lookup(exact)
	assert.True(t, ok)
	_, ok = store.Lookup(young)
	assert.True(t, ok)
}

func TestStore_AppendRefreshesIdleClock(t *testing.T) {
	store, clock := setupTestStore(t, 20)
	idle := 30 * time.Minute

	store.GetOrCreate(testKey)
	clock.Advance(25 * time.Minute)
	store.Append(testKey, RoleUser, "still here")
	clock.Advance(25 * time.Minute)

	assert.Equal(t, 0, store.SweepExpired(idle, clock.Now()))
	assert.Equal(t, 1, store.TurnCount(testKey))
}

func TestStore_ReadOnlyAccessorsDoNotRefresh(t *testing.T) {
	store, clock := setupTestStore(t, 20)

	store.Append(testKey, RoleUser, "q")
	store.Append(testKey, RoleAssistant, "a")
	created := clock.Now()

	clock.Advance(time.Hour)
	assert.Equal(t, 2, store.TurnCount(testKey))
	assert.Equal(t, 1, store.Exchanges(testKey))
	sess, ok := store.Lookup(testKey)
	require.True(t, ok)
	assert.Equal(t, created, sess.LastActiveAt)
	assert.Equal(t, 1, sess.Exchanges())

	absent := Key{Room: "r", Participant: "ghost"}
	assert.Equal(t, 0, store.TurnCount(absent))
	assert.Equal(t, 1, store.Len())
}

func TestStore_ConcurrentAppendsAndSweeps(t *testing.T) {
	store := NewStore(Config{MaxTurns: 1000})

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				store.Append(testKey, RoleUser, fmt.Sprintf("w%d-%d", w, i))
				store.GetOrCreate(Key{Room: "other", Participant: fmt.Sprint(w)})
			}
		}(w)
	}

	stop := make(chan struct{})
	sweeps := make(chan struct{})
	go func() {
		defer close(sweeps)
		for {
			select {
			case <-stop:
				return
			default:
				store.SweepExpired(time.Hour, time.Now())
				store.TurnCount(testKey)
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-sweeps

	assert.Equal(t, workers*perWorker, store.TurnCount(testKey))
}

func TestStore_AppendAfterSweepLandsInFreshSession(t *testing.T) {
	store, clock := setupTestStore(t, 20)

	store.Append(testKey, RoleUser, "before")
	first := store.GetOrCreate(testKey)

	clock.Advance(time.Hour)
	require.Equal(t, 1, store.SweepExpired(30*time.Minute, clock.Now()))

	store.Append(testKey, RoleUser, "after")
	sess := store.GetOrCreate(testKey)
	require.Len(t, sess.History, 1)
	assert.Equal(t, "after", sess.History[0].Content)
	assert.NotEqual(t, first.ID, sess.ID)
}

func TestKey_String(t *testing.T) {
	assert.Equal(t, "general/chulsoo", testKey.String())
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestStore_AppendRejectsUnknownRole(t *testing.T) {
	store, _ := setupTestStore(t, 20)

	_, err := store.Append(testKey, Role("system"), "you are a cat")
	require.ErrorIs(t, err, ErrInvalidRole)

	assert.Equal(t, 0, store.TurnCount(testKey))
	assert.Equal(t, 0, store.Len())
}

func TestStore_AppendExchange(t *testing.T) {
	store, clock := setupTestStore(t, 3)

	store.AppendExchange(testKey, "q1", "a1")
	clock.Advance(time.Second)
	store.AppendExchange(testKey, "q2", "a2")

	sess := store.GetOrCreate(testKey)
	require.Len(t, sess.History, 3)
	assert.Equal(t, Turn{Role: RoleAssistant, Content: "a1", CreatedAt: clock.Now().Add(-time.Second)}, sess.History[0])
	assert.Equal(t, RoleUser, sess.History[1].Role)
	assert.Equal(t, "q2", sess.History[1].Content)
	assert.Equal(t, "a2", sess.History[2].Content)
}

func TestStore_AppendExchangeSurvivesConcurrentClears(t *testing.T) {
	store, _ := setupTestStore(t, 100)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			store.AppendExchange(testKey, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			store.Clear(testKey)
		}
	}()
	wg.Wait()

	// Whatever survived holds whole exchanges only.
	sess, ok := store.Lookup(testKey)
	if !ok {
		return
	}
	require.Equal(t, 0, len(sess.History)%2)
	for i := 0; i < len(sess.History); i += 2 {
		assert.Equal(t, RoleUser, sess.History[i].Role)
		assert.Equal(t, RoleAssistant, sess.History[i+1].Role)
		assert.Equal(t, "a"+sess.History[i].Content[1:], sess.History[i+1].Content)
	}
}
