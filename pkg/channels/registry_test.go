package channels

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harun/luna/pkg/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testChannel struct {
	name       string
	startCalls int
	stopCalls  int
	dispatch   DispatchFunc
	sent       []string
}

func (c *testChannel) Name() string {
	return c.name
}

func (c *testChannel) Start(_ context.Context, dispatch DispatchFunc) error {
	if dispatch == nil {
		return assert.AnError
	}
	c.startCalls++
	c.dispatch = dispatch
	return nil
}

func (c *testChannel) Stop(_ context.Context) error {
	c.stopCalls++
	return nil
}

func (c *testChannel) Send(_ context.Context, room, text string) error {
	c.sent = append(c.sent, room+":"+text)
	return nil
}

func TestRegistry_RegisterStartDispatchStop(t *testing.T) {
	var got []orchestrator.Inbound
	reg := NewRegistry(func(_ context.Context, msg orchestrator.Inbound) {
		got = append(got, msg)
	})

	ch := &testChannel{name: "telegram"}
	require.NoError(t, reg.Register(ch))
	assert.True(t, reg.IsRegistered("telegram"))
	assert.Equal(t, []string{"telegram"}, reg.Names())

	require.NoError(t, reg.StartAll(context.Background()))
	assert.Equal(t, 1, ch.startCalls)
	require.NoError(t, reg.StartAll(context.Background()))
	assert.Equal(t, 1, ch.startCalls)

	// Messages from the channel are stamped with its registered name.
	ch.dispatch(context.Background(), orchestrator.Inbound{Room: "42", Text: "luna hi"})
	require.Len(t, got, 1)
	assert.Equal(t, "telegram", got[0].Channel)

	require.NoError(t, reg.StopAll(context.Background()))
	assert.Equal(t, 1, ch.stopCalls)
}

func TestRegistry_SendRoutesByChannel(t *testing.T) {
	reg := NewRegistry(nil)
	a := &testChannel{name: "a"}
	b := &testChannel{name: "b"}
	require.NoError(t, reg.Register(a))
	require.NoError(t, reg.Register(b))

	require.NoError(t, reg.Send(context.Background(), "b", "room1", "hello"))
	assert.Empty(t, a.sent)
	assert.Equal(t, []string{"room1:hello"}, b.sent)

	err := reg.Send(context.Background(), "c", "room1", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestRegistry_DispatchUnknownChannel(t *testing.T) {
	reg := NewRegistry(func(context.Context, orchestrator.Inbound) {})

	err := reg.Dispatch(context.Background(), orchestrator.Inbound{Channel: "telegram", Text: "ping"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestRegistry_StartRequiresDispatcher(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(&testChannel{name: "a"}))

	assert.Error(t, reg.StartAll(context.Background()))

	reg.SetDispatcher(func(context.Context, orchestrator.Inbound) {})
	assert.NoError(t, reg.StartAll(context.Background()))
}

func TestRegistry_RejectsDuplicateChannel(t *testing.T) {
	reg := NewRegistry(nil)

	require.NoError(t, reg.Register(&testChannel{name: "telegram"}))
	err := reg.Register(&testChannel{name: "telegram"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

type syncBuffer struct {
	mu sync.Mutex
	sb strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.String()
}

func TestConsoleChannel(t *testing.T) {
	out := &syncBuffer{}
	ch := NewConsoleChannel(strings.NewReader("luna hi\n\n  luna bye  \n"), out, "tester", "luna")

	var mu sync.Mutex
	var got []orchestrator.Inbound
	require.NoError(t, ch.Start(context.Background(), func(_ context.Context, msg orchestrator.Inbound) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	}))

	select {
	case <-ch.Done():
	case <-time.After(time.Second):
		t.Fatal("console input not drained")
	}

	mu.Lock()
	require.Len(t, got, 2)
	assert.Equal(t, orchestrator.Inbound{Channel: "console", Room: "console", Participant: "tester", Text: "luna hi", MessageID: "1"}, got[0])
	assert.Equal(t, "luna bye", got[1].Text)
	mu.Unlock()

	require.NoError(t, ch.Send(context.Background(), ConsoleRoom, "hello"))
	assert.Equal(t, "luna> hello\n", out.String())
	assert.NoError(t, ch.Stop(context.Background()))
	assert.Error(t, ch.Start(context.Background(), func(context.Context, orchestrator.Inbound) {}))
}
