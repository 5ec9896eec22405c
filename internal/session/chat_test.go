package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/pkg/types"
)

func TestChatSession_ForwardsTaggedEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	sess, err := env.manager.Create(ctx, "s1")
	require.NoError(t, err)

	var mu sync.Mutex
	var got []event.Event
	unsub := env.bus.SubscribeAll(func(e event.Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})
	defer unsub()

	_, err = sess.Stream(ctx, "hello")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, e := range got {
		if e.Type != event.ResponseCompleted {
			continue
		}
		data, ok := e.Data.(event.ResponseCompletedData)
		require.True(t, ok)
		assert.Equal(t, "s1", data.SessionID)
		return
	}
	t.Fatalf("no response:completed event forwarded, saw %v", got)
}

func TestChatSession_StreamAccumulatesUsage(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	sess, err := env.manager.Create(ctx, "s1")
	require.NoError(t, err)

	result, err := sess.Stream(ctx, "four char chunks here")
	require.NoError(t, err)
	require.NotNil(t, result.Usage)

	require.Eventually(t, func() bool {
		record, err := env.manager.Record(ctx, "s1")
		return err == nil && record.TokenUsage != nil
	}, time.Second, 10*time.Millisecond)

	record, err := env.manager.Record(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, result.Usage.TotalTokens, record.TokenUsage.TotalTokens)

	// Usage lands under the session's configured provider/model.
	stats := record.ModelStats[types.ModelKey("loopback", "echo-1")]
	require.NotNil(t, stats)
	assert.Equal(t, result.Usage.TotalTokens, stats.Usage.TotalTokens)
	assert.Equal(t, 1, stats.MessageCount)
}

func TestChatSession_RecordUsageFallsBackToSessionConfig(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	sess, err := env.manager.Create(ctx, "s1")
	require.NoError(t, err)

	// The payload omits provider/model; attribution falls back to the
	// session's configured LLM.
	sess.recordUsage(event.ResponseCompletedData{
		Usage: &types.TokenUsage{InputTokens: 7, TotalTokens: 7},
	})

	require.Eventually(t, func() bool {
		record, err := env.manager.Record(ctx, "s1")
		return err == nil && record.TokenUsage != nil
	}, time.Second, 10*time.Millisecond)

	record, err := env.manager.Record(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, record.ModelStats, 1)
	assert.NotNil(t, record.ModelStats[types.ModelKey("loopback", "echo-1")])
}

func TestChatSession_SwitchLLMKeepsHistory(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	sess, err := env.manager.Create(ctx, "s1")
	require.NoError(t, err)
	_, err = sess.Stream(ctx, "before switch")
	require.NoError(t, err)

	var mu sync.Mutex
	var switched []event.LLMSwitchedData
	unsub := env.bus.Subscribe(event.LLMSwitched, func(e event.Event) {
		if data, ok := e.Data.(event.LLMSwitchedData); ok {
			mu.Lock()
			switched = append(switched, data)
			mu.Unlock()
		}
	})
	defer unsub()

	next := types.LLMConfig{ProviderID: "loopback", ModelID: "echo-2"}
	require.NoError(t, sess.SwitchLLM(ctx, next))
	assert.Equal(t, next, sess.Config())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(switched) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	data := switched[0]
	mu.Unlock()
	assert.Equal(t, "s1", data.SessionID)
	assert.Equal(t, next, data.NewConfig)
	assert.True(t, data.HistoryRetained)

	messages, err := sess.History().List(ctx)
	require.NoError(t, err)
	assert.Len(t, messages, 2)

	// The replacement service keeps streaming against the same history.
	_, err = sess.Stream(ctx, "after switch")
	require.NoError(t, err)
	messages, err = sess.History().List(ctx)
	require.NoError(t, err)
	assert.Len(t, messages, 4)
}

func TestChatSession_SwitchLLMFailureKeepsOldService(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	sess, err := env.manager.Create(ctx, "s1")
	require.NoError(t, err)

	env.factory.setFailAll(true)
	err = sess.SwitchLLM(ctx, types.LLMConfig{ProviderID: "loopback", ModelID: "echo-2"})
	require.Error(t, err)
	env.factory.setFailAll(false)

	assert.Equal(t, "echo-1", sess.Config().ModelID)
	_, err = sess.Stream(ctx, "still alive")
	require.NoError(t, err)
}

func TestChatSession_DisposeIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	sess, err := env.manager.Create(ctx, "s1")
	require.NoError(t, err)

	sess.Dispose()
	sess.Dispose()

	_, err = sess.Stream(ctx, "hello")
	require.Error(t, err)
	require.Error(t, sess.SwitchLLM(ctx, types.LLMConfig{ProviderID: "loopback", ModelID: "echo-2"}))
}
