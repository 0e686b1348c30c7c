package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookChainThreadsContextAndData(t *testing.T) {
	chain := NewHookChain(
		HookFuncs{
			Before: func(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
				return WithTraceID(ctx, "t-1"), km, append(data, 'a'), nil
			},
		},
		nil, // dropped
		HookFuncs{
			Before: func(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
				return ctx, km, append(data, 'b'), nil
			},
		},
	)

	ctx, _, data, err := chain.BeforeHandle(context.Background(), "ticks", kafka.Message{}, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "xab", string(data))

	id, ok := TraceIDFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "t-1", id)
}

func TestHookChainBeforeErrorFansOutToOnError(t *testing.T) {
	boom := errors.New("reject")
	var errSeen []string

	chain := NewHookChain(
		HookFuncs{
			Err: func(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
				errSeen = append(errSeen, "first")
			},
		},
		HookFuncs{
			Before: func(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
				return ctx, km, data, boom
			},
			Err: func(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
				errSeen = append(errSeen, "second")
			},
		},
	)

	_, _, _, err := chain.BeforeHandle(context.Background(), "ticks", kafka.Message{}, nil)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first", "second"}, errSeen)
}

func TestHookChainRecoversPanickingHook(t *testing.T) {
	chain := NewHookChain(HookFuncs{
		Before: func(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			panic("bad hook")
		},
	})

	_, _, _, err := chain.BeforeHandle(context.Background(), "ticks", kafka.Message{}, nil)
	require.Error(t, err)

	var he *HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_PANIC", he.Code)

	// After/OnError panics are swallowed entirely.
	assert.NotPanics(t, func() {
		chain.AfterHandle(context.Background(), "ticks", kafka.Message{}, nil, nil)
		chain.OnError(context.Background(), "ticks", kafka.Message{}, nil, errors.New("x"))
	})
}

func TestHookChainAfterRunsInReverse(t *testing.T) {
	var order []string
	after := func(name string) HookFuncs {
		return HookFuncs{
			After: func(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
				order = append(order, name)
			},
		}
	}

	chain := NewHookChain(after("outer"), after("inner"))
	chain.AfterHandle(context.Background(), "ticks", kafka.Message{}, nil, nil)
	assert.Equal(t, []string{"inner", "outer"}, order)
}

func TestStartTimeRoundTrip(t *testing.T) {
	now := time.Now()
	ctx := WithStartTime(context.Background(), now)

	got, ok := StartTimeFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, now, got)

	_, ok = StartTimeFrom(context.Background())
	assert.False(t, ok)
}

func TestExtractTraceID(t *testing.T) {
	msg := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	assert.Equal(t, "abc", ExtractTraceID(msg))
	assert.Equal(t, "", ExtractTraceID(kafka.Message{}))
}
