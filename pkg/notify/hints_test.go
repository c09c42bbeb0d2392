package notify

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStream models one consumer group stream: fresh entries become pending
// on delivery and leave the pending list on ack.
type fakeStream struct {
	pending []redis.XMessage
	fresh   []redis.XMessage
	acked   []string
}

func (f *fakeStream) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	cmd := redis.NewXStreamSliceCmd(ctx)
	switch cursor := a.Streams[len(a.Streams)-1]; cursor {
	case "0":
		messages := make([]redis.XMessage, len(f.pending))
		copy(messages, f.pending)
		cmd.SetVal([]redis.XStream{{Stream: a.Streams[0], Messages: messages}})
	case ">":
		if len(f.fresh) == 0 {
			cmd.SetErr(redis.Nil)
			return cmd
		}
		messages := f.fresh
		f.fresh = nil
		f.pending = append(f.pending, messages...)
		cmd.SetVal([]redis.XStream{{Stream: a.Streams[0], Messages: messages}})
	}
	return cmd
}

func (f *fakeStream) XAck(ctx context.Context, _, _ string, ids ...string) *redis.IntCmd {
	for _, id := range ids {
		f.acked = append(f.acked, id)
		for i, msg := range f.pending {
			if msg.ID == id {
				f.pending = append(f.pending[:i], f.pending[i+1:]...)
				break
			}
		}
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(ids)))
	return cmd
}

func newTestConsumer(stream *fakeStream) *HintConsumer {
	return &HintConsumer{
		reader: stream,
		stream: "token-balances:hints",
		group:  "token-balances",
		name:   "token-balances-1",
		logger: zap.NewNop(),
	}
}

func hintMessage(id, startDate string) redis.XMessage {
	return redis.XMessage{ID: id, Values: map[string]interface{}{"data": `{"startDate":"` + startDate + `"}`}}
}

func TestPullHintRecoversUnackedMessages(t *testing.T) {
	// A hint delivered to this consumer before a crash sits unacked on the
	// pending entries list; it must still reach the next run.
	stream := &fakeStream{
		pending: []redis.XMessage{hintMessage("1-0", "2021-11-20")},
		fresh: []redis.XMessage{
			hintMessage("2-0", "2021-11-22"),
			{ID: "3-0", Values: map[string]interface{}{"data": "not json"}},
		},
	}
	consumer := newTestConsumer(stream)

	hint, ok, err := consumer.PullHint(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2021-11-20", hint.String())

	// Everything is acked, the malformed entry included.
	assert.ElementsMatch(t, []string{"1-0", "2-0", "3-0"}, stream.acked)
	assert.Empty(t, stream.pending)

	// The stream is drained: a second pull finds nothing.
	_, ok, err = consumer.PullHint(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPullHintEarliestWinsAcrossCursors(t *testing.T) {
	stream := &fakeStream{
		pending: []redis.XMessage{hintMessage("1-0", "2021-11-25")},
		fresh:   []redis.XMessage{hintMessage("2-0", "2021-11-21")},
	}
	consumer := newTestConsumer(stream)

	hint, ok, err := consumer.PullHint(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2021-11-21", hint.String())
}

func TestParseHint(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]interface{}
		want    string
		wantErr string
	}{
		{
			name:   "valid hint",
			values: map[string]interface{}{"data": `{"startDate":"2021-11-24"}`},
			want:   "2021-11-24",
		},
		{
			name:   "extra fields ignored",
			values: map[string]interface{}{"data": `{"startDate":"2021-11-24","publisher":"subgraph-cache"}`},
			want:   "2021-11-24",
		},
		{
			name:    "missing data field",
			values:  map[string]interface{}{"other": "x"},
			wantErr: "no data field",
		},
		{
			name:    "data is not a string",
			values:  map[string]interface{}{"data": 42},
			wantErr: "not string",
		},
		{
			name:    "data is not json",
			values:  map[string]interface{}{"data": "not json"},
			wantErr: "decode hint payload",
		},
		{
			name:    "empty startDate",
			values:  map[string]interface{}{"data": `{"startDate":""}`},
			wantErr: "no startDate",
		},
		{
			name:    "startDate not a date",
			values:  map[string]interface{}{"data": `{"startDate":"yesterday"}`},
			wantErr: "invalid day",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			day, err := parseHint(tt.values)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, day.String())
		})
	}
}
