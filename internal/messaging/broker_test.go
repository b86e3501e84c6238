package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/conn"
	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

func positions(ps ...int64) []ir.PositionedEvents {
	out := make([]ir.PositionedEvents, len(ps))
	for i, p := range ps {
		out[i] = ir.PositionedEvents{
			Position: p,
			Events:   []ir.DbEvent{ir.DbCreate{FQID: ir.NewFQID("a", p), Fields: ir.Object{"f": ir.Int(p)}}},
		}
	}
	return out
}

func TestBroker_DeliversToAllSubscribers(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ctx := context.Background()

	s1 := b.Subscribe()
	s2 := b.Subscribe()
	require.NoError(t, b.HandleEvents(ctx, positions(1, 2)))

	for _, sub := range []*Subscription{s1, s2} {
		m, err := sub.Next(ctx)
		require.NoError(t, err)
		require.Len(t, m.Positions, 2)
		assert.Equal(t, int64(1), m.Positions[0].Position)
		assert.Equal(t, int64(2), m.Positions[1].Position)
	}
}

func TestBroker_PublishOrder(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ctx := context.Background()

	sub := b.Subscribe()
	for p := int64(1); p <= 3; p++ {
		require.NoError(t, b.HandleEvents(ctx, positions(p)))
	}

	for p := int64(1); p <= 3; p++ {
		m, err := sub.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, p, m.Positions[0].Position)
	}
}

func TestBroker_LateSubscriberMissesEarlierMessages(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	require.NoError(t, b.HandleEvents(context.Background(), positions(1)))
	sub := b.Subscribe()

	_, ok := sub.TryNext()
	assert.False(t, ok)
}

func TestBroker_Unsubscribe(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ctx := context.Background()

	sub := b.Subscribe()
	require.NoError(t, b.HandleEvents(ctx, positions(1)))
	sub.Close()
	assert.Equal(t, 0, b.SubscriberCount())

	require.NoError(t, b.HandleEvents(ctx, positions(2)))

	m, err := sub.Next(ctx)
	require.NoError(t, err, "queued messages survive unsubscribe")
	assert.Equal(t, int64(1), m.Positions[0].Position)

	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
}

func TestBroker_NextWaitsForPublish(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ctx := context.Background()
	sub := b.Subscribe()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = b.HandleEvents(ctx, positions(7))
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	m, err := sub.Next(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), m.Positions[0].Position)
}

func TestBroker_NextHonoursContext(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	sub := b.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBroker_Closed(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	b.Close()
	b.Close()

	assert.ErrorIs(t, b.HandleEvents(context.Background(), positions(1)), ErrClosed)

	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionClosed)

	late := b.Subscribe()
	_, err = late.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
}

func TestBroker_CanceledContextFails(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	sub := b.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.HandleEvents(ctx, positions(1)), context.Canceled)
	assert.Equal(t, 0, sub.Len())
}

func TestMessage_JSON(t *testing.T) {
	m := Message{Positions: positions(3)}
	data, err := json.Marshal(m)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"positions":[{"events":[{"fields":{"f":3},"fqid":"a/3","type":"create"}],"position":3}]`)
}

func TestBroker_HoldsMessageUntilCommit(t *testing.T) {
	pool, err := conn.Open(context.Background(), conn.Options{
		Driver:         conn.DriverSQLite,
		DSN:            conn.SQLiteDSN(filepath.Join(t.TempDir(), "broker.db"), time.Second),
		MaxConnections: 1,
	})
	require.NoError(t, err)
	defer pool.Close()

	b := NewBroker()
	defer b.Close()
	sub := b.Subscribe()

	err = pool.WithTransaction(context.Background(), func(ctx context.Context) error {
		require.NoError(t, b.HandleEvents(ctx, positions(1)))
		assert.Zero(t, sub.Len(), "nothing is delivered before commit")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, sub.Len())

	err = pool.WithTransaction(context.Background(), func(ctx context.Context) error {
		require.NoError(t, b.HandleEvents(ctx, positions(2)))
		return errors.New("rolled back")
	})
	require.Error(t, err)

	m, ok := sub.TryNext()
	require.True(t, ok)
	assert.Equal(t, int64(1), m.Positions[0].Position)
	_, ok = sub.TryNext()
	assert.False(t, ok, "a rolled back write is never delivered")
}
