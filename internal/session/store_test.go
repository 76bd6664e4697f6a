package session

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/detailing-booking-widget/internal/availability"
	"github.com/wolfman30/detailing-booking-widget/internal/calendar"
	"github.com/wolfman30/detailing-booking-widget/internal/widget"
)

func sampleState() widget.State {
	date := civil.Date{Year: 2024, Month: time.June, Day: 10}
	r := calendar.NewRange(date, 1)
	return widget.State{
		Range: &r,
		Days: []availability.Day{{
			Date:            date,
			Label:           "Mon, Jun 10",
			HasAvailability: true,
			Slots:           []availability.Slot{{ID: "midday-refresh", Label: "Midday Refresh", Window: "12:30 PM – 3:30 PM", Available: true}},
		}},
		Selection: widget.Selection{Date: &date, SlotID: "midday-refresh", SlotLabel: "Midday Refresh", SlotWindow: "12:30 PM – 3:30 PM"},
		Form:      widget.FormFields{Name: "Jane", Email: "jane@example.com"},
		Loading:   true,
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	now := time.Date(2024, time.June, 10, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	_, err := store.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, "s1", sampleState()))
	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "midday-refresh", got.Selection.SlotID)

	now = now.Add(time.Minute)
	_, err = store.Load(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, "s2", sampleState()))
	require.NoError(t, store.Delete(ctx, "s2"))
	_, err = store.Load(ctx, "s2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ExpiredLoadKeepsConcurrentSave(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	now := time.Date(2024, time.June, 10, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	require.NoError(t, store.Save(ctx, "s1", sampleState()))

	now = now.Add(time.Minute)
	saved := false
	store.now = func() time.Time {
		if !saved {
			// A save lands between the expiry check and the delete.
			saved = true
			require.NoError(t, store.Save(ctx, "s1", sampleState()))
		}
		return now
	}

	_, err := store.Load(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "midday-refresh", got.Selection.SlotID)
}

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ttl), mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, time.Hour)

	require.NoError(t, store.Save(ctx, "abc", sampleState()))
	assert.True(t, mr.Exists("booking_widget:session:abc"))
	assert.Equal(t, time.Hour, mr.TTL("booking_widget:session:abc"))

	got, err := store.Load(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, got.Selection.Date)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.June, Day: 10}, *got.Selection.Date)
	assert.Equal(t, "midday-refresh", got.Selection.SlotID)
	require.Len(t, got.Days, 1)
	assert.True(t, got.Days[0].Slots[0].Available)
	assert.Equal(t, 1, got.Range.Days)
	assert.Equal(t, "Jane", got.Form.Name)
	assert.False(t, got.Loading, "loading is transient and not persisted")
}

func TestRedisStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, time.Minute)

	require.NoError(t, store.Save(ctx, "abc", sampleState()))
	mr.FastForward(2 * time.Minute)

	_, err := store.Load(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Delete(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, time.Minute)

	require.NoError(t, store.Save(ctx, "abc", sampleState()))
	require.NoError(t, store.Delete(ctx, "abc"))
	assert.False(t, mr.Exists("booking_widget:session:abc"))
}

func TestRedisStore_CorruptPayload(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, time.Minute)
	require.NoError(t, mr.Set("booking_widget:session:abc", "{not json"))

	_, err := store.Load(ctx, "abc")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Unreachable(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, time.Minute)
	mr.Close()

	assert.Error(t, store.Save(ctx, "abc", sampleState()))
	_, err := store.Load(ctx, "abc")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestNewRedisStorePanicsOnNilClient(t *testing.T) {
	assert.Panics(t, func() { NewRedisStore(nil, time.Minute) })
}
