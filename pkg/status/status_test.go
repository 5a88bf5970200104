package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougsko/catbridged/pkg/cat"
	"github.com/dougsko/catbridged/pkg/gateway"
)

// fakeTransactor maps command frames to canned responses.
type fakeTransactor struct {
	responses map[string]string
	err       error
	frames    []string
}

func (f *fakeTransactor) Transact(frame []byte, _ time.Duration) ([]byte, error) {
	f.frames = append(f.frames, string(frame))
	if f.err != nil {
		return nil, f.err
	}
	resp, ok := f.responses[string(frame)]
	if !ok {
		return nil, gateway.ErrTimeout
	}
	return []byte(resp), nil
}

func radioAt(freq, mode string) *fakeTransactor {
	return &fakeTransactor{responses: map[string]string{
		"FA;": freq,
		"MD;": mode,
	}}
}

func TestRefresh(t *testing.T) {
	t.Run("Updates Both Fields", func(t *testing.T) {
		tx := radioAt("FA00007078000;", "MD1;")
		c := NewCache(tx, 100*time.Millisecond)

		c.Refresh(time.Now())

		snap := c.Snapshot()
		assert.Equal(t, int64(7078000), snap.FrequencyHz)
		assert.Equal(t, "7.078000", snap.FrequencyMHz)
		assert.Equal(t, "LSB", snap.Mode)
	})

	t.Run("Timeout Keeps Previous Values", func(t *testing.T) {
		tx := radioAt("FA00014074000;", "MD3;")
		c := NewCache(tx, 100*time.Millisecond)
		c.Refresh(time.Now())
		before := c.Snapshot()

		tx.err = gateway.ErrTimeout
		c.Refresh(time.Now())

		after := c.Snapshot()
		assert.Equal(t, before.FrequencyHz, after.FrequencyHz)
		assert.Equal(t, before.Mode, after.Mode)
	})

	t.Run("Malformed Response Keeps Previous Values", func(t *testing.T) {
		tx := radioAt("FA00014074000;", "MD3;")
		c := NewCache(tx, 100*time.Millisecond)
		c.Refresh(time.Now())

		tx.responses["FA;"] = "garbage;"
		tx.responses["MD;"] = "x;"
		c.Refresh(time.Now())

		snap := c.Snapshot()
		assert.Equal(t, int64(14074000), snap.FrequencyHz)
		assert.Equal(t, "CW", snap.Mode)
	})

	t.Run("Fields Are Independent", func(t *testing.T) {
		tx := radioAt("FA00014074000;", "MD3;")
		c := NewCache(tx, 100*time.Millisecond)
		c.Refresh(time.Now())

		// Frequency answers, mode does not.
		tx.responses["FA;"] = "FA00021078000;"
		delete(tx.responses, "MD;")
		c.Refresh(time.Now())

		snap := c.Snapshot()
		assert.Equal(t, int64(21078000), snap.FrequencyHz)
		assert.Equal(t, "CW", snap.Mode)
	})
}

func TestRefreshIfStale(t *testing.T) {
	tx := radioAt("FA00014074000;", "MD2;")
	c := NewCache(tx, 100*time.Millisecond)
	interval := time.Second

	now := time.Now()
	assert.True(t, c.RefreshIfStale(now, interval))
	queried := len(tx.frames)

	// Within the interval: no transactions at all.
	assert.False(t, c.RefreshIfStale(now.Add(500*time.Millisecond), interval))
	assert.Equal(t, queried, len(tx.frames))

	assert.True(t, c.RefreshIfStale(now.Add(interval), interval))
	assert.Greater(t, len(tx.frames), queried)
}

func TestRefreshIntervalHeldOnTimeout(t *testing.T) {
	// A dead radio must not be hammered faster than the interval.
	tx := &fakeTransactor{err: gateway.ErrTimeout}
	c := NewCache(tx, 10*time.Millisecond)

	now := time.Now()
	assert.True(t, c.RefreshIfStale(now, time.Second))
	assert.False(t, c.RefreshIfStale(now.Add(100*time.Millisecond), time.Second))
}

func TestSetFrequency(t *testing.T) {
	t.Run("Acknowledged", func(t *testing.T) {
		tx := &fakeTransactor{responses: map[string]string{
			"FA00014074000;": "FA00014074000;",
		}}
		c := NewCache(tx, 100*time.Millisecond)

		require.NoError(t, c.SetFrequency(14074000))
		snap := c.Snapshot()
		assert.Equal(t, int64(14074000), snap.FrequencyHz)
		assert.Equal(t, "14.074000", snap.FrequencyMHz)
	})

	t.Run("Timeout Leaves Cache Untouched", func(t *testing.T) {
		tx := &fakeTransactor{err: gateway.ErrTimeout}
		c := NewCache(tx, 100*time.Millisecond)
		before := c.Snapshot()

		err := c.SetFrequency(7078000)
		assert.ErrorIs(t, err, gateway.ErrTimeout)
		assert.Equal(t, before.FrequencyHz, c.Snapshot().FrequencyHz)
	})

	t.Run("Wrong Ack Prefix Rejected", func(t *testing.T) {
		tx := &fakeTransactor{responses: map[string]string{
			"FA00007078000;": "?;",
		}}
		c := NewCache(tx, 100*time.Millisecond)

		err := c.SetFrequency(7078000)
		assert.Error(t, err)
		assert.NotEqual(t, int64(7078000), c.Snapshot().FrequencyHz)
	})

	t.Run("Out Of Range Rejected Without A Transaction", func(t *testing.T) {
		tx := &fakeTransactor{}
		c := NewCache(tx, 100*time.Millisecond)

		assert.Error(t, c.SetFrequency(-1))
		assert.Error(t, c.SetFrequency(cat.MaxFrequency+1))
		assert.Empty(t, tx.frames)
	})
}

func TestSetMode(t *testing.T) {
	t.Run("Acknowledged", func(t *testing.T) {
		tx := &fakeTransactor{responses: map[string]string{
			"MD4;": "MD4;",
		}}
		c := NewCache(tx, 100*time.Millisecond)

		require.NoError(t, c.SetMode(cat.ModeFM))
		assert.Equal(t, "FM", c.Snapshot().Mode)
	})

	t.Run("Failure Leaves Cache Untouched", func(t *testing.T) {
		tx := &fakeTransactor{err: gateway.ErrTimeout}
		c := NewCache(tx, 100*time.Millisecond)
		before := c.Snapshot().Mode

		assert.Error(t, c.SetMode(cat.ModeAM))
		assert.Equal(t, before, c.Snapshot().Mode)
	})
}
