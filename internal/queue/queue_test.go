package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencebot/cadence/internal/player"
)

func entry(title, filename string) *player.Entry {
	return &player.Entry{Title: title, URL: "https://example.com/" + title, Filename: filename}
}

func TestNextEntryEmpty(t *testing.T) {
	q := New()
	e, err := q.NextEntry(context.Background())
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestNextEntryOrder(t *testing.T) {
	q := New()
	q.Add(entry("a", "/tmp/a"))
	q.Add(entry("b", "/tmp/b"))

	e, err := q.NextEntry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", e.Title)

	e, err = q.NextEntry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", e.Title)

	e, err = q.NextEntry(context.Background())
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestNextEntryPendingHeadBlocksQueue(t *testing.T) {
	q := New()
	pending := entry("slow", "")
	q.Add(pending)
	q.Add(entry("ready", "/tmp/ready"))

	_, err := q.NextEntry(context.Background())
	require.ErrorIs(t, err, player.ErrEntryPending)
	assert.Equal(t, 2, q.Len(), "pending head must stay queued")

	q.MarkReady(pending, "/tmp/slow")
	e, err := q.NextEntry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "slow", e.Title)
}

func TestNextEntryLiveNeedsNoFile(t *testing.T) {
	q := New()
	live := entry("stream", "")
	live.IsLive = true
	q.Add(live)

	e, err := q.NextEntry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stream", e.Title)
}

func TestPushFront(t *testing.T) {
	q := New()
	q.Add(entry("a", "/tmp/a"))
	q.PushFront(entry("front", "/tmp/front"))

	e, err := q.NextEntry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "front", e.Title)
}

func TestAppendDoesNotNotify(t *testing.T) {
	q := New()
	notified := 0
	q.OnEntryAdded(func(*player.Entry) { notified++ })

	q.Append(entry("silent", "/tmp/s"))
	assert.Zero(t, notified)

	q.Add(entry("loud", "/tmp/l"))
	assert.Equal(t, 1, notified)
}

func TestRemove(t *testing.T) {
	q := New()
	q.Add(entry("a", "/tmp/a"))
	q.Add(entry("b", "/tmp/b"))
	q.Add(entry("c", "/tmp/c"))

	e := q.Remove(1)
	require.NotNil(t, e)
	assert.Equal(t, "b", e.Title)
	assert.Equal(t, 2, q.Len())

	assert.Nil(t, q.Remove(5))
	assert.Nil(t, q.Remove(-1))
}

func TestHasFile(t *testing.T) {
	q := New()
	q.Add(entry("a", "/tmp/a"))
	assert.True(t, q.HasFile("/tmp/a"))
	assert.False(t, q.HasFile("/tmp/b"))
}

func TestClear(t *testing.T) {
	q := New()
	q.Add(entry("a", "/tmp/a"))
	q.Clear()
	assert.Zero(t, q.Len())
}
