package buffer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalrelay/internal/models"
)

func testItem(fingerprint string) models.BufferedItem {
	return models.BufferedItem{
		Fingerprint: fingerprint,
		EnqueuedAt:  time.Now(),
	}
}

func TestBuffer_AppendEvictsOldestOnOverflow(t *testing.T) {
	b := New(2, zerolog.Nop())

	b.Append(testItem("a"))
	b.Append(testItem("b"))
	b.Append(testItem("c"))

	require.Equal(t, 2, b.Len())

	var flushed []string
	b.Flush(context.Background(), func(_ context.Context, item models.BufferedItem) error {
		flushed = append(flushed, item.Fingerprint)
		return nil
	})

	assert.Equal(t, []string{"b", "c"}, flushed)
	assert.Equal(t, 0, b.Len())
}

func TestBuffer_FlushRetainsFailures(t *testing.T) {
	b := New(10, zerolog.Nop())
	b.Append(testItem("ok"))
	b.Append(testItem("bad"))

	b.Flush(context.Background(), func(_ context.Context, item models.BufferedItem) error {
		if item.Fingerprint == "bad" {
			return errors.New("store unreachable")
		}
		return nil
	})

	require.Equal(t, 1, b.Len())

	// A second flush on the now-recovered store drains it.
	b.Flush(context.Background(), func(_ context.Context, item models.BufferedItem) error {
		return nil
	})
	assert.Equal(t, 0, b.Len())
}

func TestBuffer_FlushIsSingleFlight(t *testing.T) {
	b := New(10, zerolog.Nop())
	b.Append(testItem("one"))

	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		b.Flush(context.Background(), func(_ context.Context, _ models.BufferedItem) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	ok := b.Flush(context.Background(), func(_ context.Context, _ models.BufferedItem) error {
		t.Fatal("concurrent flush must not run its callback")
		return nil
	})
	assert.False(t, ok)
	close(release)
}

func TestBuffer_FlushNoOpOnEmpty(t *testing.T) {
	b := New(10, zerolog.Nop())
	calls := 0
	ok := b.Flush(context.Background(), func(_ context.Context, _ models.BufferedItem) error {
		calls++
		return nil
	})
	assert.True(t, ok)
	assert.Equal(t, 0, calls)
}
