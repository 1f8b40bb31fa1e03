package notice_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttraffic/console/internal/notice"
)

func TestCenter_RetainsMostRecent(t *testing.T) {
	c := notice.NewCenter(notice.CenterConfig{Capacity: 3, Logger: zerolog.Nop()})

	for i := 1; i <= 5; i++ {
		c.Notify(notice.LevelInfo, fmt.Sprintf("n%d", i))
	}

	recent := c.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "n3", recent[0].Message)
	assert.Equal(t, "n5", recent[2].Message)
	assert.Equal(t, uint64(5), recent[2].ID)

	last := c.Recent(1)
	require.Len(t, last, 1)
	assert.Equal(t, "n5", last[0].Message)
}

func TestCenter_Since(t *testing.T) {
	c := notice.NewCenter(notice.CenterConfig{Logger: zerolog.Nop()})
	c.Notify(notice.LevelSuccess, "Traffic signal updated to red")
	c.Notify(notice.LevelError, "Failed to fetch traffic data. Make sure the backend server is running.")

	got := c.Since(1)
	require.Len(t, got, 1)
	assert.Equal(t, notice.LevelError, got[0].Level)
	assert.Empty(t, c.Since(2))
}

func TestCenter_Subscribe(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := notice.NewCenter(notice.CenterConfig{Logger: zerolog.Nop(), Now: func() time.Time { return fixed }})

	ch, cancel := c.Subscribe(4)
	c.Notify(notice.LevelWarning, "No traffic violations detected.")

	select {
	case n := <-ch:
		assert.Equal(t, "No traffic violations detected.", n.Message)
		assert.Equal(t, fixed, n.Time)
	case <-time.After(time.Second):
		t.Fatal("notice not delivered")
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic.
	c.Notify(notice.LevelInfo, "after")
}

func TestCenter_SlowSubscriberDoesNotBlock(t *testing.T) {
	c := notice.NewCenter(notice.CenterConfig{Logger: zerolog.Nop()})
	_, cancel := c.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			c.Notify(notice.LevelInfo, "x")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full subscriber")
	}
}

func TestNotifierFunc(t *testing.T) {
	var got []string
	n := notice.NotifierFunc(func(level notice.Level, msg string) {
		got = append(got, string(level)+":"+msg)
	})
	n.Notify(notice.LevelError, "boom")
	notice.Discard.Notify(notice.LevelError, "dropped")

	assert.Equal(t, []string{"error:boom"}, got)
}
