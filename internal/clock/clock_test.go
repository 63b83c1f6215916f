package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFixed_NowReturnsPinnedInstant(t *testing.T) {
	at := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	c := Fixed{At: at}
	require.True(t, c.Now().Equal(at))
}

func TestFixed_AdvanceReturnsNewValueWithoutMutatingReceiver(t *testing.T) {
	at := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	c := Fixed{At: at}
	advanced := c.Advance(time.Hour)

	require.True(t, c.Now().Equal(at), "original clock must be unchanged")
	require.True(t, advanced.Now().Equal(at.Add(time.Hour)))
}

func TestReal_NowTracksWallClock(t *testing.T) {
	before := time.Now()
	got := Real{}.Now()
	after := time.Now()

	require.False(t, got.Before(before))
	require.False(t, got.After(after))
}
