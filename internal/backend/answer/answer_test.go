package answer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestStreamChunksAnswer(t *testing.T) {
	a := NewMenuAnswerer(5, 0)
	contextText := "Name: Pad Thai. Category: Noodles. Price: $14.95."

	var chunks []string
	err := a.Stream(context.Background(), contextText, "noodles?", func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)

	full := strings.Join(chunks, "")
	assert.Equal(t, Compose(contextText, "noodles?"), full)
	assert.Contains(t, full, "- Name: Pad Thai")
	for _, c := range chunks[:len(chunks)-1] {
		assert.Len(t, []rune(c), 5)
	}
}

func TestComposeFallback(t *testing.T) {
	assert.Equal(t, Fallback, Compose("  \n", "wifi?"))
}

func TestSplitIntoChunksKeepsRunesWhole(t *testing.T) {
	chunks := splitIntoChunks("naïve 🍜 soup", 3)
	assert.Equal(t, "naïve 🍜 soup", strings.Join(chunks, ""))
	assert.Equal(t, []string{"naï", "ve ", "🍜 s", "oup"}, chunks)
	assert.Empty(t, splitIntoChunks("", 3))
}

func TestStreamStopsOnEmitError(t *testing.T) {
	boom := errors.New("closed")
	calls := 0
	err := StreamText(context.Background(), "abcdefgh", 2, rate.NewLimiter(rate.Inf, 1), func(string) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestStreamHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	a := NewMenuAnswerer(1, 10)
	err := a.Stream(ctx, "Name: Pad Thai.", "noodles", func(string) error { return nil })
	assert.Error(t, err)
}
