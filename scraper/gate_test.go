package scraper

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/newsharvest/browser/browsertest"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func testGate(screenshotDir string) *Gate {
	g := NewGate(screenshotDir, testLogger())
	g.Backoff = time.Millisecond
	g.ProbeTimeout = 0
	return g
}

func TestGateClear_NoMarker(t *testing.T) {
	page := browsertest.NewFakePage()

	g := testGate(t.TempDir())
	require.NoError(t, g.Clear(context.Background(), page))
	assert.Zero(t, page.SolveCalls, "no marker should mean no solve attempts")
	assert.Empty(t, page.Screenshots)
}

func TestGateClear_MarkerClearsAfterRetries(t *testing.T) {
	page := browsertest.NewFakePage()
	page.SetElements("#challenge-error-title", &browsertest.FakeElement{TextValue: "Verify you are human"})

	g := testGate(t.TempDir())

	done := make(chan error, 1)
	go func() { done <- g.Clear(context.Background(), page) }()

	// Let a couple of attempts happen, then clear the marker.
	time.Sleep(5 * time.Millisecond)
	page.SetElements("#challenge-error-title")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("gate did not return after marker cleared")
	}
	assert.Greater(t, page.SolveCalls, 0, "solve should be attempted while marker present")
}

func TestGateClear_Exhaustion(t *testing.T) {
	dir := t.TempDir()
	page := browsertest.NewFakePage()
	page.SetElements("#challenge-error-title", &browsertest.FakeElement{TextValue: "Verify you are human"})

	g := testGate(dir)
	err := g.Clear(context.Background(), page)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChallengeFailed)
	assert.Equal(t, g.MaxAttempts, page.SolveCalls, "one solve attempt per retry")
	require.Len(t, page.Screenshots, 1, "exhaustion should capture exactly one screenshot")
	_, statErr := os.Stat(page.Screenshots[0])
	assert.NoError(t, statErr, "screenshot file should exist")
}

func TestGateClear_ContextCancelled(t *testing.T) {
	page := browsertest.NewFakePage()
	page.SetElements("#challenge-error-title", &browsertest.FakeElement{})

	g := testGate(t.TempDir())
	g.Backoff = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Clear(ctx, page) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("gate did not honor cancellation")
	}
}
