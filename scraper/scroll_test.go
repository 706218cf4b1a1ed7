package scraper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/newsharvest/browser/browsertest"
)

func rowElements(n int) []*browsertest.FakeElement {
	els := make([]*browsertest.FakeElement, n)
	for i := range els {
		els[i] = &browsertest.FakeElement{}
	}
	return els
}

func TestDriverConverge_PlateauExhaustsStaleBudget(t *testing.T) {
	page := browsertest.NewFakePage()
	d := NewDriver(0, 5, testLogger())

	// Grow for three scrolls, then plateau forever.
	iterations := 0
	page.EvaluateFunc = func(script string, out any) error {
		iterations++
		switch iterations {
		case 1:
			page.SetElements(d.RowSelector, rowElements(10)...)
		case 2:
			page.SetElements(d.RowSelector, rowElements(20)...)
		case 3:
			page.SetElements(d.RowSelector, rowElements(30)...)
		}
		return nil
	}

	count, err := d.Converge(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, 30, count)
	assert.Equal(t, 8, iterations, "three growth scrolls plus five stale scrolls")
}

func TestDriverConverge_CompleteMarkerStopsEarly(t *testing.T) {
	page := browsertest.NewFakePage()
	d := NewDriver(0, 5, testLogger())

	iterations := 0
	page.EvaluateFunc = func(script string, out any) error {
		iterations++
		switch iterations {
		case 1:
			page.SetElements(d.RowSelector, rowElements(10)...)
		case 2:
			page.SetElements(d.RowSelector, rowElements(15)...)
			page.SetElements(d.CompleteSelector, &browsertest.FakeElement{})
		}
		return nil
	}

	count, err := d.Converge(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, 15, count)
	assert.Equal(t, 2, iterations, "marker should end the loop before the stale budget matters")
}

func TestDriverConverge_ClicksLoadMoreWhenPresent(t *testing.T) {
	page := browsertest.NewFakePage()
	d := NewDriver(0, 1, testLogger())

	page.SetElements(d.LoadMoreSelector, &browsertest.FakeElement{TextValue: "Load more"})
	page.EvaluateFunc = func(script string, out any) error { return nil }

	_, err := d.Converge(context.Background(), page)
	require.NoError(t, err)
	assert.Greater(t, page.Clicks[d.LoadMoreSelector], 0)
}

func TestDriverConverge_ContextCancelled(t *testing.T) {
	page := browsertest.NewFakePage()
	page.EvaluateFunc = func(script string, out any) error { return nil }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDriver(0, 5, testLogger())
	_, err := d.Converge(ctx, page)
	assert.ErrorIs(t, err, context.Canceled)
}
