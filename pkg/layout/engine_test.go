package layout

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tstromberg/folio/pkg/probe"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errBroken = errors.New("broken image")

// staticProber answers from a fixed table; unknown URLs fail.
func staticProber(sizes map[string]probe.Size) probe.Prober {
	return probe.Func(func(ctx context.Context, url string) (probe.Size, error) {
		if err := ctx.Err(); err != nil {
			return probe.Size{}, err
		}
		s, ok := sizes[url]
		if !ok {
			return probe.Size{}, fmt.Errorf("%s: %w", url, errBroken)
		}
		return s, nil
	})
}

func descriptors(urls ...string) []Descriptor {
	ds := make([]Descriptor, len(urls))
	for i, u := range urls {
		ds[i] = Descriptor{ID: u, URL: u}
	}
	return ds
}

func collect(t *testing.T, ch <-chan Update) []Update {
	t.Helper()
	var us []Update
	for u := range ch {
		us = append(us, u)
	}
	return us
}

func TestScenarioColumns(t *testing.T) {
	p := staticProber(map[string]probe.Size{
		"A": {Width: 1, Height: 1},
		"B": {Width: 2, Height: 1},
		"C": {Width: 1, Height: 2},
	})

	plan, err := Run(context.Background(), descriptors("A", "B", "C"), Options{Buckets: 2, Target: 100}, p)
	require.NoError(t, err)

	want := [][]Placed{
		{
			{Measured: Measured{Descriptor: Descriptor{ID: "A", URL: "A"}, Width: 1, Height: 1}, DisplayWidth: 100, DisplayHeight: 100, Bucket: 0},
		},
		{
			{Measured: Measured{Descriptor: Descriptor{ID: "B", URL: "B"}, Width: 2, Height: 1}, DisplayWidth: 100, DisplayHeight: 50, Bucket: 1},
			{Measured: Measured{Descriptor: Descriptor{ID: "C", URL: "C"}, Width: 1, Height: 2}, DisplayWidth: 100, DisplayHeight: 200, Bucket: 1},
		},
	}
	if diff := cmp.Diff(want, plan.Buckets); diff != "" {
		t.Errorf("buckets mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []float64{100, 250}, plan.Totals)
	assert.Equal(t, 0, plan.Pending)
	assert.Empty(t, plan.Faults)
}

func TestScenarioRows(t *testing.T) {
	p := staticProber(map[string]probe.Size{
		"A": {Width: 1, Height: 1},
		"B": {Width: 2, Height: 1},
		"C": {Width: 1, Height: 2},
	})

	plan, err := Run(context.Background(), descriptors("A", "B", "C"), Options{Buckets: 2, Orientation: Rows, Target: 100}, p)
	require.NoError(t, err)

	assert.Equal(t, []float64{150, 200}, plan.Totals)
	require.Len(t, plan.Buckets[0], 2)
	assert.Equal(t, "A", plan.Buckets[0][0].ID)
	assert.Equal(t, "C", plan.Buckets[0][1].ID)
	assert.Equal(t, 50.0, plan.Buckets[0][1].DisplayWidth)
	assert.Equal(t, 100.0, plan.Buckets[0][1].DisplayHeight)
	require.Len(t, plan.Buckets[1], 1)
	assert.Equal(t, 200.0, plan.Buckets[1][0].DisplayWidth)
}

func TestEmptyInput(t *testing.T) {
	plan, err := Run(context.Background(), nil, Options{Buckets: 3, Target: 200}, staticProber(nil))
	require.NoError(t, err)
	assert.Equal(t, 0, plan.Placed())
	assert.Len(t, plan.Buckets, 3)
	assert.Equal(t, []float64{0, 0, 0}, plan.Totals)
}

func TestInvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		o      Options
		images []Descriptor
		want   error
	}{
		{name: "zero buckets", o: Options{Buckets: 0, Target: 100}, want: ErrInvalidBuckets},
		{name: "negative buckets", o: Options{Buckets: -2, Target: 100}, want: ErrInvalidBuckets},
		{name: "zero target", o: Options{Buckets: 1}, want: ErrInvalidTarget},
		{name: "negative limit", o: Options{Buckets: 1, Target: 10, Limit: -1}, want: ErrInvalidLimit},
		{name: "duplicate ids", o: Options{Buckets: 1, Target: 10}, images: descriptors("x", "y", "x"), want: ErrDuplicateID},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Stream(context.Background(), tc.images, tc.o, staticProber(nil))
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestUpdatesArriveInInputOrder(t *testing.T) {
	sizes := map[string]probe.Size{}
	var urls []string
	for i := 0; i < 20; i++ {
		u := fmt.Sprintf("img-%d", i)
		urls = append(urls, u)
		sizes[u] = probe.Size{Width: 10 + i, Height: 10 + 2*i}
	}

	ch, err := Stream(context.Background(), descriptors(urls...), Options{Buckets: 3, Target: 200, Concurrency: 4}, staticProber(sizes))
	require.NoError(t, err)
	us := collect(t, ch)

	require.Len(t, us, 20)
	for i, u := range us {
		assert.Equal(t, i, u.Index)
		assert.Equal(t, Place, u.Kind)
	}
}

func TestOutOfOrderCompletionKeepsOrder(t *testing.T) {
	// "first" resolves only after "third" has been probed.
	thirdDone := make(chan struct{})
	p := probe.Func(func(ctx context.Context, url string) (probe.Size, error) {
		switch url {
		case "first":
			select {
			case <-thirdDone:
			case <-ctx.Done():
				return probe.Size{}, ctx.Err()
			}
		case "third":
			defer close(thirdDone)
		}
		return probe.Size{Width: 100, Height: 100}, nil
	})

	plan, err := Run(context.Background(), descriptors("first", "second", "third"), Options{Buckets: 1, Target: 50, Concurrency: 3}, p)
	require.NoError(t, err)

	var got []string
	for _, pl := range plan.Buckets[0] {
		got = append(got, pl.ID)
	}
	assert.Equal(t, []string{"first", "second", "third"}, got)
}

func TestLimitDropsRemaining(t *testing.T) {
	sizes := map[string]probe.Size{}
	urls := []string{"a", "b", "c", "d"}
	for _, u := range urls {
		sizes[u] = probe.Size{Width: 400, Height: 400}
	}

	ch, err := Stream(context.Background(), descriptors(urls...), Options{Buckets: 1, Orientation: Rows, Target: 100, Limit: 250}, staticProber(sizes))
	require.NoError(t, err)
	us := collect(t, ch)

	require.Len(t, us, 3)
	assert.Equal(t, Stop, us[2].Kind)
	assert.Equal(t, descriptors("c", "d"), us[2].Dropped)

	plan := NewPlan(Options{Buckets: 1, Orientation: Rows}, len(urls))
	for _, u := range us {
		plan.Apply(u)
	}
	assert.Equal(t, 2, plan.Placed())
	assert.Equal(t, []float64{200}, plan.Totals)
	assert.Equal(t, 0, plan.Pending)
	assert.Empty(t, plan.Faults)

	// A broken image that reaches the limit is dropped but keeps its fault.
	o := Options{Buckets: 1, Orientation: Rows, Target: 100, Limit: 250, Faults: PlaceholderFaults}
	broken, err := Run(context.Background(), descriptors("a", "b", "gone", "d"), o, staticProber(sizes))
	require.NoError(t, err)
	assert.Equal(t, descriptors("gone", "d"), broken.Dropped)
	require.Len(t, broken.Faults, 1)
	assert.Equal(t, "gone", broken.Faults[0].ID)
	assert.ErrorIs(t, broken.Faults[0], errBroken)
	assert.Equal(t, 1, broken.Skipped())
	assert.Equal(t, 0, broken.Pending)
}

func TestHoldWhileHeadIsPending(t *testing.T) {
	p := probe.Func(func(ctx context.Context, url string) (probe.Size, error) {
		if url == "slow" {
			select {
			case <-time.After(300 * time.Millisecond):
			case <-ctx.Done():
				return probe.Size{}, ctx.Err()
			}
		}
		return probe.Size{Width: 1, Height: 2}, nil
	})
	o := Options{Buckets: 2, Target: 100, Provisional: 10 * time.Millisecond}

	ch, err := Stream(context.Background(), descriptors("slow", "b", "c"), o, p)
	require.NoError(t, err)
	us := collect(t, ch)

	var kinds []Kind
	for _, u := range us {
		kinds = append(kinds, u.Kind)
	}
	require.Equal(t, []Kind{Hold, Place, Place, Place}, kinds)
	h := us[0]
	assert.Equal(t, 0, h.Index)
	assert.Equal(t, "slow", h.Placed.ID)
	assert.Equal(t, 100.0, h.Placed.DisplayHeight, "held at the square placeholder")
	assert.Equal(t, 0, h.Placed.Bucket)

	plan := NewPlan(o, 3)
	plan.Apply(us[0])
	require.NotNil(t, plan.Held)
	assert.Equal(t, []float64{0, 0}, plan.Totals, "a hold reserves no extent")
	assert.Equal(t, 3, plan.Pending)
	for _, u := range us[1:] {
		plan.Apply(u)
	}
	assert.Nil(t, plan.Held)
	assert.Equal(t, 3, plan.Placed())
	assert.Equal(t, []float64{400, 200}, plan.Totals)
}

func TestNoHoldWithoutProvisional(t *testing.T) {
	p := probe.Func(func(ctx context.Context, url string) (probe.Size, error) {
		if url == "slow" {
			time.Sleep(30 * time.Millisecond)
		}
		return probe.Size{Width: 1, Height: 1}, nil
	})

	ch, err := Stream(context.Background(), descriptors("slow", "b"), Options{Buckets: 1, Target: 10}, p)
	require.NoError(t, err)
	for _, u := range collect(t, ch) {
		assert.NotEqual(t, Hold, u.Kind)
	}
}

func TestSkipFaults(t *testing.T) {
	p := staticProber(map[string]probe.Size{
		"ok1": {Width: 10, Height: 10},
		"ok2": {Width: 10, Height: 20},
	})

	plan, err := Run(context.Background(), descriptors("ok1", "gone", "ok2"), Options{Buckets: 2, Target: 10}, p)
	require.NoError(t, err)

	assert.Equal(t, 2, plan.Placed())
	require.Len(t, plan.Faults, 1)
	assert.Equal(t, "gone", plan.Faults[0].ID)
	assert.ErrorIs(t, plan.Faults[0], errBroken)
	assert.NotEmpty(t, plan.Faults[0].Reason)
	assert.Equal(t, 1, plan.Skipped())
	// ok2 lands in the empty bucket, not behind ok1.
	assert.Equal(t, "ok2", plan.Buckets[1][0].ID)
}

func TestZeroSizedImageIsAFault(t *testing.T) {
	p := staticProber(map[string]probe.Size{"flat": {Width: 10, Height: 0}})
	plan, err := Run(context.Background(), descriptors("flat"), Options{Buckets: 1, Target: 10}, p)
	require.NoError(t, err)
	require.Len(t, plan.Faults, 1)
	assert.ErrorIs(t, plan.Faults[0], probe.ErrEmpty)
}

func TestPlaceholderFaults(t *testing.T) {
	p := staticProber(map[string]probe.Size{"ok": {Width: 20, Height: 10}})
	o := Options{Buckets: 1, Target: 100, Faults: PlaceholderFaults, Placeholder: probe.Size{Width: 4, Height: 3}}

	plan, err := Run(context.Background(), descriptors("ok", "gone"), o, p)
	require.NoError(t, err)

	require.Len(t, plan.Buckets[0], 2)
	broken := plan.Buckets[0][1]
	assert.True(t, broken.Broken)
	assert.Equal(t, 75.0, broken.DisplayHeight)
	assert.Zero(t, broken.Width)
	assert.Len(t, plan.Faults, 1)
	assert.Equal(t, 0, plan.Skipped())
	assert.Equal(t, []float64{125}, plan.Totals)
}

func TestCancelStopsUpdates(t *testing.T) {
	p := probe.Func(func(ctx context.Context, url string) (probe.Size, error) {
		if url == "fast" {
			return probe.Size{Width: 1, Height: 1}, nil
		}
		<-ctx.Done()
		return probe.Size{}, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := Stream(ctx, descriptors("fast", "slow1", "slow2"), Options{Buckets: 2, Target: 10}, p)
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, Place, first.Kind)
	cancel()

	select {
	case u, ok := <-ch:
		assert.False(t, ok, "unexpected update after cancel: %+v", u)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not close after cancel")
	}
}

func TestRunReportsCancellation(t *testing.T) {
	p := probe.Func(func(ctx context.Context, _ string) (probe.Size, error) {
		<-ctx.Done()
		return probe.Size{}, ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	plan, err := Run(ctx, descriptors("a", "b"), Options{Buckets: 1, Target: 10}, p)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, plan.Pending)
}

// TestGreedyProperties checks conservation and balance over random inputs.
func TestGreedyProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		n := rng.Intn(40)
		buckets := 1 + rng.Intn(5)
		sizes := map[string]probe.Size{}
		var urls []string
		for i := 0; i < n; i++ {
			u := fmt.Sprintf("r%d-%d", round, i)
			urls = append(urls, u)
			if rng.Intn(10) == 0 {
				continue // probe fails
			}
			sizes[u] = probe.Size{Width: 1 + rng.Intn(3000), Height: 1 + rng.Intn(3000)}
		}

		o := Options{Buckets: buckets, Orientation: Orientation(rng.Intn(2)), Target: 200}
		if rng.Intn(3) == 0 {
			o.Limit = float64(200 + rng.Intn(2000))
		}

		plan, err := Run(context.Background(), descriptors(urls...), o, staticProber(sizes))
		require.NoError(t, err)

		assert.Equal(t, n, plan.Placed()+plan.Skipped()+len(plan.Dropped), "round %d: conservation", round)
		assert.Equal(t, 0, plan.Pending)

		largest := 0.0
		for _, b := range plan.Buckets {
			for _, pl := range b {
				largest = max(largest, plan.extent(pl))
			}
		}
		assert.LessOrEqual(t, plan.Spread(), largest+1e-9, "round %d: balance", round)
	}
}

func TestPlanClone(t *testing.T) {
	p := staticProber(map[string]probe.Size{"a": {Width: 1, Height: 1}})
	plan, err := Run(context.Background(), descriptors("a"), Options{Buckets: 2, Target: 10}, p)
	require.NoError(t, err)

	c := plan.Clone()
	c.Buckets[0][0].ID = "changed"
	c.Totals[0] = 99
	assert.Equal(t, "a", plan.Buckets[0][0].ID)
	assert.Equal(t, 10.0, plan.Totals[0])
	assert.Equal(t, 10.0, plan.Extent())
}

func TestColumnsForWidth(t *testing.T) {
	for w, want := range map[int]int{0: 1, 500: 1, 767: 1, 768: 2, 1000: 2, 1024: 3, 1920: 3} {
		assert.Equal(t, want, ColumnsForWidth(w), "width %d", w)
	}
}

func TestParseOrientation(t *testing.T) {
	o, err := ParseOrientation("rows")
	require.NoError(t, err)
	assert.Equal(t, Rows, o)
	o, err = ParseOrientation("")
	require.NoError(t, err)
	assert.Equal(t, Columns, o)
	_, err = ParseOrientation("diagonal")
	assert.Error(t, err)
}
