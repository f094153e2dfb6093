package collab

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
)

func newRecordingDebouncer(clock Clock) (*Debouncer, *[]model.Changes) {
	var fired []model.Changes
	return NewDebouncer(clock, time.Second, func(c model.Changes) { fired = append(fired, c) }), &fired
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	clock := newFakeClock()
	d, fired := newRecordingDebouncer(clock)

	for _, s := range []string{"H", "He", "Hel", "Hell", "Hello"} {
		d.Call(model.ContentChange(s))
		clock.Advance(100 * time.Millisecond)
	}
	require.Empty(t, *fired)

	clock.Advance(899 * time.Millisecond)
	require.Empty(t, *fired)
	clock.Advance(time.Millisecond)
	require.Len(t, *fired, 1)
	require.Equal(t, "Hello", *(*fired)[0].Content)
	require.Nil(t, (*fired)[0].Title)
}

func TestDebouncer_SpacedCallsFireEach(t *testing.T) {
	clock := newFakeClock()
	d, fired := newRecordingDebouncer(clock)

	for i := 0; i < 3; i++ {
		d.Call(model.TitleChange("t"))
		clock.Advance(1500 * time.Millisecond)
	}
	require.Len(t, *fired, 3)
}

func TestDebouncer_MergesFields(t *testing.T) {
	clock := newFakeClock()
	d, fired := newRecordingDebouncer(clock)

	d.Call(model.TitleChange("Plan"))
	d.Call(model.ContentChange("a"))
	d.Call(model.ContentChange("ab"))
	clock.Advance(time.Second)

	require.Len(t, *fired, 1)
	require.Equal(t, "Plan", *(*fired)[0].Title)
	require.Equal(t, "ab", *(*fired)[0].Content)
}

func TestDebouncer_CancelStopsEverything(t *testing.T) {
	clock := newFakeClock()
	d, fired := newRecordingDebouncer(clock)

	d.Call(model.ContentChange("x"))
	d.Cancel()
	clock.Advance(5 * time.Second)
	d.Call(model.ContentChange("y"))
	clock.Advance(5 * time.Second)

	require.Empty(t, *fired)
	require.False(t, d.Pending())
}

func TestDebouncer_DropAndRestore(t *testing.T) {
	clock := newFakeClock()
	d, fired := newRecordingDebouncer(clock)

	d.Call(model.TitleChange("old"))
	dropped := d.Drop()
	require.Equal(t, "old", *dropped.Title)
	clock.Advance(2 * time.Second)
	require.Empty(t, *fired)

	// restored changes wait for the next Call and lose to newer values
	d.Restore(model.TitleChange("old").Merge(model.ContentChange("body")))
	require.True(t, d.Pending())
	clock.Advance(2 * time.Second)
	require.Empty(t, *fired)

	d.Call(model.TitleChange("new"))
	clock.Advance(time.Second)
	require.Len(t, *fired, 1)
	require.Equal(t, "new", *(*fired)[0].Title)
	require.Equal(t, "body", *(*fired)[0].Content)
}
