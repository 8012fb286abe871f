package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		transition Transition
		from       RequestStatus
		allowed    bool
	}{
		{TransitionAccept, StatusPending, true},
		{TransitionAccept, StatusAccepted, false},
		{TransitionStart, StatusAccepted, true},
		{TransitionStart, StatusPending, false},
		{TransitionComplete, StatusAccepted, true},
		{TransitionComplete, StatusInProgress, true},
		{TransitionComplete, StatusPending, false},
		{TransitionCancel, StatusPending, true},
		{TransitionCancel, StatusInProgress, true},
		{TransitionCancel, StatusCompleted, false},
		{TransitionCancel, StatusCancelled, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.transition.AllowedFrom(tc.from), "%s from %s", tc.transition, tc.from)
	}
	assert.Equal(t, StatusInProgress, TransitionStart.Target())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusAccepted.Terminal())
}

func TestWorkerLocationRequiresBothCoordinates(t *testing.T) {
	w := WorkerProfile{CurrentLatitude: decimal.NewNullDecimal(decimal.RequireFromString("51.52"))}
	_, ok := w.Location()
	assert.False(t, ok)

	w.CurrentLongitude = decimal.NewNullDecimal(decimal.RequireFromString("-0.10"))
	p, ok := w.Location()
	require.True(t, ok)
	assert.InDelta(t, -0.10, p.Lon, 1e-9)
}

func TestJSONMapRoundTripThroughDriver(t *testing.T) {
	m := JSONMap{"request_id": "r-1", "distance_km": 2.38}
	raw, err := m.Value()
	require.NoError(t, err)

	var scanned JSONMap
	require.NoError(t, scanned.Scan(raw))
	assert.Equal(t, "r-1", scanned["request_id"])

	require.NoError(t, scanned.Scan(nil))
	assert.Empty(t, scanned)
}
