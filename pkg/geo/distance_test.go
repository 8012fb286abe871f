package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKmIdenticalPointsIsZero(t *testing.T) {
	assert.Equal(t, 0.0, DistanceKm(51.5074, -0.1278, 51.5074, -0.1278))
}

func TestDistanceKmIsSymmetric(t *testing.T) {
	cases := []struct {
		a, b Point
	}{
		{Point{51.5074, -0.1278}, Point{51.52, -0.10}},
		{Point{-33.8688, 151.2093}, Point{40.7128, -74.0060}},
		{Point{0, 179.9}, Point{0, -179.9}},
	}
	for _, tc := range cases {
		assert.InDelta(t, Between(tc.a, tc.b), Between(tc.b, tc.a), 1e-9)
	}
}

func TestDistanceKmOneDegreeAtEquator(t *testing.T) {
	assert.InDelta(t, 111.19, DistanceKm(0, 0, 0, 1), 0.01)
}

func TestDistanceKmLondonWorker(t *testing.T) {
	d := DistanceKm(51.52, -0.10, 51.5074, -0.1278)
	assert.Greater(t, d, 2.0)
	assert.Less(t, d, 2.5)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 2.35, Round2(2.3456))
	assert.Equal(t, 0.0, Round2(0.004))
}
