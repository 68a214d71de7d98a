package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ny(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, Location)
}

func TestIsMarketOpen(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before open", ny(2024, 5, 15, 9, 29), false},
		{"at open", ny(2024, 5, 15, 9, 30), true},
		{"midday", ny(2024, 5, 15, 12, 0), true},
		{"at close", ny(2024, 5, 15, 16, 0), true},
		{"after close", ny(2024, 5, 15, 16, 1), false},
		{"evening", ny(2024, 5, 15, 17, 0), false},
		{"saturday midday", ny(2024, 5, 18, 12, 0), false},
		{"sunday at open", ny(2024, 5, 19, 9, 30), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsMarketOpen(tt.at))
		})
	}
}

func TestIsMarketOpenConvertsZone(t *testing.T) {
	// 13:30 UTC is 09:30 EDT
	assert.True(t, IsMarketOpen(time.Date(2024, 5, 15, 13, 30, 0, 0, time.UTC)))
	assert.False(t, IsMarketOpen(time.Date(2024, 5, 15, 13, 29, 0, 0, time.UTC)))
}

func TestClassify(t *testing.T) {
	open := Classify(ny(2024, 5, 15, 9, 30))
	assert.True(t, open.IsMarketOpen)
	assert.True(t, open.IsOpenBoundary)
	assert.False(t, open.IsCloseBoundary)
	assert.True(t, open.ShouldResolve())
	assert.Equal(t, "open", open.SessionLabel())

	closing := Classify(ny(2024, 5, 15, 16, 0))
	assert.True(t, closing.IsMarketOpen)
	assert.True(t, closing.IsCloseBoundary)
	assert.Equal(t, "close", closing.SessionLabel())

	mid := Classify(ny(2024, 5, 15, 10, 15))
	assert.True(t, mid.IsMarketOpen)
	assert.False(t, mid.IsBoundary())
	assert.False(t, mid.ShouldResolve())
	assert.Empty(t, mid.SessionLabel())

	weekend := Classify(ny(2024, 5, 18, 9, 30))
	assert.False(t, weekend.IsMarketOpen)
	assert.False(t, weekend.IsOpenBoundary)
	assert.False(t, weekend.ShouldResolve())
}

func TestNextBoundary(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"mid slot", ny(2024, 5, 15, 9, 47), ny(2024, 5, 15, 10, 0)},
		{"mid slot rounds to quarter", ny(2024, 5, 15, 9, 37), ny(2024, 5, 15, 9, 45)},
		{"on boundary is strictly after", ny(2024, 5, 15, 9, 45), ny(2024, 5, 15, 10, 0)},
		{"just before open", ny(2024, 5, 15, 9, 29), ny(2024, 5, 15, 9, 30)},
		{"day rollover", ny(2024, 5, 15, 23, 50), ny(2024, 5, 16, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(NextBoundary(tt.at)), "got %s", NextBoundary(tt.at))
		})
	}
}

func TestNextBoundaryWithSeconds(t *testing.T) {
	at := time.Date(2024, 5, 15, 9, 59, 59, 999, Location)
	assert.True(t, ny(2024, 5, 15, 10, 0).Equal(NextBoundary(at)))
}

func TestGetDelta(t *testing.T) {
	assert.InDelta(t, 10.0, GetDelta(110, 100), 1e-9)
	assert.InDelta(t, -10.0, GetDelta(90, 100), 1e-9)
	assert.InDelta(t, 0.0, GetDelta(100, 100), 1e-9)
}

func TestFormatWhen(t *testing.T) {
	assert.Equal(t, "2024-05-15 09:31:02 EDT", FormatWhen(time.Date(2024, 5, 15, 13, 31, 2, 0, time.UTC)))
	assert.Equal(t, "2024-01-10 09:31:02 EST", FormatWhen(time.Date(2024, 1, 10, 14, 31, 2, 0, time.UTC)))
}
