package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMinimumNextBid(t *testing.T) {
	assert.Equal(t, 1100.0, MinimumNextBid(1000, 100))
	assert.Equal(t, 100.0, MinimumNextBid(0, 100))
	assert.Equal(t, 1000.5, MinimumNextBid(1000, 0.5))
}

func TestReserveMet(t *testing.T) {
	reserve := 5000.0

	// No reserve set: always met
	assert.True(t, ReserveMet(nil, 0))
	assert.True(t, ReserveMet(nil, 100))

	assert.False(t, ReserveMet(&reserve, 4999.99))
	assert.True(t, ReserveMet(&reserve, 5000))
	assert.True(t, ReserveMet(&reserve, 6000))
}

func TestShouldExtend(t *testing.T) {
	endAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	threshold := 10 * time.Minute

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"well before the window", endAt.Add(-2 * time.Hour), false},
		{"just outside the window", endAt.Add(-10*time.Minute - time.Second), false},
		{"exactly at window boundary", endAt.Add(-10 * time.Minute), true},
		{"inside the window", endAt.Add(-5 * time.Minute), true},
		{"one second before end", endAt.Add(-time.Second), true},
		{"exactly at end", endAt, false},
		{"after end", endAt.Add(time.Minute), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldExtend(endAt, tt.now, threshold))
		})
	}
}

func TestNextEndAt(t *testing.T) {
	endAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, endAt.Add(10*time.Minute), NextEndAt(endAt, 10*time.Minute))

	// Extensions stack: each call moves the end further out
	extended := NextEndAt(endAt, 10*time.Minute)
	assert.Equal(t, endAt.Add(20*time.Minute), NextEndAt(extended, 10*time.Minute))
}
