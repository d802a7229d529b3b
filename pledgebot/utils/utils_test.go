package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goalpledge/pledgebot/internal/domain/ledger"
)

func TestParseUSDC(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "10", want: 10_000000},
		{in: "12.5", want: 12_500000},
		{in: "$1,000.25", want: 1000_250000},
		{in: "0.000001", want: 1},
		{in: "3 USDC", want: 3_000000},
		{in: "-2", want: -2_000000},
		{in: "0.0000001", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
		{in: "99999999999999999999", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUSDC(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatUSDC(t *testing.T) {
	assert.Equal(t, "0.00", FormatUSDC(0))
	assert.Equal(t, "10.00", FormatUSDC(10_000000))
	assert.Equal(t, "12.50", FormatUSDC(12_500000))
	assert.Equal(t, "1,234,567.000001", FormatUSDC(1234567_000001))
	assert.Equal(t, "-3.33", FormatUSDC(-3_330000))
	assert.Equal(t, "25.00 USDC", FormatStake(25_000000))
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "0", FormatNumber(0))
	assert.Equal(t, "999", FormatNumber(999))
	assert.Equal(t, "1,000", FormatNumber(1000))
	assert.Equal(t, "-12,345,678", FormatNumber(-12345678))
}

func TestParseDeadline(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "7d", want: now.Add(7 * 24 * time.Hour)},
		{in: "36h", want: now.Add(36 * time.Hour)},
		{in: "1w2d", want: now.Add(9 * 24 * time.Hour)},
		{in: "1d12h30m", want: now.Add(36*time.Hour + 30*time.Minute)},
		{in: "2025-07-01 18:30", want: time.Date(2025, 7, 1, 18, 30, 0, 0, time.UTC)},
		{in: "2025-07-01T18:30:00+02:00", want: time.Date(2025, 7, 1, 16, 30, 0, 0, time.UTC)},
		{in: "2025-07-01", want: time.Date(2025, 7, 1, 23, 59, 59, 0, time.UTC)},
		{in: "0d", wantErr: true},
		{in: "soon", wantErr: true},
		{in: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDeadline(tt.in, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestParseDeadline_OutOfRange(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, in := range []string{"99999999999d", "20000w", "15000w100000d", "99999999999999999999m"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseDeadline(in, now)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "out of range")
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "3d 4h", FormatDuration(76*time.Hour+10*time.Minute))
	assert.Equal(t, "2h 5m", FormatDuration(2*time.Hour+5*time.Minute))
	assert.Equal(t, "1m 1s", FormatDuration(-61*time.Second))
	assert.Equal(t, "<t:0:R>", Timestamp(time.Unix(0, 0), "R"))
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "🎯 Claimable", GoalStatusLabel(ledger.GoalStatusClaimable))
	assert.Equal(t, ErrorColor, GoalStatusColor(ledger.GoalStatusForfeited))
	assert.Equal(t, "🏆 Resolved", ChallengePhaseLabel(ledger.ChallengePhaseResolved))
	assert.Equal(t, "<@123>", Mention("123"))
	assert.Equal(t, "`treasury`", Mention("treasury"))
	assert.Equal(t, "nobody", Mention(""))
}
