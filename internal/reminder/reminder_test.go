package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClockTime(t *testing.T) {
	hour, minute, err := parseClockTime("20:00")
	require.NoError(t, err)
	assert.Equal(t, 20, hour)
	assert.Equal(t, 0, minute)

	hour, minute, err = parseClockTime("07:35")
	require.NoError(t, err)
	assert.Equal(t, 7, hour)
	assert.Equal(t, 35, minute)

	for _, bad := range []string{"", "20", "24:00", "12:60", "ab:cd", "12:5x"} {
		_, _, err := parseClockTime(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestNextFire(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Dhaka")
	require.NoError(t, err)

	svc := &Service{loc: loc, hour: 20, minute: 0}

	before := time.Date(2025, 11, 18, 9, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 11, 18, 20, 0, 0, 0, loc), svc.nextFire(before))

	// At or past the fire time, the next run is tomorrow.
	at := time.Date(2025, 11, 18, 20, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 11, 19, 20, 0, 0, 0, loc), svc.nextFire(at))

	after := time.Date(2025, 11, 18, 23, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 11, 19, 20, 0, 0, 0, loc), svc.nextFire(after))

	// Input in another zone is converted first.
	utc := time.Date(2025, 11, 18, 15, 0, 0, 0, time.UTC) // 21:00 in Dhaka
	assert.Equal(t, time.Date(2025, 11, 19, 20, 0, 0, 0, loc), svc.nextFire(utc))
}
