package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Duration
		wantErr bool
	}{
		{name: "string form", in: `"24h"`, want: 24 * time.Hour},
		{name: "integer nanoseconds", in: `1000000000`, want: time.Second},
		{name: "bad string", in: `"sometime"`, wantErr: true},
		{name: "bad type", in: `[1]`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tc.in), &d)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, d.Duration)
		})
	}
}

func TestDeadlineAfter(t *testing.T) {
	at := time.Date(2024, 3, 10, 17, 42, 13, 0, time.UTC)
	got := DeadlineAfter(at, 30)
	assert.Equal(t, time.Date(2024, 4, 9, 0, 0, 0, 0, time.UTC), got)

	// Two calls on the same day must agree regardless of wall clock.
	later := time.Date(2024, 3, 10, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, got, DeadlineAfter(later, 30))
}
