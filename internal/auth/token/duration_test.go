package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "1s", want: time.Second},
		{in: "15m", want: 15 * time.Minute},
		{in: "24h", want: 24 * time.Hour},
		{in: "7d", want: 7 * 24 * time.Hour},
		{in: "0s", want: 0},
		{in: "", wantErr: true},
		{in: "s", wantErr: true},
		{in: "10", wantErr: true},
		{in: "1.5h", wantErr: true},
		{in: "-1h", wantErr: true},
		{in: "+1h", wantErr: true},
		{in: "1 h", wantErr: true},
		{in: "1H", wantErr: true},
		{in: "1w", wantErr: true},
		{in: "99999999999999999d", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDuration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
