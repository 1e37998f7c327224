package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 123456000, time.FixedZone("IST", 5*3600+1800))
	id := uuid.New()

	parsed, err := ParseCursor(EncodeCursor(Cursor{At: at, ID: id}))
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.True(t, parsed.At.Equal(at))
	assert.Equal(t, time.UTC, parsed.At.Location())
	assert.Equal(t, id, parsed.ID)
}

func TestParseCursorBlank(t *testing.T) {
	c, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for _, raw := range []string{
		"%%%",
		base64.RawURLEncoding.EncodeToString([]byte("no-separator")),
		base64.RawURLEncoding.EncodeToString([]byte("yesterday|" + uuid.NewString())),
		base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano) + "|nope")),
	} {
		_, err := ParseCursor(raw)
		assert.Error(t, err, raw)
	}
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, 8, LimitWithBuffer(7))
}

func TestTrim(t *testing.T) {
	rows, more := Trim([]int{1, 2, 3}, 2)
	assert.Equal(t, []int{1, 2}, rows)
	assert.True(t, more)

	rows, more = Trim([]int{1, 2}, 2)
	assert.Equal(t, []int{1, 2}, rows)
	assert.False(t, more)
}
