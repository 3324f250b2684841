package clock

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"globaleaks/backend/internal/logger"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNow(t *testing.T) {
	instant := time.Date(2024, time.July, 15, 10, 30, 0, 123456789, time.UTC)

	t.Run("固定偏移", func(t *testing.T) {
		c := New(nil, WithNow(fixedNow(instant)), WithLocation(time.FixedZone("CET", 3600)))

		got := c.Now()
		assert.Equal(t, time.Date(2024, time.July, 15, 11, 30, 0, 123456000, time.UTC), got)
		assert.Equal(t, time.UTC, got.Location())
	})

	t.Run("夏令时被忽略", func(t *testing.T) {
		ny, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)

		c := New(nil, WithNow(fixedNow(instant)), WithLocation(ny))

		assert.Equal(t, time.Date(2024, time.July, 15, 5, 30, 0, 123456000, time.UTC), c.Now())
	})

	t.Run("南半球夏令时被忽略", func(t *testing.T) {
		syd, err := time.LoadLocation("Australia/Sydney")
		require.NoError(t, err)

		summer := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
		c := New(nil, WithNow(fixedNow(summer)), WithLocation(syd))

		assert.Equal(t, time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC), c.Now())
	})

	t.Run("UTC 时区", func(t *testing.T) {
		c := New(nil, WithNow(fixedNow(instant)), WithLocation(time.UTC))
		assert.Equal(t, instant.Truncate(time.Microsecond), c.Now())
	})
}

func TestFutureDate(t *testing.T) {
	instant := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	c := New(nil, WithNow(fixedNow(instant)), WithLocation(time.UTC))

	got := c.FutureDate(30, 15, 2)
	assert.Equal(t, time.Date(2024, time.March, 1, 2, 15, 30, 0, time.UTC), got)

	assert.Equal(t, c.Now(), c.FutureDate(0, 0, 0))
}

func TestSpanDuration(t *testing.T) {
	span := Span{Seconds: 1, Minutes: 2, Hours: 3, Days: 4}
	assert.Equal(t, 4*24*time.Hour+3*time.Hour+2*time.Minute+time.Second, span.Duration())
	assert.Equal(t, time.Duration(0), Span{}.Duration())
}

func TestIsExpired(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := New(logger.NewPublisher(zap.New(core)), WithLocation(time.FixedZone("EET", 2*3600)))

	t.Run("一小时前已过期", func(t *testing.T) {
		assert.True(t, c.IsExpired(c.Now().Add(-time.Hour), Span{}))
	})

	t.Run("一小时后未过期", func(t *testing.T) {
		assert.False(t, c.IsExpired(c.Now().Add(time.Hour), Span{}))
	})

	t.Run("时长延长有效期", func(t *testing.T) {
		reference := c.Now().Add(-time.Hour)
		assert.False(t, c.IsExpired(reference, Span{Days: 1}))
		assert.True(t, c.IsExpired(reference, Span{Minutes: 30}))
	})

	t.Run("记录比较的时间戳", func(t *testing.T) {
		entries := logs.FilterMessage("expiry check").All()
		require.NotEmpty(t, entries)
		ctx := entries[0].ContextMap()
		assert.Contains(t, ctx, "check")
		assert.Contains(t, ctx, "now")
		assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	})
}

func TestFormatISO(t *testing.T) {
	t.Run("无微秒", func(t *testing.T) {
		ts := time.Date(2013, time.May, 4, 3, 2, 1, 0, time.UTC)
		assert.Equal(t, "2013-05-04T03:02:01", FormatISO(ts))
	})

	t.Run("有微秒", func(t *testing.T) {
		ts := time.Date(2013, time.May, 4, 3, 2, 1, 42000, time.UTC)
		assert.Equal(t, "2013-05-04T03:02:01.000042", FormatISO(ts))
	})

	t.Run("往返一致", func(t *testing.T) {
		c := New(nil)
		now := c.Now()

		parsed, err := ParseISO(FormatISO(now))
		require.NoError(t, err)
		assert.True(t, now.Equal(parsed), "%s != %s", now, parsed)
	})

	t.Run("解析失败", func(t *testing.T) {
		_, err := ParseISO("yesterday")
		assert.Error(t, err)
	})
}
