// Package clock 提供基于固定时区基准的时间计算与过期判断。
//
// 所有时间戳都使用同一个派生基准：UTC 墙钟时间加上本地时区的
// 标准（非夏令时）偏移，结果以 time.UTC 表示但不代表真正的 UTC。
// 存储的时间戳与过期判断都依赖这个基准，修改它会整体平移所有过期时间。
package clock

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"globaleaks/backend/internal/logger"
)

// isoLayout ISO 8601 格式，不带时区后缀
const isoLayout = "2006-01-02T15:04:05"

// Span 由秒、分、时、天组成的时长
type Span struct {
	Seconds int
	Minutes int
	Hours   int
	Days    int
}

// Duration 转换为 time.Duration
func (s Span) Duration() time.Duration {
	return time.Duration(s.Seconds)*time.Second +
		time.Duration(s.Minutes)*time.Minute +
		time.Duration(s.Hours)*time.Hour +
		time.Duration(s.Days)*24*time.Hour
}

// Clock 派生基准时钟
type Clock struct {
	now func() time.Time
	loc *time.Location
	log *logger.Publisher
}

// Option 时钟选项
type Option func(*Clock)

// WithNow 替换时间源
func WithNow(now func() time.Time) Option {
	return func(c *Clock) {
		c.now = now
	}
}

// WithLocation 指定计算偏移所用的时区，默认 time.Local
func WithLocation(loc *time.Location) Option {
	return func(c *Clock) {
		c.loc = loc
	}
}

// New 创建时钟
func New(log *logger.Publisher, opts ...Option) *Clock {
	if log == nil {
		log = logger.Nop()
	}
	c := &Clock{
		now: time.Now,
		loc: time.Local,
		log: log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now 返回派生基准下的当前时间，精度为微秒
func (c *Clock) Now() time.Time {
	utc := c.now().UTC()
	offset := standardOffset(c.loc, utc)
	return utc.Add(time.Duration(offset) * time.Second).Truncate(time.Microsecond)
}

// FutureDate 返回 Now 之后指定时长的时间
func (c *Clock) FutureDate(seconds, minutes, hours int) time.Time {
	return c.Now().Add(Span{Seconds: seconds, Minutes: minutes, Hours: hours}.Duration())
}

// IsExpired 判断 reference 加上 span 是否已早于当前时间
func (c *Clock) IsExpired(reference time.Time, span Span) bool {
	check := reference.Add(span.Duration())
	now := c.Now()
	c.log.Debug("expiry check",
		zap.String("check", FormatISO(check)),
		zap.String("now", FormatISO(now)),
	)
	return now.After(check)
}

// FormatISO 以 ISO 8601 格式输出，不带时区后缀；微秒不为零时输出 6 位小数
func FormatISO(t time.Time) string {
	s := t.Format(isoLayout)
	if us := t.Nanosecond() / int(time.Microsecond); us != 0 {
		s += fmt.Sprintf(".%06d", us)
	}
	return s
}

// ParseISO 解析 FormatISO 的输出，结果位于 time.UTC
func ParseISO(s string) (time.Time, error) {
	t, err := time.Parse(isoLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse iso timestamp: %w", err)
	}
	return t, nil
}

// standardOffset 返回 loc 在 t 所在年份的标准偏移（东为正，秒）
//
// 夏令时总是向前调整，因此一月与七月中较小的偏移就是标准偏移。
func standardOffset(loc *time.Location, t time.Time) int {
	if loc == nil {
		return 0
	}
	year := t.In(loc).Year()
	_, jan := time.Date(year, time.January, 1, 0, 0, 0, 0, loc).Zone()
	_, jul := time.Date(year, time.July, 1, 0, 0, 0, 0, loc).Zone()
	if jan < jul {
		return jan
	}
	return jul
}
