// Package random 提供基于字符集描述的安全随机字符串生成。
//
// 字符集描述由逗号分隔的记号组成，每个记号为单个字符或 "start-end" 区间，
// 例如 "a-z,A-Z,0-9"。区间包含结束字符。
package random

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"unicode/utf8"
)

// ErrMalformedSpec 字符集描述格式错误
var ErrMalformedSpec = errors.New("malformed character class spec")

// 常用字符集
const (
	Alphanumeric = "a-z,A-Z,0-9"
	Digits       = "0-9"
)

// Generator 随机字符串生成器
type Generator struct {
	source io.Reader
}

// NewGenerator 使用指定熵源创建生成器，source 为 nil 时使用 crypto/rand
func NewGenerator(source io.Reader) *Generator {
	if source == nil {
		source = rand.Reader
	}
	return &Generator{source: source}
}

var defaultGenerator = NewGenerator(nil)

// String 使用 crypto/rand 生成随机字符串
func String(length int, spec string) (string, error) {
	return defaultGenerator.String(length, spec)
}

// String 从 spec 描述的字符集中有放回地均匀抽取 length 个字符
//
// length <= 0 或 spec 为空时返回空字符串。
func (g *Generator) String(length int, spec string) (string, error) {
	if length <= 0 {
		return "", nil
	}

	charset, err := ParseCharset(spec)
	if err != nil {
		return "", err
	}
	if len(charset) == 0 {
		return "", nil
	}

	upper := big.NewInt(int64(len(charset)))

	var sb strings.Builder
	sb.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(g.source, upper)
		if err != nil {
			return "", fmt.Errorf("read random source: %w", err)
		}
		sb.WriteRune(charset[n.Int64()])
	}

	return sb.String(), nil
}

// ParseCharset 将字符集描述解析为有序字符序列
//
// 区间重叠时保留重复字符，因此重叠部分被抽中的概率更高。
func ParseCharset(spec string) ([]rune, error) {
	if spec == "" {
		return nil, nil
	}

	var charset []rune
	for _, token := range strings.Split(spec, ",") {
		runes, err := parseToken(token)
		if err != nil {
			return nil, err
		}
		charset = append(charset, runes...)
	}

	return charset, nil
}

func parseToken(token string) ([]rune, error) {
	if utf8.RuneCountInString(token) == 1 {
		r, _ := utf8.DecodeRuneInString(token)
		return []rune{r}, nil
	}

	parts := strings.Split(token, "-")
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: token %q", ErrMalformedSpec, token)
	}

	start, err := singleRune(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: token %q", ErrMalformedSpec, token)
	}
	end, err := singleRune(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: token %q", ErrMalformedSpec, token)
	}
	if start > end {
		return nil, fmt.Errorf("%w: range %q is reversed", ErrMalformedSpec, token)
	}

	runes := make([]rune, 0, end-start+1)
	for r := start; r <= end; r++ {
		runes = append(runes, r)
	}
	return runes, nil
}

func singleRune(s string) (rune, error) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, ErrMalformedSpec
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}
