// Package checksum 计算文件的 SHA-256 摘要。
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// ChunkSize 每次读取的字节数
const ChunkSize = 8192

// ErrIO 文件不存在或不可读
var ErrIO = errors.New("checksum io error")

// ByteCounter 记录已处理字节数，monitoring.Metrics 实现了该接口
type ByteCounter interface {
	RecordChecksumBytes(n int64)
}

// Hasher 带可选字节计数的摘要计算器
type Hasher struct {
	counter ByteCounter
}

// NewHasher 创建摘要计算器，counter 可以为 nil
func NewHasher(counter ByteCounter) *Hasher {
	return &Hasher{counter: counter}
}

var defaultHasher = NewHasher(nil)

// File 返回 path 文件内容的小写十六进制 SHA-256 摘要
func File(path string) (string, error) {
	return defaultHasher.File(path)
}

// Reader 返回流内容的小写十六进制 SHA-256 摘要
func Reader(r io.Reader) (string, error) {
	return defaultHasher.Reader(r)
}

// File 以只读方式打开文件并分块计算摘要
func (h *Hasher) File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer f.Close()

	return h.Reader(f)
}

// Reader 按 ChunkSize 分块读取直到 EOF
func (h *Hasher) Reader(r io.Reader) (string, error) {
	sha := sha256.New()
	buf := make([]byte, ChunkSize)

	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			sha.Write(buf[:n])
			total += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrIO, err)
		}
	}

	if h.counter != nil {
		h.counter.RecordChecksumBytes(total)
	}

	return hex.EncodeToString(sha.Sum(nil)), nil
}
