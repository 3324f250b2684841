package mail

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateFormat RFC 5322 日期格式
const DateFormat = "Mon, 2 Jan 2006 15:04:05 -0700"

// Header 邮件头
type Header struct {
	Key   string
	Value string
}

// Message 纯文本邮件
//
// 邮件头按添加顺序输出，随后是一个空行和正文。
type Message struct {
	Headers []Header
	Body    []byte
}

// NewMessage 创建带 From/To/Subject 的纯文本邮件
func NewMessage(from, to, subject string, body []byte) *Message {
	m := &Message{Body: body}
	m.Set("From", from)
	m.Set("To", to)
	m.Set("Subject", subject)
	return m
}

// Set 添加或替换邮件头
func (m *Message) Set(key, value string) {
	value = sanitizeHeader(value)
	for i := range m.Headers {
		if strings.EqualFold(m.Headers[i].Key, key) {
			m.Headers[i].Value = value
			return
		}
	}
	m.Headers = append(m.Headers, Header{Key: key, Value: value})
}

// Get 返回邮件头的值
func (m *Message) Get(key string) string {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value
		}
	}
	return ""
}

// Bytes 序列化为可直接投递的字节
func (m *Message) Bytes() []byte {
	var buf bytes.Buffer
	for _, h := range m.Headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", h.Key, h.Value)
	}
	buf.WriteString("\r\n")
	buf.Write(m.Body)
	return buf.Bytes()
}

// NewMessageID 生成 Message-ID
func NewMessageID(domain string) string {
	if domain == "" {
		domain = "localhost"
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// FormatDate 格式化邮件 Date 头
func FormatDate(t time.Time) string {
	return t.Format(DateFormat)
}

// AddressDomain 返回邮件地址的域名部分
func AddressDomain(address string) string {
	if i := strings.LastIndex(address, "@"); i >= 0 {
		return address[i+1:]
	}
	return ""
}

// sanitizeHeader 去掉换行，防止邮件头注入
func sanitizeHeader(value string) string {
	return strings.NewReplacer("\r", "", "\n", " ").Replace(value)
}
