package mail

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessageBytes(t *testing.T) {
	m := NewMessage("a@example.org", "b@example.org", "greetings", []byte("hi"))
	m.Set("Content-Type", "text/plain; charset=UTF-8")

	assert.Equal(t,
		"From: a@example.org\r\nTo: b@example.org\r\nSubject: greetings\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\nhi",
		string(m.Bytes()),
	)
}

func TestMessageSetReplaces(t *testing.T) {
	m := NewMessage("a@example.org", "b@example.org", "first", nil)
	m.Set("subject", "second")

	assert.Equal(t, "second", m.Get("Subject"))
	assert.Len(t, m.Headers, 3)
}

func TestMessageHeaderInjection(t *testing.T) {
	m := NewMessage("a@example.org", "b@example.org", "x\r\nBcc: evil@example.org", nil)
	assert.NotContains(t, string(m.Bytes()), "\r\nBcc:")
}

func TestNewMessageID(t *testing.T) {
	id := NewMessageID("example.org")
	assert.True(t, strings.HasPrefix(id, "<"))
	assert.True(t, strings.HasSuffix(id, "@example.org>"))
	assert.NotEqual(t, id, NewMessageID("example.org"))
	assert.True(t, strings.HasSuffix(NewMessageID(""), "@localhost>"))
}

func TestFormatDate(t *testing.T) {
	ts := time.Date(2013, time.May, 4, 3, 2, 1, 0, time.UTC)
	assert.Equal(t, "Sat, 4 May 2013 03:02:01 +0000", FormatDate(ts))
}

func TestAddressDomain(t *testing.T) {
	assert.Equal(t, "example.org", AddressDomain("ops@example.org"))
	assert.Equal(t, "", AddressDomain("nobody"))
}
