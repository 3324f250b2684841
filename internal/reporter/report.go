package reporter

import (
	"bufio"
	"fmt"
	"maps"
	"os"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"globaleaks/backend/internal/mail"
)

// valueErrorSentinel 值无法转换为字符串时的占位文本
const valueErrorSentinel = "<ERROR WHILE PRINTING VALUE>"

// maxFrames 采集的最大栈帧数
const maxFrames = 64

// typeNoise 类型名中的指针与常见包前缀
var typeNoise = regexp.MustCompile(`^\*?(main\.|errors\.)?`)

// Frame 调用栈中的一帧
type Frame struct {
	File     string
	Function string
	Line     int
	Source   string
}

// Report 一次异常的完整描述
type Report struct {
	Type        string
	Description string
	Frames      []Frame // 由外到内
	Values      map[string]any
	Time        time.Time
}

// Capture 采集 value 对应的异常信息与当前调用栈
//
// skip 为 0 时栈从 Capture 的调用者开始。runtime 包内的帧被忽略。
func Capture(value any, skip int, values map[string]any) Report {
	return Report{
		Type:        typeName(value),
		Description: describe(value),
		Frames:      callers(skip + 1),
		Values:      values,
		Time:        time.Now(),
	}
}

func typeName(value any) string {
	if value == nil {
		return "nil"
	}
	return strings.TrimSpace(typeNoise.ReplaceAllString(fmt.Sprintf("%T", value), ""))
}

func describe(value any) string {
	if err, ok := value.(error); ok {
		return err.Error()
	}
	return stringify(value)
}

func callers(skip int) []Frame {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+2, pcs)
	iter := runtime.CallersFrames(pcs[:n])

	var frames []Frame
	for {
		f, more := iter.Next()
		if f.Function != "" && !strings.HasPrefix(f.Function, "runtime.") {
			frames = append(frames, Frame{
				File:     f.File,
				Function: f.Function,
				Line:     f.Line,
				Source:   sourceLine(f.File, f.Line),
			})
		}
		if !more {
			break
		}
	}

	slices.Reverse(frames)
	return frames
}

// sourceLine 读取源文件中的一行，不可读时返回空字符串
func sourceLine(file string, line int) string {
	f, err := os.Open(file)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan(); n++ {
		if n == line {
			return strings.TrimSpace(scanner.Text())
		}
	}
	return ""
}

// stringify 将值转换为字符串，String/Error 方法 panic 时返回占位文本
func stringify(v any) (s string) {
	defer func() {
		if recover() != nil {
			s = valueErrorSentinel
		}
	}()
	s = fmt.Sprint(v)
	if strings.Contains(s, "%!v(PANIC=") {
		return valueErrorSentinel
	}
	return s
}

// Format 生成纯文本报告正文
//
// 先由外到内列出调用栈，再按“最内层在最后”的顺序逐帧输出，
// 附加的值列在最内层帧之后。
func Format(r Report) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s %s\n", r.Type, r.Description)
	for _, f := range r.Frames {
		fmt.Fprintf(&sb, "\tFile: \"%s\"\n\t\t%s %d: %s\n", f.File, f.Function, f.Line, f.Source)
	}

	sb.WriteString("\nLocals by frame, innermost last:")
	for _, f := range r.Frames {
		fmt.Fprintf(&sb, "\nFrame %s in %s at line %d", f.Function, f.File, f.Line)
	}
	if len(r.Frames) == 0 && len(r.Values) > 0 {
		sb.WriteString("\nFrame <unknown>")
	}
	for _, key := range slices.Sorted(maps.Keys(r.Values)) {
		fmt.Fprintf(&sb, "\n\t%20s = %s", key, stringify(r.Values[key]))
	}
	sb.WriteString("\n")

	return sb.String()
}

// Compose 生成 ISO-8859-1 编码的报告邮件
func Compose(from, to, subject string, r Report) *mail.Message {
	msg := mail.NewMessage(from, to, subject, encodeLatin1(Format(r)))
	msg.Set("Content-Type", "text/plain; charset=ISO-8859-1")
	msg.Set("Content-Transfer-Encoding", "8bit")
	msg.Set("Date", mail.FormatDate(r.Time))
	msg.Set("Message-ID", mail.NewMessageID(mail.AddressDomain(from)))
	return msg
}

// encodeLatin1 转换为 ISO-8859-1，无法表示的字符被替换
func encodeLatin1(s string) []byte {
	enc := encoding.ReplaceUnsupported(charmap.ISO8859_1.NewEncoder())
	out, err := enc.Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}
