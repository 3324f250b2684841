// Package validation 提供基于正则的输入校验。
//
// 校验函数从不返回错误，拒绝时返回 false 并记录 debug 日志。
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"globaleaks/backend/internal/logger"
)

// 请求中邮件地址所在的字段
const (
	NotificationFieldsKey = "notification_fields"
	MailAddressKey        = "mail_address"
)

// 正则表达式
var (
	// 邮件地址：本地部分、@、域名标签与 2-4 个字母的顶级域
	emailRegex = regexp.MustCompile(`^([\w-]+\.)*[\w-]+@([\w-]+\.)+[a-z]{2,4}$`)

	// 16 字符的洋葱服务地址
	hiddenServiceRegex = regexp.MustCompile(`^[0-9a-z]{16}\.onion$`)

	// http(s) 地址
	httpRegex = regexp.MustCompile(`^http(s?)://(\w+)\.(.*)$`)
)

// Validator 输入校验器
type Validator struct {
	log *logger.Publisher
}

// New 创建校验器，log 可以为 nil
func New(log *logger.Publisher) *Validator {
	if log == nil {
		log = logger.Nop()
	}
	return &Validator{log: log}
}

// ValidateEmail 从接收者请求中取出并校验邮件地址
//
// 请求需要包含 notification_fields.mail_address，notification_fields
// 可以是 map[string]any 或 map[string]string。
// 返回小写后的地址；字段缺失或格式不符时返回 false。
func (v *Validator) ValidateEmail(request map[string]any) (string, bool) {
	raw, ok := request[NotificationFieldsKey]
	if !ok {
		return "", false
	}

	value, ok := mailAddress(raw)
	if !ok {
		return "", false
	}

	address := strings.ToLower(fmt.Sprint(value))
	if !emailRegex.MatchString(address) {
		v.log.Debug("Invalid email address format", zap.String("address", address))
		return "", false
	}

	return address, true
}

// mailAddress 从 map[string]any 或 map[string]string 中取出地址字段
func mailAddress(fields any) (any, bool) {
	switch f := fields.(type) {
	case map[string]any:
		v, ok := f[MailAddressKey]
		return v, ok
	case map[string]string:
		v, ok := f[MailAddressKey]
		return v, ok
	default:
		return nil, false
	}
}

// ValidateAddress 校验洋葱地址或 http(s) 地址
//
// 两种检查分别由 hiddenService 与 http 开关启用，任一启用的检查匹配即通过。
func (v *Validator) ValidateAddress(input string, hiddenService, http bool) bool {
	if hiddenService && hiddenServiceRegex.MatchString(input) {
		return true
	}
	if http && httpRegex.MatchString(input) {
		return true
	}

	v.log.Debug("Rejected address",
		zap.String("address", input),
		zap.Bool("hidden_service", hiddenService),
		zap.Bool("http", http),
	)
	return false
}
