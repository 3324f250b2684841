package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"globaleaks/backend/internal/config"
	"globaleaks/backend/internal/logger"
	"globaleaks/backend/internal/mail"
	"globaleaks/backend/internal/validation"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: sendmail <to> <subject> [body-file]")
		os.Exit(1)
	}

	to := os.Args[1]
	subject := os.Args[2]

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.SMTP.Host == "" || cfg.SMTP.From == "" {
		fmt.Println("smtp.host and smtp.from must be configured")
		os.Exit(1)
	}

	log, err := logger.StartLogging(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     cfg.Log.MaxSize,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAge:      cfg.Log.MaxAge,
		Compress:    cfg.Log.Compress,
	})
	if err != nil {
		// 日志文件不可用时退回到控制台日志，不影响发送
		fmt.Printf("Failed to initialize logger, using console: %v\n", err)
		log = logger.NewPublisher(logger.NewDevelopmentLogger())
	}
	defer func() { _ = log.Sync() }()

	// 验证收件人
	address, ok := validation.New(log).ValidateEmail(map[string]any{
		validation.NotificationFieldsKey: map[string]any{validation.MailAddressKey: to},
	})
	if !ok {
		fmt.Println("Invalid email format")
		os.Exit(1)
	}
	to = address

	body, err := readBody(os.Args[3:])
	if err != nil {
		fmt.Printf("Failed to read body: %v\n", err)
		os.Exit(1)
	}

	msg := mail.NewMessage(cfg.SMTP.From, to, subject, body)
	msg.Set("Date", mail.FormatDate(time.Now()))
	msg.Set("Message-ID", mail.NewMessageID(mail.AddressDomain(cfg.SMTP.From)))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.SMTP.Timeout)
	defer cancel()

	sender := mail.NewSender(mail.OptionsFromConfig(cfg.SMTP), log.Named("mail"), nil)
	if err := sender.SendMail(ctx, mail.EnvelopeFromConfig(cfg.SMTP, "", to, msg.Bytes())); err != nil {
		fmt.Printf("Failed to send mail: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Mail sent to %s\n", to)
}

// readBody 从文件读取正文，未指定文件时读取标准输入
func readBody(args []string) ([]byte, error) {
	if len(args) == 0 {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(args[0])
}
