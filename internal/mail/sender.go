// Package mail はパスワードリセットとメールアドレス確認のメール送信を提供する。
package mail

import (
	"context"
	"log/slog"
)

// Message は送信するメール1通を表す。本文はテキストとHTMLの両方を持つ。
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Sender はメール送信手段のインターフェース。
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender はメールを送信せずログに出力する。開発環境向け。
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender はLogSenderを生成する。
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send はメール内容をログに出力する。
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "mail not sent (log backend)",
		"to", msg.To,
		"subject", msg.Subject,
		"text", msg.Text,
	)
	return nil
}
