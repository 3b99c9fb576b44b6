package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"sync"
	"text/template"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// ErrThrottled は同一アドレスへの再送間隔が短すぎることを表す。
var ErrThrottled = errors.New("mail: emails to this address can only be requested once per minute")

// DefaultResendInterval は同一アドレス・同一種別のメールの最短送信間隔。
const DefaultResendInterval = time.Minute

// throttleSize は送信履歴を保持するアドレス数の上限。
const throttleSize = 10000

// メールの種別。送信間隔の制限は種別ごとに独立する。
const (
	kindReset  = "reset"
	kindVerify = "verify"
)

// MailerConfig はメール本文の生成に使う設定。
type MailerConfig struct {
	SupportEmail         string
	ResetTokenTTL        time.Duration
	VerificationTokenTTL time.Duration
	ResendInterval       time.Duration
}

// Mailer はリセット・確認メールを組み立ててSenderに渡す。
// 同一アドレスへの同種メールは ResendInterval に1通までに制限する。
type Mailer struct {
	sender Sender
	config MailerConfig
	now    func() time.Time

	mu       sync.Mutex
	lastSent *lru.Cache
}

// NewMailer はMailerを生成する。
func NewMailer(sender Sender, config MailerConfig) (*Mailer, error) {
	if config.ResendInterval <= 0 {
		config.ResendInterval = DefaultResendInterval
	}
	cache, err := lru.New(throttleSize)
	if err != nil {
		return nil, fmt.Errorf("mail: creating throttle cache: %w", err)
	}
	return &Mailer{
		sender:   sender,
		config:   config,
		now:      time.Now,
		lastSent: cache,
	}, nil
}

type templateData struct {
	Name         string
	Link         string
	ExpiresIn    string
	SupportEmail string
}

// SendPasswordReset はパスワードリセットリンクを送信する。
func (m *Mailer) SendPasswordReset(ctx context.Context, to, name, resetURL string) error {
	return m.send(ctx, kindReset, to, name, "Password Reset Request", resetText, resetHTML, templateData{
		Name:         name,
		Link:         resetURL,
		ExpiresIn:    humanDuration(m.config.ResetTokenTTL),
		SupportEmail: m.config.SupportEmail,
	})
}

// SendVerification はメールアドレス確認リンクを送信する。
func (m *Mailer) SendVerification(ctx context.Context, to, name, verifyURL string) error {
	return m.send(ctx, kindVerify, to, name, "Verify your email address", verifyText, verifyHTML, templateData{
		Name:         name,
		Link:         verifyURL,
		ExpiresIn:    humanDuration(m.config.VerificationTokenTTL),
		SupportEmail: m.config.SupportEmail,
	})
}

// AllowPasswordReset は今リセットメールを送信できるかを返す。送信枠は消費しない。
// トークンを保存する前に呼び、送れないメールのためにトークンを差し替えないようにする。
func (m *Mailer) AllowPasswordReset(to string) bool {
	return m.allow(throttleKey(kindReset, to))
}

// AllowVerification は今確認メールを送信できるかを返す。送信枠は消費しない。
func (m *Mailer) AllowVerification(to string) bool {
	return m.allow(throttleKey(kindVerify, to))
}

func throttleKey(kind, to string) string {
	return kind + ":" + strings.ToLower(to)
}

func (m *Mailer) send(ctx context.Context, kind, to, name, subject string, text *template.Template, html *htmltemplate.Template, data templateData) error {
	key := throttleKey(kind, to)
	if !m.reserve(key) {
		return ErrThrottled
	}

	var textBuf, htmlBuf bytes.Buffer
	if err := text.Execute(&textBuf, data); err != nil {
		m.release(key)
		return fmt.Errorf("mail: rendering text body: %w", err)
	}
	if err := html.Execute(&htmlBuf, data); err != nil {
		m.release(key)
		return fmt.Errorf("mail: rendering html body: %w", err)
	}

	err := m.sender.Send(ctx, Message{
		To:      to,
		ToName:  name,
		Subject: subject,
		Text:    textBuf.String(),
		HTML:    htmlBuf.String(),
	})
	if err != nil {
		m.release(key)
		return err
	}
	return nil
}

// allow は直近の送信からResendIntervalが経過しているかを返す。
func (m *Mailer) allow(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowLocked(key, m.now())
}

func (m *Mailer) allowLocked(key string, now time.Time) bool {
	if v, ok := m.lastSent.Get(key); ok {
		return now.Sub(v.(time.Time)) >= m.config.ResendInterval
	}
	return true
}

// reserve は送信可能であれば送信時刻を記録してtrueを返す。
func (m *Mailer) reserve(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !m.allowLocked(key, now) {
		return false
	}
	m.lastSent.Add(key, now)
	return true
}

// release は送信に失敗した場合に記録を取り消し、すぐに再試行できるようにする。
func (m *Mailer) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSent.Remove(key)
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d >= time.Minute:
		if d < 2*time.Minute {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", d/time.Minute)
	default:
		return "a few moments"
	}
}
