package auth

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/yhal/internal/model"
	"github.com/hitoshi/yhal/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// fakeUserRepo はテスト用のインメモリUserRepository。
type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*model.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	r.nextID++
	user.ID = r.nextID
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) FindByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) SetResetToken(_ context.Context, userID int64, token string, expiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.users[userID]
	u.ResetToken = token
	u.ResetTokenExpiry = &expiry
	return nil
}

func (r *fakeUserRepo) FindByResetToken(_ context.Context, token string, now time.Time) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ResetToken == token && u.ResetTokenExpiry != nil && u.ResetTokenExpiry.After(now) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) ResetPassword(_ context.Context, userID int64, token, passwordHash string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok || u.ResetToken != token || u.ResetTokenExpiry == nil || !u.ResetTokenExpiry.After(now) {
		return false, nil
	}
	u.PasswordHash = passwordHash
	u.ResetToken = ""
	u.ResetTokenExpiry = nil
	return true, nil
}

func (r *fakeUserRepo) SetVerificationToken(_ context.Context, userID int64, token string, expiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.users[userID]
	u.VerificationToken = token
	u.VerificationTokenExpiry = &expiry
	return nil
}

func (r *fakeUserRepo) VerifyEmail(_ context.Context, token string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.VerificationToken == token && u.VerificationTokenExpiry != nil && u.VerificationTokenExpiry.After(now) {
			u.IsVerified = true
			u.VerificationToken = ""
			u.VerificationTokenExpiry = nil
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeUserRepo) ClearExpiredTokens(_ context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeUserRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// sentMail は送信されたメールの記録。
type sentMail struct {
	kind string
	to   string
	link string
}

// fakeMailer は送信内容を記録するMailer。
type fakeMailer struct {
	mu        sync.Mutex
	sent      []sentMail
	err       error
	throttled bool
}

func (m *fakeMailer) AllowPasswordReset(string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.throttled
}

func (m *fakeMailer) AllowVerification(string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.throttled
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, _, resetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{kind: "reset", to: to, link: resetURL})
	return m.err
}

func (m *fakeMailer) SendVerification(_ context.Context, to, _, verifyURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{kind: "verify", to: to, link: verifyURL})
	return m.err
}

func (m *fakeMailer) last(t *testing.T, kind string) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].kind == kind {
			return m.sent[i]
		}
	}
	t.Fatalf("no %s mail sent", kind)
	return sentMail{}
}

// tokenFromLink はリンクのtokenクエリを取り出す。
func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parsing link %q: %v", link, err)
	}
	return u.Query().Get("token")
}

const testSecret = "test-secret-0123456789abcdef"

func newTestService(t *testing.T) (*Service, *fakeUserRepo, *fakeMailer) {
	t.Helper()
	tokens, err := NewTokenService(testSecret, 15*time.Minute, 15*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	repo := newFakeUserRepo()
	mailer := &fakeMailer{}
	svc := NewService(repo, NewPasswordServiceWithCost(bcrypt.MinCost), tokens, mailer, ServiceConfig{
		FrontendURL:          "https://app.example.com/",
		ResetTokenTTL:        15 * time.Minute,
		VerificationTokenTTL: 15 * time.Minute,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, repo, mailer
}
