package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/yhal/internal/auth"
	"github.com/hitoshi/yhal/internal/cache"
	"github.com/hitoshi/yhal/internal/food"
	"github.com/hitoshi/yhal/internal/middleware"
	"github.com/hitoshi/yhal/internal/model"
	"github.com/hitoshi/yhal/internal/nutrition"
	"github.com/hitoshi/yhal/internal/ratelimit"
	"github.com/hitoshi/yhal/internal/security"
)

// jpegBytes はhttp.DetectContentTypeがimage/jpegと判定する最小のデータ。
var jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00jollof")

// --- AI ---

// fakeAI はfood.Predictorとnutrition.Calculatorを兼ねる。
type fakeAI struct {
	mu             sync.Mutex
	predictCalls   int
	nutritionCalls int
	predictErr     error
	prediction     model.Prediction
}

func newFakeAI() *fakeAI {
	return &fakeAI{
		prediction: model.Prediction{
			FoodName:       "Jollof Rice",
			RegionalOrigin: "West Africa",
			Ingredients: []model.Ingredient{
				{Name: "rice"},
				{Name: "tomato"},
				{Name: "scotch bonnet"},
			},
		},
	}
}

func (f *fakeAI) PredictFood(_ context.Context, _ []byte, _ string) (*model.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.predictCalls++
	if f.predictErr != nil {
		return nil, f.predictErr
	}
	p := f.prediction
	return &p, nil
}

func (f *fakeAI) CalculateNutrition(_ context.Context, q model.NutritionQuery) (*model.Nutrition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nutritionCalls++
	return &model.Nutrition{
		Calories:  420,
		Nutrients: model.Nutrients{Protein: 9, Carbs: 80, Fat: 7},
	}, nil
}

func (f *fakeAI) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.predictCalls, f.nutritionCalls
}

// --- repositories ---

type fakeFoodRepo struct {
	mu     sync.Mutex
	nextID int64
	foods  map[int64]*model.Food
}

func newFakeFoodRepo() *fakeFoodRepo {
	return &fakeFoodRepo{foods: map[int64]*model.Food{}}
}

func (r *fakeFoodRepo) UpsertScan(_ context.Context, f *model.Food) (*model.Food, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.foods {
		if existing.UserID == f.UserID && existing.Name == f.Name {
			existing.FrequencyCount++
			existing.LastAccessed = f.LastAccessed
			if f.ImagePath != "" {
				existing.ImagePath = f.ImagePath
			}
			if f.Calories != nil {
				existing.Calories = f.Calories
			}
			saved := *existing
			return &saved, nil
		}
	}
	r.nextID++
	saved := *f
	saved.ID = r.nextID
	saved.FrequencyCount = 1
	saved.CreatedAt = f.LastAccessed
	r.foods[saved.ID] = &saved
	out := saved
	return &out, nil
}

func (r *fakeFoodRepo) FindByIDForUser(_ context.Context, userID, id int64) (*model.Food, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.foods[id]
	if !ok || f.UserID != userID {
		return nil, nil
	}
	out := *f
	return &out, nil
}

func (r *fakeFoodRepo) byUser(userID int64) []*model.Food {
	var out []*model.Food
	for _, f := range r.foods {
		if f.UserID == userID {
			c := *f
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r *fakeFoodRepo) ListByUser(_ context.Context, userID int64, limit, offset int) ([]*model.Food, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.byUser(userID)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *fakeFoodRepo) CountByUser(_ context.Context, userID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser(userID)), nil
}

func (r *fakeFoodRepo) ListFrequent(_ context.Context, userID int64, limit int) ([]*model.Food, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.byUser(userID)
	sort.SliceStable(all, func(i, j int) bool { return all[i].FrequencyCount > all[j].FrequencyCount })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

type fakeMealRepo struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]*model.MealLogEntry
	foods   *fakeFoodRepo
}

func newFakeMealRepo(foods *fakeFoodRepo) *fakeMealRepo {
	return &fakeMealRepo{entries: map[int64]*model.MealLogEntry{}, foods: foods}
}

func (r *fakeMealRepo) Create(_ context.Context, e *model.MealLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.ID = r.nextID
	c := *e
	r.entries[e.ID] = &c
	return nil
}

func (r *fakeMealRepo) ListHistory(ctx context.Context, userID int64, limit, offset int) ([]*model.MealHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.MealHistoryEntry
	for _, e := range r.entries {
		if e.UserID != userID {
			continue
		}
		h := &model.MealHistoryEntry{MealLogEntry: *e}
		if f, _ := r.foods.FindByIDForUser(ctx, userID, e.FoodID); f != nil {
			h.FoodName = f.Name
			h.RegionalOrigin = f.RegionalOrigin
			h.Calories = f.Calories
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConsumedAt.After(out[j].ConsumedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (r *fakeMealRepo) CountByUser(_ context.Context, userID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r *fakeMealRepo) DeleteForUser(_ context.Context, userID, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.UserID != userID {
		return false, nil
	}
	delete(r.entries, id)
	return true, nil
}

type fakeImageStore struct {
	mu   sync.Mutex
	keys []string
}

func (s *fakeImageStore) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	return "mem://" + key, nil
}

// --- auth ---

// fakeAuthService はAuthServiceInterfaceのモック実装。
type fakeAuthService struct {
	mu     sync.Mutex
	emails map[string]int64
}

func newFakeAuthService() *fakeAuthService {
	return &fakeAuthService{emails: map[string]int64{}}
}

func (s *fakeAuthService) Register(_ context.Context, in auth.RegisterInput) (*auth.AuthResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.Email == "" {
		return nil, model.NewValidationError("email", "Valid email is required")
	}
	if _, ok := s.emails[in.Email]; ok {
		return nil, model.NewDuplicateEmailError()
	}
	id := int64(len(s.emails) + 1)
	s.emails[in.Email] = id
	return &auth.AuthResult{Token: "token-" + in.Email, UserID: id}, nil
}

func (s *fakeAuthService) Login(_ context.Context, email, password string) (*auth.AuthResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[email]
	if !ok || password != "correct horse" {
		return nil, model.NewInvalidCredentialsError()
	}
	return &auth.AuthResult{Token: "token-" + email, UserID: id, ExpiresIn: 900}, nil
}

func (s *fakeAuthService) ForgotPassword(context.Context, string) error {
	return nil
}

func (s *fakeAuthService) ResetPassword(_ context.Context, token, _ string) error {
	if token != "valid-reset" {
		return model.NewInvalidResetTokenError()
	}
	return nil
}

func (s *fakeAuthService) VerifyEmail(_ context.Context, token string) error {
	if token != "valid-verify" {
		return model.NewInvalidVerificationTokenError()
	}
	return nil
}

func (s *fakeAuthService) ResendVerification(context.Context, string) error {
	return nil
}

// tokenValidator は"user-<id>"形式のトークンを受け付ける。
type tokenValidator struct{}

func (tokenValidator) ValidateAccessToken(token string) (int64, error) {
	switch token {
	case "user-1":
		return 1, nil
	case "user-2":
		return 2, nil
	}
	return 0, model.NewUnauthorizedError("Invalid or expired token")
}

// --- router ---

type testEnv struct {
	router  http.Handler
	ai      *fakeAI
	foods   *fakeFoodRepo
	meals   *fakeMealRepo
	images  *fakeImageStore
	auth    *fakeAuthService
	pingErr error
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		ai:     newFakeAI(),
		foods:  newFakeFoodRepo(),
		images: &fakeImageStore{},
		auth:   newFakeAuthService(),
	}
	env.meals = newFakeMealRepo(env.foods)

	store, err := cache.NewMemoryStore(256)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	c := cache.New(store, nil, logger)

	limiter := ratelimit.NewMemoryLimiter(time.Hour)
	t.Cleanup(limiter.Stop)

	sanitizer := security.NewTextSanitizer()
	foodService := food.NewService(env.foods, env.ai, env.images, sanitizer, food.Config{
		UploadMaxBytes: 5 << 20,
	}, logger)
	nutritionService := nutrition.NewService(env.meals, env.foods, env.ai, sanitizer, logger)

	checks := map[string]PingFunc{"redis": c.Ping}
	checks["database"] = func(context.Context) error {
		return env.pingErr
	}

	env.router = NewRouter(&RouterDeps{
		Logger:           logger,
		TokenValidator:   tokenValidator{},
		RateLimiter:      middleware.NewRateLimitMiddleware(limiter, nil),
		FrontendURL:      "http://localhost:3000",
		Cache:            c,
		CacheTTLs:        DefaultCacheTTLs(),
		AuthService:      env.auth,
		FoodService:      foodService,
		UploadMaxBytes:   5 << 20,
		NutritionService: nutritionService,
		StatusChecker:    NewStatusChecker(checks),
	})
	return env
}

// do はリクエストを送りレスポンスを返す。tokenが空でなければBearerトークンを付ける。
func (e *testEnv) do(t *testing.T, req *http.Request, token string) *httptest.ResponseRecorder {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// imageRequest はmultipart/form-dataの画像アップロードリクエストを組み立てる。
func imageRequest(t *testing.T, path, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="meal.jpg"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

var errUpstream = errors.New("model returned no candidates")
