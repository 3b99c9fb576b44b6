package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/yhal/internal/cache"
	"github.com/hitoshi/yhal/internal/middleware"
	"github.com/hitoshi/yhal/internal/model"
)

// SuccessBody は成功レスポンスのエンベロープ。
type SuccessBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// X-Cacheヘッダーの値
const (
	cacheHit  = "HIT"
	cacheMiss = "MISS"
)

// emptyData はdataが空オブジェクトのレスポンス用。
var emptyData = struct{}{}

// writeJSON はvをJSONで書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// writeSuccess は成功エンベロープでJSONレスポンスを書き込む。
func writeSuccess(w http.ResponseWriter, statusCode int, message string, data any) {
	writeJSON(w, statusCode, SuccessBody{
		Status:  middleware.StatusSuccess,
		Message: message,
		Data:    data,
	})
}

// successEntry は成功エンベロープをキャッシュエントリに変換する。
func successEntry(statusCode int, message string, data any) (*cache.Entry, error) {
	body, err := json.Marshal(SuccessBody{
		Status:  middleware.StatusSuccess,
		Message: message,
		Data:    data,
	})
	if err != nil {
		return nil, model.NewInternalError(err)
	}
	return &cache.Entry{Status: statusCode, Body: body}, nil
}

// writeEntry はキャッシュエントリを加工せずに書き込む。
// 再試行待ちエントリの場合は残り時間をRetry-Afterに設定する。
func writeEntry(w http.ResponseWriter, c *cache.Cache, e *cache.Entry, hit bool) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	if hit {
		h.Set("X-Cache", cacheHit)
	} else {
		h.Set("X-Cache", cacheMiss)
	}
	if e.IsRetry() {
		h.Set("Retry-After", strconv.Itoa(model.RetryAfterSeconds(c.RetryAfter(e))))
	}
	w.WriteHeader(e.Status)
	w.Write(e.Body)
}

// decodeJSON はリクエストボディをvに読み込む。
// サイズ超過はそのまま返し、それ以外の解析失敗は入力検証エラーにする。
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return model.NewValidationError("", "Request body is required")
		}
		return model.NewValidationError("", "Invalid JSON body")
	}
	return nil
}

// pathID はURLパラメータの正の整数IDを返す。
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// queryInt はクエリパラメータを整数として返す。解析できなければ0。
func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}

// listData は一覧レスポンスのdata部。
type listData[T any] struct {
	Items      []T              `json:"items"`
	Pagination model.Pagination `json:"pagination"`
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
