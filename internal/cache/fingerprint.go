// Package cache はレスポンスキャッシュのキー生成と保存を提供する。
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// AnonymousIdentity は未認証リクエストのキャッシュ上の識別子。
const AnonymousIdentity = "anon"

// キャッシュキーの名前空間
const (
	NamespaceFood      = "food"
	NamespaceNutrition = "nutrition"
	NamespaceConfirmed = "confirmed"
)

// requestFingerprint は正規化されたリクエスト表現。
// フィールド順は固定で、encoding/jsonはマップのキーをソートして出力する。
type requestFingerprint struct {
	Method string              `json:"method"`
	Path   string              `json:"path"`
	Body   any                 `json:"body"`
	Query  map[string][]string `json:"query"`
}

// Identity はユーザーIDからキャッシュ上の識別子を返す。0は未認証とみなす。
func Identity(userID int64) string {
	if userID == 0 {
		return AnonymousIdentity
	}
	return strconv.FormatInt(userID, 10)
}

// RequestHash はメソッド・パス・ボディ・クエリの正規JSON表現からSHA-256ハッシュを返す。
// 意味的に同じリクエストは同じハッシュになる。
func RequestHash(method, path string, body any, query url.Values) (string, error) {
	q := map[string][]string{}
	for k, v := range query {
		q[k] = v
	}

	data, err := json.Marshal(requestFingerprint{
		Method: strings.ToUpper(method),
		Path:   path,
		Body:   body,
		Query:  q,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request fingerprint: %w", err)
	}

	return hashBytes(data), nil
}

// ContentHash はアップロードされたファイル内容のSHA-256ハッシュを返す。
func ContentHash(data []byte) string {
	return hashBytes(data)
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// AnalysisKey は画像解析結果のキーを返す。
func AnalysisKey(identity, contentHash string) string {
	return NamespaceFood + ":" + identity + ":" + contentHash
}

// NutritionKey は栄養計算結果のキーを返す。ユーザーに依存しない。
func NutritionKey(requestHash string) string {
	return NamespaceNutrition + ":" + requestHash
}

// ConfirmedKey は確定済み食品レスポンスのキーを返す。
func ConfirmedKey(identity, requestHash string) string {
	return NamespaceConfirmed + ":" + identity + ":" + requestHash
}

// FoodKey は食品詳細レスポンスのキーを返す。
func FoodKey(userID, foodID int64) string {
	return NamespaceFood + ":" + Identity(userID) + ":id:" + strconv.FormatInt(foodID, 10)
}

// namespaceOf はキーの名前空間部分を返す。
func namespaceOf(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "other"
}
