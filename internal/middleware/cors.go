package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// NewCORSMiddleware はフロントエンドのオリジンに対するCORSミドルウェアを返す。
// credentials送信と共存するため、ワイルドカード(*)は使用しない。
func NewCORSMiddleware(frontendURL string) func(next http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{strings.TrimSuffix(frontendURL, "/")},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After", "X-Cache"},
		AllowCredentials: true,
		MaxAge:           86400,
	})
	return c.Handler
}
