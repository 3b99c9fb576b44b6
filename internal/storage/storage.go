// Package storage はスキャンした食品画像の保存先を提供する。
package storage

import (
	"context"
	"fmt"

	"github.com/rs/xid"
)

// ImageStore は画像の保存先のインターフェース。
type ImageStore interface {
	// Put は画像を保存し、Food.ImagePathに記録する参照文字列を返す。
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ObjectKey は保存先のキー foods/<userID>/<xid><ext> を生成する。
func ObjectKey(userID int64, contentType string) string {
	return fmt.Sprintf("foods/%d/%s%s", userID, xid.New().String(), extension(contentType))
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
