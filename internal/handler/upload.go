package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hitoshi/yhal/internal/food"
	"github.com/hitoshi/yhal/internal/model"
)

// imageField はアップロード画像のフォームフィールド名。
const imageField = "image"

// multipartOverhead は画像以外のマルチパート部分に許容するバイト数。
const multipartOverhead = 1 << 20

// readImageUpload はmultipart/form-dataから画像を読み込む。
// 画像がない場合は空のUploadを返し、検証は呼び出し側に任せる。
// maxBytesを1バイト超えるまで読み、サイズ超過の判定を検証層で行えるようにする。
func readImageUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (food.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	file, header, err := r.FormFile(imageField)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			return food.Upload{}, err
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			return food.Upload{}, nil
		default:
			return food.Upload{}, model.NewValidationError(imageField, "Invalid multipart form")
		}
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return food.Upload{}, model.NewInternalError(fmt.Errorf("reading upload: %w", err))
	}

	return food.Upload{
		Data:        data,
		ContentType: header.Header.Get("Content-Type"),
	}, nil
}
