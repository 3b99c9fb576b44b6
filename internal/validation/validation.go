// Package validation は入出力を伴わない入力検証関数を提供する。
// すべての関数は検証失敗時にKindValidationの*model.APIErrorを返す。
package validation

import (
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/yhal/internal/model"
)

// 入力値の上限
const (
	MaxIngredients      = 50
	MaxIngredientLength = 100
	MaxFoodNameLength   = 255
	MaxNameLength       = 100
	MinPasswordLength   = 8
	MaxPasswordBytes    = 72
	MaxNotesLength      = 500
)

// ImageFile はアップロード画像を検証し、正規化したMIMEタイプを返す。
// 申告されたContent-Typeと先頭バイトから判定した形式が一致する必要がある。
func ImageFile(declaredType string, size, maxBytes int64, head []byte, allowWebP bool) (string, error) {
	if size == 0 || len(head) == 0 {
		return "", model.NewValidationError("image", "No image file provided")
	}

	declared := normalizeMime(declaredType)
	allowed := map[string]bool{"image/jpeg": true, "image/png": true}
	if allowWebP {
		allowed["image/webp"] = true
	}
	if !allowed[declared] {
		if allowWebP {
			return "", model.NewValidationError("image", "Only JPEG, PNG, JPG and WEBP images are allowed")
		}
		return "", model.NewValidationError("image", "Only JPEG, PNG, and JPG images are allowed")
	}

	if size > maxBytes {
		return "", model.NewValidationError("image", fmt.Sprintf("Image size exceeds %dMB limit", maxBytes/(1024*1024)))
	}

	if sniffed := normalizeMime(http.DetectContentType(head)); sniffed != declared {
		return "", model.NewValidationError("image", "Image content does not match its declared type")
	}

	return declared, nil
}

func normalizeMime(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "image/jpg" || mime == "image/pjpeg" {
		return "image/jpeg"
	}
	return mime
}

// Ingredients は食材リストを検証し、名前を前後空白除去した新しいスライスを返す。
// 空リスト、空の名前、負の分量は拒否する。
func Ingredients(ingredients []model.Ingredient) ([]model.Ingredient, error) {
	if len(ingredients) == 0 {
		return nil, model.NewValidationError("ingredients", "Ingredients must be a non-empty array")
	}
	if len(ingredients) > MaxIngredients {
		return nil, model.NewValidationError("ingredients", fmt.Sprintf("A maximum of %d ingredients is allowed", MaxIngredients))
	}

	out := make([]model.Ingredient, 0, len(ingredients))
	for _, ing := range ingredients {
		name := strings.TrimSpace(ing.Name)
		if name == "" {
			return nil, model.NewValidationError("ingredients", "Each ingredient must have a name string")
		}
		if utf8.RuneCountInString(name) > MaxIngredientLength {
			return nil, model.NewValidationError("ingredients", fmt.Sprintf("Ingredient names must be at most %d characters", MaxIngredientLength))
		}
		if ing.Amount < 0 {
			return nil, model.NewValidationError("ingredients", "Each ingredient must have a positive amount")
		}
		out = append(out, model.Ingredient{Name: name, Amount: ing.Amount})
	}
	return out, nil
}

// Portion は1食分の量を検証する。
func Portion(p *model.Portion) error {
	if p == nil {
		return model.NewValidationError("portion", "Portion size is required")
	}

	switch p.Type {
	case model.PortionStandard, model.PortionWeight, model.PortionVolume, model.PortionPieces:
	default:
		return model.NewValidationError("portion", "Portion type must be one of: standard, weight, volume, pieces")
	}

	if p.Type == model.PortionWeight && p.Unit != "g" {
		return model.NewValidationError("portion", "Weight portions must be in grams (g)")
	}

	if p.Value <= 0 {
		return model.NewValidationError("portion", "Portion must have a positive numeric value")
	}
	return nil
}

// Calories は任意指定のカロリーを検証する。指定する場合は正の値でなければならない。
func Calories(calories *float64) error {
	if calories != nil && !(*calories > 0) {
		return model.NewValidationError("calories", "Calories must be a positive number if provided")
	}
	return nil
}

// FoodName は食品名を検証し、前後空白を除去して返す。
func FoodName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < 2 || n > MaxFoodNameLength {
		return "", model.NewValidationError("foodName", "Valid food name is required")
	}
	return name, nil
}

// canonicalRegions は受け付ける表記から正規の地域名への対応。
var canonicalRegions = map[string]string{
	"west":            "West",
	"west africa":     "West",
	"west-africa":     "West",
	"western":         "West",
	"east":            "East",
	"east africa":     "East",
	"east-africa":     "East",
	"eastern":         "East",
	"north":           "North",
	"north africa":    "North",
	"north-africa":    "North",
	"northern":        "North",
	"south":           "South",
	"southern":        "South",
	"southern africa": "South",
	"southern-africa": "South",
	"south africa":    "South",
	"central":         "Central",
	"central africa":  "Central",
	"central-africa":  "Central",
}

// Region は地域名を検証し、West, East, North, South, Centralのいずれかに正規化する。
func Region(origin string) (string, error) {
	if r, ok := NormalizeRegion(origin); ok {
		return r, nil
	}
	return "", model.NewValidationError("regionalOrigin", "Region must be one of: West, East, North, South, Central")
}

// NormalizeRegion は地域名を正規化する。対応する地域がなければfalseを返す。
func NormalizeRegion(origin string) (string, bool) {
	r, ok := canonicalRegions[strings.ToLower(strings.TrimSpace(origin))]
	return r, ok
}

// Email はメールアドレスを検証し、小文字化して返す。
func Email(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", model.NewValidationError("email", "Email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", model.NewValidationError("email", "Please provide a valid email address")
	}
	return email, nil
}

// Password は新規パスワードの長さを検証する。
func Password(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return model.NewValidationError("password", fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > MaxPasswordBytes {
		return model.NewValidationError("password", fmt.Sprintf("Password must be at most %d bytes", MaxPasswordBytes))
	}
	return nil
}

// RegistrationNames は登録時の姓名を検証し、前後空白を除去して返す。
// 名は必須、姓は任意。
func RegistrationNames(first, last string) (string, string, error) {
	first, err := personName("firstName", first, true)
	if err != nil {
		return "", "", err
	}
	last, err = personName("lastName", last, false)
	if err != nil {
		return "", "", err
	}
	return first, last, nil
}

func personName(field, name string, required bool) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		if required {
			return "", model.NewValidationError(field, "First name is required")
		}
		return "", nil
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", model.NewValidationError(field, fmt.Sprintf("Name must be at most %d characters", MaxNameLength))
	}
	return name, nil
}

// Notes は食事記録のメモを検証する。
func Notes(notes string) (string, error) {
	notes = strings.TrimSpace(notes)
	if utf8.RuneCountInString(notes) > MaxNotesLength {
		return "", model.NewValidationError("notes", fmt.Sprintf("Notes must be at most %d characters", MaxNotesLength))
	}
	return notes, nil
}
