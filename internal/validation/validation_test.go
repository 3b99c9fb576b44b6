package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/hitoshi/yhal/internal/model"
)

var (
	pngHead  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpegHead = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")
	webpHead = []byte("RIFF\x24\x00\x00\x00WEBPVP8 ")
)

const fiveMB = 5 * 1024 * 1024

// assertValidationError はKindValidationのAPIErrorであることを検証する。
func assertValidationError(t *testing.T, err error) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T (%v)", err, err)
	}
	if apiErr.Kind != model.KindValidation {
		t.Errorf("Kind = %v, want validation", apiErr.Kind)
	}
}

func TestImageFile(t *testing.T) {
	tests := []struct {
		name      string
		declared  string
		size      int64
		head      []byte
		allowWebP bool
		want      string
		wantErr   bool
	}{
		{name: "png", declared: "image/png", size: 100, head: pngHead, want: "image/png"},
		{name: "jpg alias", declared: "image/jpg", size: 100, head: jpegHead, want: "image/jpeg"},
		{name: "jpeg", declared: "image/jpeg", size: 100, head: jpegHead, want: "image/jpeg"},
		{name: "gif rejected", declared: "image/gif", size: 100, head: []byte("GIF89a"), wantErr: true},
		{name: "webp disabled", declared: "image/webp", size: 100, head: webpHead, wantErr: true},
		{name: "webp enabled", declared: "image/webp", size: 100, head: webpHead, allowWebP: true, want: "image/webp"},
		{name: "too large", declared: "image/png", size: fiveMB + 1, head: pngHead, wantErr: true},
		{name: "exactly max", declared: "image/png", size: fiveMB, head: pngHead, want: "image/png"},
		{name: "declared png but jpeg bytes", declared: "image/png", size: 100, head: jpegHead, wantErr: true},
		{name: "empty", declared: "image/png", size: 0, head: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ImageFile(tt.declared, tt.size, fiveMB, tt.head, tt.allowWebP)
			if tt.wantErr {
				assertValidationError(t, err)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("mime = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestImageFile_SizeMessage(t *testing.T) {
	_, err := ImageFile("image/png", fiveMB+1, fiveMB, pngHead, false)
	if err == nil || !strings.Contains(err.Error(), "5MB") {
		t.Errorf("expected 5MB limit message, got %v", err)
	}
}

func TestIngredients(t *testing.T) {
	if _, err := Ingredients(nil); err == nil {
		t.Error("empty ingredients should be rejected")
	} else {
		assertValidationError(t, err)
	}

	if _, err := Ingredients([]model.Ingredient{{Name: "  "}}); err == nil {
		t.Error("blank ingredient name should be rejected")
	}

	if _, err := Ingredients([]model.Ingredient{{Name: "rice", Amount: -1}}); err == nil {
		t.Error("negative amount should be rejected")
	}

	many := make([]model.Ingredient, MaxIngredients+1)
	for i := range many {
		many[i] = model.Ingredient{Name: "x"}
	}
	if _, err := Ingredients(many); err == nil {
		t.Error("too many ingredients should be rejected")
	}

	got, err := Ingredients([]model.Ingredient{{Name: " rice "}, {Name: "oil", Amount: 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Name != "rice" || got[1].Amount != 2 {
		t.Errorf("got = %+v", got)
	}
}

func TestPortion(t *testing.T) {
	tests := []struct {
		name    string
		portion *model.Portion
		wantErr bool
	}{
		{name: "nil", portion: nil, wantErr: true},
		{name: "unknown type", portion: &model.Portion{Type: "bowl", Value: 1}, wantErr: true},
		{name: "weight without grams", portion: &model.Portion{Type: "weight", Value: 100, Unit: "kg"}, wantErr: true},
		{name: "negative value", portion: &model.Portion{Type: "pieces", Value: -2}, wantErr: true},
		{name: "zero value", portion: &model.Portion{Type: "standard", Value: 0}, wantErr: true},
		{name: "weight in grams", portion: &model.Portion{Type: "weight", Value: 250, Unit: "g"}},
		{name: "volume", portion: &model.Portion{Type: "volume", Value: 1.5, Unit: "ml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Portion(tt.portion)
			if tt.wantErr {
				assertValidationError(t, err)
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCalories(t *testing.T) {
	value := func(v float64) *float64 { return &v }
	tests := []struct {
		name     string
		calories *float64
		wantErr  bool
	}{
		{name: "omitted", calories: nil},
		{name: "positive", calories: value(320.5)},
		{name: "zero", calories: value(0), wantErr: true},
		{name: "negative", calories: value(-1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Calories(tt.calories)
			if tt.wantErr {
				assertValidationError(t, err)
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestFoodName(t *testing.T) {
	if _, err := FoodName(" a "); err == nil {
		t.Error("single-character name should be rejected")
	}
	got, err := FoodName("  Jollof Rice ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Jollof Rice" {
		t.Errorf("FoodName = %q", got)
	}
}

func TestRegion(t *testing.T) {
	tests := map[string]string{
		"West":            "West",
		"west africa":     "West",
		"southern-africa": "South",
		"Central Africa":  "Central",
		"NORTH":           "North",
	}
	for in, want := range tests {
		got, err := Region(in)
		if err != nil {
			t.Errorf("Region(%q) returned error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Region(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := Region("Europe"); err == nil {
		t.Error("unknown region should be rejected")
	}
}

func TestEmail(t *testing.T) {
	got, err := Email("  Ada@Example.COM ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ada@example.com" {
		t.Errorf("Email = %q", got)
	}

	for _, bad := range []string{"", "not-an-email", "Ada <ada@example.com>"} {
		if _, err := Email(bad); err == nil {
			t.Errorf("Email(%q) should fail", bad)
		}
	}
}

func TestPassword(t *testing.T) {
	if err := Password("short"); err == nil {
		t.Error("short password should be rejected")
	}
	if err := Password(strings.Repeat("a", MaxPasswordBytes+1)); err == nil {
		t.Error("password over 72 bytes should be rejected")
	}
	if err := Password("correct horse"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRegistrationNamesAndNotes(t *testing.T) {
	if _, _, err := RegistrationNames(" ", "Lovelace"); err == nil {
		t.Error("blank first name should be rejected")
	}
	first, last, err := RegistrationNames(" Ada ", "")
	if err != nil || first != "Ada" || last != "" {
		t.Errorf("RegistrationNames = (%q, %q, %v)", first, last, err)
	}
	if _, _, err := RegistrationNames("Ada", strings.Repeat("l", MaxNameLength+1)); err == nil {
		t.Error("long last name should be rejected")
	}
	if _, err := Notes(strings.Repeat("n", MaxNotesLength+1)); err == nil {
		t.Error("long notes should be rejected")
	}
}
