package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestPasswordService_HashAndCompare(t *testing.T) {
	p := NewPasswordServiceWithCost(bcrypt.MinCost)

	hash, err := p.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "correct horse battery" {
		t.Fatal("hash must not equal plaintext")
	}

	if err := p.Compare(hash, "correct horse battery"); err != nil {
		t.Errorf("Compare with correct password: %v", err)
	}
	if err := p.Compare(hash, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("Compare with wrong password = %v, want ErrPasswordMismatch", err)
	}
}

func TestPasswordService_RejectsLongPassword(t *testing.T) {
	p := NewPasswordServiceWithCost(bcrypt.MinCost)
	if _, err := p.Hash(strings.Repeat("x", MaxPasswordBytes+1)); err == nil {
		t.Error("expected error for password over 72 bytes")
	}
}

func TestPasswordService_DefaultCost(t *testing.T) {
	p := NewPasswordService()
	hash, err := p.Hash("password123")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("Cost: %v", err)
	}
	if cost != DefaultBcryptCost {
		t.Errorf("cost = %d, want %d", cost, DefaultBcryptCost)
	}
}

func TestPasswordService_CompareMalformedHash(t *testing.T) {
	p := NewPasswordServiceWithCost(bcrypt.MinCost)
	err := p.Compare("not-a-hash", "password")
	if err == nil || errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("malformed hash should return a non-mismatch error, got %v", err)
	}
}
