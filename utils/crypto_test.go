package utils

import (
	"errors"
	"testing"
)

func TestSensitiveDataBoundToLabel(t *testing.T) {
	if err := InitializeEncryption("0123456789abcdef0123456789abcdef"); err != nil {
		t.Fatalf("InitializeEncryption: %v", err)
	}

	sealed, err := EncryptSensitiveData("aGVsbG8=", "id:tid-1:0")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	again, _ := EncryptSensitiveData("aGVsbG8=", "id:tid-1:0")
	if sealed == again {
		t.Fatal("each seal should use a fresh nonce")
	}

	plain, err := DecryptSensitiveData(sealed, "id:tid-1:0")
	if err != nil || plain != "aGVsbG8=" {
		t.Fatalf("Decrypt = %q, %v", plain, err)
	}
	if _, err := DecryptSensitiveData(sealed, "id:tid-1:1"); !errors.Is(err, ErrCorruptCiphertext) {
		t.Fatalf("wrong label: expected ErrCorruptCiphertext, got %v", err)
	}
	if _, err := DecryptSensitiveData(sealed[:10], "id:tid-1:0"); !errors.Is(err, ErrCorruptCiphertext) {
		t.Fatalf("truncated: expected ErrCorruptCiphertext, got %v", err)
	}

	if out, err := EncryptSensitiveData("", "x"); err != nil || out != "" {
		t.Fatalf("empty input should stay empty, got %q %v", out, err)
	}
}

func TestInitializeEncryptionRejectsShortKey(t *testing.T) {
	if err := InitializeEncryption("short"); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPasswordHash("correct-horse", hash) || CheckPasswordHash("wrong", hash) {
		t.Fatal("password check mismatch")
	}
}
