package utils

import (
	"errors"
	"testing"

	"github.com/nyaruka/phonenumbers"
)

func TestLookupCountry(t *testing.T) {
	if got := CountryISO("Germany"); got != "DE" {
		t.Fatalf("CountryISO(Germany) = %q", got)
	}
	if got := CountryISO("Atlantis"); got != "" {
		t.Fatalf("unknown country should map to empty, got %q", got)
	}
	if got := CountryISO("  "); got != "" {
		t.Fatalf("blank country should map to empty, got %q", got)
	}
}

func TestNormalizePhone(t *testing.T) {
	example := phonenumbers.GetNationalSignificantNumber(phonenumbers.GetExampleNumber("GB"))

	code, national, err := NormalizePhone("United Kingdom", "0"+example)
	if err != nil {
		t.Fatalf("NormalizePhone: %v", err)
	}
	if code != "+44" || national != example {
		t.Fatalf("got %s %s, want +44 %s", code, national, example)
	}

	if _, _, err := NormalizePhone("United Kingdom", "123"); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("short number: expected ErrInvalidPhone, got %v", err)
	}
	if _, _, err := NormalizePhone("Atlantis", example); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("unknown country: expected ErrInvalidPhone, got %v", err)
	}
}

func TestIsEthAddress(t *testing.T) {
	cases := map[string]bool{
		"0x52908400098527886e0f7030069857d2e4169ee7": true,
		"0x1111111111111111111111111111111111111111": true,
		"52908400098527886e0f7030069857d2e4169ee7":   false,
		"0x1234":                                     false,
		"":                                           false,
	}
	for addr, want := range cases {
		if got := IsEthAddress(addr); got != want {
			t.Errorf("IsEthAddress(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestFormatValidationError(t *testing.T) {
	type request struct {
		Email   string `json:"email" validate:"required,email"`
		Country string `json:"country" validate:"required,country"`
		Code    string `json:"verification_code" validate:"len=6"`
	}
	err := ValidateStruct(&request{Email: "nope", Country: "Atlantis", Code: "1"})
	if err == nil {
		t.Fatal("expected validation errors")
	}
	got := FormatValidationError(err)
	want := map[string]string{
		"email":             "Invalid email format",
		"country":           "country is not a known country",
		"verification_code": "verification_code must be exactly 6 characters",
	}
	for field, msg := range want {
		if got[field] != msg {
			t.Errorf("%s: got %q, want %q", field, got[field], msg)
		}
	}
}
