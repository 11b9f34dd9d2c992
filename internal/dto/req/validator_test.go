package req

import (
	"errors"
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func TestValidFlagKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"checkout_v2", true},
		{"abc123", true},
		{"Checkout", false},
		{"new-flow", false},
		{"has space", false},
		{"", false},
		{"a_very_long_key_that_goes_on_and_on_past_the_fifty_char_limit", false},
	}
	for _, tt := range tests {
		if got := ValidFlagKey(tt.key); got != tt.want {
			t.Errorf("ValidFlagKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestRegisterValidators_UsesWireNames(t *testing.T) {
	if err := RegisterValidators(); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := binding.Validator.ValidateStruct(&ToggleReq{EnvironmentID: 3, Reason: "abc"})
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) != 1 {
		t.Fatalf("expected one validation error, got %v", err)
	}
	if verrs[0].Field() != "reason" {
		t.Errorf("field = %q, want reason", verrs[0].Field())
	}
	if msg := FieldMessage(verrs[0]); msg != "must be at least 5 characters" {
		t.Errorf("message = %q", msg)
	}

	err = binding.Validator.ValidateStruct(&CreateFlagReq{Name: "Checkout", Key: "Bad-Key"})
	if !errors.As(err, &verrs) || verrs[0].Field() != "key" || verrs[0].Tag() != "flagkey" {
		t.Fatalf("expected flagkey failure on key, got %v", err)
	}
}
