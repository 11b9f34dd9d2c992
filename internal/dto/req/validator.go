package req

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var flagKeyPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

const maxFlagKeyLen = 50

// ValidFlagKey reports whether key is a lowercase snake_case identifier.
func ValidFlagKey(key string) bool {
	return len(key) <= maxFlagKeyLen && flagKeyPattern.MatchString(key)
}

func flagKey(fl validator.FieldLevel) bool {
	return ValidFlagKey(fl.Field().String())
}

// fieldName reports fields by their wire name so errors point at what the client sent.
func fieldName(fld reflect.StructField) string {
	for _, tag := range []string{"json", "form", "uri"} {
		name, _, _ := strings.Cut(fld.Tag.Get(tag), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return fld.Name
}

// RegisterValidators installs the custom tags on gin's validator engine.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	v.RegisterTagNameFunc(fieldName)
	return v.RegisterValidation("flagkey", flagKey)
}

// FieldMessage renders a failed rule as a sentence fragment, e.g. "must be at least 5 characters".
func FieldMessage(fe validator.FieldError) string {
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s%s", fe.Param(), unit)
	case "max":
		return fmt.Sprintf("must be at most %s%s", fe.Param(), unit)
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "flagkey":
		return fmt.Sprintf("must contain only lowercase letters, digits and underscores (max %d)", maxFlagKeyLen)
	default:
		return "failed the " + fe.Tag() + " rule"
	}
}
