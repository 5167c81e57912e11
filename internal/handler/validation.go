package handler

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/lotto-share/internal/domain/withdrawal"
)

var registerOnce sync.Once

// registerValidators teaches gin's validator the banking formats used by
// withdrawal requests and makes it report JSON field names.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		for tag, fn := range map[string]func(string) bool{
			"pan":     withdrawal.IsPAN,
			"account": withdrawal.IsAccountNumber,
			"ifsc":    withdrawal.IsIFSC,
			"swift":   withdrawal.IsSWIFT,
		} {
			_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
				return fn(strings.TrimSpace(fl.Field().String()))
			})
		}
	})
}

var tagMessages = map[string]string{
	"required": "is required",
	"email":    "must be a valid email address",
	"min":      "is too short",
	"max":      "is too long",
	"gt":       "must be positive",
	"oneof":    "is not supported",
	"numeric":  "must contain digits only",
	"pan":      "must be a valid PAN (e.g., ABCDE1234F)",
	"account":  "must be 9 to 18 digits",
	"ifsc":     "must be a valid IFSC (e.g., HDFC0001234)",
	"swift":    "must be a valid SWIFT/BIC code",
}

// bindingFields maps validation failures to field reasons. Malformed bodies
// yield nil.
func bindingFields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		msg, ok := tagMessages[fe.Tag()]
		if !ok {
			msg = "is invalid"
		}
		out[fe.Field()] = msg
	}
	return out
}
