package validation

import (
	"errors"
	"regexp"
	"sync"

	"github.com/Payphone-Digital/auth-service/internal/constants"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var otpRegex = regexp.MustCompile(constants.OTPPattern)

var registerOnce sync.Once

// Register installs the custom tags on v.
func Register(v *validator.Validate) error {
	if err := v.RegisterValidation("otp", validateOTP); err != nil {
		return err
	}
	return v.RegisterValidation("oauth_provider", validateOAuthProvider)
}

// RegisterGin installs the custom tags on gin's default binding validator.
// Safe to call more than once.
func RegisterGin() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = errors.New("validation: gin binding engine is not go-playground/validator")
			return
		}
		err = Register(v)
	})
	return err
}

func validateOTP(fl validator.FieldLevel) bool {
	return otpRegex.MatchString(fl.Field().String())
}

func validateOAuthProvider(fl validator.FieldLevel) bool {
	_, ok := constants.NormalizeProvider(fl.Field().String())
	return ok
}

// Messages turns a binding error into user-facing field messages. Errors
// that are not validation errors yield nil.
func Messages(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	out := make([]string, 0, len(verrs))
	for _, e := range verrs {
		if fieldMessages := CustomMessage(e.Field()); fieldMessages != nil {
			if msg, exists := fieldMessages[e.Tag()]; exists {
				out = append(out, msg)
				continue
			}
		}
		out = append(out, DefaultMessage(e.Field(), e.Tag(), e.Param()))
	}
	return out
}
