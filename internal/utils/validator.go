// internal/utils/validator.go
package utils

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/javajoker/wavhaven-backend/internal/apperrors"
	"github.com/javajoker/wavhaven-backend/internal/models"
)

var validate *validator.Validate

var (
	usernamePattern = regexp.MustCompile("^[a-zA-Z0-9_]+$")
	trackKeyPattern = regexp.MustCompile(`^[A-G](#|b)?( ?(major|minor|maj|min|m))?$`)
)

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	validate.RegisterValidation("username", validateUsername)
	validate.RegisterValidation("license_type", validateLicenseType)
	validate.RegisterValidation("file_type", validateFileType)
	validate.RegisterValidation("track_key", validateTrackKey)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

func validateUsername(fl validator.FieldLevel) bool {
	username := fl.Field().String()

	// Username should be alphanumeric and underscores, 3-50 characters
	if len(username) < 3 || len(username) > 50 {
		return false
	}

	return usernamePattern.MatchString(username)
}

func validateLicenseType(fl validator.FieldLevel) bool {
	return models.LicenseType(fl.Field().String()).Valid()
}

func validateFileType(fl validator.FieldLevel) bool {
	return models.TrackFileType(fl.Field().String()).Valid()
}

func validateTrackKey(fl validator.FieldLevel) bool {
	key := strings.TrimSpace(fl.Field().String())
	return key == "" || trackKeyPattern.MatchString(key)
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   e.Field(),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

// ValidateRequest runs struct validation and converts failures into a
// service validation error.
func ValidateRequest(s interface{}) error {
	errs := GetValidationErrors(ValidateStruct(s))
	if len(errs) == 0 {
		return nil
	}
	fields := make([]apperrors.FieldError, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, apperrors.FieldError{Field: e.Field, Message: e.Message})
	}
	return apperrors.Validation("invalid input", fields...)
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "gte":
		return e.Field() + " must be greater than or equal to " + e.Param()
	case "lte":
		return e.Field() + " must be less than or equal to " + e.Param()
	case "oneof":
		return e.Field() + " must be one of " + e.Param()
	case "username":
		return "Username must be 3-50 characters and contain only letters, numbers, and underscores"
	case "license_type":
		return "License type must be one of BASIC, PREMIUM, EXCLUSIVE, UNLIMITED"
	case "file_type":
		return "File type is not supported"
	case "track_key":
		return "Key must look like \"C minor\" or \"F# major\""
	default:
		return e.Field() + " is invalid"
	}
}
