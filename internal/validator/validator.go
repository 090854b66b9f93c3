// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var hexColorRegex = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("hex_color", validateHexColor)
		_ = v.RegisterValidation("anomaly_type", validateAnomalyType)
		_ = v.RegisterValidation("severity", validateSeverity)
		_ = v.RegisterValidation("import_status", validateImportStatus)
		_ = v.RegisterValidation("predicate_kind", validatePredicateKind)
	}
}

func validateHexColor(fl validator.FieldLevel) bool {
	return hexColorRegex.MatchString(fl.Field().String())
}

func validateAnomalyType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "unusual_amount", "duplicate", "missing_description", "suspicious_pattern":
		return true
	}
	return false
}

func validateSeverity(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "low", "medium", "high", "critical":
		return true
	}
	return false
}

func validateImportStatus(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "pending", "processing", "completed", "failed":
		return true
	}
	return false
}

func validatePredicateKind(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "STRING", "NUMBER", "DATE", "COMPOUND":
		return true
	}
	return false
}
