package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/vinodismyname/sheetboard/internal/aggregate"
	"github.com/vinodismyname/sheetboard/pkg/dasherr"
	"github.com/vinodismyname/sheetboard/pkg/pagination"
)

var (
	v    *validator.Validate
	once sync.Once
)

// Error is a failed validation carrying its canonical code.
type Error struct {
	Code dasherr.Code
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Msg) }

func init() {
	dasherr.RegisterClassifier(func(err error) (dasherr.Code, bool) {
		var ve *Error
		if errors.As(err, &ve) {
			return ve.Code, true
		}
		return "", false
	})
}

// Validator returns a singleton validator with custom rules registered.
func Validator() *validator.Validate {
	once.Do(func() {
		v = validator.New()
		// Custom: Excel file path must have supported extension
		_ = v.RegisterValidation("filepath_ext", func(fl validator.FieldLevel) bool {
			s := strings.ToLower(strings.TrimSpace(fl.Field().String()))
			if s == "" {
				return false
			}
			return strings.HasSuffix(s, ".xlsx") || strings.HasSuffix(s, ".xlsm") || strings.HasSuffix(s, ".xltx") || strings.HasSuffix(s, ".xltm")
		})
		// Custom: worksheet names follow Excel's rules
		_ = v.RegisterValidation("sheetname", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			if strings.TrimSpace(s) == "" || len([]rune(s)) > 31 {
				return false
			}
			return !strings.ContainsAny(s, `[]:*?/\`)
		})
		// Custom: aggregation mode accepted by aggregate.ParseMode
		_ = v.RegisterValidation("agg_mode", func(fl validator.FieldLevel) bool {
			_, err := aggregate.ParseMode(fl.Field().String())
			return err == nil
		})
		// Custom: cursor must be decodable via pagination.DecodeCursor
		_ = v.RegisterValidation("cursor", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			if s == "" {
				return true // empty is allowed; use omitempty with this tag
			}
			_, err := pagination.DecodeCursor(s)
			return err == nil
		})
	})
	return v
}

// ValidateStruct validates a struct and returns a user-friendly error string
// suitable for MCP tool errors. Returns empty string when valid.
func ValidateStruct(s any) string {
	if err := Check(s); err != nil {
		return err.Error()
	}
	return ""
}

// Check validates a struct and returns an *Error describing the first failure.
func Check(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return &Error{Code: dasherr.Validation, Msg: "invalid inputs"}
	}
	fe := ve[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required", "required_if":
		return &Error{Code: dasherr.Validation, Msg: fmt.Sprintf("%s is required", field)}
	case "required_without":
		if field == "path" {
			return &Error{Code: dasherr.Validation, Msg: "path is required (or supply data)"}
		}
		return &Error{Code: dasherr.Validation, Msg: fmt.Sprintf("%s is required", field)}
	case "filepath_ext":
		return &Error{Code: dasherr.Validation, Msg: "path must be an Excel file (.xlsx, .xlsm, .xltx, .xltm)"}
	case "sheetname":
		return &Error{Code: dasherr.Validation, Msg: "sheet must be 1-31 characters without []:*?/\\"}
	case "agg_mode":
		return &Error{Code: dasherr.Validation, Msg: "mode must be sum or average"}
	case "cursor":
		return &Error{Code: dasherr.CursorInvalid, Msg: "failed to decode cursor; restart paging from the first page"}
	case "oneof":
		return &Error{Code: dasherr.Validation, Msg: fmt.Sprintf("%s must be one of: %s", field, fe.Param())}
	case "min", "max", "gte", "lte":
		return &Error{Code: dasherr.Validation, Msg: fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param())}
	}
	return &Error{Code: dasherr.Validation, Msg: fmt.Sprintf("invalid %s", field)}
}
