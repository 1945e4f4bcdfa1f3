package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
)

const maxBodyBytes = 1 << 20

// enumTags maps a struct tag to the enum it checks, so request types can say
// validate:"required,payment_method" instead of repeating the allowed values.
var enumTags = map[string]func(string) bool{
	"payment_method":  func(v string) bool { return enums.PaymentMethod(v).IsValid() },
	"shipping_method": func(v string) bool { return enums.ShippingMethod(v).IsValid() },
	"shipping_status": func(v string) bool { return enums.ShippingStatus(v).IsValid() },
	"timeline_kind":   func(v string) bool { return enums.TimelineKind(v).IsValid() },
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	for tag, ok := range enumTags {
		check := ok
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return check(fl.Field().String())
		})
	}
	return v
}

// DecodeJSONBody decodes a single JSON object into dest and validates it.
// Unknown fields, trailing data and oversized bodies are rejected.
func DecodeJSONBody(r *http.Request, dest any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes+1))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return decodeError(err)
	}
	if decoder.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must contain a single JSON object").
			With("reason", "trailing_data")
	}
	if decoder.InputOffset() > maxBodyBytes {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body too large").
			With("reason", "body_too_large").
			With("max_bytes", maxBodyBytes)
	}
	return Struct(dest)
}

// Struct runs the shared validator against an already populated value.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fieldPath(fe)] = validationMessage(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
		With("reason", "invalid_fields").
		With("fields", fields)
}

func decodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return pkgerrors.New(pkgerrors.CodeValidation, "request body is empty").With("reason", "empty_body")
	case errors.As(err, &syntaxErr):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed JSON").
			With("reason", "malformed_json").
			With("offset", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "wrong type for field").
			With("reason", "invalid_type").
			With("field", typeErr.Field)
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown field").
			With("reason", "unknown_field").
			With("field", strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`))
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").With("reason", "malformed_json")
}

// fieldPath drops the root struct name: "checkoutRequest.lines[0].quantity"
// becomes "lines[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	if _, ok := enumTags[fe.Tag()]; ok {
		return fmt.Sprintf("is not a valid %s", strings.ReplaceAll(fe.Tag(), "_", " "))
	}
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	case "latitude", "longitude":
		return "must be a valid coordinate"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	}
	return "is invalid"
}
