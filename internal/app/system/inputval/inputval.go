// Package inputval checks decoded API request bodies against struct tags,
// using waffle's pantry/validate plus a few page builder rules.
//
//	type createInput struct {
//	    Title string `json:"title" validate:"required" label:"Title"`
//	    Slug  string `json:"slug" validate:"required,slug" label:"Slug"`
//	}
//
//	if err := inputval.Validate(in).Err(); err != nil {
//	    h.errs.Fail(w, r, "create page", err)
//	    return
//	}
//
// Besides the pantry rules (required, oneof, min, max) these are registered:
//   - slug: lowercase letters and digits separated by single hyphens
//   - sectiontype: a known section type tag
//   - objectid: a Mongo ObjectID in hex
package inputval

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/dalemusser/stratapage/internal/app/system/apperr"
	"github.com/dalemusser/stratapage/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/validate"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FieldError is one failed rule. Field is the JSON name the client sent.
type FieldError struct {
	Field   string
	Label   string
	Message string
}

// Result collects the failures of one Validate call.
type Result struct {
	Errors []FieldError
}

// HasErrors reports whether any rule failed.
func (r *Result) HasErrors() bool { return len(r.Errors) > 0 }

// First returns the first message, or "".
func (r *Result) First() string {
	if !r.HasErrors() {
		return ""
	}
	return r.Errors[0].Message
}

// Err returns the failures as field-tagged apperr validation errors, or nil.
func (r *Result) Err() error {
	if !r.HasErrors() {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = apperr.Invalid(e.Field, e.Message)
	}
	return errors.Join(errs...)
}

var (
	validator     *validate.Validator
	validatorOnce sync.Once
)

func stringRule(ok func(string) bool) func(any) bool {
	return func(v any) bool {
		s, isString := v.(string)
		return isString && ok(s)
	}
}

func getValidator() *validate.Validator {
	validatorOnce.Do(func() {
		validator = validate.New(validate.WithStopOnFirstError())
		validator.RegisterRuleFunc("slug", stringRule(models.IsValidSlug), "slug")
		validator.RegisterRuleFunc("sectiontype", stringRule(IsValidSectionType), "sectiontype")
		validator.RegisterRuleFunc("objectid", stringRule(IsValidObjectID), "objectid")
	})
	return validator
}

// Validate checks s (a struct or pointer to one) against its validate tags.
// Messages use the field's label tag, falling back to its name.
func Validate(s any) *Result {
	res := &Result{}
	err := getValidator().Struct(s)
	if err == nil {
		return res
	}
	var errs validate.Errors
	if !errors.As(err, &errs) {
		res.Errors = append(res.Errors, FieldError{Field: "body", Label: "Body", Message: "Body is invalid."})
		return res
	}

	fields := describeFields(s)
	for _, e := range errs {
		f, ok := fields[e.Field]
		if !ok {
			f = fieldInfo{name: e.Field, label: e.Field}
		}
		res.Errors = append(res.Errors, FieldError{
			Field:   f.name,
			Label:   f.label,
			Message: message(f.label, e.Rule, e.Param),
		})
	}
	return res
}

type fieldInfo struct {
	name  string // JSON name
	label string
}

// describeFields indexes a struct's fields by both Go and JSON name.
func describeFields(s any) map[string]fieldInfo {
	out := make(map[string]fieldInfo)
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Pointer {
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return out
	}
	typ := val.Type()
	for i := range typ.NumField() {
		sf := typ.Field(i)
		name := sf.Name
		if tag, _, _ := strings.Cut(sf.Tag.Get("json"), ","); tag != "" && tag != "-" {
			name = tag
		}
		label := sf.Tag.Get("label")
		if label == "" {
			label = name
		}
		info := fieldInfo{name: name, label: label}
		out[sf.Name] = info
		out[name] = info
	}
	return out
}

func message(label, rule, param string) string {
	switch rule {
	case "required":
		return label + " is required."
	case "oneof", "enum":
		return label + " must be one of: " + strings.ReplaceAll(param, " ", ", ") + "."
	case "min":
		return label + " must be at least " + param + " characters."
	case "max":
		return label + " must be at most " + param + " characters."
	case "slug":
		return label + " may contain only lowercase letters, digits and single hyphens."
	case "sectiontype":
		return label + " must be one of: " + strings.Join(SectionTypes(), ", ") + "."
	case "objectid":
		return label + " is not a valid ID."
	}
	return label + " is invalid."
}

// SectionTypes lists the section type tags in display order.
func SectionTypes() []string {
	types := models.AllSectionTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// IsValidSectionType reports whether s names a section type, ignoring case
// and surrounding space.
func IsValidSectionType(s string) bool {
	return models.SectionType(strings.ToLower(strings.TrimSpace(s))).IsValid()
}

// IsValidObjectID reports whether s is an ObjectID in hex.
func IsValidObjectID(s string) bool {
	_, err := primitive.ObjectIDFromHex(strings.TrimSpace(s))
	return err == nil
}
