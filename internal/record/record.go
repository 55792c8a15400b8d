// Package record holds the validated customer record assembled from the
// extraction model's output, and derives its completeness verdict.
package record

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrWong99/intake/internal/fields"
)

// ErrMalformed is returned by [FromMapping] when the parsed extraction is not
// a key/value structure.
var ErrMalformed = errors.New("record: extraction is not a key/value mapping")

// Field identifies one of the five tracked attributes.
type Field int

const (
	FieldName Field = iota
	FieldSurname
	FieldGender
	FieldPhone
	FieldLicensePlate
)

// Fields is the fixed attribute order used for completeness evaluation and
// ask-back prompts.
var Fields = []Field{FieldName, FieldSurname, FieldGender, FieldPhone, FieldLicensePlate}

// String returns the snake_case attribute name used in extraction replies.
func (f Field) String() string {
	switch f {
	case FieldName:
		return "name"
	case FieldSurname:
		return "surname"
	case FieldGender:
		return "gender"
	case FieldPhone:
		return "phone"
	case FieldLicensePlate:
		return "license_plate"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// MarshalText implements [encoding.TextMarshaler] so Field values encode as
// their attribute names.
func (f Field) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Names converts fs to their attribute names, preserving order.
func Names(fs []Field) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.String()
	}
	return out
}

// validators routes each field to its validator.
var validators = map[Field]func(string) (string, bool){
	FieldName:         fields.ValidateText,
	FieldSurname:      fields.ValidateText,
	FieldGender:       fields.ValidateText,
	FieldPhone:        fields.ValidatePhone,
	FieldLicensePlate: fields.ValidateLicensePlate,
}

// Record is a validated customer record. Every non-empty attribute has
// passed its field validator; an empty string means the attribute is absent.
// Records are values and are not modified after construction.
type Record struct {
	Name         string
	Surname      string
	Gender       string
	Phone        string
	LicensePlate string
}

// FromMapping builds a Record from the parsed extraction reply. v must be a
// map[string]any; any other shape yields an error wrapping [ErrMalformed].
// Unknown keys are ignored. Missing keys, null values, and values that are
// not strings are absent. Present strings are passed through the field's
// validator and dropped if rejected.
func FromMapping(v any) (Record, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Record{}, fmt.Errorf("%w: got %T", ErrMalformed, v)
	}

	var r Record
	for _, f := range Fields {
		raw, ok := m[f.String()].(string)
		if !ok {
			continue
		}
		if canonical, ok := validators[f](raw); ok {
			r.set(f, canonical)
		}
	}
	return r, nil
}

// Get returns the value of f, or "" when absent.
func (r Record) Get(f Field) string {
	switch f {
	case FieldName:
		return r.Name
	case FieldSurname:
		return r.Surname
	case FieldGender:
		return r.Gender
	case FieldPhone:
		return r.Phone
	case FieldLicensePlate:
		return r.LicensePlate
	}
	return ""
}

// Has reports whether f is present.
func (r Record) Has(f Field) bool {
	return r.Get(f) != ""
}

func (r *Record) set(f Field, v string) {
	switch f {
	case FieldName:
		r.Name = v
	case FieldSurname:
		r.Surname = v
	case FieldGender:
		r.Gender = v
	case FieldPhone:
		r.Phone = v
	case FieldLicensePlate:
		r.LicensePlate = v
	}
}

// Completeness evaluates the record against [Fields] in order.
func (r Record) Completeness() Verdict {
	var missing []Field
	for _, f := range Fields {
		if !r.Has(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return Verdict{Status: StatusComplete}
	}
	return Verdict{Status: StatusIncomplete, Missing: missing}
}

// MarshalJSON encodes the record with the extraction key names and null for
// absent attributes.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]*string, len(Fields))
	for _, f := range Fields {
		if v := r.Get(f); v != "" {
			out[f.String()] = &v
		} else {
			out[f.String()] = nil
		}
	}
	return json.Marshal(out)
}

// Status is the completeness status of a record.
type Status string

const (
	StatusComplete   Status = "COMPLETE"
	StatusIncomplete Status = "INCOMPLETE"
)

// Verdict is the derived completeness judgment. Missing is empty when Status
// is [StatusComplete] and never empty when it is [StatusIncomplete].
type Verdict struct {
	Status  Status
	Missing []Field
}

// Complete reports whether every attribute is present.
func (v Verdict) Complete() bool {
	return v.Status == StatusComplete
}
