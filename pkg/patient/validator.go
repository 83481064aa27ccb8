package patient

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/careloop/patientsync/pkg/common/models"
	"github.com/careloop/patientsync/pkg/units"
	"github.com/go-playground/validator/v10"
)

var (
	errInvalidName = errors.New("names may only contain letters and spaces")
	errInvalidDOB  = errors.New("invalid date of birth")
	errFutureDOB   = errors.New("date of birth cannot be in the future")
	errInvalidUnit = errors.New("unsupported measurement unit")
)

type ValidationError struct {
	Field  string
	reason error
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.reason.Error()
	}
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// Validator gates requests before they reach the local store or the network.
type Validator struct {
	validate *validator.Validate
	catalog  units.Catalog
	now      func() time.Time
}

func NewValidator(catalog units.Catalog) *Validator {
	return &Validator{
		validate: validator.New(),
		catalog:  catalog,
		now:      time.Now,
	}
}

// ValidateCreate checks a create-patient request and returns the parsed date
// of birth on success.
func (v *Validator) ValidateCreate(req models.CreatePatientRequest) (time.Time, error) {
	if err := v.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return time.Time{}, ValidationError{
				Field:  strings.ToLower(fe.Field()),
				reason: fmt.Errorf("failed on '%s' rule", fe.Tag()),
			}
		}
		return time.Time{}, ValidationError{reason: err}
	}

	if !alphabetic(req.FirstName) {
		return time.Time{}, ValidationError{Field: "first_name", reason: errInvalidName}
	}
	if !alphabetic(req.LastName) {
		return time.Time{}, ValidationError{Field: "last_name", reason: errInvalidName}
	}

	dob, err := ParseDOB(req.DOB)
	if err != nil {
		return time.Time{}, ValidationError{Field: "dob", reason: err}
	}
	if dob.After(v.now()) {
		return time.Time{}, ValidationError{Field: "dob", reason: errFutureDOB}
	}

	return dob, nil
}

// ValidateProcess checks a process payload against the unit catalog. It runs
// before any network call is made.
func (v *Validator) ValidateProcess(req models.ProcessRequest) error {
	if req.Weight.Value <= 0 {
		return ValidationError{Field: "weight", reason: errors.New("value must be positive")}
	}
	if req.Height.Value <= 0 {
		return ValidationError{Field: "height", reason: errors.New("value must be positive")}
	}
	if !v.catalog.SupportsWeight(req.Weight.Unit) {
		return ValidationError{Field: "weight", reason: fmt.Errorf("%w: %q", errInvalidUnit, req.Weight.Unit)}
	}
	if !v.catalog.SupportsHeight(req.Height.Unit) {
		return ValidationError{Field: "height", reason: fmt.Errorf("%w: %q", errInvalidUnit, req.Height.Unit)}
	}
	return nil
}

// ParseDOB accepts the ISO-8601 shapes clients actually send: a bare date,
// an RFC 3339 timestamp, or one with a trailing Z and fractional seconds.
func ParseDOB(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errInvalidDOB
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", errInvalidDOB, value)
}

func alphabetic(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && r != ' ' {
			return false
		}
	}
	return true
}
