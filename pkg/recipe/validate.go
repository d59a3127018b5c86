package recipe

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/schema"

	schemasassets "github.com/hpckit/slurmbench/internal/assets/schemas"
)

// SchemaID is the schema identifier for deployment recipes.
const SchemaID = "slurmbench/v1.0.0/recipe"

// Validation errors
var (
	// ErrSchemaNotFound indicates the schema could not be located.
	ErrSchemaNotFound = errors.New("recipe schema not found")

	// ErrValidationFailed indicates the recipe failed validation.
	ErrValidationFailed = errors.New("recipe validation failed")
)

// Cached validator instance (compiled once from embedded schema)
var (
	validatorOnce sync.Once
	validator     *schema.Validator
	validatorErr  error
)

// ValidationError represents a single validation issue.
type ValidationError struct {
	// Path is the JSON pointer to the problematic field (e.g., "/service/ports").
	Path string

	// Message describes the validation failure.
	Message string
}

// Error implements error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var b strings.Builder
	b.WriteString("recipe validation failed with ")
	b.WriteString(fmt.Sprintf("%d errors:\n", len(e)))
	for i, err := range e {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error type.
func (e ValidationErrors) Unwrap() error {
	return ErrValidationFailed
}

// ValidateRaw checks raw JSON data against the recipe schema.
//
// This is performed before typed parsing so unknown fields are rejected
// (additionalProperties: false) instead of silently ignored by struct
// unmarshaling. The schema is embedded at compile time.
func ValidateRaw(jsonData []byte) error {
	v, err := getValidator()
	if err != nil {
		return err
	}

	diags, err := v.ValidateJSON(jsonData)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if len(diags) == 0 {
		return nil
	}

	var errs ValidationErrors
	for _, d := range diags {
		if d.Severity == schema.SeverityError {
			errs = append(errs, ValidationError{
				Path:    d.Pointer,
				Message: d.Message,
			})
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Validate performs semantic checks the schema cannot express: exactly which
// execution unit is present, target resolution sources, and port sanity for
// fields that arrive loosely typed.
func (r *Recipe) Validate() error {
	var errs ValidationErrors

	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, ValidationError{Path: "/name", Message: "recipe name is required"})
	}

	units := 0
	if r.Service != nil {
		units++
		if strings.TrimSpace(r.Service.Command) == "" {
			errs = append(errs, ValidationError{Path: "/service/command", Message: "command must be a non-empty string"})
		}
		for i, p := range r.Service.Ports {
			if p < 1 || p > 65535 {
				errs = append(errs, ValidationError{
					Path:    fmt.Sprintf("/service/ports/%d", i),
					Message: fmt.Sprintf("invalid TCP port %d", p),
				})
			}
		}
	}
	if r.Workload != nil {
		units++
		if len(r.Targets) == 0 {
			errs = append(errs, ValidationError{Path: "/targets", Message: "client recipes require at least one target"})
		}
	}
	if r.Infra != nil || (r.Service == nil && r.Workload == nil && len(r.Targets) > 0) {
		units++
		if len(r.Targets) == 0 {
			errs = append(errs, ValidationError{Path: "/targets", Message: "monitor recipes require at least one target"})
		}
	}
	if units == 0 {
		errs = append(errs, ValidationError{Message: "recipe must declare a service, workload, or monitor unit"})
	}
	if units > 1 {
		errs = append(errs, ValidationError{Message: "recipe declares more than one execution unit"})
	}

	for i, t := range r.Targets {
		if t.Endpoint == "" && t.Service == "" && t.JobID == "" {
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("/targets/%d", i),
				Message: "target needs an endpoint, a discovery service name, or a job_id",
			})
		}
		if t.Port != 0 && (t.Port < 1 || t.Port > 65535) {
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("/targets/%d/port", i),
				Message: fmt.Sprintf("invalid TCP port %d", t.Port),
			})
		}
	}

	if res := r.Orchestration.Resources; res.CPUCores < 0 || res.MemoryGB < 0 || res.GPUCount < 0 {
		errs = append(errs, ValidationError{Path: "/orchestration/resources", Message: "resource counts must not be negative"})
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// getValidator returns a cached validator compiled from the embedded schema.
//
// The validator is compiled once on first use and cached for subsequent calls.
// This is thread-safe via sync.Once.
func getValidator() (*schema.Validator, error) {
	validatorOnce.Do(func() {
		if len(schemasassets.RecipeSchema) == 0 {
			validatorErr = fmt.Errorf("%w: embedded recipe schema is empty", ErrSchemaNotFound)
			return
		}
		validator, validatorErr = schema.NewValidator(schemasassets.RecipeSchema)
		if validatorErr != nil {
			validatorErr = fmt.Errorf("failed to compile recipe schema: %w", validatorErr)
		}
	})
	return validator, validatorErr
}
