package app

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"aercd/pkg/domain"
	"aercd/pkg/registry"
)

// resourceValidator checks resource inputs: struct tags first, then the
// rules that need the registry.
type resourceValidator struct {
	validate *validator.Validate
	registry *registry.Registry
}

func newResourceValidator(reg *registry.Registry) *resourceValidator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &resourceValidator{validate: validate, registry: reg}
}

func (v *resourceValidator) Validate(in domain.ResourceInput) error {
	var errs ValidationErrors
	if err := v.validate.Struct(in); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		for _, fe := range fieldErrs {
			errs = append(errs, ValidationError{
				Field:   fe.Field(),
				Message: fieldMessage(fe),
				Rule:    fe.Tag(),
			})
		}
	}
	if in.DepartmentID != "" {
		dept, ok := v.registry.Department(in.DepartmentID)
		switch {
		case !ok:
			errs = append(errs, ValidationError{Field: "departmentId", Message: "unknown department", Rule: "registry"})
		case in.SubDepartment != "" && !slices.ContainsFunc(dept.SubDepartments, func(s domain.SubDepartment) bool {
			return s.Code == in.SubDepartment
		}):
			errs = append(errs, ValidationError{
				Field:   "subDepartment",
				Message: fmt.Sprintf("unknown sub-department for %s", dept.ShortName),
				Rule:    "registry",
			})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// normalizeInput trims free-text fields before validation.
func normalizeInput(in domain.ResourceInput) domain.ResourceInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.DepartmentID = strings.TrimSpace(in.DepartmentID)
	in.SubDepartment = strings.TrimSpace(in.SubDepartment)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Author = strings.TrimSpace(in.Author)
	in.Size = strings.TrimSpace(in.Size)
	return in
}
