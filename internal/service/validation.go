package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"gallerybot/internal/domain"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// validateInput maps validator failures onto a *domain.ValidationError keyed
// by json field name. Lengths are counted in characters.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; seen {
			continue
		}
		fields[fe.Field()] = describe(fe)
	}
	return domain.NewValidationError(fields)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "max":
		return fmt.Sprintf("must be %s characters or less", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "invalid"
}

type itemInput struct {
	Kind        string `json:"kind" validate:"required,oneof=photo video document"`
	Handle      string `json:"file" validate:"required"`
	Name        string `json:"name" validate:"required,max=25"`
	Description string `json:"comment" validate:"max=200"`
}

type commentInput struct {
	Text string `json:"comment" validate:"required,max=150"`
}

type aliasInput struct {
	Alias string `json:"alias" validate:"max=20"`
}

type handleInput struct {
	Handle string `json:"username" validate:"required,max=64"`
}
