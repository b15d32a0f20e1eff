package tool

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// paramCheck validates decoded tool params against their `validate` tags.
// Field names in messages are the JSON names the model used.
var paramCheck = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}()

// checkParams returns the first tag violation in p as a sentence the model
// can act on.
func checkParams(p any) error {
	err := paramCheck.Struct(p)
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return describeViolation(ve[0].Field(), ve[0].Tag(), ve[0].Param(), ve[0].Value())
	}
	return err
}

// requireText is checkParams for a single field that is only mandatory for
// some actions.
func requireText(field, value string) error {
	if err := paramCheck.Var(value, "notblank"); err != nil {
		return describeViolation(field, "notblank", "", value)
	}
	return nil
}

func describeViolation(field, tag, param string, value any) error {
	switch tag {
	case "required", "notblank":
		return fmt.Errorf("'%s' is required", field)
	case "max":
		return fmt.Errorf("'%s' exceeds maximum length of %s characters", field, param)
	case "oneof":
		return fmt.Errorf("invalid %s %q (want: %s)", field, value, strings.ReplaceAll(param, " ", ", "))
	}
	return fmt.Errorf("'%s' failed %s validation", field, tag)
}
