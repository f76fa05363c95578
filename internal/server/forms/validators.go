package forms

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// tag runs a validator/v10 tag against value and fails with msg.
func tag(rule, msg string) Validator {
	return func(_ context.Context, value string) (string, error) {
		if err := validate.Var(value, rule); err != nil {
			return msg, nil
		}
		return "", nil
	}
}

// Required fails on empty or whitespace-only input.
func Required() Validator {
	return func(ctx context.Context, value string) (string, error) {
		return tag("required", "This field is required.")(ctx, strings.TrimSpace(value))
	}
}

// Length bounds the number of characters. A zero min disables the lower
// bound.
func Length(min, max int) Validator {
	if min <= 0 {
		return tag(fmt.Sprintf("max=%d", max), fmt.Sprintf("Field cannot be longer than %d characters.", max))
	}
	return tag(fmt.Sprintf("min=%d,max=%d", min, max),
		fmt.Sprintf("Field must be between %d and %d characters long.", min, max))
}

// Email accepts a syntactically valid address. Empty input is left to
// Required.
func Email() Validator {
	return func(ctx context.Context, value string) (string, error) {
		if value == "" {
			return "", nil
		}
		return tag("email", "Invalid email address.")(ctx, value)
	}
}

func Regexp(pattern, msg string) Validator {
	re := regexp.MustCompile(pattern)
	return func(_ context.Context, value string) (string, error) {
		if !re.MatchString(value) {
			return msg, nil
		}
		return "", nil
	}
}

// EqualTo requires the value to equal the value of another field.
func EqualTo(other string, msg string) Validator {
	return func(_ context.Context, value string) (string, error) {
		if value != other {
			return msg, nil
		}
		return "", nil
	}
}

// Lookup reports whether value is already taken.
type Lookup func(ctx context.Context, value string) (bool, error)

// Unique fails when lookup reports the value as taken. Lookup errors are
// returned as faults.
func Unique(lookup Lookup, msg string) Validator {
	return func(ctx context.Context, value string) (string, error) {
		if lookup == nil || value == "" {
			return "", nil
		}
		taken, err := lookup(ctx, value)
		if err != nil {
			return "", err
		}
		if taken {
			return msg, nil
		}
		return "", nil
	}
}
