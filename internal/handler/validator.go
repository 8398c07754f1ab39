package handler

import "github.com/go-playground/validator/v10"

// RequestValidator plugs go-playground/validator into echo's c.Validate.
type RequestValidator struct{ v *validator.Validate }

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (r *RequestValidator) Validate(i interface{}) error { return r.v.Struct(i) }

// fieldErrors flattens validation errors into field -> failed tag.
func fieldErrors(err error) map[string]string {
	out := map[string]string{}
	if ve, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range ve {
			out[fe.Field()] = fe.Tag()
		}
	}
	return out
}
