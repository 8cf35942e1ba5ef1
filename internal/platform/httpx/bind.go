package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tallybooks/tallybooks/internal/shared"
)

// maxBodyBytes caps request bodies accepted by Bind.
const maxBodyBytes = 1 << 20

func decodeJSON(body io.Reader, target any) error {
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

// Bind decodes the JSON body into target and runs struct validation. Failures
// wrap shared.ErrValidation so RespondError maps them to 400.
func Bind(r *http.Request, v *validator.Validate, target any) error {
	if err := decodeJSON(r.Body, target); err != nil {
		return fmt.Errorf("%w: decode body: %w", shared.ErrValidation, err)
	}
	if err := v.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fieldErr := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fieldErr.Field()), fieldErr.Tag()))
			}
			return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return nil
}
