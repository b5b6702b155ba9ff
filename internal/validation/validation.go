package validation

import (
	"encoding/json"
	"net/http"

	"concord/internal/errors"
)

// maxBodySize bounds request bodies; file content travels inline
const maxBodySize = 16 << 20

type Validator interface {
	Validate() error
}

// DecodeRequest decodes the JSON body of r into v and, when v implements
// Validator, validates it. Failures are VALIDATION errors.
func DecodeRequest(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return errors.ValidationError("invalid request body", map[string]string{"cause": err.Error()})
	}

	if val, ok := v.(Validator); ok {
		if err := val.Validate(); err != nil {
			return err
		}
	}

	return nil
}
