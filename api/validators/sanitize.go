package validators

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/labstock-backend/pkg/errors"
)

func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && len(trimmed) > maxLen {
		return trimmed[:maxLen]
	}
	return trimmed
}

// PathUUID parses a chi URL parameter as a uuid.
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid id").WithDetails(map[string]any{name: "must be a uuid"})
	}
	return id, nil
}

// PathString returns a trimmed chi URL parameter, rejecting blanks.
func PathString(r *http.Request, name string, maxLen int) (string, error) {
	value := SanitizeString(chi.URLParam(r, name), maxLen)
	if value == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "missing path parameter").WithDetails(map[string]any{name: "is required"})
	}
	return value, nil
}
