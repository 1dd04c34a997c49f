package httpapi

import (
	"strconv"
	"strings"

	"gallerybot/internal/domain"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// pathID reads a user id path value. Ids are numeric transport ids.
func pathID(raw, field string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", domain.NewValidationError(map[string]string{field: "required"})
	}
	for _, r := range id {
		if (r < '0' || r > '9') && r != '-' {
			return "", domain.NewValidationError(map[string]string{field: "must be numeric"})
		}
	}
	return id, nil
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultLogLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxLogLimit {
		return 0, domain.NewValidationError(map[string]string{"limit": "must be between 1 and " + strconv.Itoa(maxLogLimit)})
	}
	return n, nil
}
