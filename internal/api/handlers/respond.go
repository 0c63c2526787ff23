package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/onnwee/graph-physics/internal/apierr"
	"github.com/onnwee/graph-physics/internal/logger"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnContext(r.Context(), "failed to write response", "error", err)
	}
}

// readBody reads the full request body, mapping an oversized body to a 413.
func readBody(r *http.Request) ([]byte, *apierr.Error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apierr.ValidationTooLarge(tooLarge.Limit)
		}
		return nil, apierr.ValidationInvalidJSON()
	}
	return data, nil
}

// decodeBody unmarshals the request body into v. An empty body leaves v
// untouched when allowEmpty is set.
func decodeBody(r *http.Request, v any, allowEmpty bool) *apierr.Error {
	data, apiErr := readBody(r)
	if apiErr != nil {
		return apiErr
	}
	if len(data) == 0 {
		if allowEmpty {
			return nil
		}
		return apierr.ValidationInvalidJSON()
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apierr.ValidationInvalidJSON()
	}
	return nil
}
