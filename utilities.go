// utilities.go: Copy helpers and path checks shared by statekeys components
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"path/filepath"
	"strings"

	"github.com/agilira/go-errors"
)

// copyMap creates a shallow copy of a map for config snapshots
func copyMap(original map[string]interface{}) map[string]interface{} {
	if original == nil {
		return nil
	}
	result := make(map[string]interface{}, len(original))
	for k, v := range original {
		result[k] = v
	}
	return result
}

// copyValue deep copies the map and slice shapes produced by the parsers.
// Other values are returned as is.
func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = copyValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

// validatePath rejects paths that carry traversal or encoded traversal
// sequences and returns the cleaned absolute path.
func validatePath(path string) (string, error) {
	if path == "" {
		return "", errors.New(ErrCodeInvalidConfig, "empty path not allowed")
	}
	if strings.ContainsRune(path, 0) {
		return "", errors.New(ErrCodeInvalidConfig, "path contains null byte")
	}

	for _, pattern := range []string{"../", "..\\", "/..", "\\.."} {
		if strings.Contains(path, pattern) || path == ".." {
			return "", errors.New(ErrCodeInvalidConfig, "path contains dangerous traversal pattern: "+pattern).
				WithContext("path", path)
		}
	}

	lower := strings.ToLower(path)
	for _, pattern := range []string{"%2e%2e", "%252e", "%2f", "%252f", "%5c", "%255c", "%00"} {
		if strings.Contains(lower, pattern) {
			return "", errors.New(ErrCodeInvalidConfig, "path contains URL-encoded traversal pattern: "+pattern).
				WithContext("path", path)
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrap(err, ErrCodeInvalidConfig, "failed to resolve absolute path").
			WithContext("path", path)
	}
	return abs, nil
}
