// Utility functions shared by the statekeys command-line tools
//
// This file provides value parsing from command-line text and stable
// rendering of state key values for terminal and JSON output.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ParseValue parses a command-line argument into the most specific Go type.
// Supports: bool, int, float64, JSON arrays and objects, and plain strings.
func ParseValue(value string) interface{} {
	// Only explicit boolean words, so "0" and "1" stay integers
	lowerValue := strings.ToLower(value)
	if lowerValue == "true" || lowerValue == "false" {
		return lowerValue == "true"
	}

	if i, err := strconv.Atoi(value); err == nil {
		return i
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		var decoded interface{}
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
	}

	return value
}

// FormatValue renders a value on a single line.
func FormatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "<unset>"
	case string:
		return strconv.Quote(v)
	case time.Duration:
		return v.String()
	case map[string]interface{}, []interface{}, []string:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// SortedKeys returns the keys of values in lexical order.
func SortedKeys(values map[string]interface{}) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatValues renders values as "key = value" lines in key order.
func FormatValues(values map[string]interface{}, indent string) string {
	var b strings.Builder
	for _, k := range SortedKeys(values) {
		fmt.Fprintf(&b, "%s%s = %s\n", indent, k, FormatValue(values[k]))
	}
	return b.String()
}

// JSONValues renders values as indented JSON. Durations are written as strings.
func JSONValues(values map[string]interface{}) (string, error) {
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		if d, ok := v.(time.Duration); ok {
			out[k] = d.String()
			continue
		}
		out[k] = v
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseInterval parses a polling interval. Bare numbers are seconds.
func ParseInterval(value string) (time.Duration, error) {
	if value == "" {
		return 0, fmt.Errorf("empty interval")
	}
	if n, err := strconv.Atoi(value); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("interval must be positive: %s", value)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive: %s", value)
	}
	return d, nil
}
