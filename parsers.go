// parsers.go: Format detection and decoding of schema and values files
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/agilira/go-errors"
	"go.yaml.in/yaml/v3"
)

// Format identifies the encoding of a schema or values file.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
	FormatUnknown
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "JSON"
	case FormatYAML:
		return "YAML"
	default:
		return "Unknown"
	}
}

// DetectFormat detects the format from the file extension.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatUnknown
	}
}

// decode unmarshals data into out according to format.
func decode(data []byte, format Format, out interface{}) error {
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(out); err != nil {
			return errors.Wrap(err, ErrCodeSchemaError, "invalid JSON")
		}
		return nil
	case FormatYAML:
		if err := yaml.Unmarshal(data, out); err != nil {
			return errors.Wrap(err, ErrCodeSchemaError, "invalid YAML")
		}
		return nil
	default:
		return errors.New(ErrCodeUnsupportedFormat, "unsupported format: "+format.String())
	}
}

// ParseValues decodes a flat or nested map of key values. JSON numbers are
// decoded as int when integral and float64 otherwise, to match YAML.
func ParseValues(data []byte, format Format) (map[string]interface{}, error) {
	values := make(map[string]interface{})
	if len(bytes.TrimSpace(data)) == 0 {
		return values, nil
	}
	if err := decode(data, format, &values); err != nil {
		return nil, err
	}
	for k, v := range values {
		values[k] = normalizeDecoded(v)
	}
	return values, nil
}

// normalizeDecoded converts json.Number and YAML's map[interface{}]interface{}
// into the shapes used everywhere else.
func normalizeDecoded(v interface{}) interface{} {
	switch val := v.(type) {
	case json.Number:
		if i, err := strconv.Atoi(val.String()); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]interface{}:
		for k, item := range val {
			val[k] = normalizeDecoded(item)
		}
		return val
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[toString(k)] = normalizeDecoded(item)
		}
		return out
	case []interface{}:
		for i, item := range val {
			val[i] = normalizeDecoded(item)
		}
		return val
	default:
		return v
	}
}
