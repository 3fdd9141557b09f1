// convert.go: Value conversions shared by the binder, schema and flag source
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/agilira/go-errors"
)

func toString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case int32:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, errors.New(ErrCodeBindError, fmt.Sprintf("cannot convert non-integral %v to int", v))
		}
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, errors.New(ErrCodeBindError, fmt.Sprintf("cannot convert %T to int", value))
	}
}

func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, errors.New(ErrCodeBindError, fmt.Sprintf("cannot convert non-integral %v to int64", v))
		}
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, errors.New(ErrCodeBindError, fmt.Sprintf("cannot convert %T to int64", value))
	}
}

func toBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	default:
		return false, errors.New(ErrCodeBindError, fmt.Sprintf("cannot convert %T to bool", value))
	}
}

func toFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, errors.New(ErrCodeBindError, fmt.Sprintf("cannot convert %T to float64", value))
	}
}

func toDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case time.Duration:
		return v, nil
	case string:
		return time.ParseDuration(v)
	case int64:
		return time.Duration(v), nil
	case int:
		return time.Duration(v), nil
	default:
		return 0, errors.New(ErrCodeBindError, fmt.Sprintf("cannot convert %T to time.Duration", value))
	}
}

// isNumber reports whether value is one of the numeric shapes the parsers
// and callers produce.
func isNumber(value interface{}) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}
