// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package sdk

import (
	"fmt"
	"strconv"

	"cidadao/platform/connectors/base"
)

// StringifyParams flattens query parameters into the string form upstream
// APIs expect. Floats that hold integral values lose the trailing ".0" so
// entity-extracted numbers survive the JSON round trip.
func StringifyParams(params map[string]interface{}) map[string]string {
	out := make(map[string]string, len(params))
	for key, val := range params {
		switch v := val.(type) {
		case string:
			out[key] = v
		case int:
			out[key] = strconv.Itoa(v)
		case int64:
			out[key] = strconv.FormatInt(v, 10)
		case float64:
			if v == float64(int64(v)) {
				out[key] = strconv.FormatInt(int64(v), 10)
			} else {
				out[key] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		case bool:
			out[key] = strconv.FormatBool(v)
		default:
			out[key] = fmt.Sprintf("%v", v)
		}
	}
	return out
}

// RequireParams verifies that every mandatory upstream parameter is present
// and non-empty
func RequireParams(source string, params map[string]string, required ...string) error {
	for _, name := range required {
		if params[name] == "" {
			return &base.MissingParameterError{Source: source, Parameter: name}
		}
	}
	return nil
}
