package tools

import (
	"encoding/json"
	"fmt"
	"strconv"
)

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %s must be a string", key)
	}
	return s, nil
}

func optStringArg(args map[string]any, key, fallback string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %s must be a string", key)
	}
	return s, nil
}

func optBoolArg(args map[string]any, key string, fallback bool) (bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return fallback, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("argument %s must be a boolean", key)
	}
	return b, nil
}

// optIntArg accepts JSON numbers and numeric strings.
func optIntArg(args map[string]any, key string, fallback int) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return fallback, nil
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("argument %s must be an integer", key)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("argument %s must be an integer", key)
	}
}

func optSliceArg(args map[string]any, key string) ([]any, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("argument %s must be a list", key)
	}
	return s, nil
}

// blockRefArg accepts a number, a decimal string, a hash, or "latest".
func blockRefArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "latest", nil
	}
	switch b := v.(type) {
	case string:
		return b, nil
	case float64:
		return strconv.FormatInt(int64(b), 10), nil
	case int:
		return strconv.Itoa(b), nil
	default:
		return "", fmt.Errorf("argument %s must be a block number, hash or \"latest\"", key)
	}
}

// abiArg accepts the ABI either as a JSON string or as a decoded JSON value.
func abiArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument: %s", key)
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("argument %s is not valid ABI JSON: %w", key, err)
	}
	return string(raw), nil
}
