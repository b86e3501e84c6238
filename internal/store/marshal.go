package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

// marshalModel converts a model to canonical JSON TEXT for storage.
func marshalModel(model ir.Object) (string, error) {
	data, err := ir.MarshalCanonical(model)
	if err != nil {
		return "", fmt.Errorf("marshal model: %w", err)
	}
	return string(data), nil
}

// unmarshalModel parses a stored model. Large integers keep their precision.
func unmarshalModel(data string) (ir.Object, error) {
	v, err := ir.DecodeValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal model: %w", err)
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, fmt.Errorf("unmarshal model: expected object, got %T", v)
	}
	return obj, nil
}

// marshalInformation converts position information to canonical JSON TEXT.
// A missing value is stored as null.
func marshalInformation(info ir.Value) (string, error) {
	if info == nil {
		info = ir.Null{}
	}
	data, err := ir.MarshalCanonical(info)
	if err != nil {
		return "", fmt.Errorf("marshal information: %w", err)
	}
	return string(data), nil
}

func unmarshalInformation(data string) (ir.Value, error) {
	v, err := ir.DecodeValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal information: %w", err)
	}
	return v, nil
}

// placeholders returns "$start, $start+1, ..." for n bound parameters.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(start+i)
	}
	return strings.Join(parts, ", ")
}
