package ir

import (
	"fmt"
	"slices"
)

// Reserved model fields. Requests may not write fields with MetaPrefix.
const (
	MetaPrefix   = "meta_"
	MetaDeleted  = "meta_deleted"
	MetaPosition = "meta_position"
)

// IsDeleted reports whether model carries the deletion marker.
func IsDeleted(model Object) bool {
	b, ok := model[MetaDeleted].(Bool)
	return ok && bool(b)
}

// FieldNames returns every field name of model, meta fields included,
// in sorted order. Delete and restore events carry them so that
// "<fqid>/meta_deleted" locks see the change.
func FieldNames(model Object) []string {
	names := make([]string, 0, len(model))
	for k := range model {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// ListResult computes the lists a list update produces from its model
// snapshot. Additions append values not yet present; removals drop every
// equal value. A missing or null field counts as an empty list.
func (e DbListUpdate) ListResult() (Object, error) {
	out := make(Object, len(e.Add)+len(e.Remove))
	current := func(field string) (Array, error) {
		if v, ok := out[field]; ok {
			return v.(Array), nil
		}
		v, ok := e.Model[field]
		if !ok || IsNull(v) {
			return Array{}, nil
		}
		arr, ok := v.(Array)
		if !ok {
			return nil, &ListFieldError{FQID: e.FQID, Field: field}
		}
		return slices.Clone(arr), nil
	}

	for _, field := range sortedArrayKeys(e.Add) {
		list, err := current(field)
		if err != nil {
			return nil, err
		}
		for _, v := range e.Add[field] {
			if !containsValue(list, v) {
				list = append(list, v)
			}
		}
		out[field] = list
	}
	for _, field := range sortedArrayKeys(e.Remove) {
		list, err := current(field)
		if err != nil {
			return nil, err
		}
		list = slices.DeleteFunc(list, func(v Value) bool {
			return containsValue(e.Remove[field], v)
		})
		out[field] = list
	}
	return out, nil
}

// ApplyEvent returns the model that results from applying e at position to
// model. model may be nil for a create. The input is never mutated.
func ApplyEvent(model Object, e DbEvent, position int64) (Object, error) {
	var next Object
	switch ev := e.(type) {
	case DbCreate:
		next = ev.Fields.Clone()
		next[MetaDeleted] = Bool(false)
	case DbUpdate:
		next = model.Clone()
		for k, v := range ev.Fields {
			next[k] = v
		}
	case DbDeleteFields:
		next = model.Clone()
		for _, f := range ev.Fields {
			delete(next, f)
		}
	case DbListUpdate:
		lists, err := ev.ListResult()
		if err != nil {
			return nil, err
		}
		next = model.Clone()
		for k, v := range lists {
			next[k] = v
		}
	case DbDelete:
		next = model.Clone()
		next[MetaDeleted] = Bool(true)
	case DbRestore:
		next = model.Clone()
		next[MetaDeleted] = Bool(false)
	default:
		panic(&BadCodingError{Message: fmt.Sprintf("unknown db event %T", e)})
	}
	next[MetaPosition] = Int(position)
	return next, nil
}

func containsValue(list Array, v Value) bool {
	return slices.ContainsFunc(list, func(x Value) bool { return Equal(x, v) })
}

func sortedArrayKeys(m map[string]Array) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
