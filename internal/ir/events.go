package ir

import (
	"encoding/json"
	"fmt"
	"slices"
)

// RequestEvent is a sealed interface over caller intents.
// Implemented by CreateRequest, UpdateRequest, DeleteRequest and RestoreRequest.
type RequestEvent interface {
	requestEvent()
	Target() FQID
}

// CreateRequest creates a model with the given fields.
type CreateRequest struct {
	FQID   FQID
	Fields Object
}

// UpdateRequest sets fields (Null deletes a field) and applies list deltas.
type UpdateRequest struct {
	FQID       FQID
	Fields     Object
	ListFields ListFields
}

// ListFields carries per-field list additions and removals.
type ListFields struct {
	Add    map[string]Array `json:"add,omitempty"`
	Remove map[string]Array `json:"remove,omitempty"`
}

// IsEmpty reports whether there is nothing to add or remove.
func (l ListFields) IsEmpty() bool {
	return len(l.Add) == 0 && len(l.Remove) == 0
}

// DeleteRequest soft-deletes a model.
type DeleteRequest struct {
	FQID FQID
}

// RestoreRequest reactivates a soft-deleted model under the same FQID.
type RestoreRequest struct {
	FQID FQID
}

func (CreateRequest) requestEvent()  {}
func (UpdateRequest) requestEvent()  {}
func (DeleteRequest) requestEvent()  {}
func (RestoreRequest) requestEvent() {}

func (e CreateRequest) Target() FQID  { return e.FQID }
func (e UpdateRequest) Target() FQID  { return e.FQID }
func (e DeleteRequest) Target() FQID  { return e.FQID }
func (e RestoreRequest) Target() FQID { return e.FQID }

// EventType names a DbEvent variant in storage and in notifications.
type EventType string

const (
	EventTypeCreate       EventType = "create"
	EventTypeUpdate       EventType = "update"
	EventTypeDeleteFields EventType = "deletefields"
	EventTypeListUpdate   EventType = "listfields"
	EventTypeDelete       EventType = "delete"
	EventTypeRestore      EventType = "restore"
)

// DbEvent is a sealed interface over storage-ready mutations.
type DbEvent interface {
	dbEvent()
	Target() FQID
	Type() EventType
}

// DbCreate creates a model.
type DbCreate struct {
	FQID   FQID
	Fields Object
}

// DbUpdate sets non-null fields.
type DbUpdate struct {
	FQID   FQID
	Fields Object
}

// DbDeleteFields removes fields from a model.
type DbDeleteFields struct {
	FQID   FQID
	Fields []string
}

// DbListUpdate adds to and removes from list fields. Model is the full
// model as it was before this event; the resulting lists are computed from it.
type DbListUpdate struct {
	FQID   FQID
	Add    map[string]Array
	Remove map[string]Array
	Model  Object
}

// DbDelete soft-deletes a model. Fields lists every field it carried.
type DbDelete struct {
	FQID   FQID
	Fields []string
}

// DbRestore restores a soft-deleted model. Fields lists every field it carries.
type DbRestore struct {
	FQID   FQID
	Fields []string
}

func (DbCreate) dbEvent()       {}
func (DbUpdate) dbEvent()       {}
func (DbDeleteFields) dbEvent() {}
func (DbListUpdate) dbEvent()   {}
func (DbDelete) dbEvent()       {}
func (DbRestore) dbEvent()      {}

func (e DbCreate) Target() FQID       { return e.FQID }
func (e DbUpdate) Target() FQID       { return e.FQID }
func (e DbDeleteFields) Target() FQID { return e.FQID }
func (e DbListUpdate) Target() FQID   { return e.FQID }
func (e DbDelete) Target() FQID       { return e.FQID }
func (e DbRestore) Target() FQID      { return e.FQID }

func (DbCreate) Type() EventType       { return EventTypeCreate }
func (DbUpdate) Type() EventType       { return EventTypeUpdate }
func (DbDeleteFields) Type() EventType { return EventTypeDeleteFields }
func (DbListUpdate) Type() EventType   { return EventTypeListUpdate }
func (DbDelete) Type() EventType       { return EventTypeDelete }
func (DbRestore) Type() EventType      { return EventTypeRestore }

// TouchedFields returns the sorted field names an event writes.
func TouchedFields(e DbEvent) []string {
	var fields []string
	switch ev := e.(type) {
	case DbCreate:
		fields = ev.Fields.SortedKeys()
	case DbUpdate:
		fields = ev.Fields.SortedKeys()
	case DbDeleteFields:
		fields = slices.Clone(ev.Fields)
	case DbListUpdate:
		for f := range ev.Add {
			fields = append(fields, f)
		}
		for f := range ev.Remove {
			if _, dup := ev.Add[f]; !dup {
				fields = append(fields, f)
			}
		}
	case DbDelete:
		fields = slices.Clone(ev.Fields)
	case DbRestore:
		fields = slices.Clone(ev.Fields)
	}
	slices.Sort(fields)
	return fields
}

// ToObject encodes an event as a JSON object for the event log and for
// notifications. The model snapshot of a list update is not included.
func ToObject(e DbEvent) Object {
	obj := Object{
		"type": String(e.Type()),
		"fqid": String(e.Target()),
	}
	switch ev := e.(type) {
	case DbCreate:
		obj["fields"] = ev.Fields
	case DbUpdate:
		obj["fields"] = ev.Fields
	case DbDeleteFields:
		obj["fields"] = stringArray(ev.Fields)
	case DbListUpdate:
		obj["add"] = arrayMap(ev.Add)
		obj["remove"] = arrayMap(ev.Remove)
	case DbDelete:
		obj["fields"] = stringArray(ev.Fields)
	case DbRestore:
		obj["fields"] = stringArray(ev.Fields)
	}
	return obj
}

// MarshalDbEvent encodes an event as canonical JSON.
func MarshalDbEvent(e DbEvent) ([]byte, error) {
	return MarshalCanonical(ToObject(e))
}

// UnmarshalDbEvent decodes an event written by MarshalDbEvent.
func UnmarshalDbEvent(data []byte) (DbEvent, error) {
	var raw struct {
		Type   EventType        `json:"type"`
		FQID   FQID             `json:"fqid"`
		Fields json.RawMessage  `json:"fields"`
		Add    map[string]Array `json:"add"`
		Remove map[string]Array `json:"remove"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal db event: %w", err)
	}

	switch raw.Type {
	case EventTypeCreate, EventTypeUpdate:
		var fields Object
		if err := json.Unmarshal(raw.Fields, &fields); err != nil {
			return nil, fmt.Errorf("unmarshal db event fields: %w", err)
		}
		if raw.Type == EventTypeCreate {
			return DbCreate{FQID: raw.FQID, Fields: fields}, nil
		}
		return DbUpdate{FQID: raw.FQID, Fields: fields}, nil
	case EventTypeDeleteFields, EventTypeDelete, EventTypeRestore:
		var fields []string
		if err := json.Unmarshal(raw.Fields, &fields); err != nil {
			return nil, fmt.Errorf("unmarshal db event fields: %w", err)
		}
		switch raw.Type {
		case EventTypeDeleteFields:
			return DbDeleteFields{FQID: raw.FQID, Fields: fields}, nil
		case EventTypeDelete:
			return DbDelete{FQID: raw.FQID, Fields: fields}, nil
		}
		return DbRestore{FQID: raw.FQID, Fields: fields}, nil
	case EventTypeListUpdate:
		return DbListUpdate{FQID: raw.FQID, Add: raw.Add, Remove: raw.Remove}, nil
	}
	return nil, fmt.Errorf("unmarshal db event: unknown type %q", raw.Type)
}

func stringArray(ss []string) Array {
	arr := make(Array, len(ss))
	for i, s := range ss {
		arr[i] = String(s)
	}
	return arr
}

func arrayMap(m map[string]Array) Object {
	obj := make(Object, len(m))
	for k, v := range m {
		obj[k] = v
	}
	return obj
}
