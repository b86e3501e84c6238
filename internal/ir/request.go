package ir

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WriteRequest is one unit of caller intent: events applied together under
// a single position.
type WriteRequest struct {
	Events       []RequestEvent
	Information  Value
	UserID       int64
	LockedFields map[string]int64
}

// PositionRecord describes a committed position.
type PositionRecord struct {
	Position    int64     `json:"position"`
	Timestamp   time.Time `json:"timestamp"`
	UserID      int64     `json:"user_id"`
	Information Value     `json:"information"`
}

// PositionedEvents is what subscribers receive for one persisted request.
type PositionedEvents struct {
	Position int64
	Events   []DbEvent
}

// MarshalJSON encodes the events in their log form.
func (p PositionedEvents) MarshalJSON() ([]byte, error) {
	events := make(Array, len(p.Events))
	for i, e := range p.Events {
		events[i] = ToObject(e)
	}
	return MarshalCanonical(Object{
		"position": Int(p.Position),
		"events":   events,
	})
}

// FQIDs returns the distinct targets of the request in first-seen order.
func (r WriteRequest) FQIDs() []FQID {
	seen := make(map[FQID]bool, len(r.Events))
	var out []FQID
	for _, e := range r.Events {
		if f := e.Target(); !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// Validate checks the request shape. It does not look at stored state.
func (r WriteRequest) Validate() error {
	if len(r.Events) == 0 {
		return NewValidationError("write request has no events")
	}
	for key := range r.LockedFields {
		if _, err := ParseLockKey(key); err != nil {
			return NewValidationError("%v", err)
		}
	}
	for i, e := range r.Events {
		if err := validateEvent(e); err != nil {
			return NewValidationError("event %d: %v", i, err)
		}
	}
	return nil
}

func validateEvent(e RequestEvent) error {
	if e == nil {
		return fmt.Errorf("missing event")
	}
	if _, err := ParseFQID(string(e.Target())); err != nil {
		return err
	}
	switch ev := e.(type) {
	case CreateRequest:
		if len(ev.Fields) == 0 {
			return fmt.Errorf("create of %s has no fields", ev.FQID)
		}
		return validateFieldNames(ev.Fields)
	case UpdateRequest:
		if len(ev.Fields) == 0 && ev.ListFields.IsEmpty() {
			return fmt.Errorf("update of %s changes nothing", ev.FQID)
		}
		if err := validateFieldNames(ev.Fields); err != nil {
			return err
		}
		for field := range ev.ListFields.Add {
			if err := validateFieldName(field); err != nil {
				return err
			}
			if _, ok := ev.Fields[field]; ok {
				return fmt.Errorf("field %s is both set and list-updated", field)
			}
			if _, ok := ev.ListFields.Remove[field]; ok {
				return fmt.Errorf("field %s is both added to and removed from", field)
			}
		}
		for field := range ev.ListFields.Remove {
			if err := validateFieldName(field); err != nil {
				return err
			}
			if _, ok := ev.Fields[field]; ok {
				return fmt.Errorf("field %s is both set and list-updated", field)
			}
		}
	}
	return nil
}

func validateFieldNames(fields Object) error {
	for name := range fields {
		if err := validateFieldName(name); err != nil {
			return err
		}
	}
	return nil
}

func validateFieldName(name string) error {
	if strings.HasPrefix(name, MetaPrefix) {
		return fmt.Errorf("field %s is reserved", name)
	}
	if !IsValidField(name) {
		return fmt.Errorf("invalid field name %q", name)
	}
	return nil
}

type wireEvent struct {
	Type       string     `json:"type"`
	FQID       FQID       `json:"fqid"`
	Fields     Object     `json:"fields"`
	ListFields ListFields `json:"list_fields"`
}

type wireRequest struct {
	Events       []wireEvent      `json:"events"`
	Information  json.RawMessage  `json:"information"`
	UserID       int64            `json:"user_id"`
	LockedFields map[string]int64 `json:"locked_fields"`
}

// UnmarshalJSON decodes the request format accepted by the writer:
//
//	{"events": [{"type": "create", "fqid": "a/1", "fields": {...}}, ...],
//	 "information": ..., "user_id": 1, "locked_fields": {"a/1": 3}}
func (r *WriteRequest) UnmarshalJSON(data []byte) error {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	out := WriteRequest{
		UserID:       w.UserID,
		LockedFields: w.LockedFields,
		Information:  Null{},
	}
	if len(w.Information) > 0 {
		info, err := DecodeValue(w.Information)
		if err != nil {
			return fmt.Errorf("information: %w", err)
		}
		out.Information = info
	}

	for i, we := range w.Events {
		var e RequestEvent
		switch we.Type {
		case "create":
			e = CreateRequest{FQID: we.FQID, Fields: we.Fields}
		case "update":
			e = UpdateRequest{FQID: we.FQID, Fields: we.Fields, ListFields: we.ListFields}
		case "delete":
			e = DeleteRequest{FQID: we.FQID}
		case "restore":
			e = RestoreRequest{FQID: we.FQID}
		default:
			return fmt.Errorf("event %d: unknown type %q", i, we.Type)
		}
		out.Events = append(out.Events, e)
	}

	*r = out
	return nil
}
