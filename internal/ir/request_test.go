package ir

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRequestUnmarshalJSON(t *testing.T) {
	input := `{
		"events": [
			{"type": "create", "fqid": "a/1", "fields": {"f": 1}},
			{"type": "update", "fqid": "a/1", "fields": {"g": null}, "list_fields": {"add": {"l": [2]}}},
			{"type": "delete", "fqid": "b/2"},
			{"type": "restore", "fqid": "c/3"}
		],
		"information": {"reason": "test"},
		"user_id": 5,
		"locked_fields": {"a/1": 2}
	}`

	var req WriteRequest
	require.NoError(t, json.Unmarshal([]byte(input), &req))

	require.Len(t, req.Events, 4)
	assert.Equal(t, CreateRequest{FQID: "a/1", Fields: Object{"f": Int(1)}}, req.Events[0])
	assert.Equal(t, UpdateRequest{
		FQID:       "a/1",
		Fields:     Object{"g": Null{}},
		ListFields: ListFields{Add: map[string]Array{"l": {Int(2)}}},
	}, req.Events[1])
	assert.Equal(t, DeleteRequest{FQID: "b/2"}, req.Events[2])
	assert.Equal(t, RestoreRequest{FQID: "c/3"}, req.Events[3])
	assert.Equal(t, Object{"reason": String("test")}, req.Information)
	assert.Equal(t, int64(5), req.UserID)
	assert.Equal(t, map[string]int64{"a/1": 2}, req.LockedFields)
}

func TestWriteRequestUnmarshalDefaults(t *testing.T) {
	var req WriteRequest
	require.NoError(t, json.Unmarshal([]byte(`{"events":[{"type":"delete","fqid":"a/1"}]}`), &req))

	assert.Equal(t, Null{}, req.Information)
	assert.Zero(t, req.UserID)
	assert.Nil(t, req.LockedFields)
}

func TestWriteRequestUnmarshalUnknownType(t *testing.T) {
	var req WriteRequest
	err := json.Unmarshal([]byte(`{"events":[{"type":"explode","fqid":"a/1"}]}`), &req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown type "explode"`)
}

func TestWriteRequestFQIDs(t *testing.T) {
	req := WriteRequest{Events: []RequestEvent{
		UpdateRequest{FQID: "b/1", Fields: Object{"f": Int(1)}},
		DeleteRequest{FQID: "a/1"},
		RestoreRequest{FQID: "b/1"},
	}}

	assert.Equal(t, []FQID{"b/1", "a/1"}, req.FQIDs())
}

func TestWriteRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     WriteRequest
		wantErr string
	}{
		{
			name: "valid",
			req: WriteRequest{
				Events:       []RequestEvent{CreateRequest{FQID: "a/1", Fields: Object{"f": Int(1)}}},
				LockedFields: map[string]int64{"a/1": 1, "a/1/f": 1, "a/f": 1},
			},
		},
		{
			name:    "no events",
			req:     WriteRequest{},
			wantErr: "no events",
		},
		{
			name:    "bad fqid",
			req:     WriteRequest{Events: []RequestEvent{DeleteRequest{FQID: "a"}}},
			wantErr: "invalid fqid",
		},
		{
			name:    "create without fields",
			req:     WriteRequest{Events: []RequestEvent{CreateRequest{FQID: "a/1"}}},
			wantErr: "has no fields",
		},
		{
			name:    "empty update",
			req:     WriteRequest{Events: []RequestEvent{UpdateRequest{FQID: "a/1"}}},
			wantErr: "changes nothing",
		},
		{
			name:    "meta field",
			req:     WriteRequest{Events: []RequestEvent{UpdateRequest{FQID: "a/1", Fields: Object{"meta_deleted": Bool(true)}}}},
			wantErr: "reserved",
		},
		{
			name:    "bad field name",
			req:     WriteRequest{Events: []RequestEvent{CreateRequest{FQID: "a/1", Fields: Object{"Bad": Int(1)}}}},
			wantErr: "invalid field name",
		},
		{
			name: "set and list-updated",
			req: WriteRequest{Events: []RequestEvent{UpdateRequest{
				FQID:       "a/1",
				Fields:     Object{"l": Array{}},
				ListFields: ListFields{Add: map[string]Array{"l": {Int(1)}}},
			}}},
			wantErr: "both set and list-updated",
		},
		{
			name: "add and remove",
			req: WriteRequest{Events: []RequestEvent{UpdateRequest{
				FQID: "a/1",
				ListFields: ListFields{
					Add:    map[string]Array{"l": {Int(1)}},
					Remove: map[string]Array{"l": {Int(2)}},
				},
			}}},
			wantErr: "both added to and removed from",
		},
		{
			name: "bad lock key",
			req: WriteRequest{
				Events:       []RequestEvent{DeleteRequest{FQID: "a/1"}},
				LockedFields: map[string]int64{"a": 1},
			},
			wantErr: "invalid lock key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPositionedEventsMarshalJSON(t *testing.T) {
	data, err := json.Marshal(PositionedEvents{
		Position: 4,
		Events:   []DbEvent{DbDelete{FQID: "a/1", Fields: []string{"f"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"events":[{"fields":["f"],"fqid":"a/1","type":"delete"}],"position":4}`, string(data))
}
