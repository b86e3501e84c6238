package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTouchedFields(t *testing.T) {
	tests := []struct {
		name  string
		event DbEvent
		want  []string
	}{
		{"create", DbCreate{FQID: "a/1", Fields: Object{"b": Int(1), "a": Int(2)}}, []string{"a", "b"}},
		{"deletefields", DbDeleteFields{FQID: "a/1", Fields: []string{"z", "y"}}, []string{"y", "z"}},
		{"listfields dedup", DbListUpdate{
			FQID:   "a/1",
			Add:    map[string]Array{"l": {Int(1)}, "m": {Int(1)}},
			Remove: map[string]Array{"l": {Int(2)}, "k": {Int(2)}},
		}, []string{"k", "l", "m"}},
		{"delete", DbDelete{FQID: "a/1", Fields: []string{"f"}}, []string{"f"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TouchedFields(tt.event))
		})
	}
}

func TestMarshalDbEvent(t *testing.T) {
	data, err := MarshalDbEvent(DbUpdate{FQID: "a/1", Fields: Object{"f": Float(1.5)}})
	require.NoError(t, err)
	assert.Equal(t, `{"fields":{"f":1.5},"fqid":"a/1","type":"update"}`, string(data))
}

func TestMarshalListUpdateOmitsModel(t *testing.T) {
	data, err := MarshalDbEvent(DbListUpdate{
		FQID:  "a/1",
		Add:   map[string]Array{"l": {Int(1)}},
		Model: Object{"secret": String("x")},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"add":{"l":[1]},"fqid":"a/1","remove":{},"type":"listfields"}`, string(data))
}

func TestUnmarshalDbEvent(t *testing.T) {
	events := []DbEvent{
		DbCreate{FQID: "a/1", Fields: Object{"f": String("x")}},
		DbDeleteFields{FQID: "a/1", Fields: []string{"f"}},
		DbRestore{FQID: "a/1", Fields: []string{"f", "g"}},
	}

	for _, e := range events {
		t.Run(string(e.Type()), func(t *testing.T) {
			data, err := MarshalDbEvent(e)
			require.NoError(t, err)

			got, err := UnmarshalDbEvent(data)
			require.NoError(t, err)
			assert.Equal(t, e, got)
		})
	}
}

func TestUnmarshalDbEventUnknownType(t *testing.T) {
	_, err := UnmarshalDbEvent([]byte(`{"type":"explode","fqid":"a/1"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}
