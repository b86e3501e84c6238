package writer

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

func translatorModels() map[ir.FQID]ir.Object {
	return map[ir.FQID]ir.Object{
		"a/1": {
			"f":             ir.Int(1),
			"l":             ir.Array{ir.Int(1)},
			ir.MetaDeleted:  ir.Bool(false),
			ir.MetaPosition: ir.Int(1),
		},
		"b/1": {
			"x":             ir.Int(1),
			ir.MetaDeleted:  ir.Bool(true),
			ir.MetaPosition: ir.Int(2),
		},
	}
}

func assertGoldenEvents(t *testing.T, name string, events []ir.DbEvent) {
	t.Helper()

	arr := make(ir.Array, len(events))
	for i, e := range events {
		arr[i] = ir.ToObject(e)
	}
	data, err := ir.MarshalCanonical(arr)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

func TestTranslate_Golden(t *testing.T) {
	tests := []struct {
		name  string
		event ir.RequestEvent
	}{
		{
			name: "translate_update_mixed",
			event: ir.UpdateRequest{
				FQID:   "a/1",
				Fields: ir.Object{"g": ir.String("x"), "f": ir.Null{}},
				ListFields: ir.ListFields{
					Add:    map[string]ir.Array{"l": {ir.Int(2)}},
					Remove: map[string]ir.Array{"m": {ir.Int(1)}},
				},
			},
		},
		{
			name: "translate_list_only",
			event: ir.UpdateRequest{
				FQID:       "a/1",
				ListFields: ir.ListFields{Add: map[string]ir.Array{"l": {ir.Int(3)}}},
			},
		},
		{
			name: "translate_update_null_only",
			event: ir.UpdateRequest{
				FQID:   "a/1",
				Fields: ir.Object{"l": ir.Null{}, "f": ir.Null{}},
			},
		},
		{
			name:  "translate_create_keeps_null",
			event: ir.CreateRequest{FQID: "a/2", Fields: ir.Object{"x": ir.Int(1), "y": ir.Null{}}},
		},
		{
			name:  "translate_delete",
			event: ir.DeleteRequest{FQID: "a/1"},
		},
		{
			name:  "translate_restore",
			event: ir.RestoreRequest{FQID: "b/1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := Translate(tt.event, translatorModels())
			require.NoError(t, err)
			assertGoldenEvents(t, tt.name, events)
		})
	}
}

func TestTranslate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		event   ir.RequestEvent
		wantErr any
	}{
		{"create existing", ir.CreateRequest{FQID: "a/1", Fields: ir.Object{}}, &ir.ModelExistsError{}},
		{"create deleted", ir.CreateRequest{FQID: "b/1", Fields: ir.Object{}}, &ir.ModelExistsError{}},
		{"update absent", ir.UpdateRequest{FQID: "a/9", Fields: ir.Object{"f": ir.Int(1)}}, &ir.ModelDoesNotExistError{}},
		{"update deleted", ir.UpdateRequest{FQID: "b/1", Fields: ir.Object{"f": ir.Int(1)}}, &ir.ModelDoesNotExistError{}},
		{"delete absent", ir.DeleteRequest{FQID: "a/9"}, &ir.ModelDoesNotExistError{}},
		{"delete deleted", ir.DeleteRequest{FQID: "b/1"}, &ir.ModelDoesNotExistError{}},
		{"restore absent", ir.RestoreRequest{FQID: "a/9"}, &ir.ModelNotDeletedError{}},
		{"restore live", ir.RestoreRequest{FQID: "a/1"}, &ir.ModelNotDeletedError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Translate(tt.event, translatorModels())
			require.Error(t, err)
			assert.IsType(t, tt.wantErr, err)
			assert.True(t, IsInvalidRequest(err))
		})
	}
}

func TestTranslate_UpdateCarriesModelSnapshot(t *testing.T) {
	models := translatorModels()
	events, err := Translate(ir.UpdateRequest{
		FQID:       "a/1",
		ListFields: ir.ListFields{Remove: map[string]ir.Array{"l": {ir.Int(1)}}},
	}, models)
	require.NoError(t, err)
	require.Len(t, events, 1)

	lu, ok := events[0].(ir.DbListUpdate)
	require.True(t, ok)
	assert.Equal(t, models["a/1"], lu.Model)

	lists, err := lu.ListResult()
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"l": ir.Array{}}, lists)
}

func TestTranslate_DoesNotModifyModels(t *testing.T) {
	models := translatorModels()
	_, err := Translate(ir.UpdateRequest{FQID: "a/1", Fields: ir.Object{"f": ir.Int(5)}}, models)
	require.NoError(t, err)
	assert.Equal(t, translatorModels(), models)
}

func TestTranslate_UnknownEventPanics(t *testing.T) {
	var recovered any
	func() {
		defer func() { recovered = recover() }()
		_, _ = Translate(nil, nil)
	}()

	require.IsType(t, &ir.BadCodingError{}, recovered)
	assert.Equal(t, "unknown request event <nil>", recovered.(*ir.BadCodingError).Message)
}

func TestTranslate_Deterministic(t *testing.T) {
	event := ir.UpdateRequest{
		FQID:   "a/1",
		Fields: ir.Object{"g": ir.String("x"), "h": ir.Int(2), "f": ir.Null{}, "l": ir.Null{}},
		ListFields: ir.ListFields{
			Add: map[string]ir.Array{"m": {ir.Int(1)}, "n": {ir.Int(2)}},
		},
	}

	first, err := Translate(event, translatorModels())
	require.NoError(t, err)
	for range 10 {
		again, err := Translate(event, translatorModels())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
