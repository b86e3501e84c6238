package writer

import (
	"fmt"
	"slices"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

// Translate turns one request event into the db events that implement it,
// given the current models. It is pure: models is not modified.
//
//   - Create: [Create] with the supplied fields, nulls included;
//     *ir.ModelExistsError if the fqid is present, deleted or not.
//   - Update: up to three events in this order: [Update] for non-null
//     fields, [DeleteFields] for null fields, [ListUpdate] for list deltas;
//     *ir.ModelDoesNotExistError if the model is absent or deleted.
//   - Delete: [Delete] with every current field name;
//     *ir.ModelDoesNotExistError if absent or deleted.
//   - Restore: [Restore] with every current field name;
//     *ir.ModelNotDeletedError if absent or not deleted.
func Translate(e ir.RequestEvent, models map[ir.FQID]ir.Object) ([]ir.DbEvent, error) {
	switch ev := e.(type) {
	case ir.CreateRequest:
		if _, ok := models[ev.FQID]; ok {
			return nil, &ir.ModelExistsError{FQID: ev.FQID}
		}
		return []ir.DbEvent{ir.DbCreate{FQID: ev.FQID, Fields: ev.Fields.Clone()}}, nil

	case ir.UpdateRequest:
		model, err := existing(models, ev.FQID)
		if err != nil {
			return nil, err
		}
		return translateUpdate(ev, model), nil

	case ir.DeleteRequest:
		model, err := existing(models, ev.FQID)
		if err != nil {
			return nil, err
		}
		return []ir.DbEvent{ir.DbDelete{FQID: ev.FQID, Fields: ir.FieldNames(model)}}, nil

	case ir.RestoreRequest:
		model, ok := models[ev.FQID]
		if !ok || !ir.IsDeleted(model) {
			return nil, &ir.ModelNotDeletedError{FQID: ev.FQID}
		}
		return []ir.DbEvent{ir.DbRestore{FQID: ev.FQID, Fields: ir.FieldNames(model)}}, nil

	default:
		panic(&ir.BadCodingError{Message: fmt.Sprintf("unknown request event %T", e)})
	}
}

// existing returns the model at fqid if it is present and not deleted.
func existing(models map[ir.FQID]ir.Object, fqid ir.FQID) (ir.Object, error) {
	model, ok := models[fqid]
	if !ok || ir.IsDeleted(model) {
		return nil, &ir.ModelDoesNotExistError{FQID: fqid}
	}
	return model, nil
}

func translateUpdate(ev ir.UpdateRequest, model ir.Object) []ir.DbEvent {
	var events []ir.DbEvent

	set := make(ir.Object)
	var deleted []string
	for k, v := range ev.Fields {
		if ir.IsNull(v) {
			deleted = append(deleted, k)
		} else {
			set[k] = v
		}
	}
	if len(set) > 0 {
		events = append(events, ir.DbUpdate{FQID: ev.FQID, Fields: set})
	}
	if len(deleted) > 0 {
		slices.Sort(deleted)
		events = append(events, ir.DbDeleteFields{FQID: ev.FQID, Fields: deleted})
	}
	if !ev.ListFields.IsEmpty() {
		events = append(events, ir.DbListUpdate{
			FQID:   ev.FQID,
			Add:    ev.ListFields.Add,
			Remove: ev.ListFields.Remove,
			Model:  model,
		})
	}
	return events
}
