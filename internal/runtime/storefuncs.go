package runtime

import (
	"context"
	"fmt"

	"github.com/risor-io/risor/object"

	"github.com/jward/genstore"
	"github.com/jward/genstore/internal/model"
)

// Store query host functions. Each takes primitive Risor arguments and
// returns maps, lists or strings; none of them writes to the store.

// get(kind, handle) → map or nil
func makeGetFn(db *genstore.DB) *object.Builtin {
	return object.NewBuiltin("get", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("get", 2, len(args))
		}
		k, err := toKind(args[0])
		if err != nil {
			return object.Errorf("get: %v", err)
		}
		h, err := toString(args[1])
		if err != nil {
			return object.Errorf("get: %v", err)
		}
		obj, getErr := db.Get(k, model.Handle(h))
		return objectResult("get", obj, getErr)
	})
}

// get_by_id(kind, gramps_id) → map or nil
func makeGetByIDFn(db *genstore.DB) *object.Builtin {
	return object.NewBuiltin("get_by_id", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("get_by_id", 2, len(args))
		}
		k, err := toKind(args[0])
		if err != nil {
			return object.Errorf("get_by_id: %v", err)
		}
		id, err := toString(args[1])
		if err != nil {
			return object.Errorf("get_by_id: %v", err)
		}
		obj, getErr := db.GetByGrampsID(k, id)
		return objectResult("get_by_id", obj, getErr)
	})
}

func objectResult(name string, obj model.Object, err error) object.Object {
	if err != nil {
		return object.Errorf("%s: %v", name, err)
	}
	if obj == nil {
		return object.Nil
	}
	m, err := objectToRisor(obj)
	if err != nil {
		return object.Errorf("%s: %v", name, err)
	}
	return m
}

// handles(kind[, sorted]) → list of handles
func makeHandlesFn(db *genstore.DB) *object.Builtin {
	return object.NewBuiltin("handles", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 2 {
			return object.Errorf("handles: expected 1 or 2 arguments (kind, sorted), got %d", len(args))
		}
		k, err := toKind(args[0])
		if err != nil {
			return object.Errorf("handles: %v", err)
		}
		sorted := false
		if len(args) == 2 {
			b, ok := args[1].(*object.Bool)
			if !ok {
				return object.Errorf("handles: sorted must be bool, got %s", args[1].Type())
			}
			sorted = b.Value()
		}
		hs, queryErr := db.Handles(k, sorted)
		if queryErr != nil {
			return object.Errorf("handles: %v", queryErr)
		}
		return handlesToList(hs)
	})
}

// backlinks(handle[, kind...]) → list of {"kind", "handle"} maps
func makeBacklinksFn(db *genstore.DB) *object.Builtin {
	return object.NewBuiltin("backlinks", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 {
			return object.Errorf("backlinks: expected at least 1 argument (handle), got 0")
		}
		h, err := toString(args[0])
		if err != nil {
			return object.Errorf("backlinks: %v", err)
		}
		var include []model.Kind
		for _, arg := range args[1:] {
			k, err := toKind(arg)
			if err != nil {
				return object.Errorf("backlinks: %v", err)
			}
			include = append(include, k)
		}

		results := []object.Object{}
		for link, err := range db.FindBacklinkHandles(model.Handle(h), include...) {
			if err != nil {
				return object.Errorf("backlinks: %v", err)
			}
			results = append(results, object.NewMap(map[string]object.Object{
				"kind":   object.NewString(link.Kind.Table()),
				"handle": object.NewString(string(link.Handle)),
			}))
		}
		return object.NewList(results)
	})
}

// surnames() → list of distinct surnames in collation order
func makeSurnamesFn(db *genstore.DB) *object.Builtin {
	return object.NewBuiltin("surnames", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("surnames", 0, len(args))
		}
		return stringsToList(db.SurnameList())
	})
}

// count(kind) → int
func makeCountFn(db *genstore.DB) *object.Builtin {
	return object.NewBuiltin("count", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("count", 1, len(args))
		}
		k, err := toKind(args[0])
		if err != nil {
			return object.Errorf("count: %v", err)
		}
		n, countErr := db.Count(k)
		if countErr != nil {
			return object.Errorf("count: %v", countErr)
		}
		return object.NewInt(int64(n))
	})
}

// --- Argument helpers ---

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}

func toKind(obj object.Object) (model.Kind, error) {
	s, err := toString(obj)
	if err != nil {
		return 0, err
	}
	return model.ParseKind(s)
}
