package runtime

import (
	"fmt"

	"github.com/risor-io/risor/object"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/jward/genstore/internal/codec"
	"github.com/jward/genstore/internal/model"
)

// objectToRisor converts a stored object into a Risor map keyed by its
// encoded field names, plus "kind".
func objectToRisor(obj model.Object) (object.Object, error) {
	data, err := codec.Encode(obj)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", obj.Kind(), err)
	}
	m := make(map[string]object.Object, len(doc)+1)
	for k, v := range doc {
		m[k] = bsonToRisor(v)
	}
	m["kind"] = object.NewString(obj.Kind().Table())
	return object.NewMap(m), nil
}

func bsonToRisor(v any) object.Object {
	switch val := v.(type) {
	case nil:
		return object.Nil
	case string:
		return object.NewString(val)
	case bool:
		return object.NewBool(val)
	case int32:
		return object.NewInt(int64(val))
	case int64:
		return object.NewInt(val)
	case float64:
		return object.NewFloat(val)
	case bson.A:
		items := make([]object.Object, len(val))
		for i, item := range val {
			items[i] = bsonToRisor(item)
		}
		return object.NewList(items)
	case bson.M:
		m := make(map[string]object.Object, len(val))
		for k, item := range val {
			m[k] = bsonToRisor(item)
		}
		return object.NewMap(m)
	case bson.D:
		m := make(map[string]object.Object, len(val))
		for _, e := range val {
			m[e.Key] = bsonToRisor(e.Value)
		}
		return object.NewMap(m)
	default:
		return object.NewString(fmt.Sprintf("%v", val))
	}
}

func handlesToList(hs []model.Handle) object.Object {
	items := make([]object.Object, len(hs))
	for i, h := range hs {
		items[i] = object.NewString(string(h))
	}
	return object.NewList(items)
}

func stringsToList(ss []string) object.Object {
	items := make([]object.Object, len(ss))
	for i, s := range ss {
		items[i] = object.NewString(s)
	}
	return object.NewList(items)
}

// logObject provides log.Debug/Info/Warn/Error methods for Risor scripts,
// writing through the store's logger.
type logObject struct {
	log *zap.SugaredLogger
}

func (l *logObject) Debug(msg string) {
	l.log.Debug(msg)
}

func (l *logObject) Info(msg string) {
	l.log.Info(msg)
}

func (l *logObject) Warn(msg string) {
	l.log.Warn(msg)
}

func (l *logObject) Error(msg string) {
	l.log.Error(msg)
}
