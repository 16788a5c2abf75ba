// Package codec converts primary objects, reference-map entries and metadata
// values to and from the opaque blobs stored in the key/value tables.
package codec

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/jward/genstore/internal/model"
)

// Encode serializes a primary object.
func Encode(obj model.Object) ([]byte, error) {
	data, err := bson.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("codec: encoding %s %s: %w", obj.Kind(), obj.GetHandle(), err)
	}
	return data, nil
}

// Decode deserializes a blob produced by Encode for an object of kind k.
func Decode(k model.Kind, data []byte) (model.Object, error) {
	obj, err := model.New(k)
	if err != nil {
		return nil, err
	}
	if err := bson.Unmarshal(data, obj); err != nil {
		return nil, fmt.Errorf("codec: decoding %s: %w", k, err)
	}
	return obj, nil
}

// DecodeInto deserializes data into a caller-supplied object.
func DecodeInto(data []byte, obj model.Object) error {
	if err := bson.Unmarshal(data, obj); err != nil {
		return fmt.Errorf("codec: decoding %s: %w", obj.Kind(), err)
	}
	return nil
}

// RefEntry is the value of a reference-map row: the referencing object and
// the object it points to.
type RefEntry struct {
	Primary    model.Ref `bson:"primary"`
	Referenced model.Ref `bson:"referenced"`
}

// EncodeRef serializes a reference-map entry.
func EncodeRef(e RefEntry) ([]byte, error) {
	data, err := bson.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("codec: encoding reference %s -> %s: %w", e.Primary, e.Referenced, err)
	}
	return data, nil
}

// DecodeRef deserializes a reference-map entry.
func DecodeRef(data []byte) (RefEntry, error) {
	var e RefEntry
	if err := bson.Unmarshal(data, &e); err != nil {
		return RefEntry{}, fmt.Errorf("codec: decoding reference: %w", err)
	}
	return e, nil
}

type metaValue[T any] struct {
	V T `bson:"v"`
}

// EncodeMeta serializes an arbitrary metadata value. BSON documents must be
// maps at the top level, so the value is wrapped.
func EncodeMeta[T any](v T) ([]byte, error) {
	data, err := bson.Marshal(metaValue[T]{V: v})
	if err != nil {
		return nil, fmt.Errorf("codec: encoding metadata: %w", err)
	}
	return data, nil
}

// DecodeMeta deserializes a value written by EncodeMeta.
func DecodeMeta[T any](data []byte) (T, error) {
	var mv metaValue[T]
	if err := bson.Unmarshal(data, &mv); err != nil {
		var zero T
		return zero, fmt.Errorf("codec: decoding metadata: %w", err)
	}
	return mv.V, nil
}
