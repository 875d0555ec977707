package parpipe

import (
	"golang.org/x/xerrors"
)

// MapFunc transforms a single item into a new item.
type MapFunc func(item interface{}) (interface{}, error)

// NewMapStage wraps a per-item function into a transformer stage that
// applies fn to each input item and emits the result. When filterErrors is
// true, items for which fn fails are silently dropped instead of failing the
// stage. NewMapStage panics if fn is nil.
func NewMapStage(name string, fn MapFunc, filterErrors bool) *Stage {
	if fn == nil {
		panic("NewMapStage: fn must not be nil")
	}
	return NewStage(name, func(in Iterator, emit EmitFunc) error {
		if in == nil {
			return xerrors.New("a map stage cannot be the first stage of a pipeline")
		}
		for in.Next() {
			out, err := fn(in.Item())
			if err != nil {
				if filterErrors {
					continue
				}
				return err
			}
			emit(out)
		}
		return nil
	})
}
