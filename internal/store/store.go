// Package store adapts the key-value backends to typed entity collections.
// Every record is checked against its validator tags before it is written
// and again after it is read back; a stored record that no longer satisfies
// its schema is reported as an internal error and left untouched.
package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/victoralfred/kube_provisioner/pkg/errors"
	"github.com/victoralfred/kube_provisioner/pkg/kvstore"
)

var (
	ErrNotFound      = stderrors.New("record not found")
	ErrAlreadyExists = stderrors.New("record already exists")
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared schema validator. Field names in errors use
// the json tag.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Describe renders validator errors as "field: rule" pairs
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// Collection is a typed view over one key-value collection
type Collection[T any] struct {
	kv   kvstore.Store
	name string
	idOf func(*T) string
}

// NewCollection creates a collection whose records are keyed by idOf
func NewCollection[T any](kv kvstore.Store, name string, idOf func(*T) string) *Collection[T] {
	return &Collection[T]{
		kv:   kv,
		name: name,
		idOf: idOf,
	}
}

// Name returns the collection name
func (c *Collection[T]) Name() string {
	return c.name
}

// Get returns the record stored under id or ErrNotFound
func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	data, err := c.kv.Get(ctx, c.name, id)
	if err != nil {
		if stderrors.Is(err, kvstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Internal(fmt.Sprintf("failed to read %s/%s", c.name, id), err)
	}
	return c.decode(id, data)
}

// Put validates and writes record unconditionally
func (c *Collection[T]) Put(ctx context.Context, record *T) error {
	id, data, err := c.encode(record)
	if err != nil {
		return err
	}
	if err := c.kv.Put(ctx, c.name, id, data); err != nil {
		return errors.Internal(fmt.Sprintf("failed to write %s/%s", c.name, id), err)
	}
	return nil
}

// Create writes record only if its id is not taken yet
func (c *Collection[T]) Create(ctx context.Context, record *T) error {
	id, data, err := c.encode(record)
	if err != nil {
		return err
	}
	created, err := c.kv.PutIfAbsent(ctx, c.name, id, data)
	if err != nil {
		return errors.Internal(fmt.Sprintf("failed to create %s/%s", c.name, id), err)
	}
	if !created {
		return ErrAlreadyExists
	}
	return nil
}

// Update loads the record, applies mutate and writes the result. The id
// cannot be changed by mutate.
func (c *Collection[T]) Update(ctx context.Context, id string, mutate func(*T) error) (*T, error) {
	record, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(record); err != nil {
		return nil, err
	}
	if got := c.idOf(record); got != id {
		return nil, errors.Validationf("%s id cannot change from %s to %s", c.name, id, got)
	}
	if err := c.Put(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Scan returns every record for which pred returns true; a nil pred
// matches everything. This reads the whole collection.
func (c *Collection[T]) Scan(ctx context.Context, pred func(*T) bool) ([]*T, error) {
	var result []*T
	err := c.kv.Scan(ctx, c.name, func(key string, value []byte) error {
		record, err := c.decode(key, value)
		if err != nil {
			return err
		}
		if pred == nil || pred(record) {
			result = append(result, record)
		}
		return nil
	})
	if err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			return nil, err
		}
		return nil, errors.Internal(fmt.Sprintf("failed to scan %s", c.name), err)
	}
	return result, nil
}

// Delete removes the record stored under id
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	if err := c.kv.Delete(ctx, c.name, id); err != nil {
		return errors.Internal(fmt.Sprintf("failed to delete %s/%s", c.name, id), err)
	}
	return nil
}

// encode validates record, serializes it and validates the decoded bytes
// so that what reaches the store is exactly what a later read accepts.
func (c *Collection[T]) encode(record *T) (string, []byte, error) {
	if record == nil {
		return "", nil, errors.Validationf("%s record is nil", c.name)
	}
	if err := Validator().Struct(record); err != nil {
		return "", nil, errors.Validationf("invalid %s record: %s", c.name, Describe(err))
	}

	id := c.idOf(record)
	data, err := msgpack.Marshal(record)
	if err != nil {
		return "", nil, errors.Internal(fmt.Sprintf("failed to encode %s/%s", c.name, id), err)
	}

	var check T
	if err := msgpack.Unmarshal(data, &check); err != nil {
		return "", nil, errors.Internal(fmt.Sprintf("encoded %s/%s does not decode", c.name, id), err)
	}
	if err := Validator().Struct(&check); err != nil {
		return "", nil, errors.Internal(fmt.Sprintf("encoded %s/%s fails schema: %s", c.name, id, Describe(err)), err)
	}
	return id, data, nil
}

func (c *Collection[T]) decode(key string, data []byte) (*T, error) {
	var record T
	if err := msgpack.Unmarshal(data, &record); err != nil {
		return nil, errors.Internal(fmt.Sprintf("corrupt record %s/%s", c.name, key), err)
	}
	if err := Validator().Struct(&record); err != nil {
		return nil, errors.Internal(fmt.Sprintf("record %s/%s fails schema: %s", c.name, key, Describe(err)), err)
	}
	if id := c.idOf(&record); id != key {
		return nil, errors.Internal(fmt.Sprintf("record %s/%s carries id %q", c.name, key, id), nil)
	}
	return &record, nil
}
