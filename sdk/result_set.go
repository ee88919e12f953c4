package sdk

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Getter fetches a single resource. *RestService implements it.
type Getter interface {
	Get(ctx context.Context, path string, query url.Values) (interface{}, error)
}

// CreateFunc converts the raw resource downloaded for id into a T.
type CreateFunc[T any] func(id string, raw interface{}) (T, error)

// ResultSet holds the paths of a number of REST resources and downloads
// them lazily, one GET per access. Nothing is cached: every traversal and
// every access hits the server again.
//
// Example:
//
//	results, err := client.FindEntities(ctx, query)
//	fmt.Printf("Found %d entities\n", results.Len())
//	err = results.Each(ctx, func(r sdk.Record) error {
//	    fmt.Println(r.ID())
//	    return nil
//	})
type ResultSet[T any] struct {
	getter Getter
	path   string
	ids    []string
	create CreateFunc[T]
}

// NewResultSet creates a result set over the resources {path}/{id}.
// create converts each downloaded resource; it must not be nil.
func NewResultSet[T any](getter Getter, path string, ids []string, create CreateFunc[T]) *ResultSet[T] {
	return &ResultSet[T]{
		getter: getter,
		path:   strings.TrimSuffix(path, "/"),
		ids:    append([]string(nil), ids...),
		create: create,
	}
}

// NewRawResultSet creates a result set that yields the decoded resources
// unchanged.
func NewRawResultSet(getter Getter, path string, ids []string) *ResultSet[interface{}] {
	return NewResultSet(getter, path, ids, func(_ string, raw interface{}) (interface{}, error) {
		return raw, nil
	})
}

// Len returns the number of resources without contacting the server.
func (rs *ResultSet[T]) Len() int {
	return len(rs.ids)
}

// IDs returns a copy of the resource ids in order.
func (rs *ResultSet[T]) IDs() []string {
	return append([]string(nil), rs.ids...)
}

// Path returns the base path of the resources.
func (rs *ResultSet[T]) Path() string {
	return rs.path
}

// At downloads the i-th resource.
func (rs *ResultSet[T]) At(ctx context.Context, i int) (T, error) {
	if i < 0 || i >= len(rs.ids) {
		var zero T
		return zero, fmt.Errorf("index %d out of range [0, %d)", i, len(rs.ids))
	}
	return rs.Get(ctx, rs.ids[i])
}

// Get downloads the resource with the given id, which does not have to be
// part of the set.
func (rs *ResultSet[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	raw, err := rs.getter.Get(ctx, rs.path+"/"+id, nil)
	if err != nil {
		return zero, err
	}
	v, err := rs.create(id, raw)
	if err != nil {
		return zero, fmt.Errorf("failed to create resource %s: %w", id, err)
	}
	return v, nil
}

// Each downloads the resources in order and passes them to fn. The first
// error from a download or from fn stops the iteration and is returned.
func (rs *ResultSet[T]) Each(ctx context.Context, fn func(v T) error) error {
	return rs.EachWithID(ctx, func(_ string, v T) error {
		return fn(v)
	})
}

// EachWithID is like Each but also passes the id of every resource.
func (rs *ResultSet[T]) EachWithID(ctx context.Context, fn func(id string, v T) error) error {
	for _, id := range rs.ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := rs.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(id, v); err != nil {
			return err
		}
	}
	return nil
}

// Collect downloads all resources into a slice.
func (rs *ResultSet[T]) Collect(ctx context.Context) ([]T, error) {
	out := make([]T, 0, len(rs.ids))
	err := rs.Each(ctx, func(v T) error {
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// String returns a short description of the set.
func (rs *ResultSet[T]) String() string {
	return fmt.Sprintf("[ResultSet path:%s, length:%d]", rs.path, len(rs.ids))
}
