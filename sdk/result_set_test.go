package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingGetter serves resources from a map and records every path.
type recordingGetter struct {
	mu        sync.Mutex
	resources map[string]interface{}
	paths     []string
}

func newRecordingGetter(resources map[string]interface{}) *recordingGetter {
	return &recordingGetter{resources: resources}
}

func (g *recordingGetter) Get(_ context.Context, path string, _ url.Values) (interface{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paths = append(g.paths, path)
	if r, ok := g.resources[path]; ok {
		return r, nil
	}
	return nil, &ServiceError{StatusCode: 404, Message: "not found: " + path}
}

func (g *recordingGetter) calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.paths...)
}

func testResources() map[string]interface{} {
	return map[string]interface{}{
		"logs/a": map[string]interface{}{"n": "A"},
		"logs/b": map[string]interface{}{"n": "B"},
		"logs/c": map[string]interface{}{"n": "C"},
	}
}

func TestResultSetLenWithoutRequests(t *testing.T) {
	getter := newRecordingGetter(testResources())
	rs := NewRawResultSet(getter, "logs/", []string{"a", "b", "c"})

	assert.Equal(t, 3, rs.Len())
	assert.Equal(t, []string{"a", "b", "c"}, rs.IDs())
	assert.Equal(t, "logs", rs.Path())
	assert.Empty(t, getter.calls())
}

func TestResultSetAccess(t *testing.T) {
	ctx := context.Background()
	getter := newRecordingGetter(testResources())
	rs := NewRawResultSet(getter, "logs", []string{"a", "b", "c"})

	v, err := rs.At(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"n": "B"}, v)

	v, err = rs.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"n": "C"}, v)

	// repeated access fetches again
	_, err = rs.At(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"logs/b", "logs/c", "logs/b"}, getter.calls())

	_, err = rs.At(ctx, 3)
	assert.Error(t, err)
	_, err = rs.At(ctx, -1)
	assert.Error(t, err)
	assert.Len(t, getter.calls(), 3)
}

func TestResultSetIterationIsRestartable(t *testing.T) {
	ctx := context.Background()
	getter := newRecordingGetter(testResources())
	rs := NewResultSet(getter, "logs", []string{"a", "b", "c"}, func(id string, raw interface{}) (string, error) {
		return id + "=" + raw.(map[string]interface{})["n"].(string), nil
	})

	var values []string
	require.NoError(t, rs.Each(ctx, func(v string) error {
		values = append(values, v)
		return nil
	}))
	assert.Equal(t, []string{"a=A", "b=B", "c=C"}, values)

	var ids []string
	require.NoError(t, rs.EachWithID(ctx, func(id string, v string) error {
		ids = append(ids, id)
		return nil
	}))
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	collected, err := rs.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, values, collected)

	// three traversals, three fetches each
	assert.Len(t, getter.calls(), 9)
}

func TestResultSetStopsOnFirstError(t *testing.T) {
	ctx := context.Background()

	t.Run("fetch error", func(t *testing.T) {
		getter := newRecordingGetter(testResources())
		rs := NewRawResultSet(getter, "logs", []string{"a", "missing", "c"})

		count := 0
		err := rs.Each(ctx, func(interface{}) error {
			count++
			return nil
		})
		assert.True(t, IsNotFound(err))
		assert.Equal(t, 1, count)
		assert.Equal(t, []string{"logs/a", "logs/missing"}, getter.calls())
	})

	t.Run("callback error", func(t *testing.T) {
		getter := newRecordingGetter(testResources())
		rs := NewRawResultSet(getter, "logs", []string{"a", "b", "c"})
		stop := errors.New("stop")

		err := rs.Each(ctx, func(interface{}) error { return stop })
		assert.ErrorIs(t, err, stop)
		assert.Len(t, getter.calls(), 1)
	})

	t.Run("transform error", func(t *testing.T) {
		getter := newRecordingGetter(testResources())
		rs := NewResultSet(getter, "logs", []string{"a"}, func(id string, raw interface{}) (int, error) {
			return 0, fmt.Errorf("cannot convert %s", id)
		})

		_, err := rs.Collect(ctx)
		assert.ErrorContains(t, err, "cannot convert a")
	})

	t.Run("cancelled context", func(t *testing.T) {
		getter := newRecordingGetter(testResources())
		rs := NewRawResultSet(getter, "logs", []string{"a", "b"})
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err := rs.Each(cancelled, func(interface{}) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, getter.calls())
	})
}

func TestResultSetCopiesIDs(t *testing.T) {
	ids := []string{"a", "b"}
	rs := NewRawResultSet(newRecordingGetter(nil), "logs", ids)
	ids[0] = "changed"
	assert.Equal(t, []string{"a", "b"}, rs.IDs())

	out := rs.IDs()
	out[1] = "changed"
	assert.Equal(t, []string{"a", "b"}, rs.IDs())
	assert.Equal(t, "[ResultSet path:logs, length:2]", rs.String())
}
