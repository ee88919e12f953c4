package sdk

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/flox-go/sdk/floxtest"
)

type saveGame struct {
	Level     int    `json:"level"`
	Name      string `json:"name"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func TestTypedStore(t *testing.T) {
	client, ms := newTestClient(t)
	store := NewTypedStore[saveGame](client, "SaveGame")
	ctx := context.Background()

	t.Run("save", func(t *testing.T) {
		ms.Respond("PUT entities/SaveGame/", http.StatusOK, map[string]interface{}{"updatedAt": "2014-02-20T20:15:00.000Z"})

		require.NoError(t, store.Save(ctx, "slot-1", saveGame{Level: 3, Name: "Donald"}))

		req := ms.LastRequest()
		assert.Equal(t, "entities/SaveGame/slot-1", req.Path)
		body := req.BodyMap()
		assert.Equal(t, json.Number("3"), body["level"])
		assert.Equal(t, "Donald", body["name"])
		assert.Contains(t, body, "createdAt")
	})

	t.Run("load", func(t *testing.T) {
		ms.Respond("GET entities/SaveGame/", http.StatusOK, map[string]interface{}{
			"level": 4, "name": "Daisy", "updatedAt": "2014-02-20T20:15:00.000Z",
		})

		game, err := store.Load(ctx, "slot-1")
		require.NoError(t, err)
		assert.Equal(t, saveGame{Level: 4, Name: "Daisy", UpdatedAt: "2014-02-20T20:15:00.000Z"}, game)
	})

	t.Run("load type mismatch", func(t *testing.T) {
		ms.Respond("GET entities/SaveGame/", http.StatusOK, map[string]interface{}{"level": "high"})

		_, err := store.Load(ctx, "slot-1")
		assert.Error(t, err)
	})

	t.Run("find", func(t *testing.T) {
		ms.Respond("POST entities/SaveGame", http.StatusOK, []interface{}{
			map[string]interface{}{"id": "a"},
			map[string]interface{}{"id": "b"},
		})
		ms.RegisterHandler("GET entities/SaveGame/", func(r *floxtest.RecordedRequest) (int, interface{}) {
			return http.StatusOK, map[string]interface{}{"level": 1, "name": r.Path}
		})

		query, err := NewQuery("Ignored", "level > ?", 0)
		require.NoError(t, err)

		games, err := store.Find(ctx, query)
		require.NoError(t, err)
		require.Len(t, games, 2)
		assert.Equal(t, "entities/SaveGame/a", games[0].Name)
		assert.Equal(t, "entities/SaveGame/b", games[1].Name)
		// the caller's query is untouched
		assert.Equal(t, "Ignored", query.Type)
	})

	t.Run("delete", func(t *testing.T) {
		ms.Respond("DELETE entities/SaveGame/", http.StatusNoContent, nil)

		require.NoError(t, store.Delete(ctx, "slot-1"))
		assert.Equal(t, http.MethodDelete, ms.LastRequest().Method)
	})

	assert.Equal(t, "SaveGame", store.Type())
}

func TestTypedStoreSaveRejectsNonObjects(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewTypedStore[[]int](client, "Numbers")

	err := store.Save(context.Background(), "x", []int{1, 2})
	assert.Error(t, err)
}
