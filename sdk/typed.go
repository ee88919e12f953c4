package sdk

import (
	"context"
	"fmt"
)

// TypedStore provides type-safe access to the entities of one type. Values
// of T are stored as the entity's properties: they go through their JSON
// encoding, so T should marshal to a JSON object.
//
// The standard entity properties (createdAt, updatedAt, publicAccess,
// ownerId) are kept on save; give T fields with these JSON names to read
// them.
//
// Example:
//
//	type SaveGame struct {
//	    Level int    `json:"level"`
//	    Name  string `json:"name"`
//	}
//
//	saves := sdk.NewTypedStore[SaveGame](client, "SaveGame")
//	err := saves.Save(ctx, "slot-1", SaveGame{Level: 3, Name: "Donald"})
//	game, err := saves.Load(ctx, "slot-1")
type TypedStore[T any] struct {
	client     *Client
	entityType string
}

// NewTypedStore creates a typed store for entities of entityType.
func NewTypedStore[T any](client *Client, entityType string) *TypedStore[T] {
	return &TypedStore[T]{client: client, entityType: normalizeType(entityType)}
}

// Type returns the entity type of the store.
func (s *TypedStore[T]) Type() string { return s.entityType }

// Load loads the entity with the given id and decodes it into a T.
func (s *TypedStore[T]) Load(ctx context.Context, id string) (T, error) {
	var result T
	record, err := s.client.LoadEntity(ctx, s.entityType, id)
	if err != nil {
		return result, err
	}
	if err := fromMap(record.Data(), &result); err != nil {
		return result, fmt.Errorf("entity %s: %w", record.Path(), err)
	}
	return result, nil
}

// Save stores value as the entity with the given id.
func (s *TypedStore[T]) Save(ctx context.Context, id string, value T) error {
	data, err := toMap(value)
	if err != nil {
		return err
	}
	return s.client.SaveEntity(ctx, NewRecord(s.entityType, id, data))
}

// Delete removes the entity with the given id.
func (s *TypedStore[T]) Delete(ctx context.Context, id string) error {
	return s.client.DeleteEntityByID(ctx, s.entityType, id)
}

// Find runs query against the store's entity type and decodes every result.
// The query's type is ignored.
func (s *TypedStore[T]) Find(ctx context.Context, query *Query) ([]T, error) {
	q := *query
	q.Type = s.entityType
	results, err := s.client.FindEntities(ctx, &q)
	if err != nil {
		return nil, err
	}

	values := make([]T, 0, results.Len())
	err = results.Each(ctx, func(record Record) error {
		var v T
		if err := fromMap(record.Data(), &v); err != nil {
			return fmt.Errorf("entity %s: %w", record.Path(), err)
		}
		values = append(values, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}
