package sdk

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/birbparty/flox-go/internal/wire"
)

// Reserved entity properties.
const (
	KeyCreatedAt    = "createdAt"
	KeyUpdatedAt    = "updatedAt"
	KeyPublicAccess = "publicAccess"
	KeyOwnerID      = "ownerId"
	KeyAuthType     = "authType"
)

// Record is an object that can be stored on the Flox server. It is either
// an *Entity or a *Player.
type Record interface {
	Type() string
	ID() string
	Path() string
	Get(key string) interface{}
	Set(key string, value interface{})
	Delete(key string)
	Keys() []string
	Data() map[string]interface{}
	CreatedAt() time.Time
	UpdatedAt() time.Time
	PublicAccess() string
	SetPublicAccess(access string)
	OwnerID() string
	SetOwnerID(id string)

	entity() *Entity
}

// Entity is an open set of properties stored under a type and an id. The
// standard properties (timestamps, access rights, owner) live in the same
// map as the game's own properties and are exposed through accessors.
//
// An Entity is not safe for concurrent modification.
//
// Example:
//
//	entity := sdk.NewEntity("SaveGame", "", map[string]interface{}{"level": 3})
//	entity.Set("name", "Donald Duck")
//	entity.SetPublicAccess("rw")
//	err := client.SaveEntity(ctx, entity)
type Entity struct {
	entityType string
	id         string
	data       map[string]interface{}
}

// NewEntity creates an entity. An empty id is replaced by a random one. The
// timestamps start at the current time and public access is empty; the
// supplied data is merged over these defaults.
func NewEntity(entityType, id string, data map[string]interface{}) *Entity {
	if id == "" {
		id = randomUID()
	}
	now := wire.FormatTime(time.Now())
	e := &Entity{
		entityType: entityType,
		id:         id,
		data: map[string]interface{}{
			KeyCreatedAt:    now,
			KeyUpdatedAt:    now,
			KeyPublicAccess: "",
		},
	}
	for k, v := range data {
		e.data[k] = v
	}
	return e
}

// Type returns the entity type. Types group entities on the server.
func (e *Entity) Type() string { return e.entityType }

// ID returns the primary identifier of the entity.
func (e *Entity) ID() string { return e.id }

// Path returns the REST path of the entity relative to the game's root.
func (e *Entity) Path() string {
	return "entities/" + e.entityType + "/" + e.id
}

// Get returns a property, or nil if it is not set.
// Numbers loaded from the server are json.Number values.
func (e *Entity) Get(key string) interface{} { return e.data[key] }

// Set sets a property.
func (e *Entity) Set(key string, value interface{}) { e.data[key] = value }

// Delete removes a property.
func (e *Entity) Delete(key string) { delete(e.data, key) }

// Keys returns the property names in sorted order.
func (e *Entity) Keys() []string {
	keys := make([]string, 0, len(e.data))
	for k := range e.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Data returns a shallow copy of all properties.
func (e *Entity) Data() map[string]interface{} {
	out := make(map[string]interface{}, len(e.data))
	for k, v := range e.data {
		out[k] = v
	}
	return out
}

// CreatedAt returns the time the entity was created.
func (e *Entity) CreatedAt() time.Time { return timeField(e.data, KeyCreatedAt) }

// UpdatedAt returns the time the entity was last changed on the server.
func (e *Entity) UpdatedAt() time.Time { return timeField(e.data, KeyUpdatedAt) }

// PublicAccess returns the access rights of all players except the owner:
// "", "r" or "rw".
func (e *Entity) PublicAccess() string { return e.stringProp(KeyPublicAccess) }

// SetPublicAccess sets the access rights of all players except the owner.
func (e *Entity) SetPublicAccess(access string) { e.data[KeyPublicAccess] = access }

// OwnerID returns the id of the player that owns the entity.
func (e *Entity) OwnerID() string { return e.stringProp(KeyOwnerID) }

// SetOwnerID sets the id of the owning player.
func (e *Entity) SetOwnerID(id string) { e.data[KeyOwnerID] = id }

// MarshalJSON encodes the properties of the entity.
func (e *Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.data)
}

// String describes the entity and its properties.
func (e *Entity) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Entity %s (%s)\n", e.id, e.entityType)
	for _, k := range e.Keys() {
		fmt.Fprintf(&b, "    %s: %v\n", k, e.data[k])
	}
	b.WriteString("]")
	return b.String()
}

func (e *Entity) entity() *Entity { return e }

func (e *Entity) stringProp(key string) string {
	if v, ok := e.data[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}

// Player is the entity of a Flox player. Its type is always PlayerType.
//
// The current player is available via Client.CurrentPlayer. To access the
// data of all players, log in with the key of a "Hero" created in the Flox
// web interface.
type Player struct {
	*Entity
}

// NewPlayer creates a player entity. Unless the data says otherwise the
// player is a guest, its entity is publicly readable and it owns itself.
func NewPlayer(id string, data map[string]interface{}) *Player {
	merged := map[string]interface{}{
		KeyAuthType:     string(AuthGuest),
		KeyPublicAccess: "r",
	}
	for k, v := range data {
		merged[k] = v
	}
	p := &Player{Entity: NewEntity(PlayerType, id, merged)}
	if p.OwnerID() == "" {
		p.SetOwnerID(p.ID())
	}
	return p
}

// AuthType returns the way the player authenticated.
func (p *Player) AuthType() AuthType {
	return AuthType(p.stringProp(KeyAuthType))
}

// String describes the player and its properties.
func (p *Player) String() string {
	return strings.Replace(p.Entity.String(), "[Entity", "[Player", 1)
}

// recordConstructors maps entity types to their Record variant. Types not
// listed here become plain entities.
var recordConstructors = map[string]func(id string, data map[string]interface{}) Record{
	PlayerType: func(id string, data map[string]interface{}) Record {
		return NewPlayer(id, data)
	},
}

// NewRecord creates the Record variant matching entityType: a *Player for
// the player type and an *Entity for everything else.
func NewRecord(entityType, id string, data map[string]interface{}) Record {
	entityType = normalizeType(entityType)
	if ctor, ok := recordConstructors[entityType]; ok {
		return ctor(id, data)
	}
	return NewEntity(entityType, id, data)
}
