package sdk

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
)

// Client is the main entry point to the Flox service. Create it with the
// game id and key from the Flox web interface. A guest is logged in right
// away; log in with a "Hero" key to access the data of all players.
//
// All methods are safe for concurrent use. Calls are synchronous and never
// retried; bound them with the context.
//
// Example:
//
//	client, err := sdk.NewClient(sdk.DefaultConfig().WithGame(gameID, gameKey))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	ctx := context.Background()
//	if _, err := client.LoginWithKey(ctx, heroKey); err != nil {
//	    log.Fatal(err)
//	}
//
//	entity, err := client.LoadEntity(ctx, "SaveGame", "12345")
//	if sdk.IsNotFound(err) {
//	    entity = sdk.NewEntity("SaveGame", "12345", nil)
//	}
type Client struct {
	service *RestService

	mu            sync.RWMutex
	currentPlayer *Player
}

// NewClient creates a client for the given configuration and logs in a
// guest player.
func NewClient(config *Config) (*Client, error) {
	service, err := NewRestService(config)
	if err != nil {
		return nil, err
	}
	c := &Client{service: service}
	if _, err := c.LoginGuest(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// Service returns the underlying REST service.
func (c *Client) Service() *RestService { return c.service }

// CurrentPlayer returns the player that is currently logged in.
func (c *Client) CurrentPlayer() *Player {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentPlayer
}

// LoginGuest creates a new guest player and logs it in. No request is sent.
func (c *Client) LoginGuest(ctx context.Context) (*Player, error) {
	return c.Login(ctx, AuthGuest, "", "")
}

// LoginWithKey logs in with a key, usually the key of a "Hero" player.
func (c *Client) LoginWithKey(ctx context.Context, key string) (*Player, error) {
	return c.Login(ctx, AuthKey, key, "")
}

// LoginWithToken logs in with an id and token from an external provider.
func (c *Client) LoginWithToken(ctx context.Context, authID, authToken string) (*Player, error) {
	return c.Login(ctx, AuthToken, authID, authToken)
}

// Logout logs in a new guest.
func (c *Client) Logout(ctx context.Context) (*Player, error) {
	return c.LoginGuest(ctx)
}

// Login authenticates with the given credentials and makes the resulting
// player the current one.
func (c *Client) Login(ctx context.Context, authType AuthType, authID, authToken string) (*Player, error) {
	data, err := c.service.Login(ctx, authType, authID, authToken)
	if err != nil {
		return nil, err
	}
	id, _ := stringField(data, "id")
	entityData, _ := data["entity"].(map[string]interface{})
	player := NewPlayer(id, entityData)

	c.mu.Lock()
	c.currentPlayer = player
	c.mu.Unlock()
	return player, nil
}

// LoadEntity loads the entity with the given type and id. Players come back
// as *Player, everything else as *Entity.
func (c *Client) LoadEntity(ctx context.Context, entityType, id string) (Record, error) {
	entityType = normalizeType(entityType)
	body, err := c.service.Get(ctx, entityPath(entityType, id), nil)
	if err != nil {
		return nil, err
	}
	data, err := asMap(body, "entity")
	if err != nil {
		return nil, err
	}
	return NewRecord(entityType, id, data), nil
}

// LoadPlayer loads the player with the given id.
func (c *Client) LoadPlayer(ctx context.Context, id string) (*Player, error) {
	record, err := c.LoadEntity(ctx, PlayerType, id)
	if err != nil {
		return nil, err
	}
	return record.(*Player), nil
}

// SaveEntity stores the entity on the server and copies the timestamps the
// server assigned back into it.
func (c *Client) SaveEntity(ctx context.Context, record Record) error {
	body, err := c.service.Put(ctx, record.Path(), record)
	if err != nil {
		return err
	}
	result, err := asMap(body, "save response")
	if err != nil {
		return err
	}
	for _, key := range []string{KeyUpdatedAt, KeyCreatedAt} {
		if v, ok := result[key]; ok {
			record.Set(key, v)
		}
	}
	return nil
}

// DeleteEntity removes the entity from the server.
func (c *Client) DeleteEntity(ctx context.Context, record Record) error {
	return c.DeleteEntityByID(ctx, record.Type(), record.ID())
}

// DeleteEntityByID removes the entity with the given type and id.
func (c *Client) DeleteEntityByID(ctx context.Context, entityType, id string) error {
	_, err := c.service.Delete(ctx, entityPath(normalizeType(entityType), id))
	return err
}

// PostScore posts a score to a leaderboard. Only the top score of each
// player appears on the leaderboard.
func (c *Client) PostScore(ctx context.Context, leaderboardID string, value int, playerName string) error {
	data := map[string]interface{}{"playerName": playerName, "value": value}
	_, err := c.service.Post(ctx, leaderboardPath(leaderboardID), data)
	return err
}

// LoadScores loads the scores of a leaderboard, sorted by rank.
//
// Example:
//
//	scores, err := client.LoadScores(ctx, "default", sdk.ThisWeek)
//	scores, err = client.LoadScores(ctx, "default", sdk.PlayerScope{"id1", "id2"})
func (c *Client) LoadScores(ctx context.Context, leaderboardID string, scope Scope) ([]Score, error) {
	if scope == nil {
		return nil, fmt.Errorf("a score scope is required")
	}
	body, err := c.service.Get(ctx, leaderboardPath(leaderboardID), scope.query())
	if err != nil {
		return nil, err
	}
	raw, err := asSlice(body, "score list")
	if err != nil {
		return nil, err
	}
	scores := make([]Score, 0, len(raw))
	for _, item := range raw {
		m, err := asMap(item, "score")
		if err != nil {
			return nil, err
		}
		scores = append(scores, newScore(m))
	}
	return scores, nil
}

// LoadResource loads the JSON value at any path, e.g. an entity or a log.
func (c *Client) LoadResource(ctx context.Context, path string, query url.Values) (interface{}, error) {
	return c.service.Get(ctx, path, query)
}

// LoadResources returns a result set over {path}/{id} for every id. Nothing
// is downloaded until the set is accessed.
func (c *Client) LoadResources(path string, ids []string) *ResultSet[interface{}] {
	return NewRawResultSet(c.service, path, ids)
}

// LoadLog loads the log with the given id.
func (c *Client) LoadLog(ctx context.Context, id string) (map[string]interface{}, error) {
	body, err := c.service.Get(ctx, "logs/"+id, nil)
	if err != nil {
		return nil, err
	}
	return asMap(body, "log")
}

// FindLogIDs returns the ids of the logs matching query, following the
// server's cursor until it is exhausted or limit ids were collected. A limit
// of zero or less means no limit.
//
// Sample queries:
//
//	day:2014-02-20                  all logs of a certain day
//	severity:warning                all logs of type warning & error
//	severity:error                  all logs of type error
//	day:2014-02-20 severity:error   all error logs from February 20th
func (c *Client) FindLogIDs(ctx context.Context, query string, limit int) ([]string, error) {
	var ids []string
	cursor := ""
	for {
		args := url.Values{}
		if query != "" {
			args.Set("q", query)
		}
		if limit > 0 {
			args.Set("l", strconv.Itoa(limit-len(ids)))
		}
		if cursor != "" {
			args.Set("c", cursor)
		}

		body, err := c.service.Get(ctx, "logs", args)
		if err != nil {
			return nil, err
		}
		page, err := asMap(body, "log listing")
		if err != nil {
			return nil, err
		}
		if raw, ok := page["ids"]; ok && raw != nil {
			list, err := asSlice(raw, "log ids")
			if err != nil {
				return nil, err
			}
			for _, id := range list {
				ids = append(ids, textOf(id))
			}
		}

		cursor, _ = stringField(page, "cursor")
		if cursor == "" || (limit > 0 && len(ids) >= limit) {
			break
		}
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// FindLogs is like FindLogIDs but returns a result set that downloads the
// logs lazily.
func (c *Client) FindLogs(ctx context.Context, query string, limit int) (*ResultSet[map[string]interface{}], error) {
	ids, err := c.FindLogIDs(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return NewResultSet(c.service, "logs", ids, func(id string, raw interface{}) (map[string]interface{}, error) {
		return asMap(raw, "log "+id)
	}), nil
}

// FindEntityIDs runs the query and returns the ids of the matching entities.
func (c *Client) FindEntityIDs(ctx context.Context, query *Query) ([]string, error) {
	body, err := c.service.Post(ctx, query.path(), query.payload())
	if err != nil {
		return nil, err
	}
	list, err := asSlice(body, "query result")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list))
	for _, item := range list {
		m, err := asMap(item, "query result entry")
		if err != nil {
			return nil, err
		}
		ids = append(ids, textOf(m["id"]))
	}
	return ids, nil
}

// FindEntities runs the query and returns a result set that downloads the
// matching entities lazily.
func (c *Client) FindEntities(ctx context.Context, query *Query) (*ResultSet[Record], error) {
	ids, err := c.FindEntityIDs(ctx, query)
	if err != nil {
		return nil, err
	}
	entityType := query.Type
	return NewResultSet(c.service, query.path(), ids, func(id string, raw interface{}) (Record, error) {
		data, err := asMap(raw, "entity")
		if err != nil {
			return nil, err
		}
		return NewRecord(entityType, id, data), nil
	}), nil
}

// Find builds a query and runs it in one call.
//
// Example:
//
//	results, err := client.Find(ctx, "Player", "score > ?", 500)
func (c *Client) Find(ctx context.Context, entityType, constraints string, args ...interface{}) (*ResultSet[Record], error) {
	query, err := NewQuery(entityType, constraints, args...)
	if err != nil {
		return nil, err
	}
	return c.FindEntities(ctx, query)
}

// Status loads the status of the Flox service, with the keys "status" and
// "version".
func (c *Client) Status(ctx context.Context) (map[string]interface{}, error) {
	body, err := c.service.Get(ctx, "", nil)
	if err != nil {
		return nil, err
	}
	return asMap(body, "status")
}

// GameID returns the id of the game being accessed.
func (c *Client) GameID() string { return c.service.GameID() }

// GameKey returns the key of the game being accessed.
func (c *Client) GameKey() string { return c.service.GameKey() }

// BaseURL returns the base URL of the Flox service.
func (c *Client) BaseURL() string { return c.service.BaseURL() }

// Close releases the client's resources.
func (c *Client) Close() error { return c.service.Close() }

// String describes the client.
func (c *Client) String() string {
	return fmt.Sprintf("[Flox game_id: '%s', base_url: '%s']", c.GameID(), c.BaseURL())
}

func entityPath(entityType, id string) string {
	return "entities/" + entityType + "/" + id
}

func leaderboardPath(leaderboardID string) string {
	return "leaderboards/" + leaderboardID
}
