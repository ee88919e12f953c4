package devserver

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/birbparty/flox-go/internal/telemetry"
	"github.com/birbparty/flox-go/internal/wire"
)

const (
	// playerType is the entity type of players
	playerType = ".player"

	defaultSearchLimit = 50
	maxScores          = 200
)

// newID mints a document id in the same format as the SDK.
func newID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:16]
}

func now() string {
	return wire.FormatTime(time.Now())
}

// status handles GET /api/games/:game/
func (s *Server) status(c *fiber.Ctx) error {
	return s.reply(c, fiber.StatusOK, fiber.Map{
		"status":  "ok",
		"version": s.config.Version,
	})
}

// authenticate handles POST /api/games/:game/authenticate. Key logins must
// name a configured hero key. Any other auth type links authType:authId to a
// player; a new link adopts the id of the guest that logs in.
func (s *Server) authenticate(c *fiber.Ctx) error {
	ctx := c.UserContext()
	rc := requestFrom(c)

	body, err := rc.bodyMap()
	if err != nil {
		return err
	}
	authType := stringOf(body["authType"])
	authID := stringOf(body["authId"])
	carriedID := stringOf(body["id"])

	var playerID string
	switch authType {
	case "":
		return fiber.NewError(fiber.StatusBadRequest, "Missing authType")
	case "guest":
		playerID = carriedID
		if playerID == "" {
			playerID = newID()
		}
	case "key":
		id, ok := s.config.HeroKeys[authID]
		if !ok {
			telemetry.RecordLogin(authType, false)
			return fiber.NewError(fiber.StatusForbidden, "Invalid hero key")
		}
		playerID = id
	default:
		if authID == "" {
			telemetry.RecordLogin(authType, false)
			return fiber.NewError(fiber.StatusBadRequest, "Missing authId")
		}
		playerID, err = s.linkedPlayer(ctx, rc.game, authType+":"+authID, carriedID)
		if err != nil {
			return err
		}
	}

	player, err := s.loadOrCreatePlayer(ctx, rc.game, playerID, authType)
	if err != nil {
		return err
	}

	telemetry.RecordLogin(authType, true)
	s.logger.WithFields(map[string]interface{}{
		"game":      rc.game,
		"auth_type": authType,
		"player_id": playerID,
	}).Debug("Player logged in")

	return s.reply(c, fiber.StatusOK, fiber.Map{"id": playerID, "entity": player})
}

// linkedPlayer resolves an auth link, creating it for carriedID (or a new
// id) on first use.
func (s *Server) linkedPlayer(ctx context.Context, game, link, carriedID string) (string, error) {
	doc, err := s.store.Get(ctx, authCollection(game), link)
	if err == nil {
		return stringOf(doc["playerId"]), nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	playerID := carriedID
	if playerID == "" {
		playerID = newID()
	}
	if err := s.store.Put(ctx, authCollection(game), link, Document{
		"playerId":  playerID,
		"createdAt": now(),
	}); err != nil {
		return "", err
	}
	return playerID, nil
}

// loadOrCreatePlayer returns the player entity, creating it if needed.
// Guests are not persisted.
func (s *Server) loadOrCreatePlayer(ctx context.Context, game, playerID, authType string) (Document, error) {
	collection := entityCollection(game, playerType)

	player, err := s.store.Get(ctx, collection, playerID)
	switch {
	case err == nil:
		if stringOf(player["authType"]) == authType {
			return player, nil
		}
		player["authType"] = authType
		player["updatedAt"] = now()
	case errors.Is(err, ErrNotFound):
		timestamp := now()
		player = Document{
			"authType":     authType,
			"publicAccess": "r",
			"ownerId":      playerID,
			"createdAt":    timestamp,
			"updatedAt":    timestamp,
		}
	default:
		return nil, err
	}

	if authType == "guest" {
		return player, nil
	}
	if err := s.store.Put(ctx, collection, playerID, player); err != nil {
		return nil, err
	}
	return player, nil
}

// getEntity handles GET /api/games/:game/entities/:type/:id
func (s *Server) getEntity(c *fiber.Ctx) error {
	rc := requestFrom(c)

	doc, err := s.store.Get(c.UserContext(), entityCollection(rc.game, c.Params("type")), c.Params("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "Entity not found")
		}
		return err
	}
	if !rc.canAccess(doc, "r") {
		return fiber.NewError(fiber.StatusForbidden, "Access denied")
	}
	return s.reply(c, fiber.StatusOK, doc)
}

// putEntity handles PUT /api/games/:game/entities/:type/:id. The server
// owns the timestamps: createdAt survives updates and updatedAt is always
// reset. The response carries both.
func (s *Server) putEntity(c *fiber.Ctx) error {
	ctx := c.UserContext()
	rc := requestFrom(c)

	doc, err := rc.bodyMap()
	if err != nil {
		return err
	}
	collection := entityCollection(rc.game, c.Params("type"))
	id := c.Params("id")
	timestamp := now()

	existing, err := s.store.Get(ctx, collection, id)
	switch {
	case err == nil:
		if !rc.canAccess(existing, "w") {
			return fiber.NewError(fiber.StatusForbidden, "Access denied")
		}
		if created, ok := existing["createdAt"]; ok {
			doc["createdAt"] = created
		}
	case errors.Is(err, ErrNotFound):
	default:
		return err
	}

	if _, ok := doc["createdAt"].(string); !ok {
		doc["createdAt"] = timestamp
	}
	doc["updatedAt"] = timestamp
	if stringOf(doc["ownerId"]) == "" && rc.playerID() != "" {
		doc["ownerId"] = rc.playerID()
	}

	if err := s.store.Put(ctx, collection, id, doc); err != nil {
		return err
	}
	return s.reply(c, fiber.StatusOK, fiber.Map{
		"createdAt": doc["createdAt"],
		"updatedAt": doc["updatedAt"],
	})
}

// deleteEntity handles DELETE /api/games/:game/entities/:type/:id
func (s *Server) deleteEntity(c *fiber.Ctx) error {
	ctx := c.UserContext()
	rc := requestFrom(c)
	collection := entityCollection(rc.game, c.Params("type"))
	id := c.Params("id")

	existing, err := s.store.Get(ctx, collection, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "Entity not found")
		}
		return err
	}
	if !rc.canAccess(existing, "w") {
		return fiber.NewError(fiber.StatusForbidden, "Access denied")
	}

	if err := s.store.Delete(ctx, collection, id); err != nil {
		return err
	}
	return s.reply(c, fiber.StatusOK, fiber.Map{})
}

// findEntities handles POST /api/games/:game/entities/:type. The body holds
// where, offset, limit and orderBy; the response lists matching ids.
func (s *Server) findEntities(c *fiber.Ctx) error {
	rc := requestFrom(c)

	body, err := rc.bodyMap()
	if err != nil {
		return err
	}

	constraint, err := CompileConstraint(stringOf(body["where"]))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	keys, err := parseOrderBy(stringOf(body["orderBy"]))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	offset := intOf(body["offset"], 0)
	limit := intOf(body["limit"], defaultSearchLimit)
	if offset < 0 || limit < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "offset and limit must not be negative")
	}

	docs, err := s.store.List(c.UserContext(), entityCollection(rc.game, c.Params("type")))
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(docs))
	for id, doc := range docs {
		if _, ok := doc["id"]; !ok {
			doc["id"] = id
		}
		if constraint.Match(doc) && rc.canAccess(doc, "r") {
			ids = append(ids, id)
		}
	}
	sortDocuments(ids, docs, keys)

	ids = page(ids, offset, limit)
	result := make([]fiber.Map, len(ids))
	for i, id := range ids {
		result[i] = fiber.Map{"id": id}
	}
	return s.reply(c, fiber.StatusOK, result)
}

// postScore handles POST /api/games/:game/leaderboards/:board
func (s *Server) postScore(c *fiber.Ctx) error {
	rc := requestFrom(c)

	body, err := rc.bodyMap()
	if err != nil {
		return err
	}
	value, ok := wire.Int(body["value"])
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "Missing score value")
	}
	if rc.playerID() == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Missing player")
	}

	score := Document{
		"playerId":   rc.playerID(),
		"playerName": stringOf(body["playerName"]),
		"value":      value,
		"country":    stringOf(body["country"]),
		"createdAt":  now(),
	}
	if err := s.store.Put(c.UserContext(), scoreCollection(rc.game, c.Params("board")), newID(), score); err != nil {
		return err
	}

	telemetry.RecordScorePosted()
	return s.reply(c, fiber.StatusOK, fiber.Map{})
}

// loadScores handles GET /api/games/:game/leaderboards/:board. The scope is
// either a time window (t) or a list of players (p, repeated). Only the best
// score of each player is listed.
func (s *Server) loadScores(c *fiber.Ctx) error {
	rc := requestFrom(c)

	var wanted map[string]bool
	for _, p := range queryValues(c.Context().QueryArgs(), "p") {
		if wanted == nil {
			wanted = make(map[string]bool)
		}
		wanted[p] = true
	}

	window := c.Query("t")
	if window == "" && wanted == nil {
		return fiber.NewError(fiber.StatusBadRequest, "Missing scope: pass t or p")
	}
	since, err := windowStart(window, time.Now().UTC())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	docs, err := s.store.List(c.UserContext(), scoreCollection(rc.game, c.Params("board")))
	if err != nil {
		return err
	}

	best := make(map[string]Document)
	for _, doc := range docs {
		playerID := stringOf(doc["playerId"])
		if wanted != nil && !wanted[playerID] {
			continue
		}
		if !since.IsZero() {
			created, err := wire.ParseTime(stringOf(doc["createdAt"]))
			if err != nil || created.Before(since) {
				continue
			}
		}
		if current, ok := best[playerID]; !ok || betterScore(doc, current) {
			best[playerID] = doc
		}
	}

	scores := make([]Document, 0, len(best))
	for _, doc := range best {
		scores = append(scores, doc)
	}
	sort.Slice(scores, func(i, j int) bool {
		return betterScore(scores[i], scores[j])
	})
	if len(scores) > maxScores {
		scores = scores[:maxScores]
	}
	return s.reply(c, fiber.StatusOK, scores)
}

// queryValues returns every value of a repeated query parameter.
func queryValues(args *fasthttp.Args, key string) []string {
	raw := args.PeekMulti(key)
	values := make([]string, 0, len(raw))
	for _, v := range raw {
		values = append(values, string(v))
	}
	return values
}

// betterScore orders by value, then by who got there first.
func betterScore(a, b Document) bool {
	av, _ := wire.Int(a["value"])
	bv, _ := wire.Int(b["value"])
	if av != bv {
		return av > bv
	}
	return stringOf(a["createdAt"]) < stringOf(b["createdAt"])
}

// windowStart is the earliest creation time a time scope admits. The zero
// time admits everything.
func windowStart(window string, now time.Time) (time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch window {
	case "", "allTime":
		return time.Time{}, nil
	case "today":
		return today, nil
	case "thisWeek":
		offset := (int(today.Weekday()) + 6) % 7
		return today.AddDate(0, 0, -offset), nil
	default:
		return time.Time{}, errors.New("unknown time scope '" + window + "'")
	}
}

// postLog handles POST /api/games/:game/logs
func (s *Server) postLog(c *fiber.Ctx) error {
	rc := requestFrom(c)

	doc, err := rc.bodyMap()
	if err != nil {
		return err
	}
	if _, ok := doc["time"]; !ok {
		doc["time"] = now()
	}
	if _, ok := doc["playerId"]; !ok && rc.playerID() != "" {
		doc["playerId"] = rc.playerID()
	}

	id := newID()
	if err := s.store.Put(c.UserContext(), logCollection(rc.game), id, doc); err != nil {
		return err
	}
	return s.reply(c, fiber.StatusOK, fiber.Map{"id": id})
}

// getLog handles GET /api/games/:game/logs/:id
func (s *Server) getLog(c *fiber.Ctx) error {
	rc := requestFrom(c)

	doc, err := s.store.Get(c.UserContext(), logCollection(rc.game), c.Params("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "Log not found")
		}
		return err
	}
	return s.reply(c, fiber.StatusOK, doc)
}

// findLogs handles GET /api/games/:game/logs. Results are newest first and
// paged: the cursor is the offset of the next page, or null after the last.
func (s *Server) findLogs(c *fiber.Ctx) error {
	rc := requestFrom(c)

	filter, err := parseLogQuery(c.Query("q"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	offset := 0
	if cursor := c.Query("c"); cursor != "" {
		offset, err = strconv.Atoi(cursor)
		if err != nil || offset < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid cursor")
		}
	}

	size := s.config.LogPageSize
	if limit := c.QueryInt("l", 0); limit > 0 && limit < size {
		size = limit
	}

	docs, err := s.store.List(c.UserContext(), logCollection(rc.game))
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(docs))
	for id, doc := range docs {
		if filter(doc) {
			ids = append(ids, id)
		}
	}
	sortDocuments(ids, docs, []sortKey{{field: "time", descending: true}})

	var cursor interface{}
	if offset+size < len(ids) {
		cursor = strconv.Itoa(offset + size)
	}
	return s.reply(c, fiber.StatusOK, fiber.Map{
		"ids":    page(ids, offset, size),
		"cursor": cursor,
	})
}

// page returns ids[offset:offset+limit], clamped to the slice.
func page(ids []string, offset, limit int) []string {
	if offset >= len(ids) {
		return []string{}
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	return ids[offset:end]
}
