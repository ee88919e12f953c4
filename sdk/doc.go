// Package sdk is a Go client library for the Flox game backend. It lets an
// application authenticate as a player, persist entities, post and load
// leaderboard scores and query logs over Flox's REST API.
//
// # Basic Usage
//
// Create a client with the game id and key from the Flox web interface and
// log in with a "Hero" key to access the data of all players:
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//
//	    "github.com/birbparty/flox-go/sdk"
//	)
//
//	func main() {
//	    client, err := sdk.NewClient(sdk.DefaultConfig().WithGame("my-game", "my-key"))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer client.Close()
//
//	    ctx := context.Background()
//	    if _, err := client.LoginWithKey(ctx, "hero-key"); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    save := sdk.NewEntity("SaveGame", "", map[string]interface{}{"level": 3})
//	    if err := client.SaveEntity(ctx, save); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Queries
//
// Entities are searched with SQL-like constraints. Question marks are
// placeholders that are replaced, in order, by the JSON form of the extra
// arguments:
//
//	query, err := sdk.NewQuery("Player", "level == ? AND score > ?", "tutorial", 500)
//	results, err := client.FindEntities(ctx, query)
//	err = results.Each(ctx, func(r sdk.Record) error {
//	    fmt.Println(r.ID(), r.Get("score"))
//	    return nil
//	})
//
// Results are downloaded lazily: every access to a ResultSet issues one GET.
//
// # Scores and Logs
//
//	err := client.PostScore(ctx, "default", 1200, "Donald")
//	scores, err := client.LoadScores(ctx, "default", sdk.Today)
//	mine, err := client.LoadScores(ctx, "default", sdk.PlayerScope{playerID})
//
//	ids, err := client.FindLogIDs(ctx, "day:2014-02-20 severity:error", 100)
//
// # Error Handling
//
// Non-2xx responses are returned as *ServiceError, network failures as
// *TransportError. Nothing is retried.
//
//	entity, err := client.LoadEntity(ctx, "SaveGame", id)
//	if sdk.IsNotFound(err) {
//	    // create it
//	}
//
//	var svcErr *sdk.ServiceError
//	if errors.As(err, &svcErr) {
//	    log.Printf("status %d: %s", svcErr.StatusCode, svcErr.Message)
//	}
//
// # Observability
//
// Every request is reported to the configured Observer and wrapped in an
// OpenTelemetry client span. Debug logs go to the configured logrus logger.
//
//	metrics := sdk.NewMetricsCollector()
//	config := sdk.DefaultConfig().
//	    WithGame(gameID, gameKey).
//	    WithObserver(metrics).
//	    WithLogger(logrus.StandardLogger())
//
// # Thread Safety
//
// Client and RestService are safe for concurrent use. The current session is
// read once per request, so a request already in flight when a login
// completes still carries the previous player. Entities are plain values and
// must not be modified concurrently.
package sdk
