package devserver

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/flox-go/sdk"
)

// startServer serves s on a random local port and returns its base URL.
func startServer(t *testing.T, s *Server) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() { _ = s.App().Listener(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})

	return "http://" + ln.Addr().String()
}

func newSDKClient(t *testing.T, baseURL string) *sdk.Client {
	t.Helper()
	cfg := sdk.DefaultConfig().
		WithBaseURL(baseURL).
		WithGame("g1", "k1").
		WithTimeout(5 * time.Second)

	client, err := sdk.NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSDKAgainstDevServer(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "compressed"
		}
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			cfg.CompressResponses = compress
			client := newSDKClient(t, startServer(t, newTestServer(t, cfg)))
			ctx := context.Background()

			status, err := client.Status(ctx)
			require.NoError(t, err)
			assert.Equal(t, "ok", status["status"])

			// guest saves an entity and finds it again
			guestID := client.CurrentPlayer().ID()
			game := sdk.NewEntity("SaveGame", "", map[string]interface{}{"level": 7})
			require.NoError(t, client.SaveEntity(ctx, game))
			assert.False(t, game.UpdatedAt().IsZero())

			loaded, err := client.LoadEntity(ctx, "SaveGame", game.ID())
			require.NoError(t, err)
			assert.Equal(t, json.Number("7"), loaded.Get("level"))
			assert.Equal(t, guestID, loaded.OwnerID())

			results, err := client.Find(ctx, "SaveGame", "level > ?", 5)
			require.NoError(t, err)
			assert.Equal(t, []string{game.ID()}, results.IDs())

			// scores
			require.NoError(t, client.PostScore(ctx, "default", 42, "Donald"))
			scores, err := client.LoadScores(ctx, "default", sdk.Today)
			require.NoError(t, err)
			require.Len(t, scores, 1)
			assert.Equal(t, 42, scores[0].Value)
			assert.Equal(t, guestID, scores[0].PlayerID)

			// token login keeps the guest's id
			player, err := client.LoginWithToken(ctx, "ext-1", "token")
			require.NoError(t, err)
			assert.Equal(t, guestID, player.ID())
			assert.Equal(t, sdk.AuthToken, player.AuthType())

			// hero login
			_, err = client.LoginWithKey(ctx, "wrong")
			assert.True(t, sdk.IsServiceError(err))

			hero, err := client.LoginWithKey(ctx, "hero-key")
			require.NoError(t, err)
			assert.Equal(t, "hero-player", hero.ID())

			require.NoError(t, client.DeleteEntity(ctx, game))
			_, err = client.LoadEntity(ctx, "SaveGame", game.ID())
			assert.True(t, sdk.IsNotFound(err))
		})
	}
}

func TestSDKLogPagination(t *testing.T) {
	s := newTestServer(t, nil)
	client := newSDKClient(t, startServer(t, s))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := client.Service().Post(ctx, "logs", map[string]interface{}{"severity": "error", "n": i})
		require.NoError(t, err)
	}

	// the server pages by two, so this takes three round trips
	ids, err := client.FindLogIDs(ctx, "severity:error", 0)
	require.NoError(t, err)
	assert.Len(t, ids, 5)

	ids, err = client.FindLogIDs(ctx, "severity:error", 3)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	logs, err := client.FindLogs(ctx, "severity:error", 2)
	require.NoError(t, err)
	all, err := logs.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "error", all[0]["severity"])
}
