package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/birbparty/flox-go/sdk"
)

func main() {
	// Point the client at a local development backend (see cmd/floxd)
	config := sdk.DefaultConfig().
		WithBaseURL("http://localhost:8080").
		WithGame("demo", "demo-key").
		WithTimeout(10 * time.Second)

	client, err := sdk.NewClient(config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()

	fmt.Println("Checking service status...")
	status, err := client.Status(ctx)
	if err != nil {
		log.Printf("Warning: status check failed: %v", err)
		log.Println("Make sure floxd is running on http://localhost:8080")
		os.Exit(1)
	}
	fmt.Printf("✓ Service is %v (version %v)\n", status["status"], status["version"])
	fmt.Printf("✓ Logged in as guest %s\n", client.CurrentPlayer().ID())

	// Example 1: Save and load an entity
	fmt.Println("\n--- Example 1: Entities ---")
	save := sdk.NewEntity("SaveGame", "", map[string]interface{}{
		"level": 3,
		"name":  "Donald",
	})
	if err := client.SaveEntity(ctx, save); err != nil {
		log.Fatalf("Failed to save entity: %v", err)
	}
	fmt.Printf("✓ Saved %s at %s\n", save.Path(), save.UpdatedAt().Format(time.RFC3339))

	loaded, err := client.LoadEntity(ctx, "SaveGame", save.ID())
	if err != nil {
		log.Fatalf("Failed to load entity: %v", err)
	}
	fmt.Printf("✓ Loaded level %v\n", loaded.Get("level"))

	// Example 2: Query entities
	fmt.Println("\n--- Example 2: Queries ---")
	results, err := client.Find(ctx, "SaveGame", "level >= ?", 2)
	if err != nil {
		log.Fatalf("Failed to query: %v", err)
	}
	fmt.Printf("✓ Found %d save games\n", results.Len())
	err = results.EachWithID(ctx, func(id string, r sdk.Record) error {
		fmt.Printf("  %s: %v\n", id, r.Get("name"))
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to load results: %v", err)
	}

	// Example 3: Leaderboards
	fmt.Println("\n--- Example 3: Scores ---")
	if err := client.PostScore(ctx, "default", 1200, "Donald"); err != nil {
		log.Fatalf("Failed to post score: %v", err)
	}
	scores, err := client.LoadScores(ctx, "default", sdk.Today)
	if err != nil {
		log.Fatalf("Failed to load scores: %v", err)
	}
	for i, s := range scores {
		fmt.Printf("  #%d %s: %d\n", i+1, s.PlayerName, s.Value)
	}

	// Clean up
	if err := client.DeleteEntity(ctx, save); err != nil {
		log.Printf("Failed to delete entity: %v", err)
	}
	fmt.Println("\n✓ Done")
}
