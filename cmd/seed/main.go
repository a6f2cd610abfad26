// Command seed populates the configured store with fake marketplace data.
package main

import (
	"context"
	"flag"
	"log"

	"threadline/internal/bootstrap"
	"threadline/internal/config"
	"threadline/internal/observability"
	"threadline/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of users to create")
	numPosts := flag.Int("posts", 200, "Number of posts to create")
	follows := flag.Int("follows", 5, "Accounts each user follows")
	chats := flag.Int("chats", 40, "Number of chats to open")
	seedValue := flag.Int64("seed", 0, "Random seed, 0 for a random run")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production environment")
	}
	observability.InitLogger(cfg.Env, cfg.LogLevel)

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer func() { _ = rt.Close() }()

	log.Printf("Target: %d users, %d posts, %d chats\n", *numUsers, *numPosts, *chats)
	res, err := seed.NewSeeder(rt.Services, *seedValue).Run(ctx, seed.Options{
		NumUsers:       *numUsers,
		NumPosts:       *numPosts,
		FollowsPerUser: *follows,
		NumChats:       *chats,
	})
	if err != nil {
		log.Fatalf("Seeding failed after %d users and %d posts: %v", len(res.UserIDs), len(res.PostIDs), err)
	}
	log.Printf("Seeded %d users, %d posts, %d follows, %d reviews, %d messages\n",
		len(res.UserIDs), len(res.PostIDs), res.Follows, res.Reviews, res.Messages)
}
