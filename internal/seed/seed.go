// Package seed populates a store with fake marketplace data for development
// and load testing.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"threadline/internal/bootstrap"
	"threadline/internal/models"
	"threadline/internal/observability"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

// Options configuration for the seeder
type Options struct {
	NumUsers       int
	NumPosts       int
	FollowsPerUser int
	NumChats       int
}

// Result lists what a run created.
type Result struct {
	UserIDs  []string
	PostIDs  []string
	ChatIDs  []string
	Follows  int
	Reviews  int
	Messages int
}

var (
	styles = []string{
		"streetwear", "vintage", "y2k", "minimalist", "grunge", "preppy",
		"workwear", "techwear", "boho", "athleisure", "goth", "denim",
	}
	sizes  = []string{"XS", "S", "M", "L", "XL"}
	brands = []string{
		"Levi's", "Carhartt", "Nike", "Adidas", "Patagonia", "Dickies",
		"Stussy", "Uniqlo", "Zara", "Ralph Lauren", "Arc'teryx", "Converse",
	}
	garments = []string{
		"jacket", "hoodie", "jeans", "sweater", "cargo pants", "tee",
		"flannel", "parka", "skirt", "sneakers", "boots", "cardigan",
	}
)

// Seeder creates fake data through the service layer so every write obeys
// the same rules as user traffic.
type Seeder struct {
	services bootstrap.Services
	faker    *gofakeit.Faker
}

// NewSeeder creates a seeder over services. A fixed seed makes runs
// reproducible; zero picks a random one.
func NewSeeder(services bootstrap.Services, seed int64) *Seeder {
	return &Seeder{services: services, faker: gofakeit.New(seed)}
}

// Run seeds users, their follow graph, posts, reviews and chats.
func (s *Seeder) Run(ctx context.Context, opts Options) (*Result, error) {
	res := &Result{}

	users, err := s.seedUsers(ctx, opts.NumUsers)
	if err != nil {
		return res, err
	}
	res.UserIDs = users
	if len(users) < 2 {
		return res, nil
	}

	if res.Follows, err = s.seedFollows(ctx, users, opts.FollowsPerUser); err != nil {
		return res, err
	}
	if res.PostIDs, err = s.seedPosts(ctx, users, opts.NumPosts); err != nil {
		return res, err
	}
	if res.Reviews, err = s.seedReviews(ctx, users); err != nil {
		return res, err
	}
	if res.ChatIDs, res.Messages, err = s.seedChats(ctx, users, opts.NumChats); err != nil {
		return res, err
	}

	observability.Logger.InfoContext(ctx, "seed complete",
		slog.Int("users", len(res.UserIDs)),
		slog.Int("posts", len(res.PostIDs)),
		slog.Int("follows", res.Follows),
		slog.Int("reviews", res.Reviews),
		slog.Int("chats", len(res.ChatIDs)),
		slog.Int("messages", res.Messages),
	)
	return res, nil
}

func (s *Seeder) seedUsers(ctx context.Context, n int) ([]string, error) {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := uuid.NewString()
		if _, err := s.services.Profiles.ReserveUsername(ctx, id, s.username(i)); err != nil {
			return ids, fmt.Errorf("reserve username for user %d: %w", i, err)
		}

		name := s.faker.Name()
		bio := s.faker.Sentence(8)
		size := s.faker.RandomString(sizes)
		_, err := s.services.Profiles.UpdateProfile(ctx, id, models.ProfileUpdate{
			DisplayName:     &name,
			Bio:             &bio,
			Size:            &size,
			PreferredStyles: s.pick(styles, s.faker.Number(1, 3)),
		})
		if err != nil {
			return ids, fmt.Errorf("update profile %s: %w", id, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// username is unique per index and always satisfies the username rules.
func (s *Seeder) username(i int) string {
	base := strings.ToLower(s.faker.Username())
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, base)
	if len(base) > 20 {
		base = base[:20]
	}
	if base == "" {
		base = "user"
	}
	return fmt.Sprintf("%s_%d", base, i)
}

func (s *Seeder) seedFollows(ctx context.Context, users []string, perUser int) (int, error) {
	follows := 0
	for _, id := range users {
		added := 0
		for _, other := range s.pick(users, perUser+1) {
			if other == id || added == perUser {
				continue
			}
			if _, err := s.services.Relationships.ToggleFollow(ctx, id, other); err != nil {
				return follows, fmt.Errorf("follow %s -> %s: %w", id, other, err)
			}
			added++
		}
		follows += added
	}
	return follows, nil
}

func (s *Seeder) seedPosts(ctx context.Context, users []string, n int) ([]string, error) {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		author := users[s.faker.Number(0, len(users)-1)]
		brand := s.faker.RandomString(brands)
		garment := s.faker.RandomString(garments)

		images := make([]models.Upload, s.faker.Number(1, 3))
		for j := range images {
			images[j] = models.Upload{Data: []byte(s.faker.LetterN(64)), ContentType: "image/jpeg"}
		}

		post, err := s.services.Posts.CreatePost(ctx, author, models.NewPostInput{
			Title:       fmt.Sprintf("%s %s %s", s.faker.Adjective(), brand, garment),
			Description: s.faker.Sentence(12),
			Brand:       brand,
			Size:        s.faker.RandomString(sizes),
			Tags:        s.pick(styles, s.faker.Number(1, 4)),
			Price:       s.faker.Price(5, 250),
			Images:      images,
		})
		if err != nil {
			return ids, fmt.Errorf("create post %d: %w", i, err)
		}
		ids = append(ids, post.ID)
	}
	return ids, nil
}

func (s *Seeder) seedReviews(ctx context.Context, users []string) (int, error) {
	reviews := 0
	for i, target := range users {
		reviewer := users[(i+1)%len(users)]
		_, err := s.services.Reviews.AddReview(ctx, target, models.NewReviewInput{
			ReviewerID: reviewer,
			Rating:     s.faker.Number(models.MinRating, models.MaxRating),
			Comment:    s.faker.Sentence(6),
		})
		if err != nil {
			return reviews, fmt.Errorf("review %s by %s: %w", target, reviewer, err)
		}
		reviews++
	}
	return reviews, nil
}

func (s *Seeder) seedChats(ctx context.Context, users []string, n int) ([]string, int, error) {
	var ids []string
	messages := 0
	for i := 0; i < n; i++ {
		pair := s.pick(users, 2)
		chat, err := s.services.Chats.CreateChat(ctx, pair[0], pair[1])
		if err != nil {
			return ids, messages, fmt.Errorf("create chat %d: %w", i, err)
		}
		for j := s.faker.Number(1, 4); j > 0; j-- {
			if _, err := s.services.Chats.SendMessage(ctx, pair[j%2], chat.ID, s.faker.Sentence(5)); err != nil {
				return ids, messages, fmt.Errorf("send message in %s: %w", chat.ID, err)
			}
			messages++
		}
		ids = append(ids, chat.ID)
	}
	return ids, messages, nil
}

// pick returns up to n distinct elements of from in random order.
func (s *Seeder) pick(from []string, n int) []string {
	out := append([]string(nil), from...)
	s.faker.ShuffleStrings(out)
	if n < len(out) {
		out = out[:n]
	}
	return out
}
