// Package recommend ranks listings for a profile. It performs no I/O.
package recommend

import (
	"sort"
	"strings"

	"threadline/internal/models"
)

// Score weights.
const (
	PreferredStyleWeight = 3
	SizeMatchWeight      = 2
	LikedTagWeight       = 2
	LikedBrandWeight     = 1
	ViewedWeight         = 1
	SearchTermWeight     = 1
)

// Score rates post for profile. Liked posts only count when they are found in pool.
func Score(post models.Post, profile models.UserProfile, pool []models.Post) int {
	return scoreWith(post, profile, likedIn(pool, profile))
}

// likedIn resolves the profile's liked post ids against pool, in like order.
func likedIn(pool []models.Post, profile models.UserProfile) []*models.Post {
	if len(profile.LikedPosts) == 0 {
		return nil
	}
	byID := make(map[string]*models.Post, len(pool))
	for i := range pool {
		byID[pool[i].ID] = &pool[i]
	}
	liked := make([]*models.Post, 0, len(profile.LikedPosts))
	for _, id := range profile.LikedPosts {
		if p, ok := byID[id]; ok {
			liked = append(liked, p)
		}
	}
	return liked
}

func scoreWith(post models.Post, profile models.UserProfile, liked []*models.Post) int {
	score := 0

	styles := toSet(profile.PreferredStyles)
	for _, tag := range post.Tags {
		if _, ok := styles[tag]; ok {
			score += PreferredStyleWeight
		}
	}

	if post.Size != "" && post.Size == profile.Size {
		score += SizeMatchWeight
	}

	tags := toSet(post.Tags)
	for _, l := range liked {
		for _, tag := range l.Tags {
			if _, shared := tags[tag]; shared {
				score += LikedTagWeight
			}
		}
		if l.Brand != "" && strings.EqualFold(l.Brand, post.Brand) {
			score += LikedBrandWeight
		}
	}

	for _, id := range profile.ViewedItems {
		if id == post.ID {
			score += ViewedWeight
			break
		}
	}

	title := strings.ToLower(post.Title)
	brand := strings.ToLower(post.Brand)
	for _, term := range profile.SearchHistory {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if strings.Contains(title, t) || strings.Contains(brand, t) {
			score += SearchTermWeight
		}
	}

	return score
}

// Rank orders pool by descending score and returns the first k. Equal scores
// keep their pool order. k <= 0 returns the whole ranking.
func Rank(pool []models.Post, profile models.UserProfile, k int) []models.Post {
	type scored struct {
		post  models.Post
		score int
	}
	liked := likedIn(pool, profile)
	ranked := make([]scored, len(pool))
	for i, p := range pool {
		ranked[i] = scored{post: p, score: scoreWith(p, profile, liked)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if k <= 0 || k > len(ranked) {
		k = len(ranked)
	}
	out := make([]models.Post, k)
	for i := 0; i < k; i++ {
		out[i] = ranked[i].post
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
