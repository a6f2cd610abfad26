package service

import (
	"context"
	"log/slog"
	"sort"

	"threadline/internal/docstore"
	"threadline/internal/models"
	"threadline/internal/observability"
	"threadline/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// RelationshipService maintains follow and block lists.
type RelationshipService struct {
	profiles repository.ProfileRepository
}

// NewRelationshipService returns a new RelationshipService.
func NewRelationshipService(profiles repository.ProfileRepository) *RelationshipService {
	return &RelationshipService{profiles: profiles}
}

// ToggleFollow makes a follow b, or stop following b, and reports whether a
// follows b afterwards. a.following and b.followers change in one
// transaction.
func (s *RelationshipService) ToggleFollow(ctx context.Context, a, b string) (bool, error) {
	if a == b {
		return false, models.NewForbiddenError("You cannot follow yourself")
	}
	ctx, span := observability.StartServiceSpan(ctx, "RelationshipService", "ToggleFollow",
		attribute.String("user.id", a), attribute.String("target.id", b))

	var following bool
	err := s.profiles.Transact(ctx, func(tx repository.ProfileTx) error {
		follower, err := tx.Get(a)
		if err != nil {
			return err
		}
		if _, err := tx.Get(b); err != nil {
			return err
		}
		if follower.IsFollowing(b) {
			following = false
			if err := tx.Update(a, docstore.ArrayRemove("following", b)); err != nil {
				return err
			}
			return tx.Update(b, docstore.ArrayRemove("followers", a))
		}
		following = true
		if err := tx.Update(a, docstore.ArrayUnion("following", b)); err != nil {
			return err
		}
		return tx.Update(b, docstore.ArrayUnion("followers", a))
	})
	span.End(err)
	if err != nil {
		return false, err
	}
	return following, nil
}

// ToggleBlock adds b to or removes b from a's block list and reports whether
// b is blocked afterwards. b's documents are not modified.
func (s *RelationshipService) ToggleBlock(ctx context.Context, a, b string) (bool, error) {
	if a == b {
		return false, models.NewForbiddenError("You cannot block yourself")
	}
	if _, err := s.profiles.Get(ctx, b); err != nil {
		return false, err
	}

	var blocked bool
	err := s.profiles.Transact(ctx, func(tx repository.ProfileTx) error {
		blocker, err := tx.Get(a)
		if err != nil {
			return err
		}
		if blocker.HasBlocked(b) {
			blocked = false
			return tx.Update(a, docstore.ArrayRemove("blockedUsers", b))
		}
		blocked = true
		return tx.Update(a, docstore.ArrayUnion("blockedUsers", b))
	})
	if err != nil {
		return false, err
	}
	return blocked, nil
}

// ReconcileFollowers rebuilds every profile's followers list from the
// following lists that name it and returns how many profiles were repaired.
// Each profile is repaired in its own transaction.
func (s *RelationshipService) ReconcileFollowers(ctx context.Context) (int, error) {
	ctx, span := observability.StartServiceSpan(ctx, "RelationshipService", "ReconcileFollowers")
	profiles, err := s.profiles.List(ctx)
	if err != nil {
		span.End(err)
		return 0, err
	}

	repaired := 0
	for _, p := range profiles {
		changed, err := s.reconcileOne(ctx, p.ID)
		if models.IsNotFound(err) {
			continue
		}
		if err != nil {
			span.End(err)
			return repaired, err
		}
		if changed {
			repaired++
			observability.Logger.InfoContext(ctx, "followers list repaired", userIDAttr(p.ID))
		}
	}
	observability.Logger.InfoContext(ctx, "follower reconciliation finished",
		slog.Int("profiles", len(profiles)),
		slog.Int("repaired", repaired),
	)
	span.End(nil)
	return repaired, nil
}

func (s *RelationshipService) reconcileOne(ctx context.Context, id string) (bool, error) {
	var changed bool
	err := s.profiles.Transact(ctx, func(tx repository.ProfileTx) error {
		changed = false
		p, err := tx.Get(id)
		if err != nil {
			return err
		}
		followers, err := tx.FollowersOf(id)
		if err != nil {
			return err
		}
		if sameMembers(p.Followers, followers) {
			return nil
		}
		changed = true
		return tx.Update(id, docstore.Field("followers", followers))
	})
	return changed, err
}

func sameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
