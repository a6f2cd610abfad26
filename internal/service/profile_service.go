package service

import (
	"context"
	"strings"
	"time"

	"threadline/internal/blob"
	"threadline/internal/docstore"
	"threadline/internal/models"
	"threadline/internal/observability"
	"threadline/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

const (
	maxDisplayNameLength = 50
	maxBioLength         = 500
)

// ProfileService owns profile creation, username uniqueness and profile edits.
type ProfileService struct {
	profiles repository.ProfileRepository
	blobs    blob.Store
	now      func() time.Time
}

// NewProfileService returns a new ProfileService.
func NewProfileService(profiles repository.ProfileRepository, blobs blob.Store) *ProfileService {
	return &ProfileService{profiles: profiles, blobs: blobs, now: defaultClock}
}

// GetProfile returns the profile of id.
func (s *ProfileService) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	return s.profiles.Get(ctx, id)
}

// ReserveUsername gives candidate to ownerID, creating the owner's profile on
// first reservation. Of concurrent reservations of one name at most one
// commits; the others fail with a conflict.
func (s *ProfileService) ReserveUsername(ctx context.Context, ownerID, candidate string) (*models.UserProfile, error) {
	username, err := normalizeUsername(candidate)
	if err != nil {
		return nil, err
	}
	ctx, span := observability.StartServiceSpan(ctx, "ProfileService", "ReserveUsername", attribute.String("user.id", ownerID))
	profile, err := s.reserve(ctx, ownerID, username)
	span.End(err)
	return profile, err
}

func (s *ProfileService) reserve(ctx context.Context, ownerID, username string) (*models.UserProfile, error) {
	var result *models.UserProfile
	err := s.profiles.Transact(ctx, func(tx repository.ProfileTx) error {
		current, err := tx.Get(ownerID)
		if err != nil && !models.IsNotFound(err) {
			return err
		}
		if current != nil && current.Username == username {
			result = current
			return nil
		}

		holder, err := tx.FindByUsername(username)
		if err != nil {
			return err
		}
		if holder != nil && holder.ID != ownerID {
			return models.NewUsernameTakenError(username)
		}

		now := s.now()
		if current == nil {
			p := models.NewUserProfile(ownerID, username, now)
			if err := tx.Create(p); err != nil {
				return err
			}
			result = p
			return nil
		}
		if err := tx.Update(ownerID,
			docstore.Field("username", username),
			docstore.Field("updatedAt", now),
		); err != nil {
			return err
		}
		current.Username = username
		current.UpdatedAt = now
		result = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.Logger.InfoContext(ctx, "username reserved", userIDAttr(ownerID))
	return result, nil
}

// UpdateUsername renames an existing profile. An unchanged name returns
// without touching the store's uniqueness check.
func (s *ProfileService) UpdateUsername(ctx context.Context, ownerID, candidate string) (*models.UserProfile, error) {
	username, err := normalizeUsername(candidate)
	if err != nil {
		return nil, err
	}
	current, err := s.profiles.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if current.Username == username {
		return current, nil
	}
	ctx, span := observability.StartServiceSpan(ctx, "ProfileService", "UpdateUsername", attribute.String("user.id", ownerID))
	profile, err := s.reserve(ctx, ownerID, username)
	span.End(err)
	return profile, err
}

// UpdateProfile applies the non-nil fields of upd. A rename and the field
// edits commit together or not at all.
func (s *ProfileService) UpdateProfile(ctx context.Context, ownerID string, upd models.ProfileUpdate) (*models.UserProfile, error) {
	var updates []docstore.Update
	if upd.DisplayName != nil {
		name := strings.TrimSpace(*upd.DisplayName)
		if len(name) > maxDisplayNameLength {
			return nil, models.NewValidationError("display name is too long")
		}
		updates = append(updates, docstore.Field("displayName", name))
	}
	if upd.Bio != nil {
		if len(*upd.Bio) > maxBioLength {
			return nil, models.NewValidationError("bio is too long")
		}
		updates = append(updates, docstore.Field("bio", *upd.Bio))
	}
	if upd.Size != nil {
		updates = append(updates, docstore.Field("size", strings.TrimSpace(*upd.Size)))
	}
	if upd.PreferredStyles != nil {
		updates = append(updates, docstore.Field("preferredStyles", upd.PreferredStyles))
	}

	var username string
	if upd.Username != nil {
		normalized, err := normalizeUsername(*upd.Username)
		if err != nil {
			return nil, err
		}
		username = normalized
	}
	if len(updates) == 0 && username == "" {
		return s.profiles.Get(ctx, ownerID)
	}

	ctx, span := observability.StartServiceSpan(ctx, "ProfileService", "UpdateProfile", attribute.String("user.id", ownerID))
	renamed := false
	err := s.profiles.Transact(ctx, func(tx repository.ProfileTx) error {
		renamed = false
		current, err := tx.Get(ownerID)
		if err != nil {
			return err
		}
		fields := append([]docstore.Update(nil), updates...)
		// the uniqueness query only runs when the name actually changes
		if username != "" && username != current.Username {
			holder, err := tx.FindByUsername(username)
			if err != nil {
				return err
			}
			if holder != nil && holder.ID != ownerID {
				return models.NewUsernameTakenError(username)
			}
			fields = append(fields, docstore.Field("username", username))
			renamed = true
		}
		if len(fields) == 0 {
			return nil
		}
		return tx.Update(ownerID, append(fields, docstore.Field("updatedAt", s.now()))...)
	})
	span.End(err)
	if err != nil {
		return nil, err
	}
	if renamed {
		observability.Logger.InfoContext(ctx, "username reserved", userIDAttr(ownerID))
	}
	return s.profiles.Get(ctx, ownerID)
}

// UpdateAvatar stores a new avatar image and releases the previous one.
// Failing to delete the old image never fails the update.
func (s *ProfileService) UpdateAvatar(ctx context.Context, ownerID string, img models.Upload) (*models.UserProfile, error) {
	if len(img.Data) == 0 || !strings.HasPrefix(strings.ToLower(img.ContentType), "image/") {
		return nil, models.NewValidationError("avatar must be a non-empty image")
	}
	current, err := s.profiles.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	url, err := s.blobs.Put(ctx, img.Data, img.ContentType)
	if err != nil {
		return nil, models.NewExternalServiceError("blob store", err)
	}
	now := s.now()
	if err := s.profiles.Update(ctx, ownerID,
		docstore.Field("avatar", url),
		docstore.Field("updatedAt", now),
	); err != nil {
		deleteBlob(ctx, s.blobs, url, "avatar_rollback")
		return nil, err
	}
	if current.Avatar != "" {
		deleteBlob(ctx, s.blobs, current.Avatar, "avatar_replace")
	}

	current.Avatar = url
	current.UpdatedAt = now
	return current, nil
}
