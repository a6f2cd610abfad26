package repository

import (
	"context"
	"sort"

	"threadline/internal/docstore"
	"threadline/internal/models"
)

// ProfileRepository defines the interface for profile data operations
type ProfileRepository interface {
	Get(ctx context.Context, id string) (*models.UserProfile, error)
	FindByUsername(ctx context.Context, username string) (*models.UserProfile, error)
	// FindReferencing returns profiles whose following or followers list userID.
	FindReferencing(ctx context.Context, userID string) ([]*models.UserProfile, error)
	List(ctx context.Context) ([]*models.UserProfile, error)
	Update(ctx context.Context, id string, updates ...docstore.Update) error
	Delete(ctx context.Context, id string) error
	// Transact runs fn in one store transaction; fn may run more than once.
	Transact(ctx context.Context, fn func(tx ProfileTx) error) error
}

// ProfileTx is the profile view of one transaction attempt.
type ProfileTx struct {
	tx docstore.Tx
}

// NewProfileTx wraps tx.
func NewProfileTx(tx docstore.Tx) ProfileTx {
	return ProfileTx{tx: tx}
}

func (t ProfileTx) Get(id string) (*models.UserProfile, error) {
	snap, err := t.tx.Get(models.CollectionProfiles, id)
	if err != nil {
		return nil, mapStoreError(err, "Profile", id)
	}
	return decode[models.UserProfile](snap)
}

// FindByUsername returns nil when no profile holds username.
func (t ProfileTx) FindByUsername(username string) (*models.UserProfile, error) {
	snaps, err := t.tx.Query(byUsername(username))
	if err != nil {
		return nil, mapStoreError(err, "Profile", username)
	}
	return firstProfile(snaps)
}

// FollowersOf returns the sorted ids of profiles whose following lists id.
func (t ProfileTx) FollowersOf(id string) ([]string, error) {
	snaps, err := t.tx.Query(docstore.From(models.CollectionProfiles).Where("following", docstore.OpArrayContains, id))
	if err != nil {
		return nil, mapStoreError(err, "Profile", id)
	}
	out := make([]string, 0, len(snaps))
	for _, s := range snaps {
		if s.ID != id {
			out = append(out, s.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (t ProfileTx) Create(p *models.UserProfile) error {
	return mapStoreError(t.tx.Create(models.CollectionProfiles, p.ID, p), "Profile", p.ID)
}

func (t ProfileTx) Update(id string, updates ...docstore.Update) error {
	return mapStoreError(t.tx.Update(models.CollectionProfiles, id, updates...), "Profile", id)
}

// profileRepository implements ProfileRepository
type profileRepository struct {
	store docstore.Store
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(store docstore.Store) ProfileRepository {
	return &profileRepository{store: store}
}

func byUsername(username string) docstore.Query {
	return docstore.From(models.CollectionProfiles).Where("username", docstore.OpEqual, username).Limit(1)
}

func firstProfile(snaps []*docstore.Snapshot) (*models.UserProfile, error) {
	if len(snaps) == 0 {
		return nil, nil
	}
	return decode[models.UserProfile](snaps[0])
}

func (r *profileRepository) Get(ctx context.Context, id string) (*models.UserProfile, error) {
	snap, err := r.store.Get(ctx, models.CollectionProfiles, id)
	if err != nil {
		return nil, mapStoreError(err, "Profile", id)
	}
	return decode[models.UserProfile](snap)
}

func (r *profileRepository) FindByUsername(ctx context.Context, username string) (*models.UserProfile, error) {
	snaps, err := r.store.Query(ctx, byUsername(username))
	if err != nil {
		return nil, mapStoreError(err, "Profile", username)
	}
	return firstProfile(snaps)
}

func (r *profileRepository) FindReferencing(ctx context.Context, userID string) ([]*models.UserProfile, error) {
	seen := map[string]*models.UserProfile{}
	for _, field := range []string{"following", "followers"} {
		snaps, err := r.store.Query(ctx, docstore.From(models.CollectionProfiles).Where(field, docstore.OpArrayContains, userID))
		if err != nil {
			return nil, mapStoreError(err, "Profile", userID)
		}
		profiles, err := decodeAll[models.UserProfile](snaps)
		if err != nil {
			return nil, err
		}
		for _, p := range profiles {
			if p.ID != userID {
				seen[p.ID] = p
			}
		}
	}
	out := make([]*models.UserProfile, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *profileRepository) List(ctx context.Context) ([]*models.UserProfile, error) {
	snaps, err := r.store.Query(ctx, docstore.From(models.CollectionProfiles))
	if err != nil {
		return nil, mapStoreError(err, "Profile", "*")
	}
	return decodeAll[models.UserProfile](snaps)
}

func (r *profileRepository) Update(ctx context.Context, id string, updates ...docstore.Update) error {
	return mapStoreError(r.store.Update(ctx, models.CollectionProfiles, id, updates...), "Profile", id)
}

func (r *profileRepository) Delete(ctx context.Context, id string) error {
	return mapStoreError(r.store.Delete(ctx, models.CollectionProfiles, id), "Profile", id)
}

func (r *profileRepository) Transact(ctx context.Context, fn func(tx ProfileTx) error) error {
	err := r.store.RunTransaction(ctx, func(_ context.Context, tx docstore.Tx) error {
		return fn(ProfileTx{tx: tx})
	})
	return mapStoreError(err, "Profile", "")
}
