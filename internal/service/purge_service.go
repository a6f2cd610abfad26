package service

import (
	"context"
	"log/slog"

	"threadline/internal/blob"
	"threadline/internal/docstore"
	"threadline/internal/models"
	"threadline/internal/observability"
	"threadline/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// DefaultPurgePageSize is the number of posts fetched per purge page.
const DefaultPurgePageSize = 100

// PurgeService deletes an account and everything that references it.
// It performs no authorization.
type PurgeService struct {
	profiles repository.ProfileRepository
	posts    repository.PostRepository
	chats    repository.ChatRepository
	blobs    blob.Store
	pageSize int
}

// NewPurgeService returns a new PurgeService.
func NewPurgeService(
	profiles repository.ProfileRepository,
	posts repository.PostRepository,
	chats repository.ChatRepository,
	blobs blob.Store,
	pageSize int,
) *PurgeService {
	if pageSize <= 0 {
		pageSize = DefaultPurgePageSize
	}
	return &PurgeService{
		profiles: profiles,
		posts:    posts,
		chats:    chats,
		blobs:    blobs,
		pageSize: pageSize,
	}
}

type purgeRun struct {
	*PurgeService
	target  *models.UserProfile
	summary *models.PurgeSummary
}

// PurgeUser removes targetID's avatar, posts and their images, chats and
// their messages, the target from every follow list, and finally the profile.
//
// Blob failures are logged and never stop the run. A document failure stops
// it with a *models.PurgeError carrying the work done so far; calling
// PurgeUser again resumes and converges because every phase is idempotent
// and the profile is deleted last. The run ignores cancellation of ctx.
func (s *PurgeService) PurgeUser(ctx context.Context, targetID string) (*models.PurgeSummary, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := observability.StartServiceSpan(ctx, "PurgeService", "PurgeUser", attribute.String("user.id", targetID))

	target, err := s.profiles.Get(ctx, targetID)
	if err != nil {
		span.End(err)
		return nil, err
	}

	run := &purgeRun{
		PurgeService: s,
		target:       target,
		summary:      &models.PurgeSummary{CompletedPhases: []string{}},
	}
	phases := []struct {
		name string
		fn   func(context.Context) error
	}{
		{models.PurgePhaseAvatar, run.avatarPhase},
		{models.PurgePhasePosts, run.postsPhase},
		{models.PurgePhaseChats, run.chatsPhase},
		{models.PurgePhaseRelationships, run.relationshipsPhase},
		{models.PurgePhaseProfile, run.profilePhase},
	}

	for _, phase := range phases {
		if err := phase.fn(ctx); err != nil {
			observability.PurgePhaseOutcomes.WithLabelValues(phase.name, "failed").Inc()
			observability.Logger.ErrorContext(ctx, "purge halted",
				userIDAttr(targetID),
				slog.String("phase", phase.name),
				slog.String("error", err.Error()),
			)
			perr := &models.PurgeError{Phase: phase.name, Summary: *run.summary, Err: err}
			span.End(perr)
			return run.summary, perr
		}
		observability.PurgePhaseOutcomes.WithLabelValues(phase.name, "completed").Inc()
		run.summary.CompletedPhases = append(run.summary.CompletedPhases, phase.name)
	}

	observability.Logger.InfoContext(ctx, "account purged",
		userIDAttr(targetID),
		slog.Int("posts", run.summary.DeletedPosts),
		slog.Int("chats", run.summary.DeletedChats),
		slog.Int("messages", run.summary.DeletedMessages),
		slog.Int("profiles_detached", run.summary.DetachedProfiles),
		slog.Int("blobs_skipped", run.summary.SkippedBlobs),
	)
	span.End(nil)
	return run.summary, nil
}

func (r *purgeRun) deleteBlob(ctx context.Context, url string) {
	switch deleteBlob(ctx, r.blobs, url, "purge") {
	case blobDeleted:
		r.summary.DeletedBlobs++
	default:
		r.summary.SkippedBlobs++
	}
}

func (r *purgeRun) avatarPhase(ctx context.Context) error {
	if r.target.Avatar != "" {
		r.deleteBlob(ctx, r.target.Avatar)
	}
	return nil
}

func (r *purgeRun) postsPhase(ctx context.Context) error {
	for {
		page, err := r.posts.ListByAuthor(ctx, r.target.ID, r.pageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		for _, post := range page {
			for _, img := range post.Images {
				r.deleteBlob(ctx, img)
			}
			if err := r.posts.Delete(ctx, post.ID); err != nil {
				return err
			}
			r.summary.DeletedPosts++
		}
	}
}

func (r *purgeRun) chatsPhase(ctx context.Context) error {
	chats, err := r.chats.ListByParticipant(ctx, r.target.ID)
	if err != nil {
		return err
	}
	for _, chat := range chats {
		n, err := r.chats.DeleteCascade(ctx, chat.ID, docstore.MaxBatchSize)
		r.summary.DeletedMessages += n
		if err != nil {
			return err
		}
		r.summary.DeletedChats++
	}
	return nil
}

func (r *purgeRun) relationshipsPhase(ctx context.Context) error {
	referencing, err := r.profiles.FindReferencing(ctx, r.target.ID)
	if err != nil {
		return err
	}
	for _, p := range referencing {
		err := r.profiles.Update(ctx, p.ID,
			docstore.ArrayRemove("following", r.target.ID),
			docstore.ArrayRemove("followers", r.target.ID),
		)
		if models.IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		r.summary.DetachedProfiles++
	}
	return nil
}

func (r *purgeRun) profilePhase(ctx context.Context) error {
	return r.profiles.Delete(ctx, r.target.ID)
}
