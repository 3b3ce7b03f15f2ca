package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/contentgraph/publishing/internal/domain"
	"github.com/contentgraph/publishing/internal/downstream"
)

// RepresentLockName guards the batch requeue so only one process
// runs it at a time across the fleet.
const RepresentLockName = "represent_downstream"

// RepresentUsecase re-enqueues every live edition downstream. The
// whole pass is idempotent: payloads carry the same monotonic version
// rules as single publishes, so consumers discard stale duplicates.
type RepresentUsecase struct {
	store  Store
	sync   *downstream.Sync
	lock   Lock
	logger *slog.Logger
}

func NewRepresentUsecase(store Store, sync *downstream.Sync, lock Lock, logger *slog.Logger) *RepresentUsecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RepresentUsecase{store: store, sync: sync, lock: lock, logger: logger}
}

// RepresentAll requeues all live content on the low-priority channel.
// Lock contention means another process already handles it; that is
// logged and treated as success, never as a command failure.
func (u *RepresentUsecase) RepresentAll(ctx context.Context) error {
	granted, err := u.lock.Acquire(ctx, RepresentLockName, time.Hour)
	if err != nil {
		return errors.Wrap(err, "acquiring represent lock")
	}
	if !granted {
		u.logger.Info("failed to get lock, another process probably got there first", "lock", RepresentLockName)
		return nil
	}

	refs, err := u.store.LiveContentRefs(ctx)
	if err != nil {
		return errors.Wrap(err, "listing live content")
	}
	payloadVersion, err := u.store.AppendEvent(ctx, "RepresentDownstream", "", "")
	if err != nil {
		return errors.Wrap(err, "appending represent event")
	}

	for _, ref := range refs {
		edition := &domain.Edition{ContentID: ref.ContentID, Locale: ref.Locale}
		// Republish semantics: low priority, no dependency re-resolution.
		if err := u.sync.SendLive(ctx, edition, edition, domain.UpdateTypeRepublish, payloadVersion); err != nil {
			return err
		}
	}
	u.logger.Info("represented all live content downstream", "count", len(refs))
	return nil
}
