// Package publish implements environment promotion for template versions.
//
// Promoting writes two things atomically: the environment bit moves to the
// requested version row, and one immutable audit entry lands in the publish
// log. Promotion never cascades; pointing live at a version leaves test and
// acceptance exactly where they were.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wiserhq/templates/internal/storage"
	"github.com/wiserhq/templates/internal/telemetry"
	"github.com/wiserhq/templates/internal/templates"
	"github.com/wiserhq/templates/internal/types"
)

// Options tweak a single promotion.
type Options struct {
	// InBranch suppresses the post-live auto-versioning. Branch databases
	// only have a live stage and never need the protective copy.
	InBranch bool
}

// Result describes what a promotion did.
type Result struct {
	State *types.PublishedEnvironments `json:"state"`
	Log   *types.PublishLogEntry       `json:"log"`

	// NewVersion is the protective version created after a publish to
	// live, or 0 when none was created.
	NewVersion int `json:"new_version,omitempty"`
}

// Promoter moves template versions between environments.
type Promoter struct {
	store templates.Store
}

// NewPromoter wraps a store. For branch deployments the store is bound to
// the branch database.
func NewPromoter(store templates.Store) *Promoter {
	return &Promoter{store: store}
}

// Publish points env at the given version of the template and appends the
// audit entry.
//
// After a publish to live (outside branches) the promoted version is copied
// into a fresh version so that subsequent saves cannot silently alter the
// published content. The copy only happens when the promoted version is
// still the latest at re-check time; a mismatch means someone else already
// appended a version, and the copy is skipped (NewVersion stays 0). The
// re-check runs inside the promotion transaction but is not a lock:
// concurrent publishers of the same template can still interleave. Known,
// accepted weak consistency point.
func (p *Promoter) Publish(ctx context.Context, templateID int64, version int, env types.Environment, actor string, opts Options) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "publish.Publish",
		attribute.Int64("template.id", templateID),
		attribute.Int("template.version", version),
		attribute.String("environment", env.String()))
	defer span.End()

	if templateID <= 0 {
		return nil, fmt.Errorf("%w: template id must be positive", types.ErrValidation)
	}
	if version <= 0 {
		return nil, fmt.Errorf("%w: version must be positive", types.ErrValidation)
	}
	switch env {
	case types.EnvDevelopment, types.EnvTest, types.EnvAcceptance, types.EnvLive:
	default:
		return nil, fmt.Errorf("%w: invalid environment %q", types.ErrValidation, env)
	}

	target, err := p.store.Get(ctx, templateID, version)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: template %d has no version %d", types.ErrValidation, templateID, version)
	}
	if err != nil {
		return nil, err
	}
	if target.Removed {
		return nil, fmt.Errorf("%w: version %d of template %d is removed", types.ErrValidation, version, templateID)
	}

	result := &Result{}
	err = p.store.RunInTransaction(ctx, func(tx templates.Store) error {
		before, err := tx.PublishedState(ctx, templateID)
		if err != nil {
			return err
		}

		entry := logEntry(templateID, before, env, version, actor)
		if err := tx.MoveEnvironment(ctx, templateID, version, env); err != nil {
			return fmt.Errorf("failed to publish template %d to %s: %w", templateID, env, err)
		}
		if err := tx.AppendPublishLog(ctx, entry); err != nil {
			return err
		}

		after := *before
		after.SetVersion(env, version)
		result.State = &after
		result.Log = entry

		if env == types.EnvLive && !opts.InBranch {
			newVersion, err := p.protectPublishedVersion(ctx, tx, target, actor)
			if err != nil {
				return err
			}
			result.NewVersion = newVersion
			if newVersion > 0 {
				result.State.VersionList = append(result.State.VersionList, newVersion)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	telemetry.CountPublish(ctx, env)
	return result, nil
}

// protectPublishedVersion copies the just-published row into a new version
// so edits land in unpublished content. Skipped (returns 0) when the
// published version is no longer the tip: edits already go elsewhere, and
// the skip keeps concurrent publishes from stacking up empty versions.
func (p *Promoter) protectPublishedVersion(ctx context.Context, tx templates.Store, published *types.Template, actor string) (int, error) {
	latest, err := tx.LatestVersionNumber(ctx, published.TemplateID)
	if err != nil {
		return 0, err
	}
	if latest != published.Version {
		return 0, nil
	}
	draft := *published
	draft.PublishedEnvironment = types.EnvNone
	return tx.CreateVersion(ctx, &draft, actor)
}

func logEntry(templateID int64, before *types.PublishedEnvironments, env types.Environment, version int, actor string) *types.PublishLogEntry {
	e := &types.PublishLogEntry{
		TemplateID:     templateID,
		OldLive:        before.Live,
		NewLive:        before.Live,
		OldAcceptance:  before.Acceptance,
		NewAcceptance:  before.Acceptance,
		OldTest:        before.Test,
		NewTest:        before.Test,
		OldDevelopment: before.Development,
		NewDevelopment: before.Development,
		ChangedOn:      time.Now().UTC(),
		ChangedBy:      actor,
	}
	switch env {
	case types.EnvLive:
		e.NewLive = version
	case types.EnvAcceptance:
		e.NewAcceptance = version
	case types.EnvTest:
		e.NewTest = version
	case types.EnvDevelopment:
		e.NewDevelopment = version
	}
	return e
}
