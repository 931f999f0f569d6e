// Package service is the composition root: it wires the stores, the
// promoter, the branch deployer, the database-object synchronizer and the
// legacy converter behind one API surface.
//
// Caller mistakes come back inside ServiceResult (400/404/409); anything
// unexpected comes back as an error.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wiserhq/templates/internal/branch"
	"github.com/wiserhq/templates/internal/cache"
	"github.com/wiserhq/templates/internal/config"
	"github.com/wiserhq/templates/internal/dbsync"
	"github.com/wiserhq/templates/internal/legacy"
	"github.com/wiserhq/templates/internal/publish"
	"github.com/wiserhq/templates/internal/storage"
	"github.com/wiserhq/templates/internal/templates"
	"github.com/wiserhq/templates/internal/types"
)

// Service exposes every template-module operation for one tenant.
type Service struct {
	store    templates.Store
	promoter *publish.Promoter
	deployer *branch.Deployer
	syncer   *dbsync.Synchronizer

	converter func() *legacy.Converter

	cache *cache.Cache
	actor string
}

// New connects to the tenant database from cfg and wires every collaborator.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	db, err := storage.Open(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := templates.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	store := templates.NewSQLStore(db)
	promoter := publish.NewPromoter(store)

	opener := func(ctx context.Context, b *types.Branch) (templates.Store, error) {
		bdb, err := storage.Open(ctx, cfg.Database.ForDatabase(b.DatabaseName).DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open branch database %q: %w", b.DatabaseName, err)
		}
		return templates.NewSQLStore(bdb), nil
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Service{
		store:    store,
		promoter: promoter,
		deployer: branch.NewDeployer(store, branch.NewSQLResolver(db), cfg.BranchAccess, opener),
		syncer:   dbsync.NewSynchronizer(db),
		converter: func() *legacy.Converter {
			return legacy.NewConverter(legacy.NewSQLSource(db), legacy.NewSQLDestination(db), cfg.CDNBaseURL, cfg.Actor)
		},
		cache: cache.New(ttl),
		actor: cfg.Actor,
	}, nil
}

// NewWithCollaborators wires a service from explicit parts. Used by tests
// and by callers that manage their own connections.
func NewWithCollaborators(store templates.Store, deployer *branch.Deployer, syncer *dbsync.Synchronizer, conv func() *legacy.Converter, actor string) *Service {
	return &Service{
		store:     store,
		promoter:  publish.NewPromoter(store),
		deployer:  deployer,
		syncer:    syncer,
		converter: conv,
		cache:     cache.New(5 * time.Minute),
		actor:     actor,
	}
}

// failure translates sentinel errors into ServiceResult statuses. Unknown
// errors pass through so callers can tell infrastructure failures from
// caller mistakes.
func failure[T any](err error) (types.ServiceResult[T], error) {
	switch {
	case errors.Is(err, types.ErrValidation):
		return types.BadRequest[T](err.Error()), nil
	case errors.Is(err, types.ErrConflict):
		return types.Conflict[T](err.Error()), nil
	case errors.Is(err, storage.ErrNotFound):
		return types.NotFound[T]("template not found"), nil
	case errors.Is(err, storage.ErrDuplicateKey):
		return types.Conflict[T](err.Error()), nil
	}
	var zero types.ServiceResult[T]
	return zero, err
}

// CreateTemplate stores version 1 of a new template.
func (s *Service) CreateTemplate(ctx context.Context, t *types.Template) (types.ServiceResult[*types.Template], error) {
	if err := t.Validate(); err != nil {
		return types.BadRequest[*types.Template](err.Error()), nil
	}
	if _, err := s.store.CreateTemplate(ctx, t, s.actor); err != nil {
		return failure[*types.Template](err)
	}
	s.invalidateTemplate(t.TemplateID)
	return types.OK(t), nil
}

// CreateVersion appends a new version for an existing template.
func (s *Service) CreateVersion(ctx context.Context, t *types.Template) (types.ServiceResult[*types.Template], error) {
	if err := t.Validate(); err != nil {
		return types.BadRequest[*types.Template](err.Error()), nil
	}
	if _, err := s.store.CreateVersion(ctx, t, s.actor); err != nil {
		return failure[*types.Template](err)
	}
	s.invalidateTemplate(t.TemplateID)
	return types.OK(t), nil
}

// GetTemplate returns one version, or the latest when version is 0. Latest
// reads are served from the cache.
func (s *Service) GetTemplate(ctx context.Context, templateID int64, version int) (types.ServiceResult[*types.Template], error) {
	if templateID <= 0 {
		return types.BadRequest[*types.Template]("template id must be positive"), nil
	}
	if version < 0 {
		return types.BadRequest[*types.Template]("version must not be negative"), nil
	}

	var (
		t   *types.Template
		err error
	)
	if version == 0 {
		v, cerr := s.cache.GetOrCompute(ctx, latestKey(templateID), func(ctx context.Context) (any, error) {
			return s.store.Latest(ctx, templateID)
		})
		if cerr != nil {
			err = cerr
		} else {
			t = v.(*types.Template)
		}
	} else {
		t, err = s.store.Get(ctx, templateID, version)
	}
	if err != nil {
		return failure[*types.Template](err)
	}
	return types.OK(t), nil
}

// Tree lists the direct children of a directory.
func (s *Service) Tree(ctx context.Context, parentID int64) (types.ServiceResult[[]*types.TemplateMeta], error) {
	if parentID < 0 {
		return types.BadRequest[[]*types.TemplateMeta]("parent id must not be negative"), nil
	}
	out, err := s.store.ListTree(ctx, parentID)
	if err != nil {
		return failure[[]*types.TemplateMeta](err)
	}
	return types.OK(out), nil
}

// Search matches names and bodies of latest versions.
func (s *Service) Search(ctx context.Context, needle string) (types.ServiceResult[[]*types.TemplateMeta], error) {
	if needle == "" {
		return types.BadRequest[[]*types.TemplateMeta]("search term is required"), nil
	}
	out, err := s.store.Search(ctx, needle)
	if err != nil {
		return failure[[]*types.TemplateMeta](err)
	}
	return types.OK(out), nil
}

// Move reparents a template.
func (s *Service) Move(ctx context.Context, templateID, newParentID int64, ordering int) (types.ServiceResult[struct{}], error) {
	if templateID <= 0 {
		return types.BadRequest[struct{}]("template id must be positive"), nil
	}
	if err := s.store.Move(ctx, templateID, newParentID, ordering, s.actor); err != nil {
		return failure[struct{}](err)
	}
	s.invalidateTemplate(templateID)
	return types.NoContent[struct{}](), nil
}

// Rename renames a template across its versions.
func (s *Service) Rename(ctx context.Context, templateID int64, newName string) (types.ServiceResult[struct{}], error) {
	if templateID <= 0 {
		return types.BadRequest[struct{}]("template id must be positive"), nil
	}
	if newName == "" {
		return types.BadRequest[struct{}]("template name is required"), nil
	}
	if err := s.store.Rename(ctx, templateID, newName, s.actor); err != nil {
		return failure[struct{}](err)
	}
	s.invalidateTemplate(templateID)
	return types.NoContent[struct{}](), nil
}

// Delete soft-deletes a template; history stays behind.
func (s *Service) Delete(ctx context.Context, templateID int64) (types.ServiceResult[struct{}], error) {
	if templateID <= 0 {
		return types.BadRequest[struct{}]("template id must be positive"), nil
	}
	if err := s.store.SoftDelete(ctx, templateID, s.actor); err != nil {
		return failure[struct{}](err)
	}
	s.invalidateTemplate(templateID)
	return types.NoContent[struct{}](), nil
}

// PublishedState reports which version each environment points at.
func (s *Service) PublishedState(ctx context.Context, templateID int64) (types.ServiceResult[*types.PublishedEnvironments], error) {
	if templateID <= 0 {
		return types.BadRequest[*types.PublishedEnvironments]("template id must be positive"), nil
	}
	state, err := s.store.PublishedState(ctx, templateID)
	if err != nil {
		return failure[*types.PublishedEnvironments](err)
	}
	return types.OK(state), nil
}

// Publish promotes a version into an environment. Versions of database
// objects (views, routines, triggers) are additionally synchronized into
// the schema when they reach live; a failed synchronization reports a
// conflict but leaves the promotion in place, matching the audit log.
func (s *Service) Publish(ctx context.Context, templateID int64, version int, env types.Environment) (types.ServiceResult[*publish.Result], error) {
	res, err := s.promoter.Publish(ctx, templateID, version, env, s.actor, publish.Options{})
	if err != nil {
		return failure[*publish.Result](err)
	}
	s.invalidateTemplate(templateID)

	if env == types.EnvLive && s.syncer != nil {
		if ok, msg, err := s.syncObject(ctx, templateID, version, res.Log.OldLive); err != nil {
			return types.ServiceResult[*publish.Result]{}, err
		} else if !ok {
			return types.Conflict[*publish.Result](msg), nil
		}
	}
	return types.OK(res), nil
}

// syncObject pushes a view/routine/trigger template's definition into the
// database schema. Non-object templates are a no-op. oldLive lets renames
// drop the previously deployed object.
func (s *Service) syncObject(ctx context.Context, templateID int64, version, oldLive int) (bool, string, error) {
	t, err := s.store.Get(ctx, templateID, version)
	if err != nil {
		return false, "", err
	}

	oldName := ""
	if oldLive > 0 && oldLive != version {
		if prev, err := s.store.Get(ctx, templateID, oldLive); err == nil && prev.Name != t.Name {
			oldName = prev.Name
		}
	}

	switch t.Type {
	case types.TypeView:
		ok, msg := s.syncer.SyncView(ctx, t.Name, oldName, t.EditorValue)
		return ok, msg, nil
	case types.TypeRoutine:
		ok, msg := s.syncer.SyncRoutine(ctx, dbsync.RoutineDefinition{
			Name:       t.Name,
			OldName:    oldName,
			Type:       t.RoutineType,
			Parameters: t.RoutineParameters,
			ReturnType: t.RoutineReturnType,
			Body:       t.EditorValue,
		})
		return ok, msg, nil
	case types.TypeTrigger:
		ok, msg := s.syncer.SyncTrigger(ctx, dbsync.TriggerDefinition{
			Name:      t.Name,
			OldName:   oldName,
			Timing:    t.TriggerTiming,
			Event:     t.TriggerEvent,
			TableName: t.TriggerTableName,
			Body:      t.EditorValue,
		})
		return ok, msg, nil
	}
	return true, "", nil
}

// SyncReport records the outcome of re-synchronizing one template.
type SyncReport struct {
	TemplateID int64  `json:"templateId"`
	Version    int    `json:"version"`
	Synced     bool   `json:"synced"`
	Message    string `json:"message,omitempty"`
}

// SyncObjects re-pushes the live version of each database-object template
// into the schema. Used after restoring a database or when an object was
// dropped by hand. Templates without a live version are reported but
// skipped; templates that are not views, routines or triggers are a no-op.
func (s *Service) SyncObjects(ctx context.Context, templateIDs []int64) (types.ServiceResult[[]SyncReport], error) {
	if len(templateIDs) == 0 {
		return types.BadRequest[[]SyncReport]("at least one template id is required"), nil
	}
	if s.syncer == nil {
		return types.Conflict[[]SyncReport]("database synchronization is not configured"), nil
	}

	reports := make([]SyncReport, 0, len(templateIDs))
	for _, id := range templateIDs {
		state, err := s.store.PublishedState(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				reports = append(reports, SyncReport{TemplateID: id, Message: "template not found"})
				continue
			}
			return types.ServiceResult[[]SyncReport]{}, err
		}
		if state.Live == 0 {
			reports = append(reports, SyncReport{TemplateID: id, Message: "no live version"})
			continue
		}

		ok, msg, err := s.syncObject(ctx, id, state.Live, 0)
		if err != nil {
			return types.ServiceResult[[]SyncReport]{}, err
		}
		reports = append(reports, SyncReport{TemplateID: id, Version: state.Live, Synced: ok, Message: msg})
	}
	return types.OK(reports), nil
}

// DeployToBranch copies templates into a branch database and publishes them
// live there.
func (s *Service) DeployToBranch(ctx context.Context, identity branch.Identity, templateIDs []int64, branchID int64) (types.ServiceResult[struct{}], error) {
	if len(templateIDs) == 0 {
		return types.BadRequest[struct{}]("at least one template id is required"), nil
	}
	if err := s.deployer.DeployToBranch(ctx, identity, templateIDs, branchID); err != nil {
		return failure[struct{}](err)
	}
	return types.NoContent[struct{}](), nil
}

// ConvertLegacy runs the one-shot easy_* to wiser_* conversion.
func (s *Service) ConvertLegacy(ctx context.Context) (types.ServiceResult[struct{}], error) {
	if s.converter == nil {
		return types.Conflict[struct{}]("legacy conversion is not configured"), nil
	}
	if err := s.converter().Run(ctx); err != nil {
		return failure[struct{}](err)
	}
	s.cache.InvalidateAll()
	return types.NoContent[struct{}](), nil
}

func (s *Service) invalidateTemplate(templateID int64) {
	s.cache.Invalidate(latestKey(templateID))
}

func latestKey(templateID int64) string {
	return fmt.Sprintf("template:%d:latest", templateID)
}
