// Package branch deploys templates into isolated branch databases.
//
// A branch is a separate schema next to the main database. Branches skip
// the dev/test/acceptance ladder entirely: a deployed template goes
// straight to live there.
package branch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wiserhq/templates/internal/publish"
	"github.com/wiserhq/templates/internal/storage"
	"github.com/wiserhq/templates/internal/telemetry"
	"github.com/wiserhq/templates/internal/templates"
	"github.com/wiserhq/templates/internal/types"
)

// Identity describes the caller of a deployment.
type Identity struct {
	Username string

	// BranchDatabase is set when the caller is operating from inside a
	// branch. Deployments must start from the main environment.
	BranchDatabase string
}

// Resolver looks up branches registered in the main database.
type Resolver interface {
	Resolve(ctx context.Context, branchID int64) (*types.Branch, error)
}

// AccessChecker decides whether a user may deploy into a branch.
type AccessChecker interface {
	CanAccess(identity Identity, branch *types.Branch) bool
}

// StoreOpener opens a template store bound to the branch's database.
type StoreOpener func(ctx context.Context, branch *types.Branch) (templates.Store, error)

// Deployer copies templates into branch databases and publishes them live
// there.
type Deployer struct {
	main       templates.Store
	resolver   Resolver
	access     AccessChecker
	openBranch StoreOpener
}

// NewDeployer wires a deployer against the main store.
func NewDeployer(main templates.Store, resolver Resolver, access AccessChecker, openBranch StoreOpener) *Deployer {
	return &Deployer{main: main, resolver: resolver, access: access, openBranch: openBranch}
}

// DeployToBranch copies each template's current content into the branch
// database and publishes it to live there. Auto-versioning is bypassed:
// branches have no draft stage to protect.
//
// Re-deploying a template that already exists in the branch is not an
// error; the duplicate insert is skipped and the publish still runs, so a
// partially-deployed earlier attempt can be completed by running again.
func (d *Deployer) DeployToBranch(ctx context.Context, identity Identity, templateIDs []int64, branchID int64) error {
	ctx, span := telemetry.StartSpan(ctx, "branch.DeployToBranch",
		attribute.Int64("branch.id", branchID),
		attribute.Int("template.count", len(templateIDs)))
	defer span.End()

	if identity.BranchDatabase != "" {
		return fmt.Errorf("%w: deployments to a branch can only be started from the main environment, not from branch %q",
			types.ErrValidation, identity.BranchDatabase)
	}
	branchInfo, err := d.resolver.Resolve(ctx, branchID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: branch %d does not exist", types.ErrValidation, branchID)
	}
	if err != nil {
		return err
	}
	if !d.access.CanAccess(identity, branchInfo) {
		return fmt.Errorf("%w: user %q has no access to branch %q", types.ErrValidation, identity.Username, branchInfo.Name)
	}

	branchStore, err := d.openBranch(ctx, branchInfo)
	if err != nil {
		return fmt.Errorf("failed to open branch database %q: %w", branchInfo.DatabaseName, err)
	}
	promoter := publish.NewPromoter(branchStore)

	for _, templateID := range templateIDs {
		source, err := d.deployableVersion(ctx, templateID)
		if err != nil {
			return err
		}
		if err := branchStore.InsertVersionRow(ctx, source, identity.Username); err != nil {
			switch {
			case storage.IsDuplicateKey(err):
				// Already there from an earlier (possibly partial)
				// deploy; publishing below still runs.
			case storage.IsWrongValueCount(err):
				return fmt.Errorf("%w: the template tables in branch %q are out of date; open the template module once in that branch so its schema updates, then deploy again",
					types.ErrConflict, branchInfo.Name)
			default:
				return fmt.Errorf("failed to copy template %d into branch %q: %w", templateID, branchInfo.Name, err)
			}
		}
		if _, err := promoter.Publish(ctx, templateID, source.Version, types.EnvLive, identity.Username, publish.Options{InBranch: true}); err != nil {
			return fmt.Errorf("failed to publish template %d to live in branch %q: %w", templateID, branchInfo.Name, err)
		}
		telemetry.CountBranchDeploy(ctx)
	}
	return nil
}

// deployableVersion picks the row to copy: the version published to live in
// the main database when there is one, the latest version otherwise.
func (d *Deployer) deployableVersion(ctx context.Context, templateID int64) (*types.Template, error) {
	state, err := d.main.PublishedState(ctx, templateID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: template %d does not exist", types.ErrValidation, templateID)
	}
	if err != nil {
		return nil, err
	}
	if state.Live > 0 {
		return d.main.Get(ctx, templateID, state.Live)
	}
	return d.main.Latest(ctx, templateID)
}

// SQLResolver resolves branches from the wiser_branches table in the main
// database.
type SQLResolver struct {
	gw storage.Gateway
}

// NewSQLResolver wraps the main database gateway.
func NewSQLResolver(gw storage.Gateway) *SQLResolver {
	return &SQLResolver{gw: gw}
}

// Resolve returns the branch with the given id.
func (r *SQLResolver) Resolve(ctx context.Context, branchID int64) (*types.Branch, error) {
	b := &types.Branch{}
	err := r.gw.QueryRowContext(ctx,
		"SELECT id, name, database_name FROM wiser_branches WHERE id = ?", branchID).
		Scan(&b.ID, &b.Name, &b.DatabaseName)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve branch %d: %w", branchID, err)
	}
	return b, nil
}

// ConfigAccess grants branch access from static configuration: either
// everything, or an explicit username -> branch id list.
type ConfigAccess struct {
	AllowAll bool
	Grants   map[string][]int64
}

// CanAccess implements AccessChecker.
func (c ConfigAccess) CanAccess(identity Identity, branch *types.Branch) bool {
	if c.AllowAll {
		return true
	}
	for _, id := range c.Grants[identity.Username] {
		if id == branch.ID {
			return true
		}
	}
	return false
}
