// Package dbsync materializes view/routine/trigger templates as actual
// database objects.
//
// MySQL has CREATE OR REPLACE for views only. For routines and triggers the
// synchronizer validates a new definition by creating it under a temporary
// name first; only when that compiles does it drop the working object and
// recreate it under the real name. A broken template body therefore never
// destroys the object that is currently live.
package dbsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/wiserhq/templates/internal/storage"
	"github.com/wiserhq/templates/internal/telemetry"
	"github.com/wiserhq/templates/internal/types"
)

// Conn is the narrow database surface the synchronizer needs. Production
// code adapts a storage.Gateway; tests script one.
type Conn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Count(ctx context.Context, query string, args ...any) (int, error)
	Schema() string
}

// Synchronizer creates and replaces database objects for template rows.
type Synchronizer struct {
	conn Conn
}

// NewSynchronizer wraps a gateway-backed connection.
func NewSynchronizer(gw storage.Gateway) *Synchronizer {
	return &Synchronizer{conn: &gatewayConn{gw: gw}}
}

// NewSynchronizerConn wraps an explicit Conn (used by tests).
func NewSynchronizerConn(conn Conn) *Synchronizer {
	return &Synchronizer{conn: conn}
}

// banner marks generated objects so nobody edits them in the database
// directly.
func banner(name string) string {
	return fmt.Sprintf("-- Managed by the Wiser template module (template %q).\n-- Do not edit directly in the database: the next publish overwrites this object.\n", name)
}

// SyncView creates or replaces a view. oldName, when set, is dropped first
// (rename support).
func (s *Synchronizer) SyncView(ctx context.Context, name, oldName, definition string) (ok bool, errorMessage string) {
	ctx, span := telemetry.StartSpan(ctx, "dbsync.SyncView")
	defer span.End()
	defer func() { telemetry.CountObjectSync(ctx, "view", ok) }()

	if oldName != "" && oldName != name {
		if err := s.conn.Exec(ctx, fmt.Sprintf("DROP VIEW IF EXISTS %s", s.qualified(oldName))); err != nil {
			return false, fmt.Sprintf("failed to drop old view %q: %v", oldName, err)
		}
	}
	stmt := fmt.Sprintf("CREATE OR REPLACE SQL SECURITY INVOKER VIEW %s AS\n%s%s",
		s.qualified(name), banner(name), definition)
	if err := s.conn.Exec(ctx, stmt); err != nil {
		return false, fmt.Sprintf("failed to create view %q: %v", name, err)
	}
	return true, ""
}

// RoutineDefinition describes a stored function or procedure template.
type RoutineDefinition struct {
	Name       string
	OldName    string
	Type       types.RoutineType
	Parameters string
	ReturnType string // functions only
	Body       string
}

// SyncRoutine creates or replaces a stored function/procedure using the
// safe-swap protocol.
func (s *Synchronizer) SyncRoutine(ctx context.Context, def RoutineDefinition) (ok bool, errorMessage string) {
	ctx, span := telemetry.StartSpan(ctx, "dbsync.SyncRoutine")
	defer span.End()
	defer func() { telemetry.CountObjectSync(ctx, "routine", ok) }()

	if def.Type != types.RoutineFunction && def.Type != types.RoutineProcedure {
		return false, fmt.Sprintf("unknown routine type %q", def.Type)
	}
	if def.OldName != "" && def.OldName != def.Name {
		if msg := s.dropRoutine(ctx, def.OldName); msg != "" {
			return false, msg
		}
	}
	create := func(name string) string {
		header := fmt.Sprintf("CREATE %s %s(%s)", def.Type, s.qualified(name), def.Parameters)
		if def.Type == types.RoutineFunction {
			header += fmt.Sprintf(" RETURNS %s", def.ReturnType)
		}
		return fmt.Sprintf("%s\nSQL SECURITY INVOKER\n%s%s", header, banner(def.Name), wrapBody(def.Body))
	}
	drop := func(name string) string {
		return fmt.Sprintf("DROP %s IF EXISTS %s", def.Type, s.qualified(name))
	}
	exists, err := s.routineExists(ctx, def.Name)
	if err != nil {
		return false, err.Error()
	}
	return s.safeSwap(ctx, "routine", def.Name, exists, create, drop)
}

// TriggerDefinition describes a trigger template.
type TriggerDefinition struct {
	Name      string
	OldName   string
	Timing    types.TriggerTiming
	Event     types.TriggerEvent
	TableName string
	Body      string
}

// SyncTrigger creates or replaces a trigger using the safe-swap protocol.
func (s *Synchronizer) SyncTrigger(ctx context.Context, def TriggerDefinition) (ok bool, errorMessage string) {
	ctx, span := telemetry.StartSpan(ctx, "dbsync.SyncTrigger")
	defer span.End()
	defer func() { telemetry.CountObjectSync(ctx, "trigger", ok) }()

	if def.OldName != "" && def.OldName != def.Name {
		if err := s.conn.Exec(ctx, fmt.Sprintf("DROP TRIGGER IF EXISTS %s", s.qualified(def.OldName))); err != nil {
			return false, fmt.Sprintf("failed to drop old trigger %q: %v", def.OldName, err)
		}
	}
	create := func(name string) string {
		return fmt.Sprintf("CREATE TRIGGER %s %s %s ON %s FOR EACH ROW\n%s%s",
			s.qualified(name), def.Timing, def.Event,
			s.qualified(def.TableName), banner(def.Name), wrapBody(def.Body))
	}
	drop := func(name string) string {
		return fmt.Sprintf("DROP TRIGGER IF EXISTS %s", s.qualified(name))
	}
	exists, err := s.triggerExists(ctx, def.Name)
	if err != nil {
		return false, err.Error()
	}
	return s.safeSwap(ctx, "trigger", def.Name, exists, create, drop)
}

// safeSwap implements the create-temp-then-swap protocol shared by routines
// and triggers:
//
//  1. When an object with the target name exists, create the new definition
//     under <name>_temp. Failure leaves the existing object untouched; any
//     partial temp object is dropped and the error is returned.
//  2. Drop the temp and the real object, then create the real object.
func (s *Synchronizer) safeSwap(ctx context.Context, kind, name string, exists bool, create func(name string) string, drop func(name string) string) (bool, string) {
	tempName := name + "_temp"
	if exists {
		if err := s.conn.Exec(ctx, create(tempName)); err != nil {
			_ = s.conn.Exec(ctx, drop(tempName))
			return false, fmt.Sprintf("new definition for %s %q does not compile, the existing object was left untouched: %v", kind, name, err)
		}
	}
	if err := s.conn.Exec(ctx, drop(tempName)); err != nil {
		return false, fmt.Sprintf("failed to drop temporary %s %q: %v", kind, tempName, err)
	}
	if err := s.conn.Exec(ctx, drop(name)); err != nil {
		return false, fmt.Sprintf("failed to drop %s %q: %v", kind, name, err)
	}
	if err := s.conn.Exec(ctx, create(name)); err != nil {
		return false, fmt.Sprintf("failed to create %s %q: %v", kind, name, err)
	}
	return true, ""
}

// dropRoutine drops both possible routine kinds under the old name; a
// rename cannot know which kind the old template was.
func (s *Synchronizer) dropRoutine(ctx context.Context, name string) string {
	for _, kind := range []types.RoutineType{types.RoutineFunction, types.RoutineProcedure} {
		if err := s.conn.Exec(ctx, fmt.Sprintf("DROP %s IF EXISTS %s", kind, s.qualified(name))); err != nil {
			return fmt.Sprintf("failed to drop old routine %q: %v", name, err)
		}
	}
	return ""
}

func (s *Synchronizer) routineExists(ctx context.Context, name string) (bool, error) {
	n, err := s.conn.Count(ctx,
		"SELECT COUNT(*) FROM information_schema.ROUTINES WHERE ROUTINE_SCHEMA = ? AND ROUTINE_NAME = ?",
		s.conn.Schema(), name)
	if err != nil {
		return false, fmt.Errorf("failed to check routine %q: %w", name, err)
	}
	return n > 0, nil
}

func (s *Synchronizer) triggerExists(ctx context.Context, name string) (bool, error) {
	n, err := s.conn.Count(ctx,
		"SELECT COUNT(*) FROM information_schema.TRIGGERS WHERE TRIGGER_SCHEMA = ? AND TRIGGER_NAME = ?",
		s.conn.Schema(), name)
	if err != nil {
		return false, fmt.Errorf("failed to check trigger %q: %w", name, err)
	}
	return n > 0, nil
}

func (s *Synchronizer) qualified(name string) string {
	return storage.QuoteIdentifier(s.conn.Schema()) + "." + storage.QuoteIdentifier(name)
}

// wrapBody ensures routine/trigger bodies are a BEGIN...END block. Editors
// save bodies both with and without the block markers.
func wrapBody(body string) string {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(strings.ToUpper(trimmed), "BEGIN") {
		return trimmed
	}
	return "BEGIN\n" + trimmed + "\nEND"
}

// gatewayConn adapts a storage.Gateway to Conn.
type gatewayConn struct {
	gw storage.Gateway
}

func (g *gatewayConn) Exec(ctx context.Context, query string, args ...any) error {
	_, err := g.gw.ExecContext(ctx, query, args...)
	return err
}

func (g *gatewayConn) Count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := g.gw.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (g *gatewayConn) Schema() string { return g.gw.Database() }
