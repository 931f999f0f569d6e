// Package types defines core data structures for the Wiser template module.
package types

import (
	"fmt"
	"strings"
	"time"
)

// TemplateType classifies what kind of source a template row holds.
type TemplateType string

const (
	TypeUnknown   TemplateType = "unknown"
	TypeHTML      TemplateType = "html"
	TypeCSS       TemplateType = "css"
	TypeSCSS      TemplateType = "scss"
	TypeJS        TemplateType = "js"
	TypeQuery     TemplateType = "query"
	TypeXML       TemplateType = "xml"
	TypeAIS       TemplateType = "ais"
	TypeView      TemplateType = "view"
	TypeRoutine   TemplateType = "routine"
	TypeTrigger   TemplateType = "trigger"
	TypeDirectory TemplateType = "directory"
)

// IsValid reports whether t is a known template type.
func (t TemplateType) IsValid() bool {
	switch t {
	case TypeHTML, TypeCSS, TypeSCSS, TypeJS, TypeQuery, TypeXML, TypeAIS,
		TypeView, TypeRoutine, TypeTrigger, TypeDirectory, TypeUnknown:
		return true
	}
	return false
}

// Environment is a publish stage. Values are a bitmask so that one version
// row can be published to several environments at once.
type Environment int

const (
	EnvNone        Environment = 0
	EnvDevelopment Environment = 1
	EnvTest        Environment = 2
	EnvAcceptance  Environment = 4
	EnvLive        Environment = 8
)

// AllEnvironments lists the promotion stages in ladder order.
var AllEnvironments = []Environment{EnvDevelopment, EnvTest, EnvAcceptance, EnvLive}

// ParseEnvironment converts a user-supplied environment name.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development", "dev":
		return EnvDevelopment, nil
	case "test":
		return EnvTest, nil
	case "acceptance", "accept":
		return EnvAcceptance, nil
	case "live", "production":
		return EnvLive, nil
	}
	return EnvNone, fmt.Errorf("unknown environment %q (want development, test, acceptance or live)", s)
}

func (e Environment) String() string {
	switch e {
	case EnvDevelopment:
		return "development"
	case EnvTest:
		return "test"
	case EnvAcceptance:
		return "acceptance"
	case EnvLive:
		return "live"
	case EnvNone:
		return "none"
	}
	return fmt.Sprintf("environment(%d)", int(e))
}

// RoutineType distinguishes stored functions from procedures.
type RoutineType string

const (
	RoutineFunction  RoutineType = "FUNCTION"
	RoutineProcedure RoutineType = "PROCEDURE"
)

// TriggerTiming is the BEFORE/AFTER part of a trigger definition.
type TriggerTiming string

const (
	TriggerBefore TriggerTiming = "BEFORE"
	TriggerAfter  TriggerTiming = "AFTER"
)

// TriggerEvent is the INSERT/UPDATE/DELETE part of a trigger definition.
type TriggerEvent string

const (
	TriggerInsert TriggerEvent = "INSERT"
	TriggerUpdate TriggerEvent = "UPDATE"
	TriggerDelete TriggerEvent = "DELETE"
)

// Template is one version row of a template. Versions are append-only: a
// save creates a new row with the next version number, existing rows are
// never updated in place. Deleting sets Removed on the latest version.
type Template struct {
	TemplateID int64        `json:"template_id"`
	Version    int          `json:"version"`
	Name       string       `json:"name"`
	Type       TemplateType `json:"type"`
	ParentID   int64        `json:"parent_id,omitempty"`
	Ordering   int          `json:"ordering,omitempty"`

	EditorValue   string  `json:"editor_value,omitempty"`
	MinifiedValue *string `json:"minified_value,omitempty"`

	// Environments this version row is published to (bitmask).
	PublishedEnvironment Environment `json:"published_environment,omitempty"`

	// HTML templates only.
	URLRegex   string `json:"url_regex,omitempty"`
	LoadAlways bool   `json:"load_always,omitempty"`

	// Linked external files, semicolon-joined absolute URLs.
	ExternalFiles string `json:"external_files,omitempty"`

	// Routine templates only.
	RoutineType       RoutineType `json:"routine_type,omitempty"`
	RoutineParameters string      `json:"routine_parameters,omitempty"`
	RoutineReturnType string      `json:"routine_return_type,omitempty"`

	// Trigger templates only.
	TriggerTiming    TriggerTiming `json:"trigger_timing,omitempty"`
	TriggerEvent     TriggerEvent  `json:"trigger_event,omitempty"`
	TriggerTableName string        `json:"trigger_table_name,omitempty"`

	ChangedOn time.Time `json:"changed_on"`
	ChangedBy string    `json:"changed_by,omitempty"`
	Removed   bool      `json:"removed,omitempty"`
}

// Validate checks the fields every save path requires.
func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if !t.Type.IsValid() {
		return fmt.Errorf("invalid template type %q", t.Type)
	}
	if t.Type == TypeRoutine && t.RoutineType != RoutineFunction && t.RoutineType != RoutineProcedure {
		return fmt.Errorf("routine template needs a routine type (FUNCTION or PROCEDURE)")
	}
	if t.Type == TypeTrigger && t.TriggerTableName == "" {
		return fmt.Errorf("trigger template needs a table name")
	}
	return nil
}

// PublishedEnvironments maps each promotion stage to the version currently
// published there (0 = nothing published), plus the full list of versions
// that exist for the template. Derived from version rows on read, never
// stored as a single row.
type PublishedEnvironments struct {
	Development int   `json:"development"`
	Test        int   `json:"test"`
	Acceptance  int   `json:"acceptance"`
	Live        int   `json:"live"`
	VersionList []int `json:"version_list"`
}

// Version returns the version currently published to env.
func (p *PublishedEnvironments) Version(env Environment) int {
	switch env {
	case EnvDevelopment:
		return p.Development
	case EnvTest:
		return p.Test
	case EnvAcceptance:
		return p.Acceptance
	case EnvLive:
		return p.Live
	}
	return 0
}

// SetVersion updates the entry for env, leaving the other stages untouched.
func (p *PublishedEnvironments) SetVersion(env Environment, version int) {
	switch env {
	case EnvDevelopment:
		p.Development = version
	case EnvTest:
		p.Test = version
	case EnvAcceptance:
		p.Acceptance = version
	case EnvLive:
		p.Live = version
	}
}

// PublishLogEntry is the immutable audit record appended on every promotion.
// Unchanged environments carry identical old/new values.
type PublishLogEntry struct {
	ID             int64     `json:"id,omitempty"`
	TemplateID     int64     `json:"template_id"`
	OldLive        int       `json:"old_live"`
	NewLive        int       `json:"new_live"`
	OldAcceptance  int       `json:"old_acceptance"`
	NewAcceptance  int       `json:"new_acceptance"`
	OldTest        int       `json:"old_test"`
	NewTest        int       `json:"new_test"`
	OldDevelopment int       `json:"old_development"`
	NewDevelopment int       `json:"new_development"`
	ChangedOn      time.Time `json:"changed_on"`
	ChangedBy      string    `json:"changed_by"`
}

// Branch identifies an isolated per-branch database. Branches have no
// dev/test/acceptance ladder; their only stage is live.
type Branch struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	DatabaseName string `json:"database_name"`
}

// DynamicContent is a reusable component instance embedded in an HTML
// template.
type DynamicContent struct {
	ID        int64     `json:"id"`
	Component string    `json:"component"`
	Mode      int       `json:"mode"`
	Title     string    `json:"title"`
	Settings  string    `json:"settings"` // JSON
	ChangedOn time.Time `json:"changed_on"`
	ChangedBy string    `json:"changed_by,omitempty"`
}

// TemplateMeta is the tree/search projection of a template: latest version
// info without the body payloads.
type TemplateMeta struct {
	TemplateID    int64        `json:"template_id"`
	ParentID      int64        `json:"parent_id,omitempty"`
	Name          string       `json:"name"`
	Type          TemplateType `json:"type"`
	LatestVersion int          `json:"latest_version"`
	Ordering      int          `json:"ordering"`
	ChangedOn     time.Time    `json:"changed_on"`
	ChangedBy     string       `json:"changed_by,omitempty"`
	HasChildren   bool         `json:"has_children,omitempty"`
}
