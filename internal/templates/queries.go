package templates

import "fmt"

// Query is one named statement from the module's query dictionary, tagged
// with the feature group it belongs to.
type Query struct {
	Group string
	Text  string
}

const allColumns = `template_id, parent_id, template_name, template_type, version,
	template_data, template_data_minified, published_environment, url_regex, load_always,
	external_files, routine_type, routine_parameters, routine_return_type,
	trigger_timing, trigger_event, trigger_table_name, ordering, changed_on, changed_by, removed`

const metaColumns = `template_id, parent_id, template_name, template_type, version,
	ordering, changed_on, changed_by`

// queries is the module's query dictionary: an immutable mapping built at
// init time, keyed by operation name.
var queries = map[string]Query{
	"latest_version": {
		Group: "versions",
		Text:  `SELECT COALESCE(MAX(version), 0) FROM wiser_template WHERE template_id = ?`,
	},
	"next_template_id": {
		Group: "versions",
		Text:  `SELECT COALESCE(MAX(template_id), 0) + 1 FROM wiser_template`,
	},
	"get_version": {
		Group: "versions",
		Text: `SELECT ` + allColumns + `
			FROM wiser_template WHERE template_id = ? AND version = ?`,
	},
	"get_latest": {
		Group: "versions",
		Text: `SELECT ` + allColumns + `
			FROM wiser_template
			WHERE template_id = ? AND removed = 0
			ORDER BY version DESC LIMIT 1`,
	},
	"insert_version": {
		Group: "versions",
		Text: `INSERT INTO wiser_template (` + allColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	},
	"get_metadata": {
		Group: "tree",
		Text: `SELECT ` + metaColumns + `
			FROM wiser_template t
			WHERE template_id = ? AND removed = 0
			ORDER BY version DESC LIMIT 1`,
	},
	"list_tree": {
		Group: "tree",
		Text: `SELECT ` + metaColumns + `,
			EXISTS(SELECT 1 FROM wiser_template c WHERE c.parent_id = t.template_id AND c.removed = 0) AS has_children
			FROM wiser_template t
			WHERE t.parent_id = ?
			  AND t.removed = 0
			  AND t.version = (SELECT MAX(v.version) FROM wiser_template v WHERE v.template_id = t.template_id)
			ORDER BY t.ordering, t.template_name`,
	},
	"search": {
		Group: "tree",
		Text: `SELECT ` + metaColumns + `
			FROM wiser_template t
			WHERE t.removed = 0
			  AND t.version = (SELECT MAX(v.version) FROM wiser_template v WHERE v.template_id = t.template_id)
			  AND (t.template_name LIKE CONCAT('%', ?, '%') OR t.template_data LIKE CONCAT('%', ?, '%'))
			ORDER BY t.template_name`,
	},
	"move": {
		Group: "tree",
		Text: `UPDATE wiser_template SET parent_id = ?, ordering = ?, changed_on = ?, changed_by = ?
			WHERE template_id = ?`,
	},
	"rename": {
		Group: "tree",
		Text: `UPDATE wiser_template SET template_name = ?, changed_on = ?, changed_by = ?
			WHERE template_id = ?`,
	},
	"soft_delete": {
		Group: "tree",
		Text: `UPDATE wiser_template SET removed = 1, changed_on = ?, changed_by = ?
			WHERE template_id = ?`,
	},
	"published_state": {
		Group: "publish",
		Text: `SELECT version, published_environment FROM wiser_template
			WHERE template_id = ? AND removed = 0 ORDER BY version`,
	},
	"clear_environment_bit": {
		Group: "publish",
		Text: `UPDATE wiser_template SET published_environment = published_environment & ~?
			WHERE template_id = ? AND (published_environment & ?) > 0`,
	},
	"set_environment_bit": {
		Group: "publish",
		Text: `UPDATE wiser_template SET published_environment = published_environment | ?
			WHERE template_id = ? AND version = ?`,
	},
	"insert_publish_log": {
		Group: "publish",
		Text: `INSERT INTO wiser_template_publish_log
			(template_id, old_live, new_live, old_accept, new_accept, old_test, new_test,
			 old_development, new_development, changed_on, changed_by)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	},
}

// query looks up a named statement; a missing name is a programming error.
func query(name string) string {
	q, ok := queries[name]
	if !ok {
		panic(fmt.Sprintf("templates: unknown query %q", name))
	}
	return q.Text
}
