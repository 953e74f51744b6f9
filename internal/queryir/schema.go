package queryir

// Source names a queryable history table.
type Source string

const (
	SourceRuns       Source = "runs"
	SourceLogEntries Source = "log_entries"
)

// Table describes the columns of a source and its stable ordering key.
type Table struct {
	Columns []string
	Key     []Order
}

// Schema lists the sources a query may read.
var Schema = map[Source]Table{
	SourceRuns: {
		Columns: []string{"id", "project", "program_hash", "status", "error", "started_at", "finished_at", "steps"},
		Key:     []Order{{Field: "id"}},
	},
	SourceLogEntries: {
		Columns: []string{"run_id", "seq", "elapsed_ns", "timestamp", "node_id", "level", "activity", "message"},
		Key:     []Order{{Field: "run_id"}, {Field: "seq"}},
	},
}

// HasColumn reports whether the table has a column named field.
func (t Table) HasColumn(field string) bool {
	for _, c := range t.Columns {
		if c == field {
			return true
		}
	}
	return false
}
