// Package artifact defines the closed set of UI artifact kinds an
// artifact-emitting tool may produce (spec §6), the bounded per-session
// execution ring that records their invocations (spec §3
// ArtifactExecution), and schema/widget-hint generation for the
// form-like kinds.
package artifact

import "time"

// Kind is the closed set of artifact kinds a tool result may declare.
// Closed deliberately: an unrecognized kind is rejected by Parse rather
// than passed through, so a typo in a tool's output never silently
// reaches a UI that doesn't know how to render it.
type Kind string

const (
	KindToolForm       Kind = "toolform"
	KindBatchTool      Kind = "batchtool"
	KindQueryBuilder   Kind = "querybuilder"
	KindSpreadsheet    Kind = "spreadsheet"
	KindChart          Kind = "chart"
	KindCode           Kind = "code"
	KindMarkdown       Kind = "markdown"
	KindFileTree       Kind = "filetree"
	KindTable          Kind = "table"
	KindDiff           Kind = "diff"
	KindTimeline       Kind = "timeline"
	KindKanban         Kind = "kanban"
	KindDiagram        Kind = "diagram"
	KindImage          Kind = "image"
	KindTerminalOutput Kind = "terminal_output"
	KindJSONViewer     Kind = "json_viewer"
	KindCalendar       Kind = "calendar"
)

var knownKinds = map[Kind]bool{
	KindToolForm: true, KindBatchTool: true, KindQueryBuilder: true,
	KindSpreadsheet: true, KindChart: true, KindCode: true, KindMarkdown: true,
	KindFileTree: true, KindTable: true, KindDiff: true, KindTimeline: true,
	KindKanban: true, KindDiagram: true, KindImage: true,
	KindTerminalOutput: true, KindJSONViewer: true, KindCalendar: true,
}

// ValidKind reports whether k is a recognized artifact kind.
func ValidKind(k Kind) bool { return knownKinds[k] }

// formLikeKinds are the kinds whose data includes a JSON-schema plus
// UI-widget hints, rather than raw content (chart/code/markdown/etc. carry
// their own native payload shape instead).
var formLikeKinds = map[Kind]bool{
	KindToolForm: true, KindBatchTool: true, KindQueryBuilder: true,
}

// IsFormLike reports whether k's data should carry a generated schema and
// widget hints alongside its raw properties.
func IsFormLike(k Kind) bool { return formLikeKinds[k] }

// Artifact is one parsed `artifact:<kind> { type, title, data }` block
// from a tool's result text.
type Artifact struct {
	Kind  Kind
	Title string
	Data  map[string]any
}

// Execution records one tool run triggered by a UI artifact (spec §3
// ArtifactExecution), kept in a session's bounded ring.
type Execution struct {
	ID            string
	Timestamp     time.Time
	ArtifactKind  Kind
	ArtifactTitle string
	ToolName      string
	Args          map[string]any
	Result        string
	Summary       string
	Size          int
}
