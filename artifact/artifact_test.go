package artifact

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFencedArtifactBlock(t *testing.T) {
	text := "Here's a form:\n```\nartifact:toolform {\"title\":\"Deploy\",\"data\":{\"env\":\"prod\"}}\n```\nDone."
	found := Parse(text)
	require.Len(t, found, 1)
	require.Equal(t, KindToolForm, found[0].Kind)
	require.Equal(t, "Deploy", found[0].Title)
	require.Equal(t, "prod", found[0].Data["env"])
}

func TestParseIgnoresUnknownKind(t *testing.T) {
	text := `artifact:bogus_kind {"title":"x","data":{}}`
	require.Empty(t, Parse(text))
}

func TestParseSkipsMalformedBlock(t *testing.T) {
	text := `artifact:chart {"title": not valid json}`
	require.Empty(t, Parse(text))
}

func TestParseFindsMultipleBlocks(t *testing.T) {
	text := `artifact:code {"title":"a","data":{}} and artifact:markdown {"title":"b","data":{}}`
	found := Parse(text)
	require.Len(t, found, 2)
	require.Equal(t, KindCode, found[0].Kind)
	require.Equal(t, KindMarkdown, found[1].Kind)
}

func TestValidKindClosedSet(t *testing.T) {
	require.True(t, ValidKind(KindSpreadsheet))
	require.False(t, ValidKind(Kind("not_a_real_kind")))
	require.GreaterOrEqual(t, len(knownKinds), 15)
}

func TestIsFormLikeOnlyFormKinds(t *testing.T) {
	require.True(t, IsFormLike(KindToolForm))
	require.True(t, IsFormLike(KindQueryBuilder))
	require.False(t, IsFormLike(KindChart))
}

func TestBuildFormSchemaInfersTypesAndWidgets(t *testing.T) {
	data := map[string]any{
		"email":   "a@b.com",
		"enabled": true,
		"count":   float64(3),
		"tags":    []any{"x", "y"},
	}
	schema, hints := BuildFormSchema(data)
	require.Equal(t, "object", schema.Type)
	require.Equal(t, "string", schema.Properties["email"].Type)
	require.Equal(t, "boolean", schema.Properties["enabled"].Type)
	require.Equal(t, "number", schema.Properties["count"].Type)
	require.Equal(t, "array", schema.Properties["tags"].Type)
	require.Equal(t, "email", hints["email"])
	require.Equal(t, "checkbox", hints["enabled"])
	require.Equal(t, "multiselect", hints["tags"])
}

func TestRingEvictsOldestBeyondCapacity(t *testing.T) {
	r := NewRing(2)
	r.Add(&Execution{ID: "1"})
	r.Add(&Execution{ID: "2"})
	r.Add(&Execution{ID: "3"})

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "2", snap[0].ID)
	require.Equal(t, "3", snap[1].ID)
}

func TestRingDefaultsToFiftyCapacity(t *testing.T) {
	r := NewRing(0)
	for i := 0; i < 60; i++ {
		r.Add(&Execution{ID: "x"})
	}
	require.Equal(t, 50, r.Len())
}

func TestRenderContextEmptyForNoExecutions(t *testing.T) {
	require.Equal(t, "", RenderContext(nil))
}

func TestRenderContextFormatsEntries(t *testing.T) {
	out := RenderContext([]*Execution{{ArtifactKind: KindChart, ArtifactTitle: "Sales", ToolName: "query_db", Summary: "12 rows"}})
	require.Contains(t, out, "Sales")
	require.Contains(t, out, "query_db")
	require.Contains(t, out, "12 rows")
}
