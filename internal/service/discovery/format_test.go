package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

func TestFormatSchemaForPrompt(t *testing.T) {
	tables := []domain.DiscoveredTable{{
		Name:     "People",
		ViewName: "u1_file_people",
		RowCount: 2,
		Columns: []domain.DiscoveredColumn{
			{Name: "age", Type: domain.TypeInteger},
			{Name: "name", Type: domain.TypeText},
		},
		Merges: []domain.MergedColumnDefinition{{
			MergeName: "full_name", Fields: []string{"first", "last"}, Delimiter: " ",
		}},
	}}

	out := FormatSchemaForPrompt(tables)
	assert.Contains(t, out, "Write SQL against the table names exactly as shown below",
		"the prompt must tell the translator to use view names, not display labels")
	assert.Contains(t, out, `Table u1_file_people (source "People", 2 rows):`)
	assert.Contains(t, out, "- age (integer)")
	assert.Contains(t, out, "- name (text)")
	assert.Contains(t, out, `- full_name (text, merged from first, last with " ")`)
}

func TestFormatSchemaForPrompt_FallbackTableUsesDisplayName(t *testing.T) {
	out := FormatSchemaForPrompt([]domain.DiscoveredTable{{Name: "Orders", RowCount: 1}})
	assert.Contains(t, out, `Table Orders (source "Orders", 1 rows):`)
}

func TestFormatSchemaForPrompt_Empty(t *testing.T) {
	assert.Equal(t, "No tables are available.", FormatSchemaForPrompt(nil))
}

func TestFormatSampleRows(t *testing.T) {
	tables := []domain.DiscoveredTable{{
		ViewName: "u1_file_people",
		Sample: map[string]interface{}{
			"row_id": int64(1),
			"name":   "John",
			"age":    "42",
		},
	}}

	out := FormatSampleRows(tables)
	assert.Equal(t, "Sample row from u1_file_people: {\"age\": \"42\", \"name\": \"John\"}\n", out,
		"keys sorted, row_id excluded")
}

func TestFormatSampleRows_NoSamples(t *testing.T) {
	assert.Equal(t, "No sample rows are available.", FormatSampleRows([]domain.DiscoveredTable{{}}))
}
