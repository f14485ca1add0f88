package discovery

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

// FormatSchemaForPrompt renders discovered tables as the schema text
// handed to the translator. One block per table: the view name to query,
// the human display name, the row count, the typed column list, and any
// merged columns with their composition. The header tells the translator
// to put the table names, not the display names, in generated SQL.
func FormatSchemaForPrompt(tables []domain.DiscoveredTable) string {
	if len(tables) == 0 {
		return "No tables are available."
	}

	var b strings.Builder
	b.WriteString("Write SQL against the table names exactly as shown below; the quoted source names are display labels and must not appear in queries.\n\n")
	for i, t := range tables {
		if i > 0 {
			b.WriteString("\n")
		}
		name := t.ViewName
		if name == "" {
			name = t.Name
		}
		fmt.Fprintf(&b, "Table %s (source %q, %d rows):\n", name, t.Name, t.RowCount)
		for _, col := range t.Columns {
			fmt.Fprintf(&b, "  - %s (%s)\n", col.Name, col.Type)
		}
		for _, m := range t.Merges {
			fmt.Fprintf(&b, "  - %s (text, merged from %s with %q)\n",
				m.MergeName, strings.Join(m.Fields, ", "), m.Delimiter)
		}
	}
	return b.String()
}

// FormatSampleRows renders each table's sample row as compact JSON so the
// translator sees representative values, not just types.
func FormatSampleRows(tables []domain.DiscoveredTable) string {
	var b strings.Builder
	for _, t := range tables {
		if len(t.Sample) == 0 {
			continue
		}
		name := t.ViewName
		if name == "" {
			name = t.Name
		}
		fmt.Fprintf(&b, "Sample row from %s: %s\n", name, renderSample(t.Sample))
	}
	if b.Len() == 0 {
		return "No sample rows are available."
	}
	return b.String()
}

// renderSample serializes a sample row with sorted keys for stable
// prompt text.
func renderSample(sample map[string]interface{}) string {
	keys := make([]string, 0, len(sample))
	for k := range sample {
		if k == "row_id" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		v, err := json.Marshal(sample[k])
		if err != nil {
			v = []byte(`"?"`)
		}
		fmt.Fprintf(&b, "%q: %s", k, v)
	}
	b.WriteString("}")
	return b.String()
}

func decodePayload(raw string) (map[string]interface{}, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
