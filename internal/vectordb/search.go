package vectordb

import (
	"fmt"
	"strings"
)

// FormatResults renders search hits as plain text for terminal output.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No matching chunks."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d chunk(s):\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&sb, "--- %d. %s p.%d #%d (similarity %.4f) ---\n",
			i+1, r.Filename, r.Page, r.ChunkID, r.Similarity)
		fmt.Fprintf(&sb, "doc: %s\n\n", r.DocID)
		sb.WriteString(strings.TrimSpace(r.Text))
		sb.WriteString("\n\n")
	}
	return sb.String()
}
