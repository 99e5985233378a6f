package app

import (
	"fmt"
	"io"
)

// PrintIngestResults writes one summary line per document
func PrintIngestResults(w io.Writer, results []IngestResult) {
	for _, r := range results {
		if r.Skipped {
			fmt.Fprintf(w, "⏭️  %s unchanged (%s, %d chunks)\n", r.Source, r.DocID, r.Chunks)
			continue
		}
		fmt.Fprintf(w, "✅ %s indexed as %s: %d blocks, %d chunks, %d tokens\n", r.Source, r.DocID, r.Blocks, r.Chunks, r.Tokens)
	}
}

// PrintAnswer writes the answer followed by its sources
func PrintAnswer(w io.Writer, ans Answer) {
	fmt.Fprintf(w, "\n%s\n", ans.Text)
	if ans.Outcome == OutcomeDegraded {
		fmt.Fprintf(w, "⚠️  answer degraded: %v\n", ans.GenerationErr)
	}
	if ans.RetrievalErr != nil {
		fmt.Fprintf(w, "⚠️  retrieval failed: %v\n", ans.RetrievalErr)
	}
	for i, s := range ans.Sources {
		fmt.Fprintf(w, "   %d. %s [%s] (similarity: %.2f)\n", i+1, s.Source, s.Section, s.Similarity)
	}
	fmt.Fprintln(w)
}
