package report

import (
	"sort"
	"strings"

	"github.com/srodi/procscope/pkg/types"
)

// TopByCPU returns the busiest rows by CPU percent up to topK. Rows with no
// measured CPU this cycle are omitted.
func TopByCPU(rows []types.Row, topK int) []types.Row {
	candidates := make([]types.Row, 0, len(rows))
	for _, row := range rows {
		if row.CPUPercent == 0 {
			continue
		}
		candidates = append(candidates, row)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CPUPercent == candidates[j].CPUPercent {
			return candidates[i].Name < candidates[j].Name
		}
		return candidates[i].CPUPercent > candidates[j].CPUPercent
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}

// TopByMemory returns the heaviest rows by aggregate resident memory up to
// topK.
func TopByMemory(rows []types.Row, topK int) []types.Row {
	candidates := make([]types.Row, len(rows))
	copy(candidates, rows)
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].MemoryBytes == candidates[j].MemoryBytes {
			return candidates[i].Name < candidates[j].Name
		}
		return candidates[i].MemoryBytes > candidates[j].MemoryBytes
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}

// FilterRows keeps rows whose name contains the query, case-insensitively.
// An empty query keeps everything.
func FilterRows(rows []types.Row, query string) []types.Row {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return rows
	}
	filtered := make([]types.Row, 0, len(rows))
	for _, row := range rows {
		if strings.Contains(strings.ToLower(row.Name), query) {
			filtered = append(filtered, row)
		}
	}
	return filtered
}
