// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package docsync

import "fmt"

// FormatSize renders a byte count as B, KB or MB.
func FormatSize(size int64) string {
	switch {
	case size <= 0:
		return "Noma'lum"
	case size < 1024:
		return fmt.Sprintf("%d B", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	}
}
