package provision

import "strings"

// Marker lines delimiting a managed region in a config file. The label
// names the tool so an operator reading the file knows what owns the
// block.
const (
	blockBegin = "# BEGIN ENROLL MANAGED BLOCK"
	blockEnd   = "# END ENROLL MANAGED BLOCK"
)

// UpsertBlock returns content with the managed block set to block text.
// Applying the same block twice yields byte-identical output; a changed
// block replaces only the marked region; a file without markers gets the
// block appended. The second return reports whether content changed.
func UpsertBlock(content, block string) (string, bool) {
	block = strings.TrimRight(block, "\n")
	managed := blockBegin + "\n" + block + "\n" + blockEnd + "\n"

	beginIdx := indexLine(content, blockBegin)
	endIdx := indexLine(content, blockEnd)

	var updated string
	if beginIdx >= 0 && endIdx >= 0 && endIdx >= beginIdx {
		// Replace everything from the begin marker through the end
		// marker's line.
		after := content[endIdx:]
		if nl := strings.IndexByte(after, '\n'); nl >= 0 {
			after = after[nl+1:]
		} else {
			after = ""
		}
		updated = content[:beginIdx] + managed + after
	} else {
		updated = content
		if updated != "" && !strings.HasSuffix(updated, "\n") {
			updated += "\n"
		}
		updated += managed
	}

	return updated, updated != content
}

// RemoveBlock strips the managed block, if present.
func RemoveBlock(content string) (string, bool) {
	beginIdx := indexLine(content, blockBegin)
	endIdx := indexLine(content, blockEnd)
	if beginIdx < 0 || endIdx < 0 || endIdx < beginIdx {
		return content, false
	}

	after := content[endIdx:]
	if nl := strings.IndexByte(after, '\n'); nl >= 0 {
		after = after[nl+1:]
	} else {
		after = ""
	}
	return content[:beginIdx] + after, true
}

// indexLine returns the byte offset of the line equal to want (after
// trimming trailing whitespace), or -1.
func indexLine(content, want string) int {
	offset := 0
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimRight(line, " \t\r") == want {
			return offset
		}
		offset += len(line) + 1
	}
	return -1
}
