package provision

import (
	"fmt"
	"strings"

	"github.com/enrollkit/enroll/internal/errors"
)

// PAMAgentRule builds the rule that lets a forwarded SSH agent satisfy
// sudo's auth phase.
func PAMAgentRule(authorizedKeysFile string) string {
	return fmt.Sprintf("auth       sufficient   pam_ssh_agent_auth.so file=%s", authorizedKeysFile)
}

// InsertPAMRule returns content with rule inserted immediately before
// the anchor line. The rule is matched and the anchor located with
// whitespace collapsed, so formatting differences don't defeat
// idempotency. An already-present rule leaves content unchanged; a
// missing anchor is an error so a nonstandard PAM stack is never edited
// blind.
func InsertPAMRule(content, rule, anchor string) (string, bool, error) {
	lines := strings.Split(content, "\n")

	for _, line := range lines {
		if normalizeSpace(line) == normalizeSpace(rule) {
			return content, false, nil
		}
	}

	anchorIdx := -1
	for i, line := range lines {
		if normalizeSpace(line) == normalizeSpace(anchor) {
			anchorIdx = i
			break
		}
	}
	if anchorIdx < 0 {
		return "", false, errors.New(errors.ErrProvision,
			fmt.Sprintf("Anchor line not found in PAM service file: %q", anchor),
			"Set pam.anchor in .enroll.yaml to a line that exists in the service file")
	}

	updated := make([]string, 0, len(lines)+1)
	updated = append(updated, lines[:anchorIdx]...)
	updated = append(updated, rule)
	updated = append(updated, lines[anchorIdx:]...)
	return strings.Join(updated, "\n"), true, nil
}

// normalizeSpace collapses runs of whitespace to single spaces and trims.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
