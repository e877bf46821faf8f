package provision

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePAM = `#%PAM-1.0
auth       include      system-auth
account    include      system-auth
session    include      system-auth
`

const anchor = "auth       include      system-auth"

func TestInsertPAMRuleBeforeAnchor(t *testing.T) {
	rule := PAMAgentRule("/home/ansible/.ssh/authorized_keys")

	updated, changed, err := InsertPAMRule(samplePAM, rule, anchor)
	require.NoError(t, err)
	require.True(t, changed)

	lines := strings.Split(updated, "\n")
	require.Equal(t, "#%PAM-1.0", lines[0])
	assert.Contains(t, lines[1], "pam_ssh_agent_auth.so file=/home/ansible/.ssh/authorized_keys")
	assert.Equal(t, "auth       include      system-auth", lines[2])
}

func TestInsertPAMRuleIsIdempotent(t *testing.T) {
	rule := PAMAgentRule("/home/ansible/.ssh/authorized_keys")

	once, changed, err := InsertPAMRule(samplePAM, rule, anchor)
	require.NoError(t, err)
	require.True(t, changed)

	twice, changed, err := InsertPAMRule(once, rule, anchor)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, once, twice)
}

func TestInsertPAMRuleMatchesDespiteWhitespace(t *testing.T) {
	// A rule already present with different spacing still counts.
	content := "#%PAM-1.0\nauth sufficient pam_ssh_agent_auth.so file=/home/ansible/.ssh/authorized_keys\nauth       include      system-auth\n"
	rule := PAMAgentRule("/home/ansible/.ssh/authorized_keys")

	_, changed, err := InsertPAMRule(content, rule, anchor)
	require.NoError(t, err)
	assert.False(t, changed)

	// An anchor with collapsed spacing is still found.
	content = "#%PAM-1.0\nauth include system-auth\n"
	updated, changed, err := InsertPAMRule(content, rule, anchor)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, updated, "pam_ssh_agent_auth.so")
}

func TestInsertPAMRuleMissingAnchor(t *testing.T) {
	rule := PAMAgentRule("/home/ansible/.ssh/authorized_keys")

	_, _, err := InsertPAMRule("#%PAM-1.0\nauth required pam_deny.so\n", rule, anchor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Anchor line not found")
}
