package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestInfo(t *testing.T) {
	u, out, _ := newTestUI()
	u.Info("hello %s", "world")
	assert.Contains(t, out.String(), "hello world")
}

func TestSuccess(t *testing.T) {
	u, out, _ := newTestUI()
	u.Success("done %d", 42)
	assert.Contains(t, out.String(), "done 42")
}

func TestWarning(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Warning("careful %s", "now")
	assert.Contains(t, errOut.String(), "careful now")
}

func TestError(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Error("failed %s", "badly")
	assert.Contains(t, errOut.String(), "failed badly")
}

func TestVerboseLog_Enabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = true
	u.VerboseLog("detail %d", 1)
	assert.Contains(t, out.String(), "detail 1")
}

func TestVerboseLog_Disabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = false
	u.VerboseLog("detail %d", 1)
	assert.Empty(t, out.String())
}

func TestColorHelpers(t *testing.T) {
	// Color helpers should return non-empty strings
	assert.NotEmpty(t, Cyan("test"))
	assert.NotEmpty(t, Green("test"))
	assert.NotEmpty(t, Yellow("test"))
	assert.NotEmpty(t, Red("test"))
}

func TestColumnColor(t *testing.T) {
	assert.NotEmpty(t, ColumnColor("backlog"))
	assert.NotEmpty(t, ColumnColor("active"))
	assert.NotEmpty(t, ColumnColor("in-review"))
	assert.NotEmpty(t, ColumnColor("ready-to-deploy"))
	assert.NotEmpty(t, ColumnColor("production"))
	assert.Equal(t, "limbo", ColumnColor("limbo"))
}

func TestAgentStatusColor(t *testing.T) {
	assert.NotEmpty(t, AgentStatusColor("idle"))
	assert.NotEmpty(t, AgentStatusColor("working"))
	assert.NotEmpty(t, AgentStatusColor("committing"))
	assert.NotEmpty(t, AgentStatusColor("awaiting-review"))
}

func TestTable(t *testing.T) {
	u, out, _ := newTestUI()
	table := u.Table([]string{"Key", "Column"})
	require.NotNil(t, table)

	table.Append([]string{"BPM-1", "backlog"})
	table.Append([]string{"BPM-2", "active"})
	err := table.Render()
	require.NoError(t, err)

	result := out.String()
	assert.True(t, strings.Contains(result, "BPM-1"), "table output should contain task keys")
	assert.True(t, strings.Contains(result, "BPM-2"), "table output should contain task keys")
}
