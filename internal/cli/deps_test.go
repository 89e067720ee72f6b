package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/matzehuels/stacksync/pkg/snapshot"
)

var fixtureSnapshot = snapshot.Snapshot{
	"left-pad":  {Request: "^1.0.0", Resolved: "1.3.0", Latest: "1.3.0"},
	"lodash":    {Request: "^4.0.0", Resolved: "4.17.0", Latest: "4.17.21"},
	"missing":   {Request: "^2.0.0", Latest: "2.0.1"},
	"broken":    {Request: "not a range", Invalid: true, Latest: "1.0.0"},
	"shared":    {Request: "workspace:*", Resolved: "0.0.1", Workspace: true},
	"offline":   {Request: "^1.0.0", Resolved: "1.0.0"},
	"downgrade": {Request: "^3.0.0", Resolved: "3.1.0", Latest: "3.0.9"},
}

func TestDependencyStatus(t *testing.T) {
	want := map[string]string{
		"left-pad":  statusOK,
		"lodash":    statusOutdated,
		"missing":   statusMissing,
		"broken":    statusInvalid,
		"shared":    statusWorkspace,
		"offline":   statusOK,
		"downgrade": statusOK,
	}
	for name, status := range want {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, status, dependencyStatus(fixtureSnapshot[name]))
		})
	}
}

func TestDependencyRows(t *testing.T) {
	rows := dependencyRows(fixtureSnapshot)
	assert.Len(t, rows, len(fixtureSnapshot))
	assert.Equal(t, []string{"broken", "not a range", "-", "1.0.0", statusInvalid}, rows[0])
	assert.Equal(t, []string{"missing", "^2.0.0", "-", "2.0.1", statusMissing}, rows[4])
	assert.Equal(t, []string{"offline", "^1.0.0", "1.0.0", "-", statusOK}, rows[5])
}

func TestDependencyTable(t *testing.T) {
	out := dependencyTable(fixtureSnapshot)
	for _, s := range []string{"Package", "Status", "lodash", "4.17.21", "workspace:*"} {
		assert.Contains(t, out, s)
	}
}

func TestFilterOutdated(t *testing.T) {
	got := filterOutdated(fixtureSnapshot)
	assert.Equal(t, []string{"lodash"}, got.Names())
}

func TestSummarize(t *testing.T) {
	got := summarize(fixtureSnapshot)
	assert.Equal(t, []count{
		{7, "dependencies"},
		{1, statusOutdated},
		{1, statusMissing},
		{1, statusInvalid},
		{1, statusWorkspace},
	}, got)
}
