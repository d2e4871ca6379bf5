package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/chiralgate/session"
)

func TestPrintOutcomes(t *testing.T) {
	var buf bytes.Buffer
	printOutcomes(&buf, []session.Outcome{
		{SubjectID: 1001, GroupID: 555, Kind: session.OutcomeRejected, Attempts: 2, Actor: 42, Reason: "spam", At: time.Now()},
		{SubjectID: 2002, GroupID: 555, Kind: session.OutcomePassed, Attempts: 1, At: time.Now()},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "TIME"))
	// The time column holds a date and a clock, so it spans two fields.
	assert.Equal(t, []string{"1001", "555", "rejected", "2", "42", "spam"}, strings.Fields(lines[1])[2:])
	assert.Equal(t, []string{"2002", "555", "passed", "1", "-"}, strings.Fields(lines[2])[2:])
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, Version+"\n", buf.String())
}
