package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDate(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2024, 6, 15, 2, 30, 0, 0, time.UTC)

	got, err := runDate("", "America/New_York", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 14, 0, 0, 0, 0, ny), got)

	got, err = runDate("2024-05-31", "America/New_York", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 31, 0, 0, 0, 0, ny), got)

	_, err = runDate("31/05/2024", "America/New_York", now)
	assert.ErrorContains(t, err, "invalid --date")

	_, err = runDate("", "Nowhere/Land", now)
	assert.Error(t, err)
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "run", "migrate"}, names)

	run, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	assert.NotNil(t, run.Flags().Lookup("date"))
}
