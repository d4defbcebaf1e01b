package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mammoth-cyber/mammothctl/internal/cli"
)

func TestRun_Help(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	errW := &bytes.Buffer{}

	err := run(out, errW, []string{"--help"})

	require.NoError(t, err, "help should exit cleanly")
	require.Contains(t, out.String(), "mammothctl", "expected help text on stdout")
}

func TestRun_UnknownFlag(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	errW := &bytes.Buffer{}

	err := run(out, errW, []string{"list-se", "--this-is-not-a-valid-flag"})

	require.Error(t, err)
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 2, exitErr.Code, "usage errors exit with code 2")
}

func TestRun_UnknownCommand(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	errW := &bytes.Buffer{}

	err := run(out, errW, []string{"frobnicate"})
	require.Error(t, err)
}
