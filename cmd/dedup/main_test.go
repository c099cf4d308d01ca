package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/docid"
	apperrors "github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSince(t *testing.T) {
	at, id, err := parseSince("1349049600")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2012, 10, 1, 0, 0, 0, 0, time.UTC), at)
	assert.Equal(t, docid.FromTime(at), id)
}

func TestParseSinceRejectsGarbage(t *testing.T) {
	for _, arg := range []string{"yesterday", "", "12.5", "-1"} {
		_, _, err := parseSince(arg)
		require.Error(t, err, "arg %q", arg)
		assert.ErrorIs(t, err, apperrors.ErrInvalidTimestamp)
		assert.Equal(t, apperrors.ExitConfig, apperrors.ExitCode(err))
	}
}

func TestRunArgs(t *testing.T) {
	assert.NoError(t, validateRunArgs(nil, []string{"commits"}))
	assert.NoError(t, validateRunArgs(nil, []string{"commits", "1349049600"}))
	for _, args := range [][]string{nil, {"a", "b", "c"}} {
		err := validateRunArgs(nil, args)
		assert.Equal(t, apperrors.ExitConfig, apperrors.ExitCode(err))
	}
}

func TestRunFailsFastOnConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"unknown collection", []string{"run", "users"}, apperrors.ErrUnknownCollection},
		{"bad timestamp", []string{"run", "events", "soon"}, apperrors.ErrInvalidTimestamp},
		{"no collection", []string{"run"}, apperrors.ErrInvalidConfig},
		{"resume without checkpoints", []string{"run", "events", "--resume"}, apperrors.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRootCmd()
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetErr(&out)
			root.SetArgs(tt.args)
			err := root.Execute()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, apperrors.ExitConfig, apperrors.ExitCode(err))
		})
	}
}
