package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDemo(t *testing.T) {
	var out strings.Builder
	require.NoError(t, runDemo(&out, zaptest.NewLogger(t)))

	want := []string{
		"original:                    hello",
		"first redefinition:          hello!",
		"first still started:         false",
		"second redefinition:         hello!!!",
		"second stopped:              hello!",
		"first restarted:             hello!",
		"first closed:                hello",
	}
	assert.Equal(t, want, strings.Split(strings.TrimSpace(out.String()), "\n"))
}

func TestStress(t *testing.T) {
	logger = zaptest.NewLogger(t)
	stressOpts.redefinitions = 4
	stressOpts.workers = 4
	stressOpts.iterations = 200
	stressOpts.seed = 1

	stressCmd.SetContext(context.Background())
	assert.NoError(t, runStress(stressCmd, nil))
}

func TestStressOptions_Validate(t *testing.T) {
	assert := assert.New(t)

	valid := stressOptions{redefinitions: 1, workers: 1}
	assert.NoError(valid.validate())

	cases := map[string]struct {
		opts stressOptions
		want []string
	}{
		"iterations": {
			opts: stressOptions{redefinitions: 1, workers: 1, iterations: -1},
			want: []string{"--iterations", "-1"},
		},
		"workers": {
			opts: stressOptions{redefinitions: 1},
			want: []string{"--workers"},
		},
		"everything": {
			opts: stressOptions{iterations: -5},
			want: []string{"--redefinitions", "--workers", "--iterations"},
		},
	}
	for name, tc := range cases {
		err := tc.opts.validate()
		if assert.Error(err, name) {
			for _, w := range tc.want {
				assert.Contains(err.Error(), w, name)
			}
		}
	}

	stressOpts = stressOptions{redefinitions: 2, workers: 2, iterations: -1}
	err := runStress(stressCmd, nil)
	assert.ErrorContains(err, "--iterations")
}
