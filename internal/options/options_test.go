package options

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	iters int
	tol   float64
}

func TestApply(t *testing.T) {
	require := require.New(t)

	cfg := &testConfig{}
	err := Apply(cfg,
		NoError(func(c *testConfig) { c.iters = 100 }),
		New(func(c *testConfig) error {
			c.tol = 1e-5
			return nil
		}),
	)
	require.NoError(err)
	require.Equal(100, cfg.iters)
	require.Equal(1e-5, cfg.tol)
}

func TestApplyStopsAtFirstError(t *testing.T) {
	require := require.New(t)

	sentinel := errors.New("bad value")
	cfg := &testConfig{}
	err := Apply(cfg,
		NoError(func(c *testConfig) { c.iters = 1 }),
		New(func(c *testConfig) error { return sentinel }),
		NoError(func(c *testConfig) { c.iters = 2 }),
	)
	require.ErrorIs(err, sentinel)
	require.Equal(1, cfg.iters, "options after the failing one must not run")
}

func TestApplyNoOptions(t *testing.T) {
	require.NoError(t, Apply(&testConfig{}))
}
