package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"
)

func TestApplyEnvOverridesContext(t *testing.T) {
	t.Setenv(EnvContext, "override-cluster")
	pf := &ProfileFile{Context: "original", Contexts: map[string]*Context{
		"original": {Endpoints: []string{"10.0.0.1"}},
	}}
	ApplyEnvOverrides(pf)
	assert.Equal(t, "override-cluster", pf.Context)
}

func TestApplyEnvOverridesEndpointsCreatesEnvContext(t *testing.T) {
	t.Setenv(EnvEndpoints, "10.0.0.5, 10.0.0.6,,10.0.0.7")
	pf := &ProfileFile{Contexts: map[string]*Context{}}
	ApplyEnvOverrides(pf)
	require.Equal(t, "env", pf.Context)
	ctx := pf.ActiveContext()
	require.NotNil(t, ctx)
	assert.Equal(t, []string{"10.0.0.5", "10.0.0.6", "10.0.0.7"}, ctx.Endpoints)
}

func TestApplyEnvOverridesNodesRequiresActiveContext(t *testing.T) {
	t.Setenv(EnvNodes, "n1,n2")
	pf := &ProfileFile{Contexts: map[string]*Context{}}
	ApplyEnvOverrides(pf)
	assert.Empty(t, pf.Context)
}

func TestApplyEnvOverridesIdempotent(t *testing.T) {
	t.Setenv(EnvContext, "c1")
	t.Setenv(EnvEndpoints, "10.0.0.1,10.0.0.2")
	t.Setenv(EnvNodes, "n1")

	pf1 := &ProfileFile{Contexts: map[string]*Context{}}
	ApplyEnvOverrides(pf1)
	ApplyEnvOverrides(pf1)

	pf2 := &ProfileFile{Contexts: map[string]*Context{}}
	ApplyEnvOverrides(pf2)

	assert.Equal(t, pf2, pf1)
}

func TestNodeTargetCSVRoundTrip(t *testing.T) {
	cases := []NodeTarget{
		NoTarget(),
		SingleTarget("10.0.0.1"),
		MultipleTargets("10.0.0.1", "10.0.0.2"),
	}
	for _, target := range cases {
		csv := target.ToCSV()
		roundTripped := NodeTargetFromCSV(csv)
		assert.Equal(t, target, roundTripped)
	}
}

func TestNodeTargetFromCSVTrimsAndDropsEmpty(t *testing.T) {
	target := NodeTargetFromCSV("10.0.0.1, 10.0.0.2 ,,  ")
	assert.True(t, target.IsMultiple())
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, target.Nodes())
}

func TestNodeTargetFromCSVEmpty(t *testing.T) {
	assert.True(t, NodeTargetFromCSV("").IsNone())
}

func TestNodeTargetApplyToOutgoingContextOmitsHeaderWhenNone(t *testing.T) {
	ctx := NoTarget().ApplyToOutgoingContext(context.Background())
	md, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		assert.Empty(t, md.Get(NodeMetadataKey))
	}
}

func TestNodeTargetApplyToOutgoingContextSetsHeader(t *testing.T) {
	ctx := SingleTarget("10.0.0.9").ApplyToOutgoingContext(context.Background())
	md, ok := metadata.FromOutgoingContext(ctx)
	require.True(t, ok)
	require.Len(t, md.Get(NodeMetadataKey), 1)
	assert.Equal(t, "10.0.0.9", md.Get(NodeMetadataKey)[0])
}
