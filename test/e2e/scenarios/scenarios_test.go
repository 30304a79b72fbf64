package scenarios_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semplan/test/e2e/config"
	"github.com/c360studio/semplan/test/e2e/e2etest"
	"github.com/c360studio/semplan/test/e2e/scenarios"
)

func TestScenarios(t *testing.T) {
	srv := e2etest.Start(t)
	cfg := config.DefaultConfig()
	cfg.HTTPBaseURL = srv.URL
	cfg.MockLLMURL = srv.MockURL
	cfg.SetupTimeout = 5 * time.Second
	cfg.StageTimeout = 10 * time.Second

	for _, sc := range []scenarios.Scenario{
		scenarios.NewGenerateScenario(cfg),
		scenarios.NewChatScenario(cfg),
	} {
		t.Run(sc.Name(), func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, sc.Setup(ctx))

			result, err := sc.Execute(ctx)
			require.NoError(t, err)
			assert.True(t, result.Success, "stages: %+v", result.Stages)
			assert.Empty(t, result.Errors)
			assert.Empty(t, result.Warnings)
			assert.False(t, result.EndTime.IsZero())
			assert.Contains(t, result.Metrics, "llm_calls")

			require.NoError(t, sc.Teardown(ctx))
		})
	}
}

func TestScenarios_WithoutMockStats(t *testing.T) {
	srv := e2etest.Start(t)
	cfg := config.DefaultConfig()
	cfg.HTTPBaseURL = srv.URL
	cfg.MockLLMURL = ""
	cfg.SetupTimeout = 5 * time.Second
	cfg.StageTimeout = 10 * time.Second

	sc := scenarios.NewGenerateScenario(cfg)
	ctx := context.Background()
	require.NoError(t, sc.Setup(ctx))
	result, err := sc.Execute(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success, "stages: %+v", result.Stages)
	assert.Contains(t, result.Warnings, "mock-llm URL not set, skipping call checks")
	assert.NotContains(t, result.Metrics, "llm_calls")
	require.NoError(t, sc.Teardown(ctx))
}

func TestScenarioSetup_Unreachable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.HTTPBaseURL = "http://127.0.0.1:1"
	cfg.SetupTimeout = 600 * time.Millisecond

	err := scenarios.NewGenerateScenario(cfg).Setup(context.Background())
	assert.Error(t, err)
}
