package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/paperpulse/internal/config"
	"github.com/elonfeng/paperpulse/pkg/source"
)

func TestBuildSources(t *testing.T) {
	cfg := config.Default()
	cfg.Sources.ArXivRSS.Enabled = true

	all, err := buildSources(cfg, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	picked, err := buildSources(cfg, []string{" ARXIV-RSS "})
	require.NoError(t, err)
	require.Len(t, picked, 1)
	assert.Equal(t, source.SourceArXivRSS, picked[0].Name())

	_, err = buildSources(cfg, []string{"hn"})
	assert.ErrorContains(t, err, "no enabled sources match")
}

func TestBuildCounters(t *testing.T) {
	cfg := config.Default()
	cfg.Citations.Provider = config.ProviderOpenAlex

	c := buildCitationCounter(cfg, nil)
	require.NotNil(t, c)
	assert.Equal(t, "openalex", c.Name())
	assert.Equal(t, "github", buildMentionCounter(cfg, nil).Name())

	cfg.Citations.Enabled = false
	cfg.Mentions.Enabled = false
	assert.Nil(t, buildCitationCounter(cfg, nil))
	assert.Nil(t, buildMentionCounter(cfg, nil))
}

func TestBuildNotifierDisabledWithoutDestinations(t *testing.T) {
	assert.Nil(t, buildNotifier(config.Default(), nil))

	cfg := config.Default()
	cfg.Alerts.Webhook = config.WebhookConfig{Enabled: true, URL: "http://localhost:9/hook"}
	assert.NotNil(t, buildNotifier(cfg, nil))
}

func TestResolveDate(t *testing.T) {
	d, err := resolveDate("2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", d)

	_, err = resolveDate("March 10")
	assert.Error(t, err)

	d, err = resolveDate("")
	require.NoError(t, err)
	assert.Len(t, d, len("2006-01-02"))
}

func TestRootCommands(t *testing.T) {
	root := rootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"collect", "rescore", "rank", "serve", "run"})
}
