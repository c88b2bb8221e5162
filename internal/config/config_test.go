package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
discord:
  token: ${TEST_BOT_TOKEN}
  channel_id: "1467891770451955858"
boards:
  - key: notice
    display_name: Notice
    club_id: "31103664"
    menu_id: "1"
    link_base: https://cafe.naver.com/hatopia
  - key: free
    strategy: scrape
    page_url: https://cafe.naver.com/hatopia?iframe_url=/ArticleList.nhn
    link_base: https://cafe.naver.com/hatopia
sync:
  every_minutes: 10
`

func TestParse_ExpandsEnvAndSetsDefaults(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "secret")

	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Discord.Token)
	assert.Equal(t, 10, cfg.Sync.EveryMinutes)
	assert.Equal(t, "file", cfg.State.Backend)
	assert.Equal(t, "last_posts.json", cfg.State.Path)
	assert.Equal(t, 20*time.Second, cfg.Cafe.Timeout)
	assert.Equal(t, 500, cfg.Wiki.MaxExtract)
	assert.Equal(t, "cafe-notifier/1.0 (discord bot)", cfg.Wiki.UserAgent)
	assert.Equal(t, "info", cfg.LogLevel)
	require.NoError(t, cfg.Validate())

	boards := cfg.DomainBoards()
	require.Len(t, boards, 2)
	assert.Equal(t, "notice", boards[0].Key)
	assert.Equal(t, "api", boards[0].Strategy)
	assert.Equal(t, "free", boards[1].DisplayName)
	assert.Equal(t, "scrape", boards[1].Strategy)
}

func TestParse_TokenFallsBackToEnv(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("TOKEN", "from-token")

	cfg, err := Parse([]byte("discord:\n  channel_id: \"1\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-token", cfg.Discord.Token)
}

func TestValidate_MissingToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("TOKEN", "")

	cfg, err := Parse([]byte("discord:\n  channel_id: \"1\"\n"))
	require.NoError(t, err)
	assert.ErrorIs(t, cfg.Validate(), ErrMissingToken)
}

func TestParse_RejectsBadBoards(t *testing.T) {
	cases := map[string]string{
		"missing key":      "boards:\n  - club_id: \"1\"\n    menu_id: \"1\"\n    link_base: x\n",
		"duplicate key":    "boards:\n  - {key: a, club_id: \"1\", menu_id: \"1\", link_base: x}\n  - {key: a, club_id: \"1\", menu_id: \"2\", link_base: x}\n",
		"unknown strategy": "boards:\n  - {key: a, strategy: rss, link_base: x}\n",
		"scrape no url":    "boards:\n  - {key: a, strategy: scrape, link_base: x}\n",
		"api no menu":      "boards:\n  - {key: a, club_id: \"1\", link_base: x}\n",
		"no link base":     "boards:\n  - {key: a, club_id: \"1\", menu_id: \"1\"}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse_WikiUserAgentOverride(t *testing.T) {
	cfg, err := Parse([]byte("wiki:\n  user_agent: my-bot/2.0\n"))
	require.NoError(t, err)
	assert.Equal(t, "my-bot/2.0", cfg.Wiki.UserAgent)
}
