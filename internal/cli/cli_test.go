package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/artic-client/internal/config"
	"github.com/Sternrassler/artic-client/internal/testutil"
	"github.com/Sternrassler/artic-client/pkg/catalog"
)

// setup writes a config pointing at a mock catalog and isolates the
// environment from the developer's .env and artic.yaml.
func setup(t *testing.T, total int) (*testutil.MockCatalog, string) {
	t.Helper()

	mock := testutil.NewMockCatalog(total, 12)
	t.Cleanup(mock.Close)

	dir := t.TempDir()
	t.Chdir(dir)
	for _, key := range []string{config.EnvConfigPath, config.EnvBaseURL, config.EnvUserAgent, config.EnvPageSize, config.EnvRedisURL, config.EnvLogLevel} {
		t.Setenv(key, "")
	}

	path := filepath.Join(dir, "artic.yaml")
	content := fmt.Sprintf(`api:
  base_url: %s
  user_agent: "ArticTest/1.0 (test@example.com)"
  rate_limit: 0
  retry:
    max_attempts: 1
selection:
  max_attempts: 1
logging:
  level: error
`, mock.URL())
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return mock, path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestPageCmd_JSON(t *testing.T) {
	_, path := setup(t, 30)

	out, _, err := execute(t, "page", "2", "--output", "json", "--config", path)
	require.NoError(t, err)

	var page catalog.Page
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.Equal(t, 2, page.Number)
	assert.Len(t, page.Items, 12)
	assert.Equal(t, 13, page.Items[0].ID)
}

func TestPageCmd_Table(t *testing.T) {
	setup(t, 30)

	out, _, err := execute(t, "page", "1")
	require.NoError(t, err)

	assert.Contains(t, out, "Place of Origin")
	assert.Contains(t, out, "Artwork 12")
	assert.Contains(t, out, catalog.DefaultArtistDisplay)
}

func TestPageCmd_PastTheEnd(t *testing.T) {
	setup(t, 30)

	out, _, err := execute(t, "page", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "no artworks")
}

func TestPageCmd_InvalidArgs(t *testing.T) {
	mock, _ := setup(t, 30)

	_, _, err := execute(t, "page", "zero")
	assert.Error(t, err)

	_, _, err = execute(t, "page", "1", "--output", "xml")
	assert.Error(t, err)

	assert.Zero(t, mock.TotalRequests())
}

func TestSelectCmd(t *testing.T) {
	mock, _ := setup(t, 100)

	out, _, err := execute(t, "select", "30")
	require.NoError(t, err)

	lines := strings.Fields(out)
	require.Len(t, lines, 30)
	assert.Equal(t, "1", lines[0])
	assert.Equal(t, "30", lines[29])
	assert.Equal(t, []int{1, 2, 3}, mock.RequestOrder())
}

func TestSelectCmd_JSON(t *testing.T) {
	setup(t, 20)

	out, _, err := execute(t, "select", "100", "-o", "json")
	require.NoError(t, err)

	var res struct {
		IDs       []int `json:"ids"`
		Exhausted bool  `json:"exhausted"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Len(t, res.IDs, 20)
	assert.True(t, res.Exhausted)
}

func TestSelectCmd_InvalidCountIsNoOp(t *testing.T) {
	mock, _ := setup(t, 100)

	out, errOut, err := execute(t, "select", "abc")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "selection unchanged")
	assert.Zero(t, mock.TotalRequests())
}

func TestSelectCmd_Incomplete(t *testing.T) {
	mock, _ := setup(t, 100)
	mock.QueueResponse(2, testutil.NewServerErrorResponse())

	out, errOut, err := execute(t, "select", "20")
	require.NoError(t, err)
	assert.Len(t, strings.Fields(out), 12)
	assert.Contains(t, errOut, "warning")
}

func TestSelectCmd_RedisStore(t *testing.T) {
	setup(t, 100)
	mr := miniredis.RunT(t)

	_, _, err := execute(t, "select", "5", "--redis-url", "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)

	list, err := mr.List("artic:selection:default")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, list)
}

func TestRoot_BadConfig(t *testing.T) {
	setup(t, 10)

	_, _, err := execute(t, "page", "1", "--config", "missing.yaml")
	assert.Error(t, err)
}

func TestRoot_HasSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	names := []string{}
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"browse", "page", "select", "serve"}, names)
}
