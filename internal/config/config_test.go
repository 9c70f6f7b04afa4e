package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_HasValidDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 100, cfg.Search.RRFConstant)
	assert.Equal(t, "local", cfg.VectorStore.Backend)
	assert.Equal(t, "openai", cfg.Embeddings.ResponseShape)
}

func TestLoad_AppliesProjectConfigOverUserDefaults(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
search:
  bm25_weight: 0.5
  semantic_weight: 0.5
embeddings:
  base_url: "https://api.example.com/v1"
  model: "custom-embed"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".codectx.yaml"), []byte(yamlContent), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Search.BM25Weight)
	assert.Equal(t, 0.5, cfg.Search.SemanticWeight)
	assert.Equal(t, "https://api.example.com/v1", cfg.Embeddings.BaseURL)
	assert.Equal(t, "custom-embed", cfg.Embeddings.Model)
	// Unset fields keep their defaults.
	assert.Equal(t, 100, cfg.Search.RRFConstant)
}

func TestLoad_NoProjectConfigUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, NewConfig().Embeddings.BaseURL, cfg.Embeddings.BaseURL)
}

func TestLoad_EnvOverridesBeatFileConfig(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
search:
  rrf_constant: 60
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".codectx.yaml"), []byte(yamlContent), 0644))

	t.Setenv("CODECTX_RRF_CONSTANT", "100")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Search.RRFConstant)
}

func TestValidate_RejectsWeightsNotSummingToOne(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.BM25Weight = 0.9
	cfg.Search.SemanticWeight = 0.9

	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidate_RejectsUnknownResponseShape(t *testing.T) {
	cfg := NewConfig()
	cfg.Embeddings.ResponseShape = "cohere"

	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidate_RequiresEndpointForHTTPBackend(t *testing.T) {
	cfg := NewConfig()
	cfg.VectorStore.Backend = "http"
	cfg.VectorStore.Endpoint = ""

	err := cfg.Validate()
	assert.Error(t, err)
}

func TestDetectProjectType_Go(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module test\n"), 0644))

	assert.Equal(t, ProjectTypeGo, DetectProjectType(dir))
}

func TestDetectProjectType_Unknown(t *testing.T) {
	dir := t.TempDir()

	assert.Equal(t, ProjectTypeUnknown, DetectProjectType(dir))
	assert.False(t, DetectProjectType(dir).IsKnown())
}

func TestFindProjectRoot_FindsGitDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0755))
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	root, err := FindProjectRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, dir, root)
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := NewConfig()
	cfg.Embeddings.Model = "roundtrip-model"
	require.NoError(t, cfg.WriteYAML(path))

	loaded := NewConfig()
	require.NoError(t, loaded.loadYAML(path))
	assert.Equal(t, "roundtrip-model", loaded.Embeddings.Model)
}
