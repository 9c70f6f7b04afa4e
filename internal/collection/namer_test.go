package collection

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName_NonHybridUsesCodeChunksPrefix(t *testing.T) {
	name, err := Name("/tmp/proj", "", false)
	require.NoError(t, err)
	assert.Contains(t, name, "code_chunks_")
	assert.NotContains(t, name, "hybrid_code_chunks_")
}

func TestName_HybridUsesHybridPrefix(t *testing.T) {
	name, err := Name("/tmp/proj", "", true)
	require.NoError(t, err)
	assert.Contains(t, name, "hybrid_code_chunks_")
}

func TestName_IsDeterministic(t *testing.T) {
	n1, err := Name("/tmp/proj", "", false)
	require.NoError(t, err)
	n2, err := Name("/tmp/proj", "", false)
	require.NoError(t, err)
	assert.Equal(t, n1, n2)
}

func TestName_WithGitIdentifierUsesSlugAndHash(t *testing.T) {
	name, err := Name("/tmp/proj", "github.com/Acme/Widgets", false)
	require.NoError(t, err)

	sum := md5.Sum([]byte("github.com/Acme/Widgets"))
	hash8 := hex.EncodeToString(sum[:])[:8]

	assert.Equal(t, "code_chunks_git_github_com_acme_widgets_"+hash8, name)
}

func TestName_SlugTruncatedTo32Chars(t *testing.T) {
	longID := "github.com/some-org/a-very-long-repository-name-that-exceeds-limits"
	name, err := Name("/tmp/proj", longID, false)
	require.NoError(t, err)

	// prefix + "_git_" + 32-char slug + "_" + 8-char hash
	assert.Equal(t, len("code_chunks")+len("_git_")+32+len("_")+8, len(name))
}

func TestName_WithoutGitIdentifierHashesAbsolutePath(t *testing.T) {
	name1, err := Name("proj", "", false)
	require.NoError(t, err)
	name2, err := Name("./proj", "", false)
	require.NoError(t, err)
	assert.Equal(t, name1, name2)
}
