package schemas

import (
	"encoding/json"
	"testing"

	"github.com/code-bush/robustack-dl/internal/schemas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestSchema_ValidJSON(t *testing.T) {
	var v map[string]any
	require.NoError(t, json.Unmarshal(Manifest, &v))
	assert.Equal(t, "object", v["type"])
}

func TestManifestSchema_AcceptsEmptyManifest(t *testing.T) {
	err := schemas.ValidateBytes("manifest", Manifest, []byte(`{"entries": {}}`))
	assert.NoError(t, err)
}

func TestManifestSchema_RejectsUnknownShape(t *testing.T) {
	err := schemas.ValidateBytes("manifest", Manifest, []byte(`{"entries": []}`))
	assert.Error(t, err)
}
