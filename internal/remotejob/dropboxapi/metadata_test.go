package dropboxapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldersync/foldersync/internal/model"
)

func TestFileInfoFromJSON_File(t *testing.T) {
	raw := []byte(`{".tag":"file","name":"report.txt","path_display":"/docs/report.txt","rev":"abc123"}`)

	info, err := fileInfoFromJSON(raw, "report.txt")
	require.NoError(t, err)
	assert.Equal(t, model.KindFile, info.Kind)
	assert.Equal(t, "report.txt", info.Name)
	assert.Equal(t, "abc123", info.SyncAttr)
}

func TestFileInfoFromJSON_Folder(t *testing.T) {
	raw := []byte(`{".tag":"folder","name":"docs","path_display":"/docs"}`)

	info, err := fileInfoFromJSON(raw, "docs")
	require.NoError(t, err)
	assert.Equal(t, model.KindDirectory, info.Kind)
	assert.Empty(t, info.SyncAttr)
}

func TestFileInfoFromJSON_Deleted(t *testing.T) {
	raw := []byte(`{".tag":"deleted","name":"gone.txt"}`)

	info, err := fileInfoFromJSON(raw, "gone.txt")
	require.NoError(t, err)
	assert.Equal(t, model.KindDeleted, info.Kind)
}

func TestFileInfoFromJSON_MalformedErrors(t *testing.T) {
	_, err := fileInfoFromJSON([]byte("not json"), "x")
	require.Error(t, err)
}
