package dropboxapi

import (
	"encoding/json"

	"github.com/foldersync/foldersync/internal/model"
)

// fileInfoFromJSON converts a Dropbox metadata JSON object into a
// model.FileInfo. name is used verbatim for the result's Name, matching
// how the engine already tracks canonical paths itself.
func fileInfoFromJSON(raw []byte, name string) (model.FileInfo, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return model.FileInfo{}, err
	}

	var tag string
	if t, ok := obj[".tag"]; ok {
		_ = json.Unmarshal(t, &tag)
	}

	info := model.FileInfo{Name: name}

	switch tag {
	case "file":
		info.Kind = model.KindFile

		if rev, ok := obj["rev"]; ok {
			_ = json.Unmarshal(rev, &info.SyncAttr)
		}
	case "folder":
		info.Kind = model.KindDirectory
	case "deleted":
		info.Kind = model.KindDeleted
	}

	return info, nil
}
