package changetree

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/foldersync/foldersync/internal/model"
)

func TestNormalize_PromotesDeletedAncestorWithLiveDescendant(t *testing.T) {
	root := NewDir()
	root.Change = ChangeDeleted
	root.Kind = model.KindDirectory

	child := root.Child("a")
	child.Kind = model.KindDirectory
	child.Change = ChangeUnknown

	grandchild := child.Child("b.txt")
	grandchild.Kind = model.KindFile
	grandchild.Change = ChangeCreated

	Normalize(root)

	assert.Equal(t, ChangeChanged, root.Change)
	assert.Equal(t, ChangeChanged, child.Change)
	assert.Equal(t, ChangeCreated, grandchild.Change)
}

func TestNormalize_LeavesFullyDeletedSubtreeAlone(t *testing.T) {
	root := NewDir()

	dir := root.Child("olddir")
	dir.Kind = model.KindDirectory
	dir.Change = ChangeDeleted

	file := dir.Child("gone.txt")
	file.Kind = model.KindFile
	file.Change = ChangeDeleted

	Normalize(root)

	assert.Equal(t, ChangeDeleted, dir.Change)
	assert.Equal(t, ChangeDeleted, file.Change)
}

func TestHasLiveDescendant(t *testing.T) {
	root := NewDir()
	assert.False(t, root.HasLiveDescendant())

	dir := root.Child("a")
	dir.Kind = model.KindDirectory
	assert.False(t, root.HasLiveDescendant())

	leaf := dir.Child("b.txt")
	leaf.Change = ChangeChanged
	assert.True(t, root.HasLiveDescendant())
}

func TestHasLiveCreatedDescendant(t *testing.T) {
	root := NewDir()
	dir := root.Child("a")
	dir.Kind = model.KindDirectory

	leaf := dir.Child("b.txt")
	leaf.Change = ChangeChanged
	assert.False(t, root.HasLiveCreatedDescendant(), "a merely edited descendant must not count")

	leaf.Change = ChangeCreated
	assert.True(t, root.HasLiveCreatedDescendant())
}
