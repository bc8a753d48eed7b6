package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/foldersync/foldersync/internal/changetree"
	"github.com/foldersync/foldersync/internal/model"
)

func TestWalkVerify_CountsAndClassifies(t *testing.T) {
	root := changetree.NewDir()
	root.Children["a.txt"] = &changetree.Node{Kind: model.KindFile, Change: changetree.ChangeUnknown}
	root.Children["b.txt"] = &changetree.Node{Kind: model.KindFile, Change: changetree.ChangeChanged}

	sub := changetree.NewDir()
	sub.Change = changetree.ChangeUnknown
	sub.Children["c.txt"] = &changetree.Node{Kind: model.KindFile, Change: changetree.ChangeCreated}
	root.Children["sub"] = sub

	report := &verifyReport{}
	walkVerify(root, "/", report)

	// Only a.txt counts toward Verified; the unchanged "sub" directory
	// itself is not a file.
	assert.Equal(t, 1, report.Verified)
	assert.Len(t, report.Mismatches, 2)

	byPath := map[string]string{}
	for _, m := range report.Mismatches {
		byPath[m.Path] = m.Status
	}

	assert.Equal(t, "changed", byPath["/b.txt"])
	assert.Equal(t, "created", byPath["/sub/c.txt"])
}

func TestWalkVerify_AllClean(t *testing.T) {
	root := changetree.NewDir()
	root.Children["a.txt"] = &changetree.Node{Kind: model.KindFile, Change: changetree.ChangeUnknown}

	report := &verifyReport{}
	walkVerify(root, "/", report)

	assert.Equal(t, 1, report.Verified)
	assert.Empty(t, report.Mismatches)
}
