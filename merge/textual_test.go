package merge_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub002/merge"
)

func TestTextMergeNonOverlappingEditsResolveCleanly(t *testing.T) {
	base := "one\ntwo\nthree\n"
	ours := "one changed\ntwo\nthree\n"
	theirs := "one\ntwo\nthree changed\n"

	res := merge.TextMerge(base, ours, theirs, merge.TextOptions{})
	require.False(t, res.Conflict)
	require.Equal(t, "one changed\ntwo\nthree changed\n", res.Content)
}

func TestTextMergeIdenticalEditBothSidesIsNotAConflict(t *testing.T) {
	base := "one\ntwo\n"
	ours := "one changed\ntwo\n"
	theirs := "one changed\ntwo\n"

	res := merge.TextMerge(base, ours, theirs, merge.TextOptions{})
	require.False(t, res.Conflict)
	require.Equal(t, "one changed\ntwo\n", res.Content)
}

func TestTextMergeConflictingEditEmitsMarkers(t *testing.T) {
	base := "hello\n"
	ours := "hello ours\n"
	theirs := "hello theirs\n"

	res := merge.TextMerge(base, ours, theirs, merge.TextOptions{})
	require.True(t, res.Conflict)
	require.Contains(t, res.Content, "<<<<<<< ours\n")
	require.Contains(t, res.Content, "hello ours\n")
	require.Contains(t, res.Content, "=======\n")
	require.Contains(t, res.Content, "hello theirs\n")
	require.Contains(t, res.Content, ">>>>>>> theirs\n")
	require.NotContains(t, res.Content, "||||||| base")
}

func TestTextMergeDiff3IncludesBaseSection(t *testing.T) {
	base := "hello\n"
	ours := "hello ours\n"
	theirs := "hello theirs\n"

	res := merge.TextMerge(base, ours, theirs, merge.TextOptions{Diff3: true})
	require.True(t, res.Conflict)
	require.Contains(t, res.Content, "||||||| base\n")
	require.Contains(t, res.Content, "hello\n")
}

func TestTextMergeStripsLeadingBOM(t *testing.T) {
	bom := "﻿"
	base := bom + "hello\n"
	ours := bom + "hello ours\n"
	theirs := "hello\n"

	res := merge.TextMerge(base, ours, theirs, merge.TextOptions{})
	require.False(t, res.Conflict)
	require.NotContains(t, res.Content, bom)
}

func TestTextMergeCustomLabels(t *testing.T) {
	res := merge.TextMerge("a\n", "b\n", "c\n", merge.TextOptions{OursLabel: "mine", TheirsLabel: "yours"})
	require.True(t, res.Conflict)
	require.Contains(t, res.Content, "<<<<<<< mine\n")
	require.Contains(t, res.Content, ">>>>>>> yours\n")
}
