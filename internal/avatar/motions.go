package avatar

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"

	"deskmate/internal/types"
)

// MotionIndex maps motion identifiers to their place in the loaded asset
// set. Identifiers are full asset paths and basenames; when two assets
// share a basename, the earliest-registered mapping wins so later groups
// cannot shadow earlier ones. The index is rebuilt, never merged, on each
// model load.
type MotionIndex struct {
	groups map[string][]string
	lookup map[string]types.MotionRef
}

// modelManifest mirrors the fragment of a model3.json file the index
// needs.
type modelManifest struct {
	FileReferences struct {
		Motions map[string][]struct {
			File string `json:"File"`
		} `json:"Motions"`
	} `json:"FileReferences"`
}

// LoadMotionIndex reads a model manifest from disk and builds the index.
func LoadMotionIndex(manifestPath string) (*MotionIndex, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read model manifest: %w", err)
	}
	var manifest modelManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse model manifest %s: %w", manifestPath, err)
	}
	files := make(map[string][]string, len(manifest.FileReferences.Motions))
	for group, entries := range manifest.FileReferences.Motions {
		for _, entry := range entries {
			if entry.File == "" {
				continue
			}
			files[group] = append(files[group], entry.File)
		}
	}
	return NewMotionIndex(files), nil
}

// NewMotionIndex builds an index from a group-to-files mapping. Groups are
// registered in sorted name order so basename collisions resolve
// deterministically.
func NewMotionIndex(files map[string][]string) *MotionIndex {
	idx := &MotionIndex{
		groups: make(map[string][]string, len(files)),
		lookup: make(map[string]types.MotionRef),
	}
	names := make([]string, 0, len(files))
	for group := range files {
		names = append(names, group)
	}
	sort.Strings(names)
	for _, group := range names {
		entries := files[group]
		if len(entries) == 0 {
			continue
		}
		idx.groups[group] = append([]string(nil), entries...)
		for i, file := range entries {
			ref := types.MotionRef{Group: group, Index: i}
			if _, exists := idx.lookup[file]; !exists {
				idx.lookup[file] = ref
			}
			if base := path.Base(file); base != "" && base != "." {
				if _, exists := idx.lookup[base]; !exists {
					idx.lookup[base] = ref
				}
			}
		}
	}
	return idx
}

// Find resolves an identifier (full path or basename) to its motion.
func (idx *MotionIndex) Find(identifier string) (types.MotionRef, bool) {
	if idx == nil || identifier == "" {
		return types.MotionRef{}, false
	}
	ref, ok := idx.lookup[identifier]
	return ref, ok
}

// Group returns the ordered files of one group, nil if absent.
func (idx *MotionIndex) Group(name string) []string {
	if idx == nil {
		return nil
	}
	return idx.groups[name]
}

// Groups returns a copy of the full group-to-files mapping.
func (idx *MotionIndex) Groups() map[string][]string {
	out := make(map[string][]string)
	if idx == nil {
		return out
	}
	for group, entries := range idx.groups {
		out[group] = append([]string(nil), entries...)
	}
	return out
}

// GroupNames returns the group names in sorted order.
func (idx *MotionIndex) GroupNames() []string {
	if idx == nil {
		return nil
	}
	names := make([]string, 0, len(idx.groups))
	for group := range idx.groups {
		names = append(names, group)
	}
	sort.Strings(names)
	return names
}
