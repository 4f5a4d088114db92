package wheel

import (
	"archive/zip"
	"fmt"
	"path/filepath"
	"strings"
)

// FileEntry describes one entry of a wheel archive.
type FileEntry struct {
	Path           string `json:"path"`
	Size           int64  `json:"size"`
	CompressedSize int64  `json:"compressed_size"`
	IsDir          bool   `json:"is_dir"`
}

// TreeNode is one node of the hierarchical file tree. Directory nodes carry
// Children; leaf file nodes carry Size and the full archive path.
type TreeNode struct {
	Type     string               `json:"type"` // "file" or "dir"
	Size     int64                `json:"size,omitempty"`
	Path     string               `json:"path,omitempty"`
	Children map[string]*TreeNode `json:"children,omitempty"`
}

// Manifest is the full content listing of a wheel archive.
type Manifest struct {
	Package    string               `json:"package"`
	Version    string               `json:"version"`
	WheelFile  string               `json:"wheel_file"`
	TotalFiles int                  `json:"total_files"`
	TotalSize  int64                `json:"total_size"`
	Files      []FileEntry          `json:"files"`
	Tree       map[string]*TreeNode `json:"tree"`
}

// ExtractManifest opens the wheel at path as a zip container and returns its
// flat file listing together with a hierarchical tree regrouping of it.
func ExtractManifest(path, pkg, version string) (*Manifest, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedArchive, path, err)
	}
	defer r.Close()

	entries := make([]FileEntry, 0, len(r.File))
	var totalSize int64
	for _, f := range r.File {
		entry := FileEntry{
			Path:           f.Name,
			Size:           int64(f.UncompressedSize64),
			CompressedSize: int64(f.CompressedSize64),
			IsDir:          strings.HasSuffix(f.Name, "/"),
		}
		entries = append(entries, entry)
		totalSize += entry.Size
	}

	return &Manifest{
		Package:    pkg,
		Version:    version,
		WheelFile:  filepath.Base(path),
		TotalFiles: len(entries),
		TotalSize:  totalSize,
		Files:      entries,
		Tree:       buildTree(entries),
	}, nil
}

// buildTree folds the flat entry list into a tree by splitting each path on
// "/" and inserting nodes level by level. An entry's final segment becomes a
// leaf unless it is empty (trailing separator), in which case only the parent
// directory chain is materialized.
func buildTree(entries []FileEntry) map[string]*TreeNode {
	tree := make(map[string]*TreeNode)

	for _, entry := range entries {
		parts := strings.Split(entry.Path, "/")
		current := tree

		for i, part := range parts {
			if i == len(parts)-1 {
				if part == "" {
					continue // trailing slash, directory chain already exists
				}
				nodeType := "file"
				if entry.IsDir {
					nodeType = "dir"
				}
				current[part] = &TreeNode{
					Type: nodeType,
					Size: entry.Size,
					Path: entry.Path,
				}
				continue
			}

			node, ok := current[part]
			if !ok {
				node = &TreeNode{Type: "dir", Children: make(map[string]*TreeNode)}
				current[part] = node
			} else if node.Children == nil {
				node.Children = make(map[string]*TreeNode)
			}
			current = node.Children
		}
	}

	return tree
}
