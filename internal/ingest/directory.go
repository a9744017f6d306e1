package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/claims-processor/constants"
)

// CollectClaims treats every immediate subdirectory of root that holds PDFs as one claim, and
// root itself as a claim when PDFs sit directly in it. PDFs are gathered recursively under each
// claim directory and sorted by path; claims are sorted by name.
func CollectClaims(root string, skipHidden bool) ([]ClaimDir, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, DirStats{}, fmt.Errorf("abs path: %w", err)
	}

	var stats DirStats
	byDir := map[string][]string{}

	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			stats.Failed++
			return nil // continue walking
		}
		if path == abs {
			return nil
		}
		if skipHidden && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		stats.Scanned++
		if !constants.IsPDFExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++
		key := claimDirFor(abs, path)
		byDir[key] = append(byDir[key], path)
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("walk: %w", err)
	}

	claims := make([]ClaimDir, 0, len(byDir))
	for dir, files := range byDir {
		sort.Strings(files)
		claims = append(claims, ClaimDir{Name: filepath.Base(dir), Path: dir, Files: files})
	}
	sort.Slice(claims, func(i, j int) bool { return claims[i].Name < claims[j].Name })
	stats.Claims = uint32(len(claims))
	return claims, stats, nil
}

// claimDirFor maps a file under root to its claim directory: root's immediate child, or root.
func claimDirFor(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return root
	}
	first, _, found := strings.Cut(filepath.ToSlash(rel), "/")
	if !found {
		return root
	}
	return filepath.Join(root, first)
}

// Load reads every file of a claim into memory, in order.
func Load(c ClaimDir) ([]Upload, error) {
	out := make([]Upload, 0, len(c.Files))
	for _, p := range c.Files {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		out = append(out, Upload{Name: filepath.Base(p), Data: b})
	}
	return out, nil
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}
