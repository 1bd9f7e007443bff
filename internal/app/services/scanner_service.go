package services

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/craftdeck/craftdeck/internal/app"
	"github.com/craftdeck/craftdeck/internal/domain/entities"
)

// ScanPaths names the directories the scanner is allowed to walk.
type ScanPaths struct {
	// BackupsDir holds backup zip archives.
	BackupsDir string

	// OldWorldsDir holds retired world directories and zipped snapshots.
	OldWorldsDir string

	// ServerDir is the live server directory, used only to resolve the
	// active world name from server.properties. May be empty.
	ServerDir string
}

// ScannerService builds the artifact inventory for a scope. Scanning is
// read-only and rebuilt on every evaluation; nothing is persisted.
type ScannerService struct {
	paths ScanPaths
}

// NewScannerService creates a new scanner service
func NewScannerService(paths ScanPaths) *ScannerService {
	return &ScannerService{paths: paths}
}

// Scan enumerates the scope's directories and classifies every entry.
// Missing directories yield an empty inventory. Unreadable entries are
// recorded as error strings and scanning continues. Hard safety verdicts
// (symlinks, escapes from the allowed roots, the active world, disabled
// categories) are attached here so no later stage can re-admit them.
func (s *ScannerService) Scan(ctx context.Context, scope entities.Scope, rules *entities.RuleSet) ([]entities.Artifact, []string) {
	var artifacts []entities.Artifact
	var errs []string

	switch scope {
	case entities.ScopeBackups:
		artifacts = s.scanBackups(rules, &errs)
	case entities.ScopeStaleWorlds:
		artifacts = s.scanOldWorlds(rules, &errs)
	}

	// Deterministic order: oldest first, ties broken by path.
	sort.Slice(artifacts, func(i, j int) bool {
		if artifacts[i].ModTime.Equal(artifacts[j].ModTime) {
			return artifacts[i].Path < artifacts[j].Path
		}
		return artifacts[i].ModTime.Before(artifacts[j].ModTime)
	})

	return artifacts, errs
}

func (s *ScannerService) scanBackups(rules *entities.RuleSet, errs *[]string) []entities.Artifact {
	entries, err := os.ReadDir(s.paths.BackupsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			*errs = append(*errs, fmt.Sprintf("read %s: %v", s.paths.BackupsDir, err))
		}
		return nil
	}

	var artifacts []entities.Artifact
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".zip") {
			continue
		}

		path := filepath.Join(s.paths.BackupsDir, entry.Name())
		artifact, ok := s.buildArtifact(path, entry, entities.CategoryBackupZip, rules, errs)
		if !ok {
			continue
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts
}

func (s *ScannerService) scanOldWorlds(rules *entities.RuleSet, errs *[]string) []entities.Artifact {
	entries, err := os.ReadDir(s.paths.OldWorldsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			*errs = append(*errs, fmt.Sprintf("read %s: %v", s.paths.OldWorldsDir, err))
		}
		return nil
	}

	activeWorld := s.activeWorldName()

	var artifacts []entities.Artifact
	for _, entry := range entries {
		path := filepath.Join(s.paths.OldWorldsDir, entry.Name())

		var category entities.Category
		switch {
		case entry.IsDir() && entities.HasRestoreStamp(entry.Name()):
			category = entities.CategoryStaleWorldDir
		case !entry.IsDir() && strings.HasSuffix(strings.ToLower(entry.Name()), ".zip"):
			category = entities.CategoryOldWorldZip
		default:
			// Unstamped directories and stray files are never candidates.
			continue
		}

		artifact, ok := s.buildArtifact(path, entry, category, rules, errs)
		if !ok {
			continue
		}

		if activeWorld != "" && entry.IsDir() && entry.Name() == activeWorld {
			artifact.Eligible = false
			artifact.Reasons = append(artifact.Reasons, entities.ReasonActiveWorld)
		}

		artifacts = append(artifacts, artifact)
	}
	return artifacts
}

// buildArtifact stats the entry, attaches the hard safety verdicts, and
// computes directory sizes by walking. Returns ok=false only when the
// entry cannot be stat'ed at all.
func (s *ScannerService) buildArtifact(path string, entry fs.DirEntry, category entities.Category, rules *entities.RuleSet, errs *[]string) (entities.Artifact, bool) {
	artifact := entities.Artifact{
		Name:     entry.Name(),
		Path:     path,
		Category: category,
		IsDir:    entry.IsDir(),
		Eligible: true,
	}

	if entry.Type()&fs.ModeSymlink != 0 {
		artifact.Eligible = false
		artifact.Reasons = append(artifact.Reasons, entities.ReasonSymlinkBlocked)
	}

	info, err := entry.Info()
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("stat %s: %v", path, err))
		return entities.Artifact{}, false
	}
	artifact.ModTime = info.ModTime()

	if !s.withinRoots(path) {
		artifact.Eligible = false
		artifact.Reasons = append(artifact.Reasons, entities.ReasonOutsideRoots)
	}

	if rules != nil && !rules.Categories.Enabled(category) {
		artifact.Eligible = false
		artifact.Reasons = append(artifact.Reasons, entities.ReasonCategoryDisabled)
	}

	if entry.IsDir() {
		artifact.SizeBytes = dirSize(path, errs)
	} else {
		artifact.SizeBytes = info.Size()
	}

	return artifact, true
}

// withinRoots checks that the entry, symlinks resolved, still lives under
// one of the managed directories.
func (s *ScannerService) withinRoots(path string) bool {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}

	for _, root := range []string{s.paths.BackupsDir, s.paths.OldWorldsDir} {
		if root == "" {
			continue
		}
		resolvedRoot, err := filepath.EvalSymlinks(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(resolvedRoot, resolved)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// activeWorldName reads level-name from server.properties. An empty
// string means no active world could be resolved and the guard is a
// no-op.
func (s *ScannerService) activeWorldName() string {
	if s.paths.ServerDir == "" {
		return ""
	}

	f, err := os.Open(filepath.Join(s.paths.ServerDir, app.ServerPropertiesFileName))
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if found && strings.TrimSpace(key) == "level-name" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// dirSize sums file sizes below path. Walk errors are recorded and the
// walk continues with what is readable.
func dirSize(path string, errs *[]string) int64 {
	var total int64
	filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			*errs = append(*errs, fmt.Sprintf("walk %s: %v", p, err))
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
