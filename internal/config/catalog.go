package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/danmuck/posecast/internal/pose"
	"github.com/pelletier/go-toml/v2"
)

// CatalogFile is the on-disk shape of a pose catalog.
type CatalogFile struct {
	FallbackNamespaces []string    `toml:"fallback_namespaces"`
	GenericFallbacks   []string    `toml:"generic_fallbacks"`
	Poses              []PoseEntry `toml:"pose"`
}

// PoseEntry is one [[pose]] table.
type PoseEntry struct {
	ID        string          `toml:"id"`
	Name      string          `toml:"name"`
	Length    uint32          `toml:"length"`
	Loop      bool            `toml:"loop"`
	Keyframes []pose.Keyframe `toml:"keyframe"`
}

// LoadedCatalog is a parsed catalog plus its generic fallback identifiers.
type LoadedCatalog struct {
	Catalog          *pose.Catalog
	GenericFallbacks []pose.Identifier
}

// LoadCatalog reads one catalog file, or every *.toml file in a directory
// (lexical order, later files win on duplicate ids).
func LoadCatalog(path string) (LoadedCatalog, error) {
	files, err := catalogFiles(path)
	if err != nil {
		return LoadedCatalog{}, err
	}
	var merged CatalogFile
	for _, f := range files {
		var part CatalogFile
		if err := loadToml(f, &part); err != nil {
			return LoadedCatalog{}, err
		}
		merged.FallbackNamespaces = append(merged.FallbackNamespaces, part.FallbackNamespaces...)
		merged.GenericFallbacks = append(merged.GenericFallbacks, part.GenericFallbacks...)
		merged.Poses = append(merged.Poses, part.Poses...)
	}
	return BuildCatalog(merged)
}

// BuildCatalog validates a parsed catalog file.
func BuildCatalog(file CatalogFile) (LoadedCatalog, error) {
	catalog := pose.NewCatalog(dedupe(file.FallbackNamespaces)...)
	for i, entry := range file.Poses {
		def, err := entry.definition()
		if err != nil {
			return LoadedCatalog{}, fmt.Errorf("pose[%d] invalid: %w", i, err)
		}
		if err := catalog.Add(def); err != nil {
			return LoadedCatalog{}, fmt.Errorf("pose[%d] invalid: %w", i, err)
		}
	}
	generic := make([]pose.Identifier, 0, len(file.GenericFallbacks))
	for i, raw := range dedupe(file.GenericFallbacks) {
		id, err := pose.ParseIdentifier(raw)
		if err != nil {
			return LoadedCatalog{}, fmt.Errorf("generic_fallbacks[%d] invalid: %w", i, err)
		}
		generic = append(generic, id)
	}
	return LoadedCatalog{Catalog: catalog, GenericFallbacks: generic}, nil
}

func (e PoseEntry) definition() (*pose.Definition, error) {
	id, err := pose.ParseIdentifier(e.ID)
	if err != nil {
		return nil, err
	}
	if e.Length == 0 {
		return nil, fmt.Errorf("length is required")
	}
	for i, kf := range e.Keyframes {
		if kf.Tick > e.Length {
			return nil, fmt.Errorf("keyframe[%d] tick %d beyond length %d", i, kf.Tick, e.Length)
		}
	}
	keyframes := make([]pose.Keyframe, len(e.Keyframes))
	copy(keyframes, e.Keyframes)
	sort.SliceStable(keyframes, func(i, j int) bool { return keyframes[i].Tick < keyframes[j].Tick })
	name := strings.TrimSpace(e.Name)
	if name == "" {
		name = id.Path
	}
	return &pose.Definition{
		ID:        id,
		Name:      name,
		Length:    e.Length,
		Loop:      e.Loop,
		Keyframes: keyframes,
	}, nil
}

func catalogFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("catalog load failed (%s): %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	matches, err := filepath.Glob(filepath.Join(path, "*.toml"))
	if err != nil {
		return nil, fmt.Errorf("catalog load failed (%s): %w", path, err)
	}
	sort.Strings(matches)
	return matches, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("catalog load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("catalog parse failed (%s): %w", path, err)
	}
	return nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
