package classify

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// ProjectUnknown is reported when no marker is found.
const ProjectUnknown = "unknown"

// DefaultMaxScanDepth is how many parent directories are scanned.
const DefaultMaxScanDepth = 10

// overrideFile pins a directory tree to a project type.
const overrideFile = ".termbrain/project.yaml"

// Marker maps a file, directory or glob in a project root to a project type.
type Marker struct {
	// Name is the file or directory name, or a glob when IsGlob is set.
	Name string

	ProjectType string

	IsDir bool

	IsGlob bool
}

// builtinMarkers are checked in order within each directory. The nearest
// directory with any marker wins; within a directory the first marker wins.
var builtinMarkers = []Marker{
	{Name: "package.json", ProjectType: "node"},
	{Name: "go.mod", ProjectType: "go"},
	{Name: "Cargo.toml", ProjectType: "rust"},
	{Name: "pyproject.toml", ProjectType: "python"},
	{Name: "requirements.txt", ProjectType: "python"},
	{Name: "setup.py", ProjectType: "python"},
	{Name: "Gemfile", ProjectType: "ruby"},
	{Name: "pom.xml", ProjectType: "java"},
	{Name: "build.gradle", ProjectType: "java"},
	{Name: "build.gradle.kts", ProjectType: "java"},
	{Name: "composer.json", ProjectType: "php"},
	{Name: "*.csproj", ProjectType: "dotnet", IsGlob: true},
	{Name: "*.sln", ProjectType: "dotnet", IsGlob: true},
	{Name: "mix.exs", ProjectType: "elixir"},
	{Name: "CMakeLists.txt", ProjectType: "cpp"},
	{Name: "Makefile", ProjectType: "make"},
	{Name: "Dockerfile", ProjectType: "docker"},
	{Name: ".terraform", ProjectType: "terraform", IsDir: true},
}

type overrideConfig struct {
	ProjectType string `yaml:"project_type"`
}

// Detector infers a project type from marker files. It keeps no cache so
// results always reflect the filesystem.
type Detector struct {
	markers      []Marker
	maxScanDepth int
}

// NewDetector creates a Detector with the builtin markers followed by extra.
func NewDetector(extra ...Marker) *Detector {
	markers := make([]Marker, len(builtinMarkers), len(builtinMarkers)+len(extra))
	copy(markers, builtinMarkers)
	markers = append(markers, extra...)
	return &Detector{markers: markers, maxScanDepth: DefaultMaxScanDepth}
}

// Detect returns the project type for cwd, or ProjectUnknown.
func (d *Detector) Detect(cwd string) string {
	if cwd == "" {
		return ProjectUnknown
	}

	dir := filepath.Clean(cwd)
	for depth := 0; depth < d.maxScanDepth; depth++ {
		if t := readOverride(dir); t != "" {
			return t
		}
		if t := d.detectIn(dir); t != "" {
			return t
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ProjectUnknown
}

func (d *Detector) detectIn(dir string) string {
	var names []string
	listed := false
	for _, m := range d.markers {
		if !m.IsGlob {
			if markerExists(dir, m) {
				return m.ProjectType
			}
			continue
		}
		if !listed {
			names = listDir(dir)
			listed = true
		}
		for _, name := range names {
			if ok, _ := doublestar.Match(m.Name, name); ok {
				return m.ProjectType
			}
		}
	}
	return ""
}

func markerExists(dir string, m Marker) bool {
	info, err := os.Stat(filepath.Join(dir, m.Name))
	if err != nil {
		return false
	}
	return info.IsDir() == m.IsDir
}

func listDir(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}

func readOverride(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(overrideFile)))
	if err != nil {
		return ""
	}
	var cfg overrideConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ""
	}
	return strings.TrimSpace(cfg.ProjectType)
}
