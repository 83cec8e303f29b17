package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemanticType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cmd  string
		want string
	}{
		{"git commit -m 'x'", TypeVersionControl},
		{"git push origin main", TypeVersionControl},
		{"npm test", TypeTesting},
		{"npm run build", TypeBuilding},
		{"npm install lodash", TypePackageManagement},
		{"npm run lint", TypeCodeQuality},
		{"npm run dev", TypeCodeExecution},
		{"go test ./...", TypeTesting},
		{"go build ./cmd/tb", TypeBuilding},
		{"go get github.com/x/y", TypePackageManagement},
		{"go run main.go", TypeCodeExecution},
		{"go vet ./...", TypeCodeQuality},
		{"make test", TypeTesting},
		{"make", TypeBuilding},
		{"docker build -t app .", TypeContainerization},
		{"kubectl get pods", TypeContainerization},
		{"sudo apt install jq", TypePackageManagement},
		{"CGO_ENABLED=0 go build", TypeBuilding},
		{"curl -s https://example.com", TypeNetworking},
		{"ssh prod", TypeRemoteAccess},
		{"vim main.go", TypeEditing},
		{"sed -i 's/a/b/' f", TypeEditing},
		{"ls -la", TypeNavigation},
		{"cd ..", TypeNavigation},
		{"psql -d app", TypeDatabase},
		{"python3 script.py", TypeCodeExecution},
		{"python -m pytest -q", TypeTesting},
		{"./run.sh", TypeCodeExecution},
		{"tb search git", TypeSelf},
		{"echo hello", TypeGeneral},
		{"", TypeGeneral},
		{"   ", TypeGeneral},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.cmd, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SemanticType(tt.cmd))
		})
	}
}

func TestSemanticType_Deterministic(t *testing.T) {
	t.Parallel()

	for _, cmd := range []string{"npm test", "git status", "unknown-tool --flag"} {
		first := SemanticType(cmd)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, SemanticType(cmd))
		}
	}
}

func TestIntent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cmd  string
		want string
	}{
		{"rm -rf build", IntentRemove},
		{"npm uninstall lodash", IntentRemove},
		{"npm install lodash", IntentInstall},
		{"go test ./...", IntentTest},
		{"npm run build", IntentBuild},
		{"git push origin main", IntentDeploy},
		{"kill 1234", IntentStop},
		{"docker compose up", IntentExecute},
		{"grep -r TODO .", IntentSearch},
		{"ls -la", IntentList},
		{"vim README.md", IntentEdit},
		{"git commit -m wip", IntentUnknown},
		{"", IntentUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Intent(tt.cmd), tt.cmd)
	}
}

func TestComplexity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cmd  string
		want int
	}{
		{"ls", 1},
		{"ls -la | grep foo", 2},
		{"cat a | sort | uniq -c > out.txt", 4},
		{"echo $(date)", 2},
		{"for f in *.go; do wc -l $f; done", 3},
		{"for f in $(ls); do cat $f | grep x | sort | uniq > $f.out; done", 5},
		{"make || echo failed", 1},
	}

	for _, tt := range tests {
		got := Complexity(tt.cmd)
		assert.Equal(t, tt.want, got, tt.cmd)
		assert.GreaterOrEqual(t, got, MinComplexity)
		assert.LessOrEqual(t, got, MaxComplexity)
	}
}

func TestComplexity_GrowsWithStructure(t *testing.T) {
	t.Parallel()

	steps := []string{
		"grep foo file",
		"grep foo file | sort",
		"grep foo file | sort > out.txt",
		"grep foo $(cat list) | sort > out.txt",
		"for f in *; do grep foo $(cat list) | sort > out.txt; done",
		"for f in *; do grep foo $(cat list) | sort | uniq -c > out.txt 2>&1; done",
	}

	prev := 0
	for _, cmd := range steps {
		got := Complexity(cmd)
		assert.GreaterOrEqual(t, got, prev, cmd)
		prev = got
	}
	assert.Equal(t, MaxComplexity, prev)
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestDetector_Detect(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "go.mod"))
	writeFile(t, filepath.Join(root, "Makefile"))
	writeFile(t, filepath.Join(root, "web", "package.json"))
	writeFile(t, filepath.Join(root, "svc", "App.csproj"))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "internal", "deep"), 0o755))

	d := NewDetector()

	assert.Equal(t, "go", d.Detect(root), "table order wins within a directory")
	assert.Equal(t, "node", d.Detect(filepath.Join(root, "web")), "nearest directory wins")
	assert.Equal(t, "go", d.Detect(filepath.Join(root, "internal", "deep")), "parents are scanned")
	assert.Equal(t, "dotnet", d.Detect(filepath.Join(root, "svc")))
	assert.Equal(t, ProjectUnknown, d.Detect(""))
}

func TestDetector_Override(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "package.json"))
	path := filepath.Join(root, ".termbrain", "project.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("project_type: monorepo\n"), 0o644))

	assert.Equal(t, "monorepo", NewDetector().Detect(root))
}

func TestDetector_ExtraMarkers(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "deno.json"))

	d := NewDetector(Marker{Name: "deno.json", ProjectType: "deno"})
	assert.Equal(t, "deno", d.Detect(root))
}

func TestClassifier_Classify(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Cargo.toml"))

	got := New(nil).Classify("cargo test | tee out.log", root)
	assert.Equal(t, Result{
		SemanticType: TypeTesting,
		Intent:       IntentTest,
		Complexity:   2,
		ProjectType:  "rust",
	}, got)
}
