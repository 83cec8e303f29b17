package classify

import (
	"strings"

	"github.com/anivar/termbrain-sub001/internal/cmdutil"
)

// Semantic types.
const (
	TypeSelf              = "termbrain"
	TypeVersionControl    = "version_control"
	TypeContainerization  = "containerization"
	TypeTesting           = "testing"
	TypeCodeQuality       = "code_quality"
	TypeBuilding          = "building"
	TypePackageManagement = "package_management"
	TypeNetworking        = "networking"
	TypeRemoteAccess      = "remote_access"
	TypeEditing           = "editing"
	TypeNavigation        = "navigation"
	TypeDatabase          = "database"
	TypeCodeExecution     = "code_execution"
	TypeGeneral           = "general"
)

// rule assigns category when match reports true. cmd is lower-cased with
// sudo and env assignments stripped; words are its fields.
type rule struct {
	category string
	match    func(cmd string, words []string) bool
}

// semanticRules are evaluated top to bottom and the first match wins, so
// specific tool invocations ("npm test") precede general ones ("npm").
var semanticRules = []rule{
	{TypeSelf, program("tb", "termbrain", "tb-hook")},
	{TypeVersionControl, program("git", "gh", "glab", "hg", "svn", "tig", "lazygit")},
	{TypeContainerization, program("docker", "docker-compose", "podman", "kubectl", "k9s", "helm", "minikube", "kind", "nerdctl", "buildah")},
	{TypeTesting, anyOf(
		program("pytest", "jest", "vitest", "mocha", "rspec", "phpunit", "tox", "ava", "karma", "cypress", "playwright"),
		prefix("npm test", "npm run test", "npm t", "yarn test", "pnpm test", "bun test",
			"go test", "cargo test", "cargo nextest", "python -m pytest", "python3 -m pytest",
			"python -m unittest", "python3 -m unittest", "mvn test", "mvn verify", "gradle test",
			"./gradlew test", "make test", "make check", "bundle exec rspec", "rake test",
			"dotnet test", "mix test", "deno test", "ctest"),
	)},
	{TypeCodeQuality, anyOf(
		program("eslint", "prettier", "black", "isort", "flake8", "pylint", "ruff", "mypy",
			"golangci-lint", "gofmt", "goimports", "staticcheck", "rubocop", "shellcheck",
			"stylelint", "hadolint", "clang-format", "clang-tidy"),
		prefix("npm run lint", "npm run format", "yarn lint", "pnpm lint", "go vet", "go fmt",
			"cargo clippy", "cargo fmt", "make lint", "make fmt", "deno lint", "deno fmt"),
	)},
	{TypeBuilding, anyOf(
		program("make", "cmake", "ninja", "tsc", "webpack", "rollup", "esbuild", "bazel", "meson", "gcc", "g++", "clang", "javac", "rustc"),
		prefix("npm run build", "yarn build", "pnpm build", "pnpm run build", "bun run build",
			"go build", "go generate", "cargo build", "mvn package", "mvn compile", "mvn clean",
			"gradle build", "./gradlew build", "gradle assemble", "vite build", "dotnet build",
			"mix compile", "python -m build", "python setup.py build"),
	)},
	{TypePackageManagement, anyOf(
		program("pip", "pip3", "pipx", "poetry", "pipenv", "uv", "conda", "gem", "bundle",
			"composer", "apt", "apt-get", "dpkg", "brew", "dnf", "yum", "pacman", "apk",
			"zypper", "snap", "flatpak", "nix-env", "asdf", "mvn"),
		subcommand([]string{"npm", "yarn", "pnpm", "bun"},
			"install", "i", "ci", "add", "remove", "rm", "uninstall", "update", "upgrade",
			"outdated", "audit", "init", "link", "publish", "dedupe", "prune"),
		bareProgram("yarn", "pnpm"),
		subcommand([]string{"go"}, "get", "mod", "install"),
		subcommand([]string{"cargo"}, "add", "install", "update", "remove", "publish", "fetch"),
	)},
	{TypeNetworking, program("curl", "wget", "ping", "ping6", "traceroute", "tracepath", "mtr",
		"netstat", "ss", "nc", "netcat", "ncat", "nslookup", "dig", "host", "ifconfig", "ip",
		"nmap", "telnet", "http", "https", "httpie", "tcpdump", "iptables", "nft")},
	{TypeRemoteAccess, program("ssh", "scp", "sftp", "rsync", "mosh", "ssh-copy-id", "autossh")},
	{TypeEditing, anyOf(
		program("vim", "vi", "nvim", "nano", "emacs", "code", "subl", "micro", "hx", "helix", "ed", "kak", "gedit", "touch"),
		prefix("sed -i"),
	)},
	{TypeNavigation, program("cd", "ls", "ll", "la", "l", "pwd", "tree", "find", "fd", "pushd", "popd", "dirs", "z", "zoxide", "exa", "eza", "lsd", "ranger", "nnn")},
	{TypeDatabase, program("psql", "mysql", "mariadb", "sqlite3", "mongo", "mongosh", "redis-cli",
		"pg_dump", "pg_restore", "mysqldump", "pgcli", "mycli", "cqlsh", "clickhouse-client", "duckdb")},
	{TypeCodeExecution, anyOf(
		program("python", "python3", "node", "ruby", "perl", "php", "java", "deno", "bun",
			"ts-node", "tsx", "lua", "Rscript", "julia", "elixir", "iex", "sh", "bash", "zsh"),
		prefix("go run", "cargo run", "npm start", "npm run", "yarn start", "yarn dev",
			"pnpm dev", "pnpm start", "dotnet run", "mix run", "./"),
	)},
}

// SemanticType returns the category of a command. Unmatched commands are
// TypeGeneral.
func SemanticType(command string) string {
	cmd := strings.ToLower(cmdutil.StripPrefix(command))
	if cmd == "" {
		return TypeGeneral
	}
	words := strings.Fields(cmd)
	for _, r := range semanticRules {
		if r.match(cmd, words) {
			return r.category
		}
	}
	return TypeGeneral
}

func program(names ...string) func(string, []string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = true
	}
	return func(_ string, words []string) bool {
		return len(words) > 0 && set[words[0]]
	}
}

func bareProgram(names ...string) func(string, []string) bool {
	match := program(names...)
	return func(cmd string, words []string) bool {
		return len(words) == 1 && match(cmd, words)
	}
}

func prefix(prefixes ...string) func(string, []string) bool {
	return func(cmd string, _ []string) bool {
		for _, p := range prefixes {
			if cmd == p || strings.HasPrefix(cmd, p+" ") || (strings.HasSuffix(p, "/") && strings.HasPrefix(cmd, p)) {
				return true
			}
		}
		return false
	}
}

func subcommand(programs []string, subs ...string) func(string, []string) bool {
	isProgram := program(programs...)
	set := make(map[string]bool, len(subs))
	for _, s := range subs {
		set[s] = true
	}
	return func(cmd string, words []string) bool {
		return len(words) > 1 && isProgram(cmd, words) && set[words[1]]
	}
}

func anyOf(matchers ...func(string, []string) bool) func(string, []string) bool {
	return func(cmd string, words []string) bool {
		for _, m := range matchers {
			if m(cmd, words) {
				return true
			}
		}
		return false
	}
}
