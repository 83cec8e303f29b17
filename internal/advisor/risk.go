package advisor

import (
	"regexp"
	"strings"

	"github.com/anivar/termbrain-sub001/internal/cmdutil"
)

// Level is the risk of running a command.
type Level string

// Risk levels, lowest first.
const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Rank orders levels so they can be compared.
func (l Level) Rank() int {
	switch l {
	case LevelMedium:
		return 1
	case LevelHigh:
		return 2
	case LevelCritical:
		return 3
	default:
		return 0
	}
}

// Assessment is the risk of one command.
type Assessment struct {
	Level    Level
	Warnings []string
	Rule     string // name of the matching rule; empty for low
}

// parsedCommand is a command prepared for rule matching. full is lower-cased;
// segments are the words of each pipeline or list element with sudo and env
// assignments stripped.
type parsedCommand struct {
	full     string
	segments [][]string
}

var segmentSplitter = regexp.MustCompile(`&&|\|\||[;|&\n]`)

func parseCommand(command string) parsedCommand {
	full := strings.ToLower(strings.TrimSpace(command))
	p := parsedCommand{full: full}
	for _, seg := range segmentSplitter.Split(full, -1) {
		words := strings.Fields(cmdutil.StripPrefix(seg))
		if len(words) > 0 {
			p.segments = append(p.segments, words)
		}
	}
	return p
}

type riskRule struct {
	name    string
	level   Level
	warning string
	match   func(p parsedCommand) bool
}

// riskRules are evaluated top to bottom and the first match wins.
var riskRules = []riskRule{
	{"fork_bomb", LevelCritical, "fork bomb will exhaust process limits", fullMatches(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`)},
	{"rm_root", LevelCritical, "recursive force delete of a root, home or wildcard path", segment(rmRecursiveForce(true))},
	{"mkfs", LevelCritical, "formats a filesystem", segment(programPrefix("mkfs"))},
	{"dd_device", LevelCritical, "dd writes directly to a device", segment(ddToDevice)},
	{"raw_disk_write", LevelCritical, "redirects output onto a raw disk", fullMatches(`>\s*/dev/(sd|hd|vd|xvd|nvme|mmcblk|disk)`)},
	{"drop_database", LevelCritical, "drops an entire database", fullMatches(`\bdrop\s+(database|schema)\b`)},

	{"drop_table", LevelHigh, "drops a table", fullMatches(`\bdrop\s+table\b`)},
	{"truncate_table", LevelHigh, "truncates a table", fullMatches(`\btruncate\s+table\b`)},
	{"delete_without_where", LevelHigh, "DELETE without WHERE removes every row", deleteWithoutWhere},
	{"git_force_push", LevelHigh, "force push rewrites remote history", segment(gitSub("push", forcePush))},
	{"git_reset_hard", LevelHigh, "hard reset discards uncommitted changes", segment(gitSub("reset", hasFlag("--hard")))},
	{"chmod_recursive_777", LevelHigh, "recursively makes files world-writable", segment(chmod777(true))},
	{"pipe_to_shell", LevelHigh, "executes a remote script without review", fullMatches(`\b(curl|wget)\b[^|]*\|\s*(sudo\s+)?(ba|z|da|k)?sh\b`)},

	{"rm_recursive_force", LevelMedium, "recursive force delete", segment(rmRecursiveForce(false))},
	{"git_clean_force", LevelMedium, "removes untracked files", segment(gitSub("clean", shortFlagContains('f')))},
	{"kill_9", LevelMedium, "SIGKILL gives the process no chance to clean up", segment(killNine)},
	{"docker_prune", LevelMedium, "removes unused docker data", segment(wordsPrefix("docker", "system", "prune"))},
	{"kubectl_delete", LevelMedium, "deletes cluster resources", segment(wordsPrefix("kubectl", "delete"))},
	{"chmod_777", LevelMedium, "makes files world-writable", segment(chmod777(false))},
}

// AssessRisk scores command. It never fails: unmatched commands are low
// risk with no warnings.
func AssessRisk(command string) Assessment {
	p := parseCommand(command)
	for _, r := range riskRules {
		if r.match(p) {
			return Assessment{Level: r.level, Warnings: []string{r.warning}, Rule: r.name}
		}
	}
	return Assessment{Level: LevelLow}
}

func fullMatches(pattern string) func(parsedCommand) bool {
	re := regexp.MustCompile(pattern)
	return func(p parsedCommand) bool {
		return re.MatchString(p.full)
	}
}

func segment(match func(words []string) bool) func(parsedCommand) bool {
	return func(p parsedCommand) bool {
		for _, words := range p.segments {
			if match(words) {
				return true
			}
		}
		return false
	}
}

func programPrefix(prefix string) func([]string) bool {
	return func(words []string) bool {
		return strings.HasPrefix(words[0], prefix)
	}
}

func wordsPrefix(prefix ...string) func([]string) bool {
	return func(words []string) bool {
		if len(words) < len(prefix) {
			return false
		}
		for i, w := range prefix {
			if words[i] != w {
				return false
			}
		}
		return true
	}
}

func gitSub(sub string, args func([]string) bool) func([]string) bool {
	return func(words []string) bool {
		return len(words) >= 2 && words[0] == "git" && words[1] == sub && args(words[2:])
	}
}

func hasFlag(flags ...string) func([]string) bool {
	return func(args []string) bool {
		for _, a := range args {
			for _, f := range flags {
				if a == f {
					return true
				}
			}
		}
		return false
	}
}

// forcePush matches the force flags of git push and the +refspec form,
// which forces just that ref.
func forcePush(args []string) bool {
	for _, a := range args {
		switch {
		case a == "-f", a == "--force", strings.HasPrefix(a, "--force-with-lease"):
			return true
		case len(a) > 1 && a[0] == '+':
			return true
		}
	}
	return false
}

// shortFlagContains matches a bundled short flag such as -fdx.
func shortFlagContains(c rune) func([]string) bool {
	return func(args []string) bool {
		for _, a := range args {
			if strings.HasPrefix(a, "-") && !strings.HasPrefix(a, "--") && strings.ContainsRune(a[1:], c) {
				return true
			}
			if a == "--force" {
				return true
			}
		}
		return false
	}
}

var dangerousTargets = map[string]bool{
	"/": true, "/*": true,
	"~": true, "~/": true, "~/*": true,
	"$home": true, "$home/": true, "$home/*": true, "${home}": true, "${home}/": true,
	"*": true,
}

// rmRecursiveForce matches rm with both recursive and force flags. With
// rootOnly it also requires a root, home or bare wildcard target.
func rmRecursiveForce(rootOnly bool) func([]string) bool {
	return func(words []string) bool {
		if words[0] != "rm" {
			return false
		}
		var recursive, force, rootTarget bool
		for _, w := range words[1:] {
			switch {
			case w == "--recursive":
				recursive = true
			case w == "--force":
				force = true
			case w == "--no-preserve-root":
				rootTarget = true
			case strings.HasPrefix(w, "-") && !strings.HasPrefix(w, "--"):
				if strings.ContainsRune(w, 'r') {
					recursive = true
				}
				if strings.ContainsRune(w, 'f') {
					force = true
				}
			default:
				if dangerousTargets[strings.Trim(w, `"'`)] {
					rootTarget = true
				}
			}
		}
		if !recursive || !force {
			return false
		}
		return !rootOnly || rootTarget
	}
}

func ddToDevice(words []string) bool {
	if words[0] != "dd" {
		return false
	}
	for _, w := range words[1:] {
		if strings.HasPrefix(w, "of=/dev/") && w != "of=/dev/null" && w != "of=/dev/zero" {
			return true
		}
	}
	return false
}

var deleteFrom = regexp.MustCompile(`\bdelete\s+from\s+\S+`)
var whereClause = regexp.MustCompile(`\bwhere\b`)

func deleteWithoutWhere(p parsedCommand) bool {
	return deleteFrom.MatchString(p.full) && !whereClause.MatchString(p.full)
}

func chmod777(recursiveOnly bool) func([]string) bool {
	return func(words []string) bool {
		if words[0] != "chmod" {
			return false
		}
		var recursive, mode bool
		for _, w := range words[1:] {
			switch {
			case w == "--recursive" || (strings.HasPrefix(w, "-") && strings.ContainsRune(w, 'r')):
				recursive = true
			case w == "777" || w == "0777" || w == "a+rwx":
				mode = true
			}
		}
		if !mode {
			return false
		}
		return !recursiveOnly || recursive
	}
}

func killNine(words []string) bool {
	switch words[0] {
	case "kill", "pkill", "killall":
	default:
		return false
	}
	for _, w := range words[1:] {
		switch w {
		case "-9", "-kill", "-sigkill", "--signal=kill":
			return true
		}
	}
	return false
}
