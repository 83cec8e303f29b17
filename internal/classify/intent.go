package classify

import "strings"

// Intents.
const (
	IntentRemove  = "remove"
	IntentInstall = "install"
	IntentTest    = "test"
	IntentBuild   = "build"
	IntentDeploy  = "deploy"
	IntentStop    = "stop"
	IntentExecute = "execute"
	IntentSearch  = "search"
	IntentList    = "list"
	IntentEdit    = "edit"
	IntentUnknown = "unknown"
)

type intentRule struct {
	intent string
	verbs  map[string]bool
}

func verbs(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// intentRules are checked in order against every word of the command;
// the first rule with any matching word wins.
var intentRules = []intentRule{
	{IntentRemove, verbs("rm", "rmdir", "remove", "uninstall", "delete", "del", "purge", "unlink", "prune", "rmi", "drop", "destroy")},
	{IntentInstall, verbs("install", "add", "ci", "get", "fetch", "pull", "clone", "download")},
	{IntentTest, verbs("test", "tests", "pytest", "jest", "vitest", "mocha", "rspec", "phpunit", "tox", "check", "verify", "nextest")},
	{IntentBuild, verbs("build", "make", "compile", "cmake", "tsc", "webpack", "package", "assemble", "bundle", "generate")},
	{IntentDeploy, verbs("deploy", "publish", "push", "apply", "release", "upload", "rollout", "upgrade")},
	{IntentStop, verbs("stop", "kill", "killall", "pkill", "halt", "shutdown", "down", "terminate")},
	{IntentExecute, verbs("run", "exec", "start", "up", "serve", "python", "python3", "node", "ruby", "bash", "sh")},
	{IntentSearch, verbs("grep", "rg", "ag", "ack", "find", "fd", "search", "locate", "which", "whereis", "fzf")},
	{IntentList, verbs("ls", "ll", "la", "list", "ps", "status", "log", "show", "tree", "cat", "less", "head", "tail", "history")},
	{IntentEdit, verbs("vim", "vi", "nvim", "nano", "emacs", "code", "edit", "sed", "touch", "mv", "cp", "chmod", "chown")},
}

// Intent returns the verb class of a command, or IntentUnknown.
func Intent(command string) string {
	words := strings.Fields(strings.ToLower(command))
	for _, r := range intentRules {
		for _, w := range words {
			if r.verbs[w] {
				return r.intent
			}
		}
	}
	return IntentUnknown
}
