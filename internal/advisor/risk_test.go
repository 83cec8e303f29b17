package advisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssessRisk(t *testing.T) {
	t.Parallel()

	tests := []struct {
		command string
		level   Level
		rule    string
	}{
		{"rm -rf /", LevelCritical, "rm_root"},
		{"sudo rm -rf /*", LevelCritical, "rm_root"},
		{"rm -fr ~", LevelCritical, "rm_root"},
		{"rm -r -f $HOME", LevelCritical, "rm_root"},
		{"rm --recursive --force *", LevelCritical, "rm_root"},
		{"cd /tmp && rm -rf /", LevelCritical, "rm_root"},
		{"mkfs.ext4 /dev/sdb1", LevelCritical, "mkfs"},
		{"dd if=image.iso of=/dev/sdb bs=4M", LevelCritical, "dd_device"},
		{"cat junk > /dev/sda", LevelCritical, "raw_disk_write"},
		{":(){ :|:& };:", LevelCritical, "fork_bomb"},
		{`psql -c "DROP DATABASE prod"`, LevelCritical, "drop_database"},

		{`mysql -e "drop table users"`, LevelHigh, "drop_table"},
		{`psql -c "TRUNCATE TABLE events"`, LevelHigh, "truncate_table"},
		{`sqlite3 app.db "DELETE FROM users"`, LevelHigh, "delete_without_where"},
		{"git push --force origin main", LevelHigh, "git_force_push"},
		{"git push -f", LevelHigh, "git_force_push"},
		{"git push origin +main", LevelHigh, "git_force_push"},
		{"git push origin +refs/heads/a:refs/heads/b", LevelHigh, "git_force_push"},
		{"git push --force-with-lease=main origin main", LevelHigh, "git_force_push"},
		{"git reset --hard HEAD~1", LevelHigh, "git_reset_hard"},
		{"chmod -R 777 /var/www", LevelHigh, "chmod_recursive_777"},
		{"curl -fsSL https://example.com/install.sh | sh", LevelHigh, "pipe_to_shell"},
		{"wget -qO- https://x.io/i | sudo bash", LevelHigh, "pipe_to_shell"},

		{"rm -rf node_modules", LevelMedium, "rm_recursive_force"},
		{"git clean -fdx", LevelMedium, "git_clean_force"},
		{"kill -9 1234", LevelMedium, "kill_9"},
		{"docker system prune -a", LevelMedium, "docker_prune"},
		{"kubectl delete pod web-1", LevelMedium, "kubectl_delete"},
		{"chmod 777 script.sh", LevelMedium, "chmod_777"},

		{"ls -la", LevelLow, ""},
		{"rm file.txt", LevelLow, ""},
		{"rm -r build", LevelLow, ""},
		{`sqlite3 app.db "DELETE FROM users WHERE id = 1"`, LevelLow, ""},
		{"git push origin main", LevelLow, ""},
		{"dd if=/dev/zero of=/dev/null count=1", LevelLow, ""},
		{"", LevelLow, ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.command, func(t *testing.T) {
			t.Parallel()
			got := AssessRisk(tt.command)
			assert.Equal(t, tt.level, got.Level)
			assert.Equal(t, tt.rule, got.Rule)
			if tt.level == LevelLow {
				assert.Empty(t, got.Warnings)
			} else {
				assert.NotEmpty(t, got.Warnings)
			}
		})
	}
}

func TestLevel_Rank(t *testing.T) {
	t.Parallel()

	assert.Less(t, LevelLow.Rank(), LevelMedium.Rank())
	assert.Less(t, LevelMedium.Rank(), LevelHigh.Rank())
	assert.Less(t, LevelHigh.Rank(), LevelCritical.Rank())
	assert.Equal(t, 0, Level("bogus").Rank())
}
