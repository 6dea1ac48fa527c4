package output

import (
	"github.com/abatilo/taskflow/internal/deps"
	flowerrors "github.com/abatilo/taskflow/internal/errors"
	"github.com/abatilo/taskflow/internal/task"
	"github.com/abatilo/taskflow/internal/timetrack"
)

// Formatter defines the interface for output formatting.
type Formatter interface {
	FormatTask(t *task.Task) string
	FormatTaskList(tasks []*task.Task) string
	FormatError(err error) string
	FormatMessage(msg string) string
	FormatGraph(nodes []deps.TreeNode) string
	FormatBlockers(id string, blockers []flowerrors.BlockingTask) string
	FormatCompletion(done, next *task.Task) string
	FormatTimeTracking(id string, tt task.TimeTracking) string
	FormatSummary(s timetrack.Summary) string
}
