package deps

import (
	"slices"
	"sort"

	flowerrors "github.com/abatilo/taskflow/internal/errors"
	"github.com/abatilo/taskflow/internal/task"
)

// Graph is a read-only snapshot of the dependency relationships between a set of tasks.
type Graph struct {
	tasks map[string]*task.Task
}

// TreeNode is one task in the rendered dependency tree; children wait on it.
type TreeNode struct {
	Task     *task.Task
	Children []TreeNode
}

// NewGraph creates a Graph from a list of tasks.
func NewGraph(tasks []*task.Task) *Graph {
	g := &Graph{
		tasks: make(map[string]*task.Task, len(tasks)),
	}
	for _, t := range tasks {
		g.tasks[t.ID] = t
	}
	return g
}

// Get returns a task by ID.
func (g *Graph) Get(id string) *task.Task {
	return g.tasks[id]
}

// IsBlocked returns true if the task waits on any task that is not done.
func (g *Graph) IsBlocked(id string) bool {
	return len(g.BlockedBy(id)) > 0
}

// BlockedBy returns the incomplete tasks that block this task.
// Blockers missing from the snapshot are not blocking.
func (g *Graph) BlockedBy(id string) []flowerrors.BlockingTask {
	t := g.tasks[id]
	if t == nil {
		return nil
	}
	var blockers []flowerrors.BlockingTask
	for _, depID := range t.BlockedBy {
		dep := g.tasks[depID]
		if dep == nil || dep.Status == task.StatusDone {
			continue
		}
		blockers = append(blockers, flowerrors.BlockingTask{ID: dep.ID, Title: dep.Title, Status: string(dep.Status)})
	}
	return blockers
}

// Ready returns the not-yet-started tasks whose blockers are all done.
func (g *Graph) Ready() []*task.Task {
	var ready []*task.Task
	for _, t := range g.tasks {
		if t.Status != task.StatusTodo && t.Status != task.StatusPending {
			continue
		}
		if !g.IsBlocked(t.ID) {
			ready = append(ready, t)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		return taskLess(ready[i], ready[j])
	})

	return ready
}

// Dependents returns IDs of tasks that wait on the given task.
func (g *Graph) Dependents(id string) []string {
	var dependents []string
	for _, t := range g.tasks {
		if slices.Contains(t.BlockedBy, id) {
			dependents = append(dependents, t.ID)
		}
	}
	sort.Strings(dependents)
	return dependents
}

// SortByReadiness orders tasks unblocked-first, then by priority and age.
func (g *Graph) SortByReadiness(tasks []*task.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		bi, bj := g.IsBlocked(tasks[i].ID), g.IsBlocked(tasks[j].ID)
		if bi != bj {
			return !bi
		}
		return taskLess(tasks[i], tasks[j])
	})
}

// BuildTree returns the dependency forest: roots wait on nothing in the
// snapshot and each node's children are the tasks waiting on it.
func (g *Graph) BuildTree() []TreeNode {
	var roots []*task.Task
	for _, t := range g.tasks {
		hasParent := false
		for _, depID := range t.BlockedBy {
			if g.tasks[depID] != nil {
				hasParent = true
				break
			}
		}
		if !hasParent {
			roots = append(roots, t)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return taskLess(roots[i], roots[j]) })

	nodes := make([]TreeNode, 0, len(roots))
	for _, r := range roots {
		nodes = append(nodes, g.buildNode(r, map[string]bool{}))
	}
	return nodes
}

func (g *Graph) buildNode(t *task.Task, onPath map[string]bool) TreeNode {
	node := TreeNode{Task: t}
	onPath[t.ID] = true
	defer delete(onPath, t.ID)

	for _, childID := range g.Dependents(t.ID) {
		if onPath[childID] {
			continue
		}
		node.Children = append(node.Children, g.buildNode(g.tasks[childID], onPath))
	}
	return node
}

// taskLess returns true if task a should be sorted before task b.
// Sorts by priority first (urgent < high < medium < low), then by creation time.
func taskLess(a, b *task.Task) bool {
	pa := task.PriorityOrder(a.Priority)
	pb := task.PriorityOrder(b.Priority)
	if pa != pb {
		return pa < pb
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
