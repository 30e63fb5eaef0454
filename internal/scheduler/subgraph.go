package scheduler

import (
	"sort"

	"polykit/internal/descriptor"
	"polykit/internal/polyerr"
)

// taskSubgraphOrder computes the local topological order of taskName's
// transitive prerequisite tasks within pkg, per spec.md §4.3 "Task
// subgraph": depends_on names sibling tasks in the same package, the
// resulting DAG must be acyclic, and the target task itself is last.
func taskSubgraphOrder(pkg *descriptor.Package, taskName string) ([]descriptor.Task, error) {
	byName := make(map[string]descriptor.Task, len(pkg.Tasks))
	for _, t := range pkg.Tasks {
		byName[t.Name] = t
	}
	if _, ok := byName[taskName]; !ok {
		return nil, &polyerr.TaskExecutionError{
			Package:   pkg.Name,
			Task:      taskName,
			Message:   "unknown task",
			Available: availableTaskNames(pkg),
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(byName))
	var order []descriptor.Task

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return &polyerr.CircularDependencyError{Package: pkg.Name, Cycle: append(append([]string{}, path...), name)}
		}
		t, ok := byName[name]
		if !ok {
			return &polyerr.TaskExecutionError{
				Package:   pkg.Name,
				Task:      name,
				Message:   "depends_on references unknown task",
				Available: availableTaskNames(pkg),
			}
		}
		state[name] = visiting
		for _, dep := range t.DependsOn {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, t)
		return nil
	}

	if err := visit(taskName, nil); err != nil {
		return nil, err
	}
	return order, nil
}

func availableTaskNames(pkg *descriptor.Package) []string {
	names := make([]string, len(pkg.Tasks))
	for i, t := range pkg.Tasks {
		names[i] = t.Name
	}
	sort.Strings(names)
	return names
}
