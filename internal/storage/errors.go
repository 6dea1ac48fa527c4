package storage

// NotInRepoError indicates the default data directory was requested outside a git repository.
type NotInRepoError struct{}

func (e NotInRepoError) Error() string {
	return "not in a git repository (pass --data-dir or set storage.path)"
}

// NotInitializedError indicates the data directory doesn't exist.
type NotInitializedError struct {
	Path string
}

func (e NotInitializedError) Error() string {
	return "taskflow not initialized at " + e.Path + ": run 'taskflow init' first"
}

// AlreadyInitializedError indicates the data directory already exists.
type AlreadyInitializedError struct {
	Path string
}

func (e AlreadyInitializedError) Error() string {
	return "taskflow already initialized at " + e.Path
}
