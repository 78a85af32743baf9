package ports

import (
	"io"
	"io/fs"
)

// FileHandle is an open file returned by FileSystem.OpenFile.
type FileHandle interface {
	io.WriteCloser

	// Name returns the path the file was opened with.
	Name() string
}

// FileSystem abstracts file operations for testing.
type FileSystem interface {
	// ReadFile reads the named file and returns its contents.
	ReadFile(name string) ([]byte, error)

	// OpenFile opens the named file with the given flags (os.O_APPEND etc.).
	OpenFile(name string, flag int, perm fs.FileMode) (FileHandle, error)

	// MkdirAll creates a directory and all parent directories.
	MkdirAll(path string, perm fs.FileMode) error

	// UserHomeDir returns the current user's home directory.
	UserHomeDir() (string, error)

	// Getenv retrieves the value of the environment variable named by the key.
	Getenv(key string) string
}
