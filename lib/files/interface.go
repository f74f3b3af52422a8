// Package files defines the hierarchical file store used to provision
// per-project folders. Operations may fail transiently and are expected to be
// wrapped in a retry.Executor by the caller.
package files

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned for handles that do not (or no longer) exist.
	ErrNotFound = errors.New("file or folder not found")
	// ErrInvalidName is returned for empty names or names containing a path separator.
	ErrInvalidName = errors.New("invalid file or folder name")
)

// Handle references a file or folder.
type Handle struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Folder bool   `json:"folder"`
}

// IStore is the hierarchical file store.
type IStore interface {
	// Root returns the folder all project folders are created in.
	Root() Handle
	// CreateFolder creates a folder called name inside parent. Names are not unique,
	// callers check with ListFoldersByName first if they need idempotence.
	CreateFolder(parent Handle, name string) (Handle, error)
	// ListFoldersByName returns the sub folders of parent called name.
	ListFoldersByName(parent Handle, name string) ([]Handle, error)
	// ListFilesByName returns the files in folder called name.
	ListFilesByName(folder Handle, name string) ([]Handle, error)
	// CreateFile stores content as a new file in folder.
	CreateFile(folder Handle, content []byte, mimeType, name string) (Handle, error)
	// Trash moves a file or folder to the trash.
	Trash(h Handle) error
}

// ValidName checks that name can be used as a single path element.
func ValidName(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return ErrInvalidName
	}
	return nil
}
