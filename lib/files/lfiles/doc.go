// Package lfiles implements files.IStore on an afero file system. With
// afero.NewOsFs it manages a real directory tree, with afero.NewMemMapFs it is
// a volatile store for tests.
//
// Handle ids are slash separated paths relative to the root. Trashed entries
// are moved below ".trash" instead of being deleted. Folder names are not
// unique in the files.IStore contract, so creating a folder whose name is
// already taken yields a sibling with a " (n)" suffix.
package lfiles
