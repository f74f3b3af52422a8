package lfiles

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/dCoord/lib/files"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/afero"
)

const trashDir = ".trash"

var log = logger.GetLogger("files")

type storeImpl struct {
	fs      afero.Fs
	rootDir string
	baseURL string

	// entries with the same parent and name are created one at a time
	mu sync.Mutex
}

// NewStore returns a file store rooted at rootDir on fsys. Handle URLs are built from baseURL.
func NewStore(fsys afero.Fs, rootDir, baseURL string) (files.IStore, error) {
	if err := fsys.MkdirAll(filepath.Join(rootDir, trashDir), 0o755); err != nil {
		return nil, fmt.Errorf("create file store root: %w", err)
	}
	return &storeImpl{
		fs:      fsys,
		rootDir: rootDir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (s *storeImpl) Root() files.Handle {
	return files.Handle{ID: "", Name: "", URL: s.baseURL + "/", Folder: true}
}

func (s *storeImpl) CreateFolder(parent files.Handle, name string) (files.Handle, error) {
	if err := files.ValidName(name); err != nil {
		return files.Handle{}, fmt.Errorf("%w: %q", err, name)
	}
	if err := s.requireFolder(parent); err != nil {
		return files.Handle{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.freeID(parent.ID, name)
	if err != nil {
		return files.Handle{}, err
	}
	if err := s.fs.Mkdir(s.abs(id), 0o755); err != nil {
		return files.Handle{}, err
	}
	log.Debugf("created folder %s", id)
	return s.handle(id, true), nil
}

func (s *storeImpl) ListFoldersByName(parent files.Handle, name string) ([]files.Handle, error) {
	return s.list(parent, name, true)
}

func (s *storeImpl) ListFilesByName(folder files.Handle, name string) ([]files.Handle, error) {
	return s.list(folder, name, false)
}

func (s *storeImpl) CreateFile(folder files.Handle, content []byte, mimeType, name string) (files.Handle, error) {
	if err := files.ValidName(name); err != nil {
		return files.Handle{}, fmt.Errorf("%w: %q", err, name)
	}
	if err := s.requireFolder(folder); err != nil {
		return files.Handle{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.freeID(folder.ID, name)
	if err != nil {
		return files.Handle{}, err
	}
	if err := afero.WriteFile(s.fs, s.abs(id), content, 0o644); err != nil {
		return files.Handle{}, err
	}
	log.Debugf("created file %s (%s, %d bytes)", id, mimeType, len(content))
	return s.handle(id, false), nil
}

func (s *storeImpl) Trash(h files.Handle) error {
	if h.ID == "" {
		return fmt.Errorf("%w: the root cannot be trashed", files.ErrInvalidName)
	}
	exists, err := afero.Exists(s.fs, s.abs(h.ID))
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", files.ErrNotFound, h.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := path.Join(trashDir, fmt.Sprintf("%d-%s", time.Now().UnixNano(), path.Base(h.ID)))
	if err := s.fs.Rename(s.abs(h.ID), s.abs(target)); err != nil {
		return err
	}
	log.Infof("moved %s to trash", h.ID)
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (s *storeImpl) list(parent files.Handle, name string, folders bool) ([]files.Handle, error) {
	if err := s.requireFolder(parent); err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(s.fs, s.abs(parent.ID))
	if err != nil {
		return nil, err
	}
	out := make([]files.Handle, 0)
	for _, e := range entries {
		if e.IsDir() != folders || (parent.ID == "" && e.Name() == trashDir) {
			continue
		}
		if e.Name() == name || strings.HasPrefix(e.Name(), name+" (") && strings.HasSuffix(e.Name(), ")") {
			out = append(out, s.handle(path.Join(parent.ID, e.Name()), folders))
		}
	}
	return out, nil
}

// freeID returns the id for name in parent, adding a " (n)" suffix if the name is taken.
func (s *storeImpl) freeID(parentID, name string) (string, error) {
	candidate := name
	for n := 1; ; n++ {
		id := path.Join(parentID, candidate)
		exists, err := afero.Exists(s.fs, s.abs(id))
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
		candidate = fmt.Sprintf("%s (%d)", name, n)
	}
}

func (s *storeImpl) requireFolder(h files.Handle) error {
	info, err := s.fs.Stat(s.abs(h.ID))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", files.ErrNotFound, h.ID)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a folder", files.ErrInvalidName, h.ID)
	}
	return nil
}

func (s *storeImpl) abs(id string) string {
	return filepath.Join(s.rootDir, filepath.FromSlash(id))
}

func (s *storeImpl) handle(id string, folder bool) files.Handle {
	return files.Handle{
		ID:     id,
		Name:   path.Base(id),
		URL:    s.baseURL + "/" + id,
		Folder: folder,
	}
}
