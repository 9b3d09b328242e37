// Package hostfs gives a concrete shape to the "host file system" spec.md
// treats as an external collaborator (filesys_open/create/remove and
// per-file seek/read/write/length/reopen/close). Production use is backed
// by github.com/absfs/osfs (real files under a configured root);
// github.com/absfs/memfs backs tests with a deterministic, in-memory
// filesystem. Both satisfy github.com/absfs/absfs.Filer, so syscall.go
// never has to know which one it is talking to.
package hostfs

import (
	"os"
	"path"
	"sync"

	"github.com/absfs/absfs"
	"github.com/absfs/memfs"
	"github.com/absfs/osfs"
)

// FileSystem is the host filesystem boundary the syscall dispatcher opens,
// creates and removes files against. A root directory scopes every name so
// a misbehaving guest cannot escape the sandbox via "../../etc/passwd".
type FileSystem struct {
	fs   absfs.Filer
	root string
}

// NewHost returns a FileSystem backed by real files on disk, rooted at dir.
func NewHost(dir string) (*FileSystem, error) {
	fs, err := osfs.NewFS()
	if err != nil {
		return nil, err
	}
	if err := fs.MkdirAll(dir, 0755); err != nil && !os.IsExist(err) {
		return nil, err
	}
	return &FileSystem{fs: fs, root: dir}, nil
}

// NewMem returns a FileSystem backed by an in-memory filesystem, for tests
// that must not touch the real disk.
func NewMem() (*FileSystem, error) {
	fs, err := memfs.NewFS()
	if err != nil {
		return nil, err
	}
	return &FileSystem{fs: fs, root: "/"}, nil
}

func (h *FileSystem) resolve(name string) string {
	return path.Join(h.root, path.Clean("/"+name))
}

// Create creates a file of the given initial size, truncating any existing
// content, matching Pintos's filesys_create(name, size).
func (h *FileSystem) Create(name string, size int) (bool, error) {
	f, err := h.fs.OpenFile(h.resolve(name), os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return false, err
	}
	defer f.Close()
	if size > 0 {
		if err := f.Truncate(int64(size)); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Remove deletes a file, matching filesys_remove.
func (h *FileSystem) Remove(name string) bool {
	return h.fs.Remove(h.resolve(name)) == nil
}

// Open opens an existing file for reading and writing, matching
// filesys_open. The returned File can be Reopen'd to decouple a second
// handle's lifetime, as mmap does.
func (h *FileSystem) Open(name string) (*File, error) {
	f, err := h.fs.OpenFile(h.resolve(name), os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &File{fs: h, path: h.resolve(name), f: f}, nil
}

// File is one open handle on the host filesystem. Multiple Files may be
// open on the same underlying path simultaneously (mmap reopens the fd's
// file once per mapping, so the mapping's pages share a handle whose
// lifetime is independent of the fd that created it; munmap's write-back
// goes through that same handle).
type File struct {
	mu   sync.Mutex
	fs   *FileSystem
	path string
	f    absfs.File
	pos  int64
}

// Reopen returns a brand-new handle on the same path with its own seek
// position, mirroring the original's file_reopen.
func (f *File) Reopen() (*File, error) {
	nf, err := f.fs.fs.OpenFile(f.path, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &File{fs: f.fs, path: f.path, f: nf}, nil
}

// Size returns the file's length in bytes.
func (f *File) Size() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.f.Stat()
	if err != nil {
		return 0, err
	}
	return int(st.Size()), nil
}

// ReadAt reads len(p) bytes starting at offset off, used for lazy-loading
// file-backed and mmap pages without disturbing the handle's seek
// position.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	return f.f.ReadAt(p, off)
}

// WriteAt writes p at offset off, used by munmap's write-back path.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	return f.f.WriteAt(p, off)
}

// Read reads from the current seek position, advancing it, matching
// file_read.
func (f *File) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.f.ReadAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

// Write writes at the current seek position, advancing it, matching
// file_write.
func (f *File) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.f.WriteAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

// Seek repositions the handle, matching file_seek.
func (f *File) Seek(pos int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = int64(pos)
}

// Tell reports the handle's current position, matching file_tell.
func (f *File) Tell() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int(f.pos)
}

// Close releases the handle, matching file_close.
func (f *File) Close() error {
	return f.f.Close()
}
