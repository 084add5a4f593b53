package session

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"anigiffy/internal/fileutil"
	"anigiffy/internal/frameprep"
	"anigiffy/internal/project"
	"anigiffy/internal/textutil"
)

var (
	// ErrInvalidFilename indicates a name that is empty after sanitizing or
	// carries an unsupported extension.
	ErrInvalidFilename = errors.New("invalid filename")
	// ErrFileNotFound indicates a requested session file does not exist.
	ErrFileNotFound = errors.New("file not found")
)

// Upload is a stored source image.
type Upload struct {
	Filename string `json:"filename"`
	// Path is the session-relative reference used in frames.
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// ImageInfo describes an uploaded image.
type ImageInfo struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// OutputInfo describes a generated GIF.
type OutputInfo struct {
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	Created  time.Time `json:"created"`
}

// ProjectInfo describes a saved project file.
type ProjectInfo struct {
	Name     string    `json:"name"`
	Filename string    `json:"filename"`
	Modified time.Time `json:"modified"`
}

// SaveUpload stores r under a random name that keeps the extension of name.
func (s *Store) SaveUpload(id, name string, r io.Reader) (Upload, error) {
	clean := textutil.SecureFilename(name)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(clean), "."))
	if clean == "" || ext == "" || !frameprep.AllowedExtension(clean) {
		return Upload{}, ErrInvalidFilename
	}
	filename := strings.ReplaceAll(uuid.NewString(), "-", "") + "." + ext
	path, err := s.Resolve(id, UploadsDir, filename)
	if err != nil {
		return Upload{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Upload{}, fmt.Errorf("create uploads directory: %w", err)
	}

	var size int64
	err = fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		n, err := io.Copy(w, r)
		size = n
		return err
	})
	if err != nil {
		return Upload{}, fmt.Errorf("save upload: %w", err)
	}
	return Upload{Filename: filename, Path: UploadsDir + "/" + filename, Size: size}, nil
}

// RemoveUpload deletes an uploaded image.
func (s *Store) RemoveUpload(id, filename string) error {
	path, err := s.file(id, UploadsDir, filename)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// UploadPath returns the path of an existing upload.
func (s *Store) UploadPath(id, filename string) (string, error) {
	return s.file(id, UploadsDir, filename)
}

// ListImages returns uploaded images sorted by filename, descending. Images
// that cannot be inspected are listed without dimensions.
func (s *Store) ListImages(id string, prep *frameprep.Preparer) ([]ImageInfo, error) {
	dir, err := s.Resolve(id, UploadsDir)
	if err != nil {
		return nil, err
	}
	entries, err := readDir(dir)
	if err != nil {
		return nil, err
	}
	var images []ImageInfo
	for _, entry := range entries {
		if entry.IsDir() || !frameprep.AllowedExtension(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		img := ImageInfo{
			Filename: entry.Name(),
			Path:     UploadsDir + "/" + entry.Name(),
			Size:     info.Size(),
		}
		if prep != nil {
			if meta, err := prep.Inspect(filepath.Join(dir, entry.Name())); err == nil {
				img.Width, img.Height = meta.Width, meta.Height
			}
		}
		images = append(images, img)
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Filename > images[j].Filename })
	return images, nil
}

// OutputPath returns where a generated GIF named filename lives. The file
// need not exist yet.
func (s *Store) OutputPath(id, filename string) (string, error) {
	clean := textutil.SecureFilename(filename)
	if clean == "" || !strings.EqualFold(filepath.Ext(clean), ".gif") {
		return "", ErrInvalidFilename
	}
	return s.Resolve(id, OutputDir, clean)
}

// ExistingOutput returns the path of a generated GIF that exists.
func (s *Store) ExistingOutput(id, filename string) (string, error) {
	return s.file(id, OutputDir, filename)
}

// ListOutputs returns generated GIFs, newest first.
func (s *Store) ListOutputs(id string) ([]OutputInfo, error) {
	dir, err := s.Resolve(id, OutputDir)
	if err != nil {
		return nil, err
	}
	entries, err := readDir(dir)
	if err != nil {
		return nil, err
	}
	var outputs []OutputInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".gif") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		outputs = append(outputs, OutputInfo{Filename: entry.Name(), Size: info.Size(), Created: info.ModTime()})
	}
	sort.Slice(outputs, func(i, j int) bool { return outputs[i].Created.After(outputs[j].Created) })
	return outputs, nil
}

// ProjectFilename maps a project name to its file name in projects/.
func ProjectFilename(name string) (string, error) {
	clean := textutil.SecureFilename(strings.TrimSuffix(name, ".json"))
	if clean == "" {
		return "", ErrInvalidFilename
	}
	return clean + ".json", nil
}

// SaveProject writes p into projects/, replacing a project of the same name.
func (s *Store) SaveProject(id string, p *project.Project) (string, error) {
	filename, err := ProjectFilename(p.Name)
	if err != nil {
		return "", err
	}
	path, err := s.Resolve(id, ProjectsDir, filename)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create projects directory: %w", err)
	}
	if err := p.Save(path); err != nil {
		return "", err
	}
	return filename, nil
}

// ProjectExists reports whether a project named name is saved.
func (s *Store) ProjectExists(id, name string) bool {
	filename, err := ProjectFilename(name)
	if err != nil {
		return false
	}
	_, err = s.file(id, ProjectsDir, filename)
	return err == nil
}

// LoadProject reads a saved project by name.
func (s *Store) LoadProject(id, name string) (*project.Project, error) {
	filename, err := ProjectFilename(name)
	if err != nil {
		return nil, err
	}
	path, err := s.file(id, ProjectsDir, filename)
	if err != nil {
		return nil, err
	}
	return project.Load(path)
}

// DeleteProject removes a saved project by name.
func (s *Store) DeleteProject(id, name string) error {
	filename, err := ProjectFilename(name)
	if err != nil {
		return err
	}
	path, err := s.file(id, ProjectsDir, filename)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// ListProjects returns saved projects, most recently modified first.
// Unreadable files are skipped.
func (s *Store) ListProjects(id string) ([]ProjectInfo, error) {
	dir, err := s.Resolve(id, ProjectsDir)
	if err != nil {
		return nil, err
	}
	entries, err := readDir(dir)
	if err != nil {
		return nil, err
	}
	var projects []ProjectInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}
		p, err := project.Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		projects = append(projects, ProjectInfo{Name: p.Name, Filename: entry.Name(), Modified: p.Modified})
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Modified.After(projects[j].Modified) })
	return projects, nil
}

// file resolves a sanitized filename inside sub and requires it to exist.
func (s *Store) file(id, sub, filename string) (string, error) {
	clean := textutil.SecureFilename(filename)
	if clean == "" {
		return "", ErrInvalidFilename
	}
	path, err := s.Resolve(id, sub, clean)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrFileNotFound
		}
		return "", err
	}
	if info.IsDir() {
		return "", ErrFileNotFound
	}
	return path, nil
}

func readDir(dir string) ([]fs.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return entries, err
}
