package session

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Stats summarizes the storage used by one session.
type Stats struct {
	TotalSize    int64 `json:"total_size"`
	ImageCount   int   `json:"image_count"`
	ProjectCount int   `json:"project_count"`
	OutputCount  int   `json:"output_count"`
}

// Info describes a session directory.
type Info struct {
	ID      string    `json:"id"`
	Path    string    `json:"path"`
	ModTime time.Time `json:"modified"`
	Size    int64     `json:"size"`
}

// Stats returns storage usage for id, or ErrNotFound.
func (s *Store) Stats(id string) (Stats, error) {
	dir, err := s.Dir(id)
	if err != nil {
		return Stats{}, err
	}
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Stats{}, ErrNotFound
		}
		return Stats{}, err
	}

	var st Stats
	st.TotalSize, err = dirSize(dir)
	if err != nil {
		return Stats{}, err
	}
	st.ImageCount = countEntries(filepath.Join(dir, UploadsDir), "")
	st.ProjectCount = countEntries(filepath.Join(dir, ProjectsDir), ".json")
	st.OutputCount = countEntries(filepath.Join(dir, OutputDir), ".gif")
	return st, nil
}

// List returns every session directory, oldest first.
func (s *Store) List() ([]Info, error) {
	root := strings.TrimSpace(s.root)
	if root == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var sessions []Info
	for _, entry := range entries {
		if !entry.IsDir() || !ValidID(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(root, entry.Name())
		size, _ := dirSize(path)
		sessions = append(sessions, Info{
			ID:      entry.Name(),
			Path:    path,
			ModTime: info.ModTime(),
			Size:    size,
		})
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ModTime.Before(sessions[j].ModTime) })
	return sessions, nil
}

// AllStats gathers Stats for every session concurrently.
func (s *Store) AllStats(ctx context.Context) (map[string]Stats, error) {
	sessions, err := s.List()
	if err != nil {
		return nil, err
	}
	results := make([]Stats, len(sessions))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, info := range sessions {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			st, err := s.Stats(info.ID)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			results[i] = st
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]Stats, len(sessions))
	for i, info := range sessions {
		out[info.ID] = results[i]
	}
	return out, nil
}

func countEntries(dir, ext string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, entry := range entries {
		if ext != "" && (entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ext)) {
			continue
		}
		n++
	}
	return n
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size, err
}
