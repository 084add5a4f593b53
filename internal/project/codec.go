package project

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"anigiffy/internal/fileutil"
)

// TimestampLayout is how Created and Modified are written.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// ErrMissingName indicates a project document without a name.
var ErrMissingName = errors.New("project name is required")

type wireFrame struct {
	ID       string `json:"id" yaml:"id"`
	File     string `json:"file" yaml:"file"`
	Duration *int   `json:"duration,omitempty" yaml:"duration,omitempty"`
}

type wireProject struct {
	Name     string      `json:"name" yaml:"name"`
	Created  string      `json:"created" yaml:"created"`
	Modified string      `json:"modified" yaml:"modified"`
	Settings Settings    `json:"settings" yaml:"settings"`
	Frames   []wireFrame `json:"frames" yaml:"frames"`
}

func (p *Project) toWire() wireProject {
	w := wireProject{
		Name:     p.Name,
		Created:  formatTimestamp(p.Created),
		Modified: formatTimestamp(p.Modified),
		Settings: p.Settings,
		Frames:   make([]wireFrame, 0, len(p.Frames)),
	}
	w.Settings.normalize()
	for _, f := range p.Frames {
		d := f.Duration
		w.Frames = append(w.Frames, wireFrame{ID: f.ID, File: f.File, Duration: &d})
	}
	return w
}

func (w wireProject) toProject() (*Project, error) {
	if strings.TrimSpace(w.Name) == "" {
		return nil, ErrMissingName
	}
	created, err := parseTimestamp(w.Created)
	if err != nil {
		return nil, fmt.Errorf("created: %w", err)
	}
	modified, err := parseTimestamp(w.Modified)
	if err != nil {
		return nil, fmt.Errorf("modified: %w", err)
	}
	p := &Project{
		Name:     w.Name,
		Created:  created,
		Modified: modified,
		Settings: w.Settings,
		Frames:   make([]Frame, 0, len(w.Frames)),
	}
	p.Settings.normalize()
	for _, wf := range w.Frames {
		f := Frame{ID: wf.ID, File: wf.File, Duration: DefaultFrameDuration}
		if f.ID == "" {
			f.ID = NewFrameID()
		}
		if wf.Duration != nil {
			f.Duration = *wf.Duration
		}
		p.Frames = append(p.Frames, f)
	}
	return p, nil
}

func newWire() wireProject {
	return wireProject{Settings: DefaultSettings()}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = now()
	}
	return t.UTC().Format(TimestampLayout)
}

// parseTimestamp accepts naive ISO-8601 with optional fractional seconds
// (read as UTC) or RFC 3339. Empty means now.
func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return now(), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05.999999999", value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}

// MarshalJSON writes the stored project document shape.
func (p *Project) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.toWire())
}

// UnmarshalJSON reads a stored project document, filling defaults for
// absent settings and frame fields.
func (p *Project) UnmarshalJSON(data []byte) error {
	w := newWire()
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	decoded, err := w.toProject()
	if err != nil {
		return err
	}
	*p = *decoded
	return nil
}

// Decode reads one JSON project document from r.
func Decode(r io.Reader) (*Project, error) {
	var p Project
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	return &p, nil
}

// Load reads a JSON project file.
func Load(path string) (*Project, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Save writes p as indented JSON, replacing path atomically.
func (p *Project) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	return fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644)
}

// ExportYAML renders p with the same keys as the JSON document.
func (p *Project) ExportYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p.toWire()); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// ImportYAML parses a project exported by ExportYAML.
func ImportYAML(data []byte) (*Project, error) {
	w := newWire()
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return w.toProject()
}
