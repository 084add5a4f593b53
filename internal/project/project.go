package project

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Frame is one still image placed on the timeline.
type Frame struct {
	ID string `json:"id"`
	// File is a session-relative reference such as "uploads/<name>.png".
	File string `json:"file"`
	// Duration is the display time in milliseconds, including any
	// transition carved out of it.
	Duration int `json:"duration"`
}

// Project is a named animation specification.
type Project struct {
	Name     string
	Created  time.Time
	Modified time.Time
	Settings Settings
	Frames   []Frame
}

var now = func() time.Time { return time.Now().UTC() }

// NewFrameID returns a fresh "frame-<8 hex>" identifier.
func NewFrameID() string {
	return "frame-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// New returns an empty project with default settings.
func New(name string) *Project {
	ts := now()
	return &Project{
		Name:     name,
		Created:  ts,
		Modified: ts,
		Settings: DefaultSettings(),
	}
}

// Clone returns a deep copy of p.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Frames = append([]Frame(nil), p.Frames...)
	return &cp
}

func (p *Project) touch() {
	p.Modified = now()
}

// AddFrame appends a frame. A duration of zero or less uses the project's
// default duration.
func (p *Project) AddFrame(file string, duration int) Frame {
	if duration <= 0 {
		duration = p.Settings.DefaultDuration
	}
	frame := Frame{ID: NewFrameID(), File: file, Duration: duration}
	p.Frames = append(p.Frames, frame)
	p.touch()
	return frame
}

// RemoveFrame drops the frame with id and reports whether one was removed.
func (p *Project) RemoveFrame(id string) bool {
	kept := p.Frames[:0]
	removed := false
	for _, f := range p.Frames {
		if f.ID == id {
			removed = true
			continue
		}
		kept = append(kept, f)
	}
	p.Frames = kept
	p.touch()
	return removed
}

// ReorderFrames rebuilds the timeline in the order of ids. Unknown ids are
// ignored and frames not named are dropped.
func (p *Project) ReorderFrames(ids []string) {
	byID := make(map[string]Frame, len(p.Frames))
	for _, f := range p.Frames {
		byID[f.ID] = f
	}
	ordered := make([]Frame, 0, len(ids))
	for _, id := range ids {
		if f, ok := byID[id]; ok {
			ordered = append(ordered, f)
		}
	}
	p.Frames = ordered
	p.touch()
}

// FrameUpdate carries optional replacements for a frame's fields.
type FrameUpdate struct {
	Duration *int
	File     *string
}

// UpdateFrame applies upd to the frame with id.
func (p *Project) UpdateFrame(id string, upd FrameUpdate) (Frame, bool) {
	for i := range p.Frames {
		if p.Frames[i].ID != id {
			continue
		}
		if upd.Duration != nil {
			p.Frames[i].Duration = *upd.Duration
		}
		if upd.File != nil {
			p.Frames[i].File = *upd.File
		}
		p.touch()
		return p.Frames[i], true
	}
	return Frame{}, false
}

// UpdateSettings applies upd to the project settings.
func (p *Project) UpdateSettings(upd SettingsUpdate) {
	upd.apply(&p.Settings)
	p.touch()
}
