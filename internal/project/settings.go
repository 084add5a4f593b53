package project

import (
	"errors"
	"fmt"
	"image/color"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Fit selects how a source image is placed on the canvas.
type Fit string

const (
	FitContain Fit = "contain"
	FitCover   Fit = "cover"
	FitStretch Fit = "stretch"
	// FitFill is accepted for older projects and behaves like FitContain.
	FitFill Fit = "fill"
)

// Default values applied when a settings key is absent.
const (
	DefaultWidth           = 800
	DefaultHeight          = 600
	DefaultFrameDuration   = 100
	DefaultBackgroundColor = "#FFFFFF"
	DefaultAlphaThreshold  = 128
	DefaultTransitionSteps = 4
)

// MaxLoop is the largest repeat count a GIF can store.
const MaxLoop = 65535

// Settings is the canvas and timing configuration of a project.
type Settings struct {
	Width              int    `json:"width" yaml:"width"`
	Height             int    `json:"height" yaml:"height"`
	// Loop is the repeat count: 0 repeats forever and -1 plays once.
	Loop               int    `json:"loop" yaml:"loop"`
	DefaultDuration    int    `json:"defaultDuration" yaml:"defaultDuration"`
	Transparent        bool   `json:"transparent" yaml:"transparent"`
	BackgroundColor    string `json:"backgroundColor" yaml:"backgroundColor"`
	AlphaThreshold     int    `json:"alphaThreshold" yaml:"alphaThreshold"`
	TransitionDuration int    `json:"transitionDuration" yaml:"transitionDuration"`
	TransitionSteps    int    `json:"transitionSteps" yaml:"transitionSteps"`
	// Fit is empty for the default contain policy.
	Fit Fit `json:"fit,omitempty" yaml:"fit,omitempty"`
}

// DefaultSettings returns the settings of a freshly created project.
func DefaultSettings() Settings {
	return Settings{
		Width:           DefaultWidth,
		Height:          DefaultHeight,
		DefaultDuration: DefaultFrameDuration,
		BackgroundColor: DefaultBackgroundColor,
		AlphaThreshold:  DefaultAlphaThreshold,
		TransitionSteps: DefaultTransitionSteps,
	}
}

// FitMode returns the effective fit policy.
func (s Settings) FitMode() Fit {
	switch Fit(strings.ToLower(string(s.Fit))) {
	case FitCover:
		return FitCover
	case FitStretch:
		return FitStretch
	default:
		return FitContain
	}
}

// Background parses BackgroundColor into an opaque colour.
func (s Settings) Background() (color.NRGBA, error) {
	return ParseColor(s.BackgroundColor)
}

func (s *Settings) normalize() {
	if Fit(strings.ToLower(string(s.Fit))) == FitContain {
		s.Fit = ""
	}
}

// ParseColor accepts "#RRGGBB" or "#RGB", with or without the leading hash.
func ParseColor(value string) (color.NRGBA, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return color.NRGBA{}, errors.New("empty colour")
	}
	if !strings.HasPrefix(trimmed, "#") {
		trimmed = "#" + trimmed
	}
	if len(trimmed) != 4 && len(trimmed) != 7 {
		return color.NRGBA{}, fmt.Errorf("parse colour %q: want #RGB or #RRGGBB", value)
	}
	c, err := colorful.Hex(strings.ToLower(trimmed))
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("parse colour %q: %w", value, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}, nil
}

// SettingsUpdate carries optional replacements for settings fields.
type SettingsUpdate struct {
	Width              *int
	Height             *int
	Loop               *int
	DefaultDuration    *int
	Transparent        *bool
	BackgroundColor    *string
	AlphaThreshold     *int
	TransitionDuration *int
	TransitionSteps    *int
	Fit                *Fit
}

func (u SettingsUpdate) apply(s *Settings) {
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setInt(&s.Width, u.Width)
	setInt(&s.Height, u.Height)
	setInt(&s.Loop, u.Loop)
	setInt(&s.DefaultDuration, u.DefaultDuration)
	setInt(&s.AlphaThreshold, u.AlphaThreshold)
	setInt(&s.TransitionDuration, u.TransitionDuration)
	setInt(&s.TransitionSteps, u.TransitionSteps)
	if u.Transparent != nil {
		s.Transparent = *u.Transparent
	}
	if u.BackgroundColor != nil {
		s.BackgroundColor = strings.TrimSpace(*u.BackgroundColor)
	}
	if u.Fit != nil {
		s.Fit = *u.Fit
	}
	s.normalize()
}
