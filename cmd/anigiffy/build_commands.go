package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"anigiffy/internal/animation"
	"anigiffy/internal/project"
	"anigiffy/internal/textutil"
)

type encodeOptions struct {
	base      string
	output    string
	maxFrames int
	jsonOut   bool
}

type encodeSummary struct {
	Output       string                   `json:"output"`
	Size         int64                    `json:"size"`
	Frames       int                      `json:"frames"`
	SourceFrames int                      `json:"source_frames"`
	Message      string                   `json:"message"`
	Skipped      []animation.SkippedFrame `json:"skipped,omitempty"`
}

func newBuildCommand(ctx *commandContext) *cobra.Command {
	opts := &encodeOptions{}
	cmd := &cobra.Command{
		Use:   "build <project.json>",
		Short: "Encode a project file into a GIF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(cmd, ctx, args[0], opts, false)
		},
	}
	addEncodeFlags(cmd, opts)
	return cmd
}

func newPreviewCommand(ctx *commandContext) *cobra.Command {
	opts := &encodeOptions{}
	cmd := &cobra.Command{
		Use:   "preview <project.json>",
		Short: "Encode the first frames of a project file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(cmd, ctx, args[0], opts, true)
		},
	}
	addEncodeFlags(cmd, opts)
	cmd.Flags().IntVar(&opts.maxFrames, "max-frames", 0, "Frames to include (default render.preview_frames)")
	return cmd
}

func addEncodeFlags(cmd *cobra.Command, opts *encodeOptions) {
	cmd.Flags().StringVar(&opts.base, "base", "", "Directory frame files resolve against (default: the project file's directory)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output GIF path")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the result as JSON")
}

func runEncode(cmd *cobra.Command, ctx *commandContext, path string, opts *encodeOptions, preview bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	p, err := project.Load(path)
	if err != nil {
		return err
	}
	base := opts.base
	if base == "" {
		base = filepath.Dir(path)
	}
	output := opts.output
	if output == "" {
		output = defaultOutputName(p, preview)
	}

	encoder, err := animation.New(cfg, ctx.cliLogger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	resolve := animation.DirResolver(base)
	var result *animation.Result
	if preview {
		result, err = encoder.Preview(cmd.Context(), p, resolve, opts.maxFrames)
	} else {
		result, err = encoder.Encode(cmd.Context(), p, resolve)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := animation.WriteFile(output, result.Data); err != nil {
		return err
	}

	summary := encodeSummary{
		Output:       output,
		Size:         result.Size,
		Frames:       result.FrameCount,
		SourceFrames: result.SourceFrames,
		Message:      result.Message,
		Skipped:      result.Skipped,
	}
	if opts.jsonOut {
		return writeJSON(cmd, summary)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s (%d frames, %s)\n", result.Message, output, result.FrameCount, humanize.Bytes(uint64(result.Size)))
	for _, skipped := range result.Skipped {
		fmt.Fprintf(out, "  skipped %s (%s): %s\n", skipped.ID, skipped.File, skipped.Reason)
	}
	return nil
}

func defaultOutputName(p *project.Project, preview bool) string {
	name := textutil.SecureFilename(p.Name)
	if name == "" {
		name = "animation"
	}
	if preview {
		name = "preview_" + name
	}
	return strings.ToLower(name) + ".gif"
}
