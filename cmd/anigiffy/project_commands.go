package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"anigiffy/internal/fileutil"
	"anigiffy/internal/project"
	"anigiffy/internal/textutil"
)

func newProjectCommand() *cobra.Command {
	projectCmd := &cobra.Command{
		Use:         "project",
		Short:       "Create and inspect project files",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}
	projectCmd.AddCommand(newProjectNewCommand())
	projectCmd.AddCommand(newProjectShowCommand())
	projectCmd.AddCommand(newProjectExportCommand())
	projectCmd.AddCommand(newProjectImportCommand())
	return projectCmd
}

func newProjectNewCommand() *cobra.Command {
	var (
		output    string
		frames    []string
		duration  int
		width     int
		height    int
		loop      int
		transparent bool
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "new NAME",
		Short: "Create a project file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := project.New(args[0])
			if width > 0 {
				p.Settings.Width = width
			}
			if height > 0 {
				p.Settings.Height = height
			}
			p.Settings.Loop = loop
			p.Settings.Transparent = transparent
			for _, file := range frames {
				p.AddFrame(file, duration)
			}

			target := output
			if target == "" {
				name := textutil.SecureFilename(p.Name)
				if name == "" {
					return fmt.Errorf("project name %q has no usable characters", p.Name)
				}
				target = name + ".json"
			}
			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("%s already exists (use --overwrite to replace it)", target)
				}
			}
			if err := p.Save(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created project %q with %d frames at %s\n", p.Name, len(p.Frames), target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Project file path (default: NAME.json)")
	cmd.Flags().StringArrayVarP(&frames, "frame", "f", nil, "Frame image path, repeatable")
	cmd.Flags().IntVar(&duration, "duration", project.DefaultFrameDuration, "Duration in milliseconds for --frame entries")
	cmd.Flags().IntVar(&width, "width", 0, "Canvas width")
	cmd.Flags().IntVar(&height, "height", 0, "Canvas height")
	cmd.Flags().IntVar(&loop, "loop", 0, "Loop count (0 loops forever)")
	cmd.Flags().BoolVar(&transparent, "transparent", false, "Keep transparency")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func newProjectShowCommand() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show FILE",
		Short: "Print a project's settings and frames",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := project.Load(args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, p)
			}
			s := p.Settings
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Project:     %s\n", p.Name)
			fmt.Fprintf(out, "Canvas:      %dx%d\n", s.Width, s.Height)
			fmt.Fprintf(out, "Loop:        %d\n", s.Loop)
			fmt.Fprintf(out, "Transparent: %s\n", yesNo(s.Transparent))
			if !s.Transparent {
				fmt.Fprintf(out, "Background:  %s\n", s.BackgroundColor)
			}
			if s.TransitionDuration > 0 {
				fmt.Fprintf(out, "Transition:  %dms in %d steps\n", s.TransitionDuration, s.TransitionSteps)
			}

			rows := make([][]string, 0, len(p.Frames))
			total := 0
			for i, f := range p.Frames {
				total += f.Duration
				rows = append(rows, []string{strconv.Itoa(i + 1), f.ID, f.File, strconv.Itoa(f.Duration)})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "ID", "File", "ms"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
				[]string{"", "", "Total", strconv.Itoa(total)},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the project document as JSON")
	return cmd
}

func newProjectExportCommand() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Convert a project file to YAML or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := project.Load(args[0])
			if err != nil {
				return err
			}
			var data []byte
			switch strings.ToLower(strings.TrimSpace(format)) {
			case "yaml", "yml":
				data, err = p.ExportYAML()
			case "json":
				data, err = p.MarshalJSON()
				data = append(data, '\n')
			default:
				return fmt.Errorf("unsupported format %q (use yaml or json)", format)
			}
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return fileutil.WriteFileAtomic(output, data, 0o644)
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "Output format: yaml or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (default stdout)")
	return cmd
}

func newProjectImportCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "import FILE.yaml",
		Short: "Convert a YAML project into a JSON project file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			p, err := project.ImportYAML(data)
			if err != nil {
				return err
			}
			target := output
			if target == "" {
				target = textutil.SecureFilename(p.Name) + ".json"
			}
			if err := p.Save(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported project %q to %s\n", p.Name, target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Project file path (default: NAME.json)")
	return cmd
}
