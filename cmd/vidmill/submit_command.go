package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vidmill/internal/api"
	"vidmill/internal/media"
	"vidmill/internal/transform"
)

type submitOptions struct {
	specPath string
	preset   string
	folder   string
	all      bool
	batch    bool
	upload   bool
	label    string
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var opts submitOptions

	cmd := &cobra.Command{
		Use:   "submit [FILE...]",
		Short: "Submit videos for transformation",
		Long: `Submit one or more videos as a batch.

Sources are chosen with exactly one of:
  --folder F FILE...   files under a downloads folder (one job per file, or one
                       batch job with --batch); with no FILE, the whole folder
  --all                every video in every downloads folder as one job
  --upload FILE...     local files streamed to the daemon first

The transform comes from --spec (a JSON file, missing fields take defaults),
--preset, or the built-in defaults.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.specPath != "" && opts.preset != "" {
				return errors.New("specify only one of --spec or --preset")
			}
			modes := 0
			for _, set := range []bool{opts.folder != "", opts.all, opts.upload} {
				if set {
					modes++
				}
			}
			if modes != 1 {
				return errors.New("specify exactly one of --folder, --all, or --upload")
			}
			if opts.upload && len(args) == 0 {
				return errors.New("--upload requires at least one file")
			}
			if opts.all && len(args) > 0 {
				return errors.New("--all does not take file arguments")
			}

			var spec *transform.Spec
			if opts.specPath != "" {
				parsed, err := loadSpecFile(opts.specPath)
				if err != nil {
					return err
				}
				spec = &parsed
			}

			return ctx.withClient(func(client *api.Client) error {
				refs, err := resolveRefs(cmd, client, opts, args)
				if err != nil {
					return err
				}
				items := make([]api.SubmitItem, 0, len(refs))
				for _, ref := range refs {
					items = append(items, api.SubmitItem{Media: ref, Spec: spec, Preset: opts.preset, Label: opts.label})
				}
				resp, err := client.Submit(cmd.Context(), items)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					if err := writeJSON(cmd, resp); err != nil {
						return err
					}
				} else {
					printSubmitResults(cmd, refs, resp)
				}
				if resp.Accepted == 0 {
					return fmt.Errorf("no jobs accepted (%d rejected)", resp.Rejected)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.specPath, "spec", "", "Transform spec JSON file")
	cmd.Flags().StringVarP(&opts.preset, "preset", "p", "", "Saved preset name")
	cmd.Flags().StringVarP(&opts.folder, "folder", "f", "", "Downloads folder holding the files")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Process every video in every downloads folder as one job")
	cmd.Flags().BoolVar(&opts.batch, "batch", false, "With --folder, submit the files as one batch job")
	cmd.Flags().BoolVar(&opts.upload, "upload", false, "Upload local files before submitting")
	cmd.Flags().StringVar(&opts.label, "label", "", "Display label for the submitted jobs")
	return cmd
}

func loadSpecFile(path string) (transform.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return transform.Spec{}, fmt.Errorf("read spec: %w", err)
	}
	spec, err := transform.Parse(data)
	if err != nil {
		return transform.Spec{}, fmt.Errorf("parse spec %s: %w", path, err)
	}
	return spec, nil
}

func resolveRefs(cmd *cobra.Command, client *api.Client, opts submitOptions, args []string) ([]media.Ref, error) {
	switch {
	case opts.upload:
		refs := make([]media.Ref, 0, len(args))
		for _, path := range args {
			if !media.IsVideoFile(path) {
				return nil, fmt.Errorf("%s is not a supported video file", path)
			}
			resp, err := client.Upload(cmd.Context(), path)
			if err != nil {
				return nil, fmt.Errorf("upload %s: %w", path, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Uploaded %s (%d bytes)\n", path, resp.Size)
			refs = append(refs, resp.Media)
		}
		return refs, nil

	case opts.all:
		lib, err := client.Library(cmd.Context())
		if err != nil {
			return nil, err
		}
		var videos []media.Video
		for _, folder := range lib.Folders {
			if folder.VideoCount == 0 {
				continue
			}
			listing, err := client.Folder(cmd.Context(), folder.Name)
			if err != nil {
				return nil, err
			}
			for _, name := range listing.Videos {
				videos = append(videos, media.Video{Folder: folder.Name, Filename: name})
			}
		}
		if len(videos) == 0 {
			return nil, errors.New("library has no videos")
		}
		return []media.Ref{media.AllFolders(videos...)}, nil

	default:
		files := args
		if len(files) == 0 {
			listing, err := client.Folder(cmd.Context(), opts.folder)
			if err != nil {
				return nil, err
			}
			if len(listing.Videos) == 0 {
				return nil, fmt.Errorf("folder %s has no videos", opts.folder)
			}
			return []media.Ref{media.FolderFiles(opts.folder, listing.Videos...)}, nil
		}
		if opts.batch {
			return []media.Ref{media.FolderFiles(opts.folder, files...)}, nil
		}
		refs := make([]media.Ref, 0, len(files))
		for _, name := range files {
			refs = append(refs, media.FolderFile(opts.folder, name))
		}
		return refs, nil
	}
}

func printSubmitResults(cmd *cobra.Command, refs []media.Ref, resp api.SubmitResponse) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	rows := make([][]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		source := ""
		if r.Index >= 0 && r.Index < len(refs) {
			source = refs[r.Index].Label()
		}
		outcome := paint("accepted", ansiGreen, colorize)
		if r.Error != "" {
			outcome = paint(submitError(r), ansiRed, colorize)
		}
		rows = append(rows, []string{strconv.Itoa(r.Index), source, r.JobID, outcome})
	}
	fmt.Fprint(out, renderTable([]string{"#", "Source", "Job ID", "Result"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
	fmt.Fprintf(out, "%d accepted, %d rejected\n", resp.Accepted, resp.Rejected)
}

func submitError(r api.SubmitResult) string {
	if len(r.Fields) == 0 {
		return r.Error
	}
	parts := make([]string, 0, len(r.Fields))
	for _, f := range r.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return strings.Join(parts, "\n")
}
