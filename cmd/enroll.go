package cmd

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/facematch"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <identity> <image>",
	Short: "Enrol a face image as an identity profile",
	Long: `Extract the face in an image and store it as the profile of an identity.
An existing profile of the same identity is replaced.

Examples:
  facegate enroll "Jana Nováková" portraits/jana.jpg
  facegate enroll bob bob.png --source badge-photo-2024`,
	Args: cobra.ExactArgs(2),
	RunE: runEnroll,
}

var enrollDirCmd = &cobra.Command{
	Use:   "enroll-dir <folder-path>",
	Short: "Enrol every image in a folder",
	Long: `Enrol all images found in a folder. The identity of an image is its file
name without extension, or with --by-folder the name of the folder that
contains it (the last image of a folder wins).

Failed images are reported and do not stop the batch.

Examples:
  facegate enroll-dir ./staff
  facegate enroll-dir ./people -r --by-folder --concurrency 8`,
	Args: cobra.ExactArgs(1),
	RunE: runEnrollDir,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(enrollDirCmd)

	enrollCmd.Flags().String("source", "", "Source reference stored with the profile (default: image path)")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")

	enrollDirCmd.Flags().BoolP("recursive", "r", false, "Search subfolders recursively")
	enrollDirCmd.Flags().Bool("by-folder", false, "Use the parent folder name as identity")
	enrollDirCmd.Flags().Int("concurrency", 4, "Number of images processed in parallel")
	enrollDirCmd.Flags().Bool("json", false, "Output as JSON")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	identity, path := args[0], args[1]
	source := mustGetString(cmd, "source")
	jsonOutput := mustGetBool(cmd, "json")
	if source == "" {
		source = path
	}

	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	img, err := rt.loadImage(path)
	if err != nil {
		return err
	}

	p, err := rt.engine.Enroll(ctx, identity, img, source)
	if err != nil {
		return fmt.Errorf("enrolment rejected (%s): %w", facematch.Code(err), err)
	}

	if jsonOutput {
		return outputJSON(map[string]any{
			"identity":    p.Identity,
			"source":      p.SourceReference,
			"enrolled_at": p.EnrolledAt,
			"layout":      p.Bundle.Layout().String(),
		})
	}
	fmt.Printf("Enrolled %s (%s)\n", p.Identity, p.Bundle.Layout())
	return nil
}

// collectImages lists image files under folder.
func collectImages(folder string, recursive bool) ([]string, error) {
	info, err := os.Stat(folder)
	if err != nil {
		return nil, fmt.Errorf("cannot access folder %s: %w", folder, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", folder)
	}

	var paths []string
	if recursive {
		err := filepath.WalkDir(folder, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isImageFile(d.Name()) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("cannot walk folder %s: %w", folder, err)
		}
		return paths, nil
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("cannot read folder %s: %w", folder, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && isImageFile(entry.Name()) {
			paths = append(paths, filepath.Join(folder, entry.Name()))
		}
	}
	return paths, nil
}

// identityForPath derives the identity an image is enrolled as.
func identityForPath(path string, byFolder bool) string {
	if byFolder {
		return filepath.Base(filepath.Dir(path))
	}
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// BatchResult represents the result of an enroll-dir run
type BatchResult struct {
	BatchID       string             `json:"batch_id"`
	Processed     int                `json:"processed"`
	Succeeded     int                `json:"succeeded"`
	Failed        int                `json:"failed"`
	Errors        []BatchItemFailure `json:"errors,omitempty"`
	DurationMs    int64              `json:"duration_ms"`
	DurationHuman string             `json:"duration_human,omitempty"`
}

// BatchItemFailure describes one image that could not be enrolled
type BatchItemFailure struct {
	Identity string `json:"identity"`
	Path     string `json:"path"`
	Code     string `json:"code"`
	Error    string `json:"error"`
}

// maxConcurrency caps --concurrency; every worker holds a decoded image.
const maxConcurrency = 64

func runEnrollDir(cmd *cobra.Command, args []string) error {
	folder := args[0]
	recursive := mustGetBool(cmd, "recursive")
	byFolder := mustGetBool(cmd, "by-folder")
	jsonOutput := mustGetBool(cmd, "json")
	concurrency, err := intInRange(cmd, "concurrency", 1, maxConcurrency)
	if err != nil {
		return err
	}

	paths, err := collectImages(folder, recursive)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		if jsonOutput {
			return outputJSON(BatchResult{})
		}
		fmt.Println("No image files found in the specified folder.")
		return nil
	}

	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	reqs := make([]facematch.EnrollRequest, len(paths))
	for i, path := range paths {
		reqs[i] = facematch.EnrollRequest{
			Identity:        identityForPath(path, byFolder),
			SourceReference: path,
			Open:            func() (*image.Gray, error) { return rt.loadImage(path) },
		}
	}

	opts := facematch.BatchOptions{Concurrency: concurrency}
	if !jsonOutput {
		fmt.Printf("Found %d image(s) to enrol\n", len(paths))
		bar := progressbar.NewOptions(len(paths),
			progressbar.OptionSetDescription("Enrolling"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("faces"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
		opts.OnProgress = func(facematch.ProgressInfo) {
			_ = bar.Add(1)
		}
	}

	start := time.Now()
	report := rt.engine.EnrollBatch(ctx, reqs, opts)
	return printBatchReport(ctx, report, time.Since(start), jsonOutput)
}

func printBatchReport(ctx context.Context, report *facematch.BatchReport, took time.Duration, jsonOutput bool) error {
	result := BatchResult{
		BatchID:       report.BatchID,
		Processed:     report.Processed,
		Succeeded:     report.Succeeded,
		Failed:        report.Failed,
		DurationMs:    took.Milliseconds(),
		DurationHuman: took.Round(time.Millisecond).String(),
	}
	for _, e := range report.Errors {
		result.Errors = append(result.Errors, BatchItemFailure{
			Identity: e.Identity,
			Path:     e.SourceReference,
			Code:     e.Code,
			Error:    e.Message,
		})
	}

	if jsonOutput {
		if err := outputJSON(result); err != nil {
			return err
		}
	} else {
		fmt.Printf("\nBatch %s: %d enrolled, %d failed (%s)\n",
			result.BatchID, result.Succeeded, result.Failed, result.DurationHuman)
		for _, f := range result.Errors {
			fmt.Printf("  %s (%s): %s\n", f.Path, f.Code, f.Error)
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}
	return nil
}
