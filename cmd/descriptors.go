package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/daro-kh/leavegate/internal/config"
	"github.com/daro-kh/leavegate/internal/face"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var descriptorsCmd = &cobra.Command{
	Use:   "descriptors [photo-url...]",
	Short: "Validate reference photos against the face analysis service",
	Long: `Check that reference photos yield exactly one usable face descriptor.
Photos that fail here will also fail at login and return-confirmation time,
so run this after importing a batch of employee photos.

URLs are taken from the arguments, or one per line from --file.`,
	RunE: runDescriptors,
}

func init() {
	rootCmd.AddCommand(descriptorsCmd)

	descriptorsCmd.Flags().String("file", "", "File with one photo URL per line")
	descriptorsCmd.Flags().Int("concurrency", 4, "Number of photos to check in parallel")
}

// collectPhotoURLs merges URLs from args and the optional --file list.
func collectPhotoURLs(cmd *cobra.Command, args []string) ([]string, error) {
	urls := append([]string{}, args...)

	if path := mustGetString(cmd, "file"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening URL list: %w", err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" && !strings.HasPrefix(line, "#") {
				urls = append(urls, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading URL list: %w", err)
		}
	}

	return urls, nil
}

func runDescriptors(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.Face.ServiceURL == "" {
		return errors.New("FACE_SERVICE_URL environment variable is required")
	}

	urls, err := collectPhotoURLs(cmd, args)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return errors.New("no photo URLs given (pass them as arguments or via --file)")
	}

	cache := face.NewCache(face.NewClient(cfg.Face.ServiceURL), cfg.Face.MaxImageSize)
	concurrency := mustGetInt(cmd, "concurrency")
	if concurrency < 1 {
		concurrency = 1
	}

	bar := progressbar.NewOptions(len(urls),
		progressbar.OptionSetDescription("Checking photos"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var okCount, failCount int64
	var mu sync.Mutex
	var failures []string

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	ctx := context.Background()

	for _, url := range urls {
		wg.Add(1)
		sem <- struct{}{}
		go func(url string) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := cache.Get(ctx, url); err != nil {
				atomic.AddInt64(&failCount, 1)
				mu.Lock()
				failures = append(failures, fmt.Sprintf("%s: %v", url, err))
				mu.Unlock()
			} else {
				atomic.AddInt64(&okCount, 1)
			}
			bar.Add(1)
		}(url)
	}
	wg.Wait()
	fmt.Println()

	fmt.Printf("Checked %d photos: %d ok, %d failed\n", len(urls), okCount, failCount)
	for _, f := range failures {
		fmt.Printf("  FAIL %s\n", f)
	}
	if failCount > 0 {
		return fmt.Errorf("%d photos failed validation", failCount)
	}
	return nil
}
