// Export orchestration: locales × content types, one entry at a time.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

type exportSummary struct {
	Entries       int // entries returned by the CMS
	Exported      int
	Failed        int
	FailedBatches int
}

type exporter struct {
	cfg        exportConfig
	cms        entryQuerier
	processors map[string]entryProcessor
}

// run exports every configured (locale, content type) pair, locale-major.
// Entry failures are logged and counted but never returned; a failed CMS
// query skips its batch and is returned once all other batches have run.
func (x *exporter) run(ctx context.Context) (exportSummary, error) {
	var sum exportSummary
	var errs []error
	for _, locale := range x.cfg.Locales {
		cmsLocale := localeMapping[locale]
		fmt.Fprintf(logOut, "\n=== Processing language: %s (Contentful: %s) ===\n", locale, cmsLocale)

		for _, contentType := range x.cfg.ContentTypes {
			fmt.Fprintf(logOut, "\n--- Processing content type: %s ---\n", contentType)
			if err := x.exportBatch(ctx, locale, cmsLocale, contentType, &sum); err != nil {
				fmt.Fprintf(errOut, "Error exporting %s entries for %s: %v\n", contentType, locale, err)
				sum.FailedBatches++
				errs = append(errs, fmt.Errorf("%s/%s: %w", locale, contentType, err))
				if ctx.Err() != nil {
					return sum, errors.Join(errs...)
				}
			}
		}
	}
	return sum, errors.Join(errs...)
}

func (x *exporter) exportBatch(ctx context.Context, locale, cmsLocale, contentType string, sum *exportSummary) error {
	proc, ok := x.processors[contentType]
	if !ok {
		return fmt.Errorf("no processor for content type %q", contentType)
	}

	coll, err := x.cms.queryEntries(ctx, contentType, cmsLocale, resolveDepth)
	if err != nil {
		return err
	}
	if len(coll.Items) == 0 {
		fmt.Fprintf(logOut, "No %s entries found for %s\n", contentType, locale)
		return nil
	}

	outDir := filepath.Join(x.cfg.ContentDir, locale, contentTypeDir(contentType))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", outDir, err)
	}

	for _, item := range coll.Items {
		if err := ctx.Err(); err != nil {
			return err
		}
		sum.Entries++
		path, err := processEntry(ctx, proc, rawEntry{cmsEntry: item, links: coll}, outDir)
		if err != nil {
			fmt.Fprintf(errOut, "Error processing %s item %s: %v\n", contentType, item.Sys.ID, err)
			sum.Failed++
			continue
		}
		fmt.Fprintf(logOut, "Exported: %s\n", path)
		sum.Exported++
	}

	fmt.Fprintf(logOut, "Processed %d %s entries for %s\n", len(coll.Items), contentType, locale)
	return nil
}

// processEntry runs proc on one entry, turning a panic into that entry's
// error so the rest of the batch still runs.
func processEntry(ctx context.Context, proc entryProcessor, e rawEntry, outDir string) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return proc.process(ctx, e, outDir)
}
