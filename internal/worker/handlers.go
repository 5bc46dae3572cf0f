package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ncobase/jobstream/internal/job/structs"
)

// RegisterBuiltInHandlers registers a handler for every built-in job type.
func RegisterBuiltInHandlers(rt *Runtime) error {
	handlers := map[string]Handler{
		structs.TypeMarketplaceScrape: marketplaceScrape,
		structs.TypeCatalogImport:     catalogImport,
		structs.TypeProductMatch:      productMatch,
		structs.TypeSpreadsheetExport: spreadsheetExport,
		structs.TypeFullBackup:        fullBackup,
	}
	for jobType, handler := range handlers {
		if err := rt.Register(jobType, handler); err != nil {
			return err
		}
	}
	return nil
}

// marketplaceScrape walks a marketplace listing page by page.
func marketplaceScrape(ctx context.Context, job *structs.Job, report ReportFunc) (map[string]any, error) {
	marketplace, ok := job.Payload["marketplace"].(string)
	if !ok || marketplace == "" {
		return nil, fmt.Errorf("invalid 'marketplace' parameter")
	}

	pages := 10
	scraped := 0
	for i := 0; i < pages; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		time.Sleep(200 * time.Millisecond)
		scraped += 24
		if err := report((i+1)*100/pages, fmt.Sprintf("scraped page %d of %d", i+1, pages)); err != nil {
			return nil, err
		}
	}

	return map[string]any{
		"marketplace": marketplace,
		"items":       scraped,
		"pages":       pages,
	}, nil
}

// catalogImport loads a product feed into the catalog.
func catalogImport(ctx context.Context, job *structs.Job, report ReportFunc) (map[string]any, error) {
	source, _ := job.Payload["source"].(string)
	if source == "" {
		return nil, fmt.Errorf("invalid 'source' parameter")
	}

	totalRows := 1000
	imported := 0
	for i := 0; i < 10; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		time.Sleep(150 * time.Millisecond)
		imported += totalRows / 10
		if err := report((i+1)*10, ""); err != nil {
			return nil, err
		}
	}

	return map[string]any{
		"source":   source,
		"imported": imported,
	}, nil
}

// productMatch links scraped items against the catalog.
func productMatch(ctx context.Context, job *structs.Job, report ReportFunc) (map[string]any, error) {
	threshold, _ := job.Payload["threshold"].(float64)
	if threshold == 0 {
		threshold = 0.85
	}

	stages := []string{"loading candidates", "scoring pairs", "resolving conflicts", "writing matches"}
	matched := 0
	for i, stage := range stages {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		time.Sleep(300 * time.Millisecond)
		matched += 120
		if err := report((i+1)*100/len(stages), stage); err != nil {
			return nil, err
		}
	}

	return map[string]any{
		"threshold": threshold,
		"matched":   matched,
	}, nil
}

// spreadsheetExport renders a job owner's data into a downloadable sheet.
func spreadsheetExport(ctx context.Context, job *structs.Job, report ReportFunc) (map[string]any, error) {
	format, _ := job.Payload["format"].(string)
	if format == "" {
		format = "xlsx"
	}

	for i := 0; i < 5; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		time.Sleep(250 * time.Millisecond)
		if err := report((i+1)*20, ""); err != nil {
			return nil, err
		}
	}

	return map[string]any{
		"format":   format,
		"file_url": fmt.Sprintf("/downloads/export_%s.%s", job.ID, format),
	}, nil
}

// fullBackup snapshots the whole dataset. Admin-priority housekeeping.
func fullBackup(ctx context.Context, job *structs.Job, report ReportFunc) (map[string]any, error) {
	stages := []string{"freezing writes", "dumping tables", "compressing", "uploading", "verifying"}
	for i, stage := range stages {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		time.Sleep(400 * time.Millisecond)
		if err := report((i+1)*100/len(stages), stage); err != nil {
			return nil, err
		}
	}

	return map[string]any{
		"snapshot": fmt.Sprintf("backup_%s.tar.gz", job.ID),
		"stages":   len(stages),
	}, nil
}
