// Package activities implements the Temporal activities behind the document
// chat workflow: directory scanning, document reading, prompt assembly and
// streaming completion.
package activities

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.temporal.io/sdk/activity"

	"goa.design/docchat/security"
)

// Activity names used for registration and invocation.
const (
	ScanDirectoryName = "scan_directory"
	ReadDocumentName  = "read_document"
)

// allowedExtensions lists the file types the scanner admits.
var allowedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".json": true,
	".csv":  true,
	".pdf":  true,
}

// DocumentActivities reads files under a validated root directory.
type DocumentActivities struct {
	validator *security.PathValidator

	// maxFileBytes caps a single document; maxScanBytes caps the running
	// total across one scan.
	maxFileBytes int64
	maxScanBytes int64
}

// NewDocumentActivities returns activities rooted at validator's directory.
func NewDocumentActivities(validator *security.PathValidator, maxFileSizeMB, maxTotalScanMB int) *DocumentActivities {
	return &DocumentActivities{
		validator:    validator,
		maxFileBytes: int64(maxFileSizeMB) << 20,
		maxScanBytes: int64(maxTotalScanMB) << 20,
	}
}

// ScanInput selects the directory to scan, relative to the configured root.
type ScanInput struct {
	Path string `json:"path"`
}

// ScanResult lists the admissible files found under the directory.
type ScanResult struct {
	// Files holds root-relative paths in walk order.
	Files []string `json:"files"`
	// TotalBytes is the combined size of the listed files.
	TotalBytes int64 `json:"total_bytes"`
	// Skipped counts files rejected for extension, size or read errors.
	Skipped int `json:"skipped"`
}

// Document is the outcome of reading one file. Read failures are recorded on
// Error rather than failing the activity so one bad file does not sink the
// whole request.
type Document struct {
	Path      string `json:"path"`
	Filename  string `json:"filename"`
	Content   string `json:"content"`
	FileType  string `json:"file_type"`
	SizeBytes int64  `json:"size_bytes"`
	Truncated bool   `json:"truncated"`
	Error     string `json:"error,omitempty"`
}

// ScanDirectory walks the directory and returns root-relative paths of files
// with admissible extensions, stopping once the total size cap is reached.
func (d *DocumentActivities) ScanDirectory(ctx context.Context, in ScanInput) (ScanResult, error) {
	dir, err := d.validator.Directory(in.Path)
	if err != nil {
		return ScanResult{}, err
	}

	var res ScanResult
	visited := 0
	err = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		visited++
		if visited%10 == 0 {
			activity.RecordHeartbeat(ctx, fmt.Sprintf("scanned %d files", visited))
		}
		if !allowedExtensions[strings.ToLower(filepath.Ext(path))] {
			res.Skipped++
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			res.Skipped++
			return nil
		}
		if info.Size() > d.maxFileBytes {
			res.Skipped++
			return nil
		}
		if res.TotalBytes+info.Size() > d.maxScanBytes {
			res.Skipped++
			return fs.SkipAll
		}
		res.Files = append(res.Files, d.validator.Rel(path))
		res.TotalBytes += info.Size()
		return nil
	})
	if err != nil {
		return ScanResult{}, fmt.Errorf("scan %s: %w", in.Path, err)
	}
	return res, nil
}

// ReadInput selects the document to read, relative to the configured root.
type ReadInput struct {
	Path string `json:"path"`
}

// ReadDocument loads one document's text content. Path validation failures
// fail the activity; content-level failures come back on Document.Error.
func (d *DocumentActivities) ReadDocument(ctx context.Context, in ReadInput) (Document, error) {
	path, size, err := d.validator.File(in.Path, d.maxFileBytes)
	if err != nil {
		return Document{}, err
	}

	doc := Document{
		Path:      in.Path,
		Filename:  filepath.Base(path),
		FileType:  strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		SizeBytes: size,
	}
	if doc.FileType == "pdf" {
		text, err := extractPDFText(path)
		if err != nil {
			doc.Error = fmt.Sprintf("pdf extraction failed: %v", err)
			return doc, nil
		}
		doc.Content = text
		return doc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		doc.Error = fmt.Sprintf("read failed: %v", err)
		return doc, nil
	}
	doc.Content = string(data)
	return doc, nil
}

func extractPDFText(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no extractable text")
	}
	return sb.String(), nil
}
