package docparse

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

const maxFileSize = 10 * 1024 * 1024 // 10MB

// Validation errors surfaced to the caller. All of them wrap ErrValidation
// so the workflow can classify them uniformly.
var (
	ErrValidation      = errors.New("document validation failed")
	ErrInvalidURL      = fmt.Errorf("%w: invalid url", ErrValidation)
	ErrUnsupportedType = fmt.Errorf("%w: unsupported file type", ErrValidation)
	ErrFileTooLarge    = fmt.Errorf("%w: file exceeds 10MB", ErrValidation)
	ErrLowQualityText  = fmt.Errorf("%w: extracted text quality too low", ErrValidation)
)

var supportedTypes = map[string]bool{
	"pdf":  true,
	"docx": true,
	"doc":  true,
}

// Parser downloads and extracts plain text from resume documents.
// Libraries used: github.com/ledongthuc/pdf (PDF); DOCX goes through
// archive/zip + encoding/xml.
type Parser struct {
	httpClient *http.Client
}

// NewParser constructs a Parser with a bounded download timeout.
func NewParser() *Parser {
	return &Parser{
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Parse downloads the document at url, extracts its text, cleans it up and
// checks it looks like a usable resume.
func (p *Parser) Parse(ctx context.Context, rawURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fileType, err := validateURL(rawURL)
	if err != nil {
		return "", err
	}

	data, err := p.download(ctx, rawURL)
	if err != nil {
		return "", err
	}

	var text string
	switch fileType {
	case "pdf":
		text, err = extractPDF(data)
	default:
		text, err = extractDOCX(data)
	}
	if err != nil {
		return "", fmt.Errorf("parse document url=%s type=%s: %w", rawURL, fileType, err)
	}

	text = CleanText(text)
	if err := checkQuality(text); err != nil {
		return "", err
	}
	return text, nil
}

func validateURL(rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", ErrInvalidURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", ErrInvalidURL
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	if !supportedTypes[ext] {
		return "", ErrUnsupportedType
	}
	return ext, nil
}

func (p *Parser) download(ctx context.Context, rawURL string) ([]byte, error) {
	// HEAD first so oversized files are rejected before transfer.
	if req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil); err == nil {
		if resp, err := p.httpClient.Do(req); err == nil {
			resp.Body.Close()
			if resp.ContentLength > maxFileSize {
				return nil, ErrFileTooLarge
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download document: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("download document: read: %w", err)
	}
	if len(data) > maxFileSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

func extractPDF(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func extractDOCX(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty docx data")
	}
	readerAt := bytes.NewReader(data)
	zr, err := zip.NewReader(readerAt, int64(len(data)))
	if err != nil {
		return "", err
	}

	var docFile *zip.File
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", errors.New("document.xml file not found")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}

	return stripDocxXML(string(raw)), nil
}

func stripDocxXML(raw string) string {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var buf strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return raw
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.WriteString(string(t))
		case xml.EndElement:
			if t.Name.Local == "p" || t.Name.Local == "br" {
				if last := buf.Len(); last > 0 {
					buf.WriteString("\n")
				}
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

var (
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	pageMarkers  = regexp.MustCompile(`(?i)page\s+\d+(\s+of\s+\d+)?`)
	manyBlanks   = regexp.MustCompile(`\n{3,}`)
	manySpaces   = regexp.MustCompile(`[ \t]{2,}`)
)

// CleanText normalizes newlines and strips noise commonly left behind by
// PDF extraction (control characters, page markers, runs of blanks).
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = controlChars.ReplaceAllString(text, "")
	text = pageMarkers.ReplaceAllString(text, "")
	text = manySpaces.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = manyBlanks.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// resumeKeywords are the signals a usable resume is expected to carry:
// contact details, education, work history and skills.
var resumeKeywords = []string{
	"name", "email", "phone", "contact",
	"education", "university", "college", "degree", "bachelor", "master",
	"experience", "work", "project", "company", "position", "intern",
	"skill", "proficient", "familiar", "expert",
}

func checkQuality(text string) error {
	if len(text) < 100 {
		return ErrLowQualityText
	}
	lower := strings.ToLower(text)
	var hits int
	for _, kw := range resumeKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	if hits < 5 {
		return ErrLowQualityText
	}
	return nil
}
