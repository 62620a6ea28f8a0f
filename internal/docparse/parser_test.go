package docparse

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateURL(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		want    string
		wantErr error
	}{
		{name: "pdf ok", url: "https://cdn.example.com/resume.pdf", want: "pdf"},
		{name: "docx ok", url: "https://cdn.example.com/files/cv.docx", want: "docx"},
		{name: "empty", url: "", wantErr: ErrInvalidURL},
		{name: "no scheme", url: "cdn.example.com/resume.pdf", wantErr: ErrInvalidURL},
		{name: "unsupported type", url: "https://cdn.example.com/resume.txt", wantErr: ErrUnsupportedType},
		{name: "no extension", url: "https://cdn.example.com/resume", wantErr: ErrUnsupportedType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := validateURL(tc.url)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("validateURL: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected type %q, got %q", tc.want, got)
			}
		})
	}
}

func TestValidationErrorsWrapSentinel(t *testing.T) {
	for _, err := range []error{ErrInvalidURL, ErrUnsupportedType, ErrFileTooLarge, ErrLowQualityText} {
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%v should wrap ErrValidation", err)
		}
	}
}

func TestCleanText(t *testing.T) {
	raw := "John  Doe\r\nSenior   Engineer\r\rPage 3 of 10\n\n\n\nSkills:\tGo,  SQL\x00\x1f"
	got := CleanText(raw)

	if strings.Contains(got, "\r") {
		t.Fatal("carriage returns should be normalized")
	}
	if strings.Contains(got, "Page 3") {
		t.Fatal("page markers should be stripped")
	}
	if strings.Contains(got, "\n\n\n") {
		t.Fatal("blank runs should be collapsed")
	}
	if strings.Contains(got, "\x00") {
		t.Fatal("control characters should be stripped")
	}
	if !strings.Contains(got, "John Doe") {
		t.Fatalf("content lost during cleanup: %q", got)
	}
}

func TestCheckQuality(t *testing.T) {
	good := strings.Repeat("x", 60) +
		" name email phone education university experience project skill company"
	if err := checkQuality(good); err != nil {
		t.Fatalf("expected good text to pass, got %v", err)
	}

	if err := checkQuality("too short"); !errors.Is(err, ErrLowQualityText) {
		t.Fatalf("expected ErrLowQualityText for short text, got %v", err)
	}

	noKeywords := strings.Repeat("lorem ipsum dolor sit amet ", 20)
	if err := checkQuality(noKeywords); !errors.Is(err, ErrLowQualityText) {
		t.Fatalf("expected ErrLowQualityText for keyword-free text, got %v", err)
	}
}

func TestExtractDOCXRejectsEmpty(t *testing.T) {
	if _, err := extractDOCX(nil); err == nil {
		t.Fatal("expected error for empty docx data")
	}
}

func TestStripDocxXML(t *testing.T) {
	raw := `<w:document><w:body><w:p><w:r><w:t>Hello</w:t></w:r></w:p><w:p><w:r><w:t>World</w:t></w:r></w:p></w:body></w:document>`
	got := stripDocxXML(raw)
	if got != "Hello\nWorld" {
		t.Fatalf("expected paragraphs separated by newline, got %q", got)
	}
}
