package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

const documentBody = `<?xml version="1.0" encoding="UTF-8"?>` +
	`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
	`<w:p><w:r><w:t>Dana Levi</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t>Led the payments team</w:t></w:r><w:r><w:tab/><w:t>2021</w:t></w:r></w:p>` +
	`<w:p></w:p>` +
	`<w:p><w:r><w:t>Grew ARR to $500K</w:t></w:r></w:p>` +
	`</w:body></w:document>`

func zipped(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestTextFromDOCX(t *testing.T) {
	data := zipped(t, map[string]string{"word/document.xml": documentBody})

	for _, mime := range []string{"", "application/zip", mimeDOCX} {
		got, err := Text(context.Background(), data, mime, "cv.docx")
		if err != nil {
			t.Fatalf("mime %q: %v", mime, err)
		}
		want := "Dana Levi\nLed the payments team\t2021\n\nGrew ARR to $500K"
		if got != want {
			t.Fatalf("mime %q: got %q want %q", mime, got, want)
		}
	}
}

func TestTextRejectsPlainZip(t *testing.T) {
	data := zipped(t, map[string]string{"notes.txt": "hello"})

	_, err := Text(context.Background(), data, "application/zip", "notes.zip")
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestTextPlain(t *testing.T) {
	got, err := Text(context.Background(), []byte("  Dana Levi \r\n\r\n\r\n Payments lead  \n"), "", "cv.txt")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != "Dana Levi\n\nPayments lead" {
		t.Fatalf("unexpected text %q", got)
	}

	if _, err := Text(context.Background(), []byte{0xff, 0xfe, 0x00}, "text/plain", "cv.txt"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected invalid UTF-8 to be rejected, got %v", err)
	}
}

func TestTextCorruptPDF(t *testing.T) {
	_, err := Text(context.Background(), []byte("%PDF-1.4 not really"), "", "cv.pdf")
	if err == nil || !strings.Contains(err.Error(), "cv.pdf") {
		t.Fatalf("expected a pdf error, got %v", err)
	}
}

func TestTextEmptyAndCanceled(t *testing.T) {
	if _, err := Text(context.Background(), nil, "", "cv.txt"); err == nil {
		t.Fatal("expected error for empty file")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Text(ctx, []byte("x"), "", "cv.txt"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
