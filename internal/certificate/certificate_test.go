package certificate

import (
	"bytes"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/xelth-com/examroom/internal/quiz"
)

var results = quiz.Results{Score: 9, TotalQuestions: 10, Passed: true, UserName: "ანა ბერიძე", Date: "18.10.2026"}

func TestNewID(t *testing.T) {
	re := regexp.MustCompile(`^FE-[1-9]\d{3}-\d{3}$`)
	for i := 0; i < 200; i++ {
		id := NewID(8)
		if !re.MatchString(id) {
			t.Fatalf("unexpected id %q", id)
		}
		if !strings.HasSuffix(id, "-008") {
			t.Fatalf("score part missing in %q", id)
		}
	}
	if id := NewID(10); !strings.HasSuffix(id, "-010") {
		t.Errorf("unexpected id %q", id)
	}
}

func TestRenderText(t *testing.T) {
	out := RenderText(results, "FE-1234-009")
	for _, want := range []string{"ანა ბერიძე", "9 / 10 (90%)", "FE-1234-009", "18.10.2026", Title} {
		if !strings.Contains(out, want) {
			t.Errorf("certificate text missing %q:\n%s", want, out)
		}
	}
}

func TestRenderPDF(t *testing.T) {
	data, err := RenderPDF(results, "FE-1234-009", PDFOptions{})
	if err != nil {
		t.Fatalf("RenderPDF: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Errorf("output is not a PDF: %q", data[:16])
	}
}

func TestRenderPDF_MissingFont(t *testing.T) {
	if _, err := RenderPDF(results, "FE-1234-009", PDFOptions{FontPath: "/nonexistent/font.ttf"}); err == nil {
		t.Error("expected error for missing font")
	}
}

func TestWritePDF(t *testing.T) {
	dir := t.TempDir()
	path, err := WritePDF(dir, results, "FE-1234-009", PDFOptions{})
	if err != nil {
		t.Fatalf("WritePDF: %v", err)
	}
	if !strings.HasSuffix(path, "certificate-FE-1234-009.pdf") {
		t.Errorf("unexpected path %s", path)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Errorf("certificate file not written: %v", err)
	}
}

func TestTransliterate(t *testing.T) {
	cases := map[string]string{
		"ანა ბერიძე": "Ana Beridze",
		"გიორგი":     "Giorgi",
		"John Smith": "John Smith",
		"日本":         "??",
	}
	for in, want := range cases {
		if got := Transliterate(in); got != want {
			t.Errorf("Transliterate(%q) = %q, want %q", in, got, want)
		}
	}
}
