// Package certificate renders the completion certificate of a passed exam.
package certificate

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/xelth-com/examroom/internal/quiz"
)

// Curriculum lines printed on every certificate
var Curriculum = []string{
	"HTML5 Standards, Advanced CSS3, JavaScript (ES6+)",
	"React.js Architecture, Responsive Layouts, UI/UX Principles",
	"Asset Optimization, Performance & SEO Essentials",
	"Web Accessibility (ARIA), Git Workflow, RESTful Services",
}

const (
	Title     = "Web Development Certification 2025"
	Issuer    = "Academic Examination Center"
	Citation  = "Recognized for outstanding performance and commitment to technical excellence"
	idPattern = "FE-%04d-%03d"
)

// NewID returns a display-only certificate number: a random part and the score
func NewID(score int) string {
	return fmt.Sprintf(idPattern, rand.Intn(9000)+1000, score)
}

// RenderText draws the certificate for a terminal
func RenderText(r quiz.Results, id string) string {
	const width = 64
	var b strings.Builder

	line := func(s string) {
		pad := width - len([]rune(s))
		if pad < 0 {
			pad = 0
		}
		left := pad / 2
		fmt.Fprintf(&b, "║%s%s%s║\n", strings.Repeat(" ", left), s, strings.Repeat(" ", pad-left))
	}

	b.WriteString("╔" + strings.Repeat("═", width) + "╗\n")
	line(strings.ToUpper(Issuer))
	line("")
	line(Title)
	line("")
	line("This certifies that")
	line(r.UserName)
	line("")
	line(fmt.Sprintf("has passed with %d / %d (%.0f%%)", r.Score, r.TotalQuestions, r.Percent()))
	line("")
	for _, c := range Curriculum {
		line(c)
	}
	line("")
	line("Recognized for outstanding performance")
	line("and commitment to technical excellence")
	line("")
	line("Date: " + r.Date + "    No. " + id)
	b.WriteString("╚" + strings.Repeat("═", width) + "╝\n")

	return b.String()
}
