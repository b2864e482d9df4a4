package quiz

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultThreshold is the pass mark in percent
const DefaultThreshold = 80.0

// Results is handed back once the last question is done
type Results struct {
	Score          int
	TotalQuestions int
	Passed         bool
	UserName       string
	Date           string
}

// Percent returns the score as a percentage
func (r Results) Percent() float64 {
	if r.TotalQuestions == 0 {
		return 0
	}
	return float64(r.Score) * 100 / float64(r.TotalQuestions)
}

// Passed reports whether score out of total reaches threshold percent.
// Compared as score*100 >= threshold*total so the boundary is exact.
func Passed(score, total int, threshold float64) bool {
	if total <= 0 {
		return false
	}
	return float64(score*100) >= threshold*float64(total)
}

// dateLayouts maps language (and language-region) to a calendar date layout
var dateLayouts = map[string]string{
	"ka":    "02.01.2006",
	"de":    "02.01.2006",
	"ru":    "02.01.2006",
	"uk":    "02.01.2006",
	"fr":    "02/01/2006",
	"en":    "1/2/2006",
	"en-GB": "02/01/2006",
}

// FormatDate renders t as a calendar date for a BCP 47 locale such as ka-GE
func FormatDate(t time.Time, locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		return t.Format("2006-01-02")
	}
	base, _ := tag.Base()
	region, _ := tag.Region()

	if layout, ok := dateLayouts[base.String()+"-"+region.String()]; ok {
		return t.Format(layout)
	}
	if layout, ok := dateLayouts[base.String()]; ok {
		return t.Format(layout)
	}
	return t.Format("2006-01-02")
}

// FormatPercent renders a percentage with the locale's number formatting
func FormatPercent(p float64, locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return message.NewPrinter(tag).Sprintf("%.0f%%", p)
}
