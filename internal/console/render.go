package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/xelth-com/examroom/internal/approval"
	"github.com/xelth-com/examroom/internal/quiz"
	"github.com/xelth-com/examroom/internal/session"
)

// Screen labels
const (
	LabelNamePrompt    = "თქვენი სახელი და გვარი"
	LabelRequestAccess = "მოითხოვეთ დაშვება"
	LabelWaitTitle     = "გთხოვთ დაელოდოთ..."
	LabelWaitBody      = "ადმინისტრატორი სხვა მოწყობილობიდან დაგიდასტურებთ გამოცდაზე დაშვებას."
	LabelCandidate     = "კანდიდატი:"
	LabelAdminTitle    = "აკადემიური პანელი"
	LabelAdminSync     = "აქტიურია სხვა მოწყობილობებთან"
	LabelNoRequests    = "მოთხოვნები ჯერ არ არის შემოსული"
	LabelApprove       = "დაშვება"
	LabelApproved      = "დადასტურებულია"
	LabelClear         = "მონაცემების გასუფთავება"
	LabelIssue         = "სერტიფიკატის გაცემა"
	LabelRetry         = "ხელახლა ცდა"
	LabelCategory      = "კატეგორია:"
	LabelCheck         = "დადასტურება"
	LabelSkip          = "გამოტოვება"
	LabelNext          = "შემდეგი საკითხი"
	LabelFinish        = "შედეგების გაანალიზება"
	LabelAutoNext      = "ავტო-გადასვლა"
	LabelDownload      = "გადმოწერა / ბეჭდვა"
	LabelBack          = "მთავარზე დაბრუნება"
)

const rule = "────────────────────────────────────────────────────────────────\n"

// Landing renders the start screen
func Landing(s session.Snapshot) string {
	var b strings.Builder
	b.WriteString(rule)
	b.WriteString("  Web Development Certification 2025\n")
	b.WriteString(rule)
	if s.AdminPrompt {
		b.WriteString("Admin Authorization: enter administrative key (empty line cancels)\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%s, then Enter to %s\n", LabelNamePrompt, LabelRequestAccess)
	return b.String()
}

// Waiting renders the approval wait screen
func Waiting(s session.Snapshot) string {
	var b strings.Builder
	b.WriteString(rule)
	fmt.Fprintf(&b, "  %s\n  %s\n\n  %s %s\n", LabelWaitTitle, LabelWaitBody, LabelCandidate, s.Name)
	b.WriteString(rule)
	return b.String()
}

// Admin renders the request list. now anchors the relative times.
func Admin(reqs []approval.AccessRequest, now time.Time) string {
	var b strings.Builder
	b.WriteString(rule)
	fmt.Fprintf(&b, "  %s  (%s)\n", LabelAdminTitle, LabelAdminSync)
	b.WriteString(rule)

	if len(reqs) == 0 {
		fmt.Fprintf(&b, "  %s\n", LabelNoRequests)
	}
	for i, r := range reqs {
		status := LabelApproved
		if r.Status != approval.StatusApproved {
			status = fmt.Sprintf("[%d] %s", i+1, LabelApprove)
		}
		fmt.Fprintf(&b, "  %2d. %-28s %-16s %s\n", i+1, r.Name,
			humanize.RelTime(r.Time(), now, "ago", "from now"), status)
	}

	b.WriteString(rule)
	fmt.Fprintf(&b, "  %s pending, %s approved\n",
		humanize.Comma(int64(approval.Count(reqs, approval.StatusPending))),
		humanize.Comma(int64(approval.Count(reqs, approval.StatusApproved))))
	fmt.Fprintf(&b, "  <n> %s · c %s · q back\n", LabelApprove, LabelClear)
	return b.String()
}

// Question renders the running quiz
func Question(v quiz.View) string {
	if v.Finished {
		return ""
	}
	var b strings.Builder
	q := v.Question

	b.WriteString(rule)
	fmt.Fprintf(&b, "  %s %s   %d/%d   %s   ⏱ %ds\n", LabelCategory, q.Category, v.Index+1, v.Total,
		progressBar(v.Progress(), 20), v.RemainingSeconds())
	b.WriteString(rule)
	fmt.Fprintf(&b, "  %s\n\n", q.Text)

	for i, opt := range q.Options {
		mark := " "
		switch {
		case v.Answered && i == q.Correct:
			mark = "✓"
		case v.Answered && i == v.Selected:
			mark = "✗"
		case i == v.Selected:
			mark = "•"
		}
		fmt.Fprintf(&b, "  %s %d) %s\n", mark, i+1, opt)
	}
	b.WriteString("\n")

	auto := "off"
	if v.AutoNext {
		auto = "on"
	}
	if v.Answered {
		next := LabelNext
		if v.Index+1 == v.Total {
			next = LabelFinish
		}
		fmt.Fprintf(&b, "  n %s · a %s (%s)\n", next, LabelAutoNext, auto)
	} else {
		fmt.Fprintf(&b, "  1-%d select · c %s · s %s · a %s (%s)\n",
			len(q.Options), LabelCheck, LabelSkip, LabelAutoNext, auto)
	}
	return b.String()
}

// Result renders the evaluation screen
func Result(r quiz.Results, locale string) string {
	var b strings.Builder
	decision := "FAILED"
	if r.Passed {
		decision = "PASSED"
	}
	b.WriteString(rule)
	b.WriteString("  Evaluation\n")
	b.WriteString(rule)
	fmt.Fprintf(&b, "  Candidate  %s\n", r.UserName)
	fmt.Fprintf(&b, "  Score      %d / %d (%s)\n", r.Score, r.TotalQuestions, quiz.FormatPercent(r.Percent(), locale))
	fmt.Fprintf(&b, "  Date       %s\n", r.Date)
	fmt.Fprintf(&b, "  Decision   %s\n\n", decision)
	if r.Passed {
		fmt.Fprintf(&b, "  i %s · ", LabelIssue)
	} else {
		b.WriteString("  ")
	}
	fmt.Fprintf(&b, "r %s\n", LabelRetry)
	return b.String()
}

func progressBar(frac float64, width int) string {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(frac * float64(width))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}
