package quiz

// Category groups questions by topic
type Category string

const (
	CategoryHTML Category = "HTML"
	CategoryCSS  Category = "CSS"
	CategoryJS   Category = "JS"
)

// Question is one multiple-choice item
type Question struct {
	ID       int
	Text     string
	Options  []string
	Correct  int // index into Options
	Category Category
}

// DefaultQuestions is the web development certification bank
func DefaultQuestions() []Question {
	return []Question{
		{ID: 1, Category: CategoryHTML, Text: "Which element holds metadata such as the page title and linked stylesheets?",
			Options: []string{"<body>", "<head>", "<meta>", "<header>"}, Correct: 1},
		{ID: 2, Category: CategoryHTML, Text: "Which attribute gives an image a text alternative for screen readers?",
			Options: []string{"title", "src", "alt", "label"}, Correct: 2},
		{ID: 3, Category: CategoryHTML, Text: "Which input type makes mobile browsers show a numeric keypad?",
			Options: []string{"text", "tel", "range", "search"}, Correct: 1},
		{ID: 4, Category: CategoryCSS, Text: "Which property turns an element into a flex container?",
			Options: []string{"display: flex", "position: flex", "flex: 1", "align-items: flex"}, Correct: 0},
		{ID: 5, Category: CategoryCSS, Text: "Which selector has the highest specificity?",
			Options: []string{".card p", "#main", "div > p", "p:first-child"}, Correct: 1},
		{ID: 6, Category: CategoryCSS, Text: "With box-sizing: border-box, what does width include?",
			Options: []string{"Content only", "Content and margin", "Content, padding and border", "Padding only"}, Correct: 2},
		{ID: 7, Category: CategoryJS, Text: "What does typeof null return?",
			Options: []string{"\"null\"", "\"undefined\"", "\"object\"", "\"number\""}, Correct: 2},
		{ID: 8, Category: CategoryJS, Text: "Which declaration creates a block-scoped binding that cannot be reassigned?",
			Options: []string{"var", "let", "const", "static"}, Correct: 2},
		{ID: 9, Category: CategoryJS, Text: "What is the result of [1, 2, 3].map(x => x * 2)?",
			Options: []string{"[2, 4, 6]", "[1, 2, 3, 1, 2, 3]", "12", "undefined"}, Correct: 0},
		{ID: 10, Category: CategoryJS, Text: "Which method waits for every promise in an array to resolve?",
			Options: []string{"Promise.race", "Promise.any", "Promise.all", "Promise.resolve"}, Correct: 2},
	}
}
