package document

import (
	"regexp"
	"strconv"
	"strings"

	"taxray/internal/logging"
)

var (
	// Option lines: "a) Standard deduction", "B. Itemized", "(c) Neither"
	optionRe = regexp.MustCompile(`(?m)^\s*\(?([a-eA-E])[\).]\s+(.+)$`)

	// Leading question numbers: "1.", "Question 3:", "Q2."
	questionNumRe = regexp.MustCompile(`^\s*(?:Question\s+|Q)?(\d+)[\.\):]?\s`)
)

// ParseScenario splits a document into scenario and question blocks.
// Blocks are separated by one or more blank lines; the first block is the
// scenario and its first line the title.
func ParseScenario(doc Document) Scenario {
	timer := logging.StartTimer(logging.CategoryDocument, "ParseScenario")
	defer timer.Stop()

	blocks := splitBlocks(doc.Content)

	sc := Scenario{Doc: doc}
	if len(blocks) == 0 {
		logging.Get(logging.CategoryDocument).Warn("Document %s is empty", doc.Filename)
		return sc
	}

	sc.Body = blocks[0]
	if lines := strings.SplitN(blocks[0], "\n", 2); len(lines) > 0 {
		sc.Title = strings.TrimSpace(lines[0])
	}

	for _, block := range blocks[1:] {
		sc.Questions = append(sc.Questions, parseQuestion(block))
	}

	logging.DocumentDebug("Parsed %s: title=%q, %d questions", doc.Filename, sc.Title, len(sc.Questions))
	return sc
}

// splitBlocks splits text on blank lines, trimming CR so CRLF corpora parse
// identically to LF ones.
func splitBlocks(text string) []string {
	var blocks []string
	var current []string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			current = append(current, line)
		} else if len(current) > 0 {
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
		}
	}
	if len(current) > 0 {
		blocks = append(blocks, strings.Join(current, "\n"))
	}

	return blocks
}

// parseQuestion extracts the question number and any multiple-choice options.
func parseQuestion(block string) Question {
	q := Question{Text: block}

	if m := questionNumRe.FindStringSubmatch(block); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			q.Number = n
		}
	}

	for _, m := range optionRe.FindAllStringSubmatch(block, -1) {
		if q.Options == nil {
			q.Options = make(map[string]string)
		}
		letter := strings.ToLower(m[1])
		q.Options[letter] = strings.TrimSpace(m[2])
	}

	return q
}
