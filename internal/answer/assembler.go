// Package answer turns retrieved context, effective configuration and a
// question into a completion request, and post-processes the raw answer.
package answer

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/completion"
	"github.com/fyrsmithlabs/knowledged/internal/customize"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

// Assembled is the final answer plus the distinct source filenames used, in
// ranking order.
type Assembled struct {
	Text       string
	Sources    []string
	Confidence int // percent, only meaningful when the config shows it
}

// Assembler builds and post-processes answers.
type Assembler struct {
	completer completion.Completer
	log       *zap.Logger
}

// NewAssembler constructs an Assembler.
func NewAssembler(completer completion.Completer, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{completer: completer, log: logger}
}

// BuildContext concatenates chunks into the context block sent to the
// model, with per-chunk source attribution. Terminology annotation happens
// here, on the retrieved text, so the model sees the clarified meaning; the
// final answer is left untouched.
func BuildContext(chunks []vectorstore.Result, terminology map[string]string) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s]\n%s", c.Filename, annotateTerms(c.Text, terminology))
	}
	return b.String()
}

// annotateTerms appends each term's expansion after its first verbatim
// occurrence, e.g. "namaz" becomes "namaz (ritual prayer)". Later
// occurrences stay as written.
func annotateTerms(text string, terminology map[string]string) string {
	for term, expansion := range terminology {
		if term == "" || expansion == "" {
			continue
		}
		idx := strings.Index(text, term)
		if idx < 0 {
			continue
		}
		end := idx + len(term)
		text = text[:end] + " (" + expansion + ")" + text[end:]
	}
	return text
}

// BuildAnswer runs the full assembly: context construction, prompt layout,
// the completion call and post-processing. With no chunks it returns the
// configured no-results message without calling the model.
func (a *Assembler) BuildAnswer(ctx context.Context, question string, chunks []vectorstore.Result, cfg customize.EffectiveConfig) (*Assembled, error) {
	if len(chunks) == 0 {
		return &Assembled{Text: cfg.NoResultsMessage}, nil
	}

	sources := distinctSources(chunks)

	system := cfg.SystemPrompt
	if cfg.PrePromptInstructions != "" {
		system += "\n\n" + cfg.PrePromptInstructions
	}
	if instr := citationInstruction(cfg.CitationFormat); instr != "" {
		system += "\n\n" + instr
	}
	if cfg.PrimaryLanguage != "" {
		system += fmt.Sprintf("\n\nAnswer in the language %q unless the question uses another.", cfg.PrimaryLanguage)
	}

	user := fmt.Sprintf("Context:\n%s\n\nQuestion: %s",
		BuildContext(chunks, cfg.Terminology), question)

	raw, err := a.completer.Complete(ctx, completion.Request{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		System:      system,
		User:        user,
	})
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(raw)
	if cfg.ResponseFormat == "plain" {
		text = stripMarkdown(text)
	}
	if cfg.CitationFormat == "footnotes" && len(sources) > 0 {
		text += "\n\nSources:"
		for i, src := range sources {
			text += fmt.Sprintf("\n[%d] %s", i+1, src)
		}
	}
	if cfg.PostPromptInstructions != "" {
		text += "\n\n" + cfg.PostPromptInstructions
	}

	out := &Assembled{
		Text:    text,
		Sources: sources,
	}
	if cfg.ShowConfidence {
		out.Confidence = confidencePercent(chunks)
		out.Text += fmt.Sprintf("\n\nConfidence: %d%%", out.Confidence)
	}
	return out, nil
}

// citationInstruction translates the configured citation format into a
// prompt instruction. "none" suppresses citations entirely; anything else
// falls back to inline bracketed filenames, the platform default.
func citationInstruction(format string) string {
	switch format {
	case "none":
		return ""
	case "footnotes":
		return "Cite sources with numbered markers like [1], matching the numbered source list that follows the answer."
	default:
		return "Cite sources inline using the bracketed filename shown with each context block, e.g. [guide.md]."
	}
}

// confidencePercent derives a 0-100 confidence from the mean chunk score.
func confidencePercent(chunks []vectorstore.Result) int {
	if len(chunks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range chunks {
		sum += c.Score
	}
	pct := int(math.Round(sum / float64(len(chunks)) * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// distinctSources lists each source filename once, keeping ranking order.
func distinctSources(chunks []vectorstore.Result) []string {
	seen := make(map[string]bool, len(chunks))
	var out []string
	for _, c := range chunks {
		if c.Filename == "" || seen[c.Filename] {
			continue
		}
		seen[c.Filename] = true
		out = append(out, c.Filename)
	}
	return out
}

// stripMarkdown removes the formatting the model tends to emit despite
// plain-format instructions: bold/italic markers, heading hashes, backticks
// and list bullets. Link text survives, the URL syntax goes.
func stripMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " ")
		indent := line[:len(line)-len(trimmed)]
		for strings.HasPrefix(trimmed, "#") {
			trimmed = strings.TrimPrefix(trimmed, "#")
		}
		trimmed = strings.TrimPrefix(trimmed, " ")
		if strings.HasPrefix(trimmed, "- ") {
			trimmed = "• " + trimmed[2:]
		} else if strings.HasPrefix(trimmed, "* ") {
			trimmed = "• " + trimmed[2:]
		}
		lines[i] = indent + trimmed
	}
	text = strings.Join(lines, "\n")

	for _, marker := range []string{"**", "__", "`"} {
		text = strings.ReplaceAll(text, marker, "")
	}
	return linkPattern.ReplaceAllString(text, "$1")
}

var linkPattern = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
