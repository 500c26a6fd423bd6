package notes

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"taunote/internal/services"
	"taunote/internal/services/llm"
	"taunote/internal/textutil"
	"taunote/internal/transcript"
)

// Kind selects the note template.
type Kind string

const (
	KindSummary Kind = "summary"
	KindEmail   Kind = "email"
	KindLecture Kind = "lecture"
)

// MaxTranscriptChars bounds how much transcript text goes into a prompt.
const MaxTranscriptChars = 3000

// Temperature is the sampling temperature for every note kind.
const Temperature = 0.7

type template struct {
	instruction string
	maxTokens   int
}

var templates = map[Kind]template{
	KindSummary: {"Summarize the following transcript:", 512},
	KindEmail:   {"Write a professional follow-up email based on this meeting:", 512},
	KindLecture: {"Write clear and concise lecture notes with bullet points and sections from this transcript:", 600},
}

// Kinds lists the supported note kinds in a stable order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(templates))
	for k := range templates {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// ParseKind validates a user supplied kind.
func ParseKind(value string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := templates[kind]; !ok {
		names := make([]string, 0, len(templates))
		for _, k := range Kinds() {
			names = append(names, string(k))
		}
		return "", services.Wrap(services.ErrValidation, "notes", "kind", fmt.Sprintf("unknown note kind %q (want %s)", value, strings.Join(names, ", ")), nil)
	}
	return kind, nil
}

// Completer is the slice of the LLM client the generator needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Note is a generated note.
type Note struct {
	Kind      Kind
	Model     string
	Content   string
	CreatedAt time.Time
}

// Title returns the heading used when the note is rendered.
func (n Note) Title() string {
	return cases.Title(language.English).String(string(n.Kind))
}

// Markdown renders the note under a level-two heading.
func (n Note) Markdown() string {
	return fmt.Sprintf("## %s\n\n%s\n", n.Title(), strings.TrimSpace(n.Content))
}

// Generator produces notes with an LLM.
type Generator struct {
	client Completer
	model  string
	now    func() time.Time
}

// NewGenerator wraps client. model is recorded on generated notes.
func NewGenerator(client Completer, model string) *Generator {
	return &Generator{client: client, model: model, now: time.Now}
}

// Generate builds the prompt for kind from text and returns the model reply.
func (g *Generator) Generate(ctx context.Context, kind Kind, text string) (Note, error) {
	tmpl, ok := templates[kind]
	if !ok {
		return Note{}, services.Wrap(services.ErrValidation, "notes", "kind", fmt.Sprintf("unknown note kind %q", kind), nil)
	}
	if strings.TrimSpace(text) == "" {
		return Note{}, services.Wrap(services.ErrValidation, "notes", string(kind), "transcript is empty", nil)
	}
	reply, err := g.client.Complete(ctx, llm.Request{
		Prompt:      BuildPrompt(kind, text),
		MaxTokens:   tmpl.maxTokens,
		Temperature: Temperature,
	})
	if err != nil {
		return Note{}, services.Wrap(services.ErrTransient, "notes", string(kind), "completion failed", err)
	}
	return Note{Kind: kind, Model: g.model, Content: strings.TrimSpace(reply), CreatedAt: g.now().UTC()}, nil
}

// BuildPrompt returns the instruction followed by the truncated transcript.
func BuildPrompt(kind Kind, text string) string {
	return templates[kind].instruction + "\n" + textutil.Truncate(strings.TrimSpace(text), MaxTranscriptChars)
}

// PromptText renders a transcript as speaker-labelled lines for prompting.
func PromptText(tr transcript.Transcript, unknownLabel string) string {
	return strings.TrimSpace(transcript.RenderText(tr.Segments, unknownLabel))
}
