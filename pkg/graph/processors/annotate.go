package processors

import (
	"strings"

	"github.com/jdkato/prose/v2"
	"github.com/pkg/errors"

	"github.com/athapong/cardiograph/pkg/graph"
)

// Token is one annotated token with its part-of-speech tag.
type Token struct {
	Text string
	Tag  string
}

// Annotation is the linguistic analysis of a single sentence.
type Annotation struct {
	Tokens []Token
}

// Annotator is the linguistic annotation port. The extraction components
// depend on this interface rather than on a concrete NLP model.
type Annotator interface {
	// Segment splits raw document text into sentences.
	Segment(text string) ([]graph.Sentence, error)

	// Annotate tokenizes and POS-tags a single sentence.
	Annotate(sentence string) (*Annotation, error)
}

// ProseAnnotator implements Annotator on top of jdkato/prose.
type ProseAnnotator struct{}

// NewProseAnnotator returns the default prose-backed annotator.
func NewProseAnnotator() *ProseAnnotator {
	return &ProseAnnotator{}
}

// Segment implements Annotator.
func (a *ProseAnnotator) Segment(text string) ([]graph.Sentence, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil, errors.Wrapf(graph.ErrParseFailure, "segmenting document: %v", err)
	}

	raw := doc.Sentences()
	sentences := make([]graph.Sentence, 0, len(raw))
	for _, s := range raw {
		t := strings.TrimSpace(s.Text)
		if t == "" {
			continue
		}
		sentences = append(sentences, graph.Sentence{Text: t, Index: len(sentences)})
	}
	return sentences, nil
}

// Annotate implements Annotator.
func (a *ProseAnnotator) Annotate(sentence string) (*Annotation, error) {
	if strings.TrimSpace(sentence) == "" {
		return &Annotation{}, nil
	}

	doc, err := prose.NewDocument(sentence,
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil, errors.Wrapf(graph.ErrParseFailure, "annotating sentence: %v", err)
	}

	raw := doc.Tokens()
	ann := &Annotation{Tokens: make([]Token, 0, len(raw))}
	for _, tok := range raw {
		ann.Tokens = append(ann.Tokens, Token{Text: tok.Text, Tag: tok.Tag})
	}
	return ann, nil
}
