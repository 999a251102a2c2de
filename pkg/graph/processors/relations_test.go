package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athapong/cardiograph/pkg/graph"
)

func mention(name string, entityType graph.EntityType, start, end int) graph.EntityMention {
	return graph.EntityMention{
		Surface: name,
		Name:    name,
		Type:    entityType,
		Start:   start,
		End:     end,
	}
}

func TestExtractTriggerBetweenMentions(t *testing.T) {
	e := NewExtractor(DefaultExtractorConfig())
	sentence := "Aspirin treats myocardial infarction."
	mentions := []graph.EntityMention{
		mention("aspirin", graph.TypeTreatment, 0, 7),
		mention("myocardial infarction", graph.TypeCondition, 15, 36),
	}

	candidates := e.Extract(sentence, &Annotation{}, mentions)
	require.Len(t, candidates, 1)

	cand := candidates[0]
	assert.Equal(t, "aspirin", cand.Source)
	assert.Equal(t, "myocardial infarction", cand.Target)
	assert.Equal(t, graph.RelTreats, cand.Type)
	assert.InDelta(t, 0.9, cand.Confidence, 1e-9)
}

func TestExtractTriggerElsewhereInSentence(t *testing.T) {
	e := NewExtractor(DefaultExtractorConfig())
	sentence := "Therapy for angina includes aspirin."
	mentions := []graph.EntityMention{
		mention("angina", graph.TypeCondition, 12, 18),
		mention("aspirin", graph.TypeTreatment, 28, 35),
	}

	candidates := e.Extract(sentence, &Annotation{}, mentions)
	require.Len(t, candidates, 1)

	cand := candidates[0]
	// Direction follows the type signature, not mention order.
	assert.Equal(t, "aspirin", cand.Source)
	assert.Equal(t, "angina", cand.Target)
	assert.Equal(t, graph.RelTreats, cand.Type)
	assert.InDelta(t, 0.65, cand.Confidence, 1e-9)
}

func TestExtractHedgedModal(t *testing.T) {
	e := NewExtractor(DefaultExtractorConfig())
	sentence := "Aspirin may help myocardial infarction."
	mentions := []graph.EntityMention{
		mention("aspirin", graph.TypeTreatment, 0, 7),
		mention("myocardial infarction", graph.TypeCondition, 17, 38),
	}
	ann := &Annotation{Tokens: []Token{
		{Text: "Aspirin", Tag: "NNP"},
		{Text: "may", Tag: "MD"},
		{Text: "help", Tag: "VB"},
	}}

	candidates := e.Extract(sentence, ann, mentions)
	require.Len(t, candidates, 1)
	assert.InDelta(t, 0.4, candidates[0].Confidence, 1e-9)
	assert.Equal(t, graph.RelTreats, candidates[0].Type)
}

func TestExtractConfidenceFloorDropsCandidate(t *testing.T) {
	e := NewExtractor(ExtractorConfig{ConfidenceFloor: 0.5})
	sentence := "Aspirin may help myocardial infarction."
	mentions := []graph.EntityMention{
		mention("aspirin", graph.TypeTreatment, 0, 7),
		mention("myocardial infarction", graph.TypeCondition, 17, 38),
	}
	ann := &Annotation{Tokens: []Token{{Text: "may", Tag: "MD"}}}

	assert.Empty(t, e.Extract(sentence, ann, mentions))
}

func TestExtractNoTriggerNoCandidate(t *testing.T) {
	e := NewExtractor(DefaultExtractorConfig())
	sentence := "Aspirin and myocardial infarction."
	mentions := []graph.EntityMention{
		mention("aspirin", graph.TypeTreatment, 0, 7),
		mention("myocardial infarction", graph.TypeCondition, 12, 33),
	}

	assert.Empty(t, e.Extract(sentence, &Annotation{}, mentions))
}

func TestExtractSymmetricPairKeepsMentionOrder(t *testing.T) {
	e := NewExtractor(DefaultExtractorConfig())
	sentence := "The aorta is connected to the heart."
	mentions := []graph.EntityMention{
		mention("aorta", graph.TypeAnatomy, 4, 9),
		mention("heart", graph.TypeAnatomy, 30, 35),
	}

	candidates := e.Extract(sentence, &Annotation{}, mentions)
	require.Len(t, candidates, 1)

	cand := candidates[0]
	assert.Equal(t, "aorta", cand.Source)
	assert.Equal(t, "heart", cand.Target)
	assert.Equal(t, graph.RelConnectedTo, cand.Type)
	assert.InDelta(t, 0.9, cand.Confidence, 1e-9)
}

func TestExtractNeedsTwoMentions(t *testing.T) {
	e := NewExtractor(DefaultExtractorConfig())
	mentions := []graph.EntityMention{
		mention("aspirin", graph.TypeTreatment, 0, 7),
	}
	assert.Nil(t, e.Extract("Aspirin helps.", &Annotation{}, mentions))
}
