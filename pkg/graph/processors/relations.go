package processors

import (
	"fmt"
	"regexp"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"

	"github.com/athapong/cardiograph/pkg/graph"
)

// Extraction confidence tiers. A trigger phrase found between the two
// mentions is the most specific signal; a trigger elsewhere in the sentence
// is weaker; a hedged trigger (modal verb between the mentions) is weakest.
const (
	confidenceExact  = 0.9
	confidenceLoose  = 0.65
	confidenceHedged = 0.4

	// DefaultConfidenceFloor is the score below which a candidate is
	// dropped rather than merged into the graph.
	DefaultConfidenceFloor = 0.25
)

// relationPattern links a (subject type, object type) pair to a relation
// label through a lexicon of trigger phrases.
type relationPattern struct {
	subjectType graph.EntityType
	objectType  graph.EntityType
	relation    string
	triggers    []string
	re          *regexp.Regexp
}

func newPattern(subj, obj graph.EntityType, relation string, triggers ...string) *relationPattern {
	escaped := make([]string, len(triggers))
	for i, t := range triggers {
		escaped[i] = regexp.QuoteMeta(t)
	}
	return &relationPattern{
		subjectType: subj,
		objectType:  obj,
		relation:    relation,
		triggers:    triggers,
		re:          regexp.MustCompile(`(?i)\b(?:` + strings.Join(escaped, "|") + `)\b`),
	}
}

// relationPatterns covers the eight cardiology type pairs. Direction always
// runs subject -> object regardless of mention order in the sentence.
var relationPatterns = []*relationPattern{
	newPattern(graph.TypeCondition, graph.TypeAnatomy, graph.RelAffects,
		"affects", "involves", "in", "of", "associated with", "related to"),
	newPattern(graph.TypeCondition, graph.TypeMechanism, graph.RelInvolves,
		"involves", "causes", "leads to", "results in", "associated with", "characterized by"),
	newPattern(graph.TypeTreatment, graph.TypeCondition, graph.RelTreats,
		"treats", "used for", "effective for", "indicated for", "manages", "therapy for"),
	newPattern(graph.TypeDiagnostic, graph.TypeCondition, graph.RelDiagnoses,
		"diagnoses", "detects", "identifies", "confirms", "rules out", "evaluates", "assesses", "screens for"),
	newPattern(graph.TypeFinding, graph.TypeCondition, graph.RelIndicates,
		"indicates", "suggests", "sign of", "symptom of", "manifestation of", "associated with", "seen in"),
	newPattern(graph.TypeProcedure, graph.TypeAnatomy, graph.RelPerformedOn,
		"performed on", "targets", "involves", "repairs", "replaces", "treats"),
	newPattern(graph.TypeAnatomy, graph.TypeAnatomy, graph.RelConnectedTo,
		"connected to", "adjacent to", "part of", "contains", "supplies", "drains", "attaches to"),
	newPattern(graph.TypeMechanism, graph.TypeMechanism, graph.RelLeadsTo,
		"leads to", "causes", "triggers", "activates", "inhibits", "promotes", "precedes", "follows"),
}

// ExtractorConfig carries the tunable extraction thresholds.
type ExtractorConfig struct {
	// ConfidenceFloor drops candidates scoring below it. Not an error;
	// a low-confidence discard is a normal outcome.
	ConfidenceFloor float64
}

// DefaultExtractorConfig returns the documented extraction defaults.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{ConfidenceFloor: DefaultConfidenceFloor}
}

// Extractor proposes typed relationship candidates from mention pairs
// co-occurring within a single sentence.
type Extractor struct {
	cfg    ExtractorConfig
	hedges mapset.Set[string]
	logger *logrus.Logger
}

// NewExtractor builds an extractor with the given thresholds.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = DefaultConfidenceFloor
	}
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Extractor{
		cfg:    cfg,
		hedges: mapset.NewSet("may", "might", "could", "can", "possibly"),
		logger: logger,
	}
}

// Extract proposes relationship candidates for every mention pair in the
// sentence whose types match a pattern. Pairs with no matching trigger are
// discarded rather than defaulted to a generic relation.
func (e *Extractor) Extract(sentence string, ann *Annotation, mentions []graph.EntityMention) []graph.RelationshipCandidate {
	if len(mentions) < 2 {
		return nil
	}

	var candidates []graph.RelationshipCandidate
	seen := make(map[string]bool)

	for i := 0; i < len(mentions); i++ {
		for j := i + 1; j < len(mentions); j++ {
			a, b := mentions[i], mentions[j]
			if a.Name == b.Name {
				continue
			}

			for _, pattern := range relationPatterns {
				subject, object, ok := orient(pattern, a, b)
				if !ok {
					continue
				}

				key := fmt.Sprintf("%s|%s|%s", subject.Name, pattern.relation, object.Name)
				if seen[key] {
					continue
				}

				confidence := e.score(pattern, sentence, ann, a, b)
				if confidence == 0 {
					continue
				}
				if confidence < e.cfg.ConfidenceFloor {
					// Low-confidence discards are visible at debug level only.
					e.logger.WithFields(logrus.Fields{
						"source":     subject.Name,
						"target":     object.Name,
						"relation":   pattern.relation,
						"confidence": confidence,
					}).Debug("Dropped candidate below confidence floor")
					continue
				}

				seen[key] = true
				candidates = append(candidates, graph.RelationshipCandidate{
					Source:     subject.Name,
					Target:     object.Name,
					Type:       pattern.relation,
					Confidence: confidence,
				})
			}
		}
	}

	return candidates
}

// orient matches the mention pair against the pattern's type signature and
// returns them in subject, object order. For symmetric signatures
// (Anatomy-Anatomy) the earlier mention is the subject.
func orient(p *relationPattern, a, b graph.EntityMention) (graph.EntityMention, graph.EntityMention, bool) {
	switch {
	case a.Type == p.subjectType && b.Type == p.objectType:
		return a, b, true
	case b.Type == p.subjectType && a.Type == p.objectType:
		if p.subjectType == p.objectType {
			return a, b, true
		}
		return b, a, true
	}
	return a, b, false
}

// score grades pattern specificity: trigger between the mentions beats a
// trigger elsewhere in the sentence, which beats a hedged modal between the
// mentions. Zero means no match at all.
func (e *Extractor) score(p *relationPattern, sentence string, ann *Annotation, a, b graph.EntityMention) float64 {
	between := betweenText(sentence, a, b)

	if p.re.MatchString(between) {
		return confidenceExact
	}
	if p.re.MatchString(sentence) {
		return confidenceLoose
	}
	if e.hedgedBetween(ann, between) {
		return confidenceHedged
	}
	return 0
}

// hedgedBetween reports whether a modal hedge token from the annotation
// occurs in the span separating the two mentions.
func (e *Extractor) hedgedBetween(ann *Annotation, between string) bool {
	if ann == nil || between == "" {
		return false
	}
	lower := " " + strings.ToLower(between) + " "
	for _, tok := range ann.Tokens {
		if tok.Tag != "MD" {
			continue
		}
		if strings.Contains(lower, " "+strings.ToLower(tok.Text)+" ") && e.hedges.Contains(strings.ToLower(tok.Text)) {
			return true
		}
	}
	return false
}

func betweenText(sentence string, a, b graph.EntityMention) string {
	start := min(a.End, b.End)
	end := max(a.Start, b.Start)
	if start >= end || end > len(sentence) {
		// One mention nested inside the other.
		return ""
	}
	return sentence[start:end]
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
