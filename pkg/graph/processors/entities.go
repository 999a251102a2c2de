package processors

import (
	"sort"
	"strings"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/athapong/cardiograph/pkg/graph"
)

var mentionCount = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "extraction_entity_mentions_total",
		Help: "Number of entity mentions recognized",
	},
	[]string{"entity_type"},
)

func init() {
	prometheus.MustRegister(mentionCount)
}

// cardioTerms is the cardiology gazetteer, keyed by entity type.
var cardioTerms = map[graph.EntityType][]string{
	graph.TypeAnatomy: {
		"heart", "atrium", "ventricle", "aorta", "valve", "mitral valve",
		"aortic valve", "pulmonary valve", "tricuspid valve",
		"coronary artery", "myocardium", "endocardium", "epicardium",
		"pericardium", "septum", "interventricular septum", "interatrial septum",
		"sinus node", "av node", "purkinje fibers", "bundle of his",
		"papillary muscle", "chordae tendineae", "vena cava",
	},
	graph.TypeCondition: {
		"myocardial infarction", "heart attack", "coronary artery disease",
		"angina", "heart failure", "cardiomyopathy", "atrial fibrillation",
		"ventricular fibrillation", "tachycardia", "bradycardia", "arrhythmia",
		"hypertension", "hypotension", "pericarditis", "endocarditis",
		"myocarditis", "atherosclerosis", "aneurysm", "valvular heart disease",
		"mitral stenosis", "mitral regurgitation", "aortic stenosis",
		"aortic regurgitation", "congenital heart defect",
	},
	graph.TypeDiagnostic: {
		"echocardiogram", "echocardiography", "electrocardiogram", "ecg", "ekg",
		"cardiac catheterization", "coronary angiogram", "stress test",
		"holter monitor", "cardiac mri", "cardiac ct", "blood test", "troponin test",
		"bnp test", "cardiac enzyme",
	},
	graph.TypeProcedure: {
		"bypass surgery", "cabg", "coronary bypass", "angioplasty", "stent placement",
		"heart transplant", "valve replacement", "valve repair", "ablation",
		"pacemaker implantation", "cardioversion", "icd implantation",
	},
	graph.TypeTreatment: {
		"beta blocker", "ace inhibitor", "angiotensin receptor blocker", "arb",
		"calcium channel blocker", "diuretic", "anticoagulant", "aspirin",
		"statin", "nitrate", "vasodilator", "inotrope", "antiarrhythmic",
		"thrombolytic", "cardiac glycoside", "digoxin",
	},
	graph.TypeFinding: {
		"chest pain", "dyspnea", "shortness of breath", "palpitations",
		"syncope", "edema", "cyanosis", "murmur", "s3 gallop", "s4 gallop",
		"crackles", "elevated jugular venous pressure", "jvp", "tachypnea",
		"cardiomegaly", "peripheral edema", "clubbing", "fatigue", "cough",
		"orthopnea", "paroxysmal nocturnal dyspnea", "pnd", "diaphoresis",
		"pulmonary edema",
	},
	graph.TypeMechanism: {
		"plaque formation", "atherosclerotic plaque", "thrombosis", "embolism",
		"ischemia", "reperfusion injury", "remodeling", "fibrosis",
		"inflammation", "oxidative stress", "endothelial dysfunction",
		"platelet aggregation", "vasoconstriction", "vasodilation",
		"cardiac remodeling", "hypertrophy", "diastolic dysfunction",
		"systolic dysfunction", "conduction abnormality",
	},
}

// Normalize canonicalizes a surface form: lowercase, trimmed, internal
// whitespace collapsed, trailing punctuation stripped. Two surface forms
// normalizing to the same string are the same entity.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r)
	})
}

// Recognizer turns annotated sentences into typed entity mentions using the
// cardiology gazetteer.
type Recognizer struct {
	gazetteer map[string]graph.EntityType
	terms     []string // gazetteer keys, longest first
	logger    *logrus.Logger
}

// NewRecognizer builds a recognizer over the built-in gazetteer. When a term
// appears under more than one category, the fixed type priority order
// decides its type.
func NewRecognizer() *Recognizer {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	gazetteer := make(map[string]graph.EntityType)
	for entityType, terms := range cardioTerms {
		for _, term := range terms {
			key := Normalize(term)
			if existing, ok := gazetteer[key]; ok {
				gazetteer[key] = graph.HigherPriority(existing, entityType)
			} else {
				gazetteer[key] = entityType
			}
		}
	}

	terms := make([]string, 0, len(gazetteer))
	for term := range gazetteer {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if len(terms[i]) != len(terms[j]) {
			return len(terms[i]) > len(terms[j])
		}
		return terms[i] < terms[j]
	})

	return &Recognizer{gazetteer: gazetteer, terms: terms, logger: logger}
}

// Recognize scans one sentence for gazetteer terms and returns the typed
// mentions, ordered by position. Longer terms shadow shorter ones on the
// same span ("heart attack" suppresses "heart"). An empty or unmatched
// sentence yields an empty list, never an error.
func (r *Recognizer) Recognize(docID, sentence string, ann *Annotation) []graph.EntityMention {
	_ = ann // the gazetteer pass needs no POS information

	lower := strings.ToLower(sentence)
	var mentions []graph.EntityMention
	var taken [][2]int

	for _, term := range r.terms {
		from := 0
		for {
			idx := strings.Index(lower[from:], term)
			if idx < 0 {
				break
			}
			start := from + idx
			end := start + len(term)
			from = start + 1

			if !wordBoundary(lower, start, end) || overlaps(taken, start, end) {
				continue
			}
			taken = append(taken, [2]int{start, end})

			entityType := r.gazetteer[term]
			mentions = append(mentions, graph.EntityMention{
				Surface: sentence[start:end],
				Name:    Normalize(sentence[start:end]),
				Type:    entityType,
				Start:   start,
				End:     end,
			})
			mentionCount.WithLabelValues(string(entityType)).Inc()
		}
	}

	sort.Slice(mentions, func(i, j int) bool { return mentions[i].Start < mentions[j].Start })

	if len(mentions) > 0 {
		r.logger.WithFields(logrus.Fields{
			"doc_id":   docID,
			"mentions": len(mentions),
		}).Debug("Recognized entity mentions")
	}
	return mentions
}

func wordBoundary(s string, start, end int) bool {
	if start > 0 && isWordChar(rune(s[start-1])) {
		return false
	}
	if end < len(s) && isWordChar(rune(s[end])) {
		return false
	}
	return true
}

func isWordChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func overlaps(taken [][2]int, start, end int) bool {
	for _, span := range taken {
		if start < span[1] && end > span[0] {
			return true
		}
	}
	return false
}
