package classify

import (
	"regexp"
	"strings"

	"github.com/soyeahso/maestro/internal/domain"
)

// Responder ids known to the built-in rule table.
const (
	LuthierHistorian = "luthier_historian"
	JazzTeacher      = "jazz_teacher"
	SQLExpert        = "sql_expert"
	DevPM            = "dev_pm"
)

// Rule is a weighted keyword rule. Every matching pattern adds Weight to the
// rule's responder.
//
// Ties between responders with equal totals are broken by Priority: the
// responder whose best (lowest) matching rule priority is smaller wins. Equal
// priorities fall back to responder declaration order. The category of a
// decision is taken from the top responder's lowest-priority matching rule.
type Rule struct {
	Category  string
	Responder string
	Patterns  []*regexp.Regexp
	Weight    float64
	Priority  int
}

// EntityOverride forces Responder to the top when any of Names appears in
// the text as a whole word. Only the first matching name counts.
type EntityOverride struct {
	Responder string
	Names     []string
	Weight    float64
}

type compiledEntity struct {
	EntityOverride
	res []*regexp.Regexp
}

func compileEntity(e EntityOverride) compiledEntity {
	c := compiledEntity{EntityOverride: e}
	for _, n := range e.Names {
		c.res = append(c.res, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(strings.ToLower(n))+`\b`))
	}
	return c
}

func (e compiledEntity) match(text string) (string, bool) {
	for i, re := range e.res {
		if re.MatchString(text) {
			return e.Names[i], true
		}
	}
	return "", false
}

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// DefaultResponders is the declaration order used for tie-breaks.
func DefaultResponders() []string {
	return []string{LuthierHistorian, JazzTeacher, SQLExpert, DevPM}
}

// DefaultRules returns the built-in guitar-tutor rule table.
func DefaultRules() []Rule {
	return []Rule{
		{
			Category:  domain.CategoryGuitarHistory,
			Responder: LuthierHistorian,
			Weight:    1,
			Priority:  10,
			Patterns: patterns(
				`\b(history|historical|evolution|origin|invented|created)\b`,
				`\b(luthier|builder|craftsman|workshop|shop)\b`,
			),
		},
		{
			Category:  domain.CategoryGuitarSetup,
			Responder: LuthierHistorian,
			Weight:    1,
			Priority:  11,
			Patterns: patterns(
				`\b(tonewood|wood|spruce|mahogany|rosewood|maple|ebony)\b`,
				`\b(pickup|humbucker|single.coil|p-90|piezo|active)\b`,
				`\b(construction|bracing|neck\s*joint|frets|nut|saddle)\b`,
				`\b(setup|intonation|action|truss\s*rod|string\s*gauge)\b`,
				`\b(repair|restore|maintenance|restring|adjust)\b`,
			),
		},
		{
			Category:  domain.CategoryMusicTheory,
			Responder: JazzTeacher,
			Weight:    1,
			Priority:  20,
			Patterns: patterns(
				`\b(chord|scale|mode|arpeggio|interval|key)\b`,
				`\b(dorian|mixolydian|lydian|phrygian|locrian|ionian|aeolian)\b`,
				`\b(bebop|altered|diminished|whole\s*tone|pentatonic|chromatic)\b`,
				`\b(ii-v-i|ii\s*v\s*i|2-5-1|two\s*five\s*one)\b`,
				`\b(improvise|improvisation|solo|comping|voicing)\b`,
				`\b(practice|routine|exercise|lesson|warmup|warm-up)\b`,
				`\b(rut|plateau|stuck|bored|stale|uninspired)\b`,
				`\b(jazz|swing|bebop|bossa|ballad|blues)\b`,
				`\b(wes montgomery|joe pass|pat metheny|jim hall|grant green)\b`,
				`\b(charlie parker|miles davis|john coltrane|bill evans)\b`,
				`\b(quiz|test|question)\b`,
				`\b(voice\s*lead|guide\s*tone|enclosure|targeting)\b`,
			),
		},
		{
			Category:  domain.CategoryDataQuery,
			Responder: SQLExpert,
			Weight:    1.5,
			Priority:  30,
			Patterns: patterns(
				`\b(how many|list all|show me|find all|search for|count)\b`,
				`\b(which ones|what are all|give me all|display)\b`,
				`\b(database|query|data|records|entries)\b`,
				`\b(filter|sort|between|greater than|less than)\b`,
				`\b(difficulty \d|category|type)\b`,
			),
		},
		{
			Category:  domain.CategorySystem,
			Responder: DevPM,
			Weight:    1,
			Priority:  40,
			Patterns: patterns(
				`\b(benchmark|progress|status|health|error|bug)\b`,
				`\b(documentation|changelog|log|report)\b`,
				`\b(test|deploy|build|version)\b`,
			),
		},
	}
}

// DefaultEntities returns the luthier proper-noun overrides.
func DefaultEntities() []EntityOverride {
	return []EntityOverride{{
		Responder: LuthierHistorian,
		Weight:    3,
		Names: []string{
			"torres", "martin", "gibson", "fender", "d'angelico", "d'aquisto",
			"benedetto", "prs", "paul reed smith", "rickenbacker", "gretsch",
			"epiphone", "ibanez", "yamaha", "taylor", "collings", "santa cruz",
			"bourgeois", "huss and dalton", "lowden", "mcpherson",
			"lloyd loar", "leo fender", "les paul", "orville gibson",
			"ted mccarty", "seth lover",
			"telecaster", "stratocaster", "sg", "es-335", "l-5",
			"dreadnought", "parlor guitar", "archtop",
		},
	}}
}

// categoryResponders maps fallback labels to responders.
var categoryResponders = map[string]string{
	domain.CategoryGuitarHistory: LuthierHistorian,
	domain.CategoryGuitarSetup:   LuthierHistorian,
	domain.CategoryMusicTheory:   JazzTeacher,
	domain.CategoryDataQuery:     SQLExpert,
	domain.CategorySystem:        DevPM,
}

// Labels is the fixed category label set offered to the fallback tier.
func Labels() []string {
	return []string{
		domain.CategoryGuitarHistory,
		domain.CategoryGuitarSetup,
		domain.CategoryMusicTheory,
		domain.CategoryDataQuery,
		domain.CategorySystem,
		domain.CategoryGeneral,
	}
}

var (
	multiDomainMarkers = []string{" and also ", " as well as ", "compare"}
	dependencyRe       = regexp.MustCompile(`(?i)\b(then|based on that|using those|after that|with those results)\b`)
)
