package lexicon

import "strings"

// Canonical symptom table. Tags are stable machine keys consumed by the rule
// engine; surface forms cover the common clinical synonyms and abbreviations
// seen in intake text. The table is data-only so the matched vocabulary can
// be audited independently of matching logic.
var SymptomTerms = []Term{
	{Tag: "chest pain", Patterns: []string{
		`chest pain`,
		`chest discomfort`,
		`pain in (?:my |the )?chest`,
		`press(?:ure|ing) (?:in|on) (?:my |the )?chest`,
	}},
	{Tag: "chest tightness", Patterns: []string{
		`chest tightness`,
		`tight(?:ness)? in (?:my |the )?chest`,
	}},
	{Tag: "shortness of breath", Patterns: []string{
		`shortness of breath`,
		`short of breath`,
		`can'?t catch (?:my )?breath`,
		`difficulty breathing`,
		`trouble breathing`,
		`dyspnea`,
	}},
	{Tag: "cough", Patterns: []string{`cough`}},
	{Tag: "fever", Patterns: []string{`fever`, `febrile`, `chills`}},
	{Tag: "headache", Patterns: []string{`headache`, `head pain`}},
	{Tag: "severe headache", Patterns: []string{
		`severe headache`,
		`worst headache`,
		`thunderclap headache`,
	}},
	{Tag: "dizziness", Patterns: []string{`dizz(?:y|iness)`, `lightheaded(?:ness)?`, `vertigo`}},
	{Tag: "fainting", Patterns: []string{
		`faint(?:ed|ing)?`,
		`passed out`,
		`blacked out`,
		`syncope`,
	}},
	{Tag: "near-syncope", Patterns: []string{
		`near[- ]syncope`,
		`almost (?:fainted|passed out)`,
	}},
	{Tag: "nausea", Patterns: []string{`nausea(?:ted)?`, `queasy`}},
	{Tag: "vomiting", Patterns: []string{`vomit(?:ed|ing)?`, `throwing up`, `emesis`}},
	{Tag: "abdominal pain", Patterns: []string{
		`abdominal pain`,
		`stomach (?:pain|ache)`,
		`belly (?:pain|ache)`,
	}},
	{Tag: "rash", Patterns: []string{`rash`, `hives`}},
	{Tag: "blurred vision", Patterns: []string{`blurr?ed vision`, `blurry vision`, `vision (?:loss|changes)`}},
	{Tag: "slurred speech", Patterns: []string{`slurred speech`, `slurring`}},
	{Tag: "weakness one side", Patterns: []string{
		`weakness (?:on|of) (?:the )?(?:one|left|right) side`,
		`(?:one|left|right)[- ]sided weakness`,
		`weakness one side`,
	}},
	{Tag: "word-finding difficulty", Patterns: []string{
		`word[- ]finding difficult(?:y|ies)`,
		`trouble finding words`,
	}},
	{Tag: "confusion", Patterns: []string{
		`confus(?:ed|ion)`,
		`disoriented`,
		`altered mental status`,
	}},
	{Tag: "bloody stool", Patterns: []string{
		`bloody stools?`,
		`blood in (?:my |the )?stool`,
		`melena`,
	}},
	{Tag: "vomiting blood", Patterns: []string{
		`vomit(?:ed|ing)? blood`,
		`hematemesis`,
		`coffee[- ]ground emesis`,
	}},
	// compound: "pregnancy bleeding" requires an independent non-negated
	// pregnancy mention, so bleeding alone never fires the obstetric flag
	{Tag: "pregnancy bleeding", RequiresTag: "pregnancy mention", Patterns: []string{
		`bleed(?:ing)?`,
		`spotting`,
	}},
	{Tag: "pregnancy mention", Helper: true, Patterns: []string{
		`pregnan(?:t|cy)`,
	}},
}

// Risk-factor keywords use a plain case-insensitive substring check; they
// name chronic conditions, not acute findings, so negation handling adds
// little and costs precision ("family history of diabetes" should tag).
var RiskFactorKeywords = []string{
	"diabetes",
	"hypertension",
	"ckd",
	"copd",
	"asthma",
	"cancer",
	"immunosuppressed",
	"pregnancy",
}

// RiskFactors returns the risk-factor keywords present in the text.
func RiskFactors(text string) []string {
	lower := strings.ToLower(text)
	out := make([]string, 0, 4)
	for _, k := range RiskFactorKeywords {
		if strings.Contains(lower, k) {
			out = append(out, k)
		}
	}
	return out
}
