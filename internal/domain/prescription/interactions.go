package prescription

import (
	"sort"
	"strings"
)

// Interaction severities, mildest first.
const (
	SeverityMinor           = "minor"
	SeverityModerate        = "moderate"
	SeverityMajor           = "major"
	SeverityContraindicated = "contraindicated"
)

var severityRank = map[string]int{
	SeverityMinor: 1, SeverityModerate: 2, SeverityMajor: 3, SeverityContraindicated: 4,
}

// Interaction is a known problem with taking two drugs together.
type Interaction struct {
	DrugA       string `json:"drug_a"`
	DrugB       string `json:"drug_b"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Blocking reports whether the finding stops a prescription unless the
// prescriber overrides it.
func (i *Interaction) Blocking() bool {
	return severityRank[i.Severity] >= severityRank[SeverityMajor]
}

var interactionTable = []Interaction{
	{"warfarin", "aspirin", SeverityMajor, "Increased risk of bleeding."},
	{"warfarin", "ibuprofen", SeverityMajor, "NSAIDs raise bleeding risk with anticoagulants."},
	{"warfarin", "naproxen", SeverityMajor, "NSAIDs raise bleeding risk with anticoagulants."},
	{"warfarin", "paracetamol", SeverityMinor, "Regular high doses may raise INR."},
	{"warfarin", "fluconazole", SeverityMajor, "Fluconazole inhibits warfarin metabolism."},
	{"clopidogrel", "omeprazole", SeverityModerate, "Omeprazole reduces activation of clopidogrel."},
	{"sildenafil", "nitroglycerin", SeverityContraindicated, "Severe hypotension."},
	{"sildenafil", "isosorbide mononitrate", SeverityContraindicated, "Severe hypotension."},
	{"simvastatin", "clarithromycin", SeverityContraindicated, "Greatly increased risk of myopathy."},
	{"simvastatin", "amiodarone", SeverityMajor, "Increased risk of myopathy."},
	{"atorvastatin", "clarithromycin", SeverityMajor, "Increased statin exposure."},
	{"digoxin", "amiodarone", SeverityMajor, "Amiodarone raises digoxin levels."},
	{"lisinopril", "spironolactone", SeverityModerate, "Risk of hyperkalaemia."},
	{"lisinopril", "ibuprofen", SeverityModerate, "Reduced antihypertensive effect and renal risk."},
	{"lisinopril", "potassium chloride", SeverityModerate, "Risk of hyperkalaemia."},
	{"sertraline", "tramadol", SeverityMajor, "Risk of serotonin syndrome and seizures."},
	{"fluoxetine", "tramadol", SeverityMajor, "Risk of serotonin syndrome and seizures."},
	{"sertraline", "linezolid", SeverityContraindicated, "Risk of serotonin syndrome."},
	{"ciprofloxacin", "theophylline", SeverityMajor, "Ciprofloxacin raises theophylline levels."},
	{"methotrexate", "trimethoprim", SeverityMajor, "Additive bone marrow suppression."},
	{"methotrexate", "amoxicillin", SeverityModerate, "Reduced methotrexate clearance."},
	{"metformin", "iodinated contrast", SeverityMajor, "Risk of lactic acidosis."},
	{"levothyroxine", "calcium carbonate", SeverityMinor, "Separate doses by four hours."},
	{"levothyroxine", "ferrous sulfate", SeverityMinor, "Separate doses by four hours."},
	{"metronidazole", "disulfiram", SeverityContraindicated, "Risk of acute psychosis."},
}

type pairKey struct{ a, b string }

func newPairKey(x, y string) pairKey {
	if x > y {
		x, y = y, x
	}
	return pairKey{x, y}
}

var interactionIndex = func() map[pairKey]*Interaction {
	idx := make(map[pairKey]*Interaction, len(interactionTable))
	for i := range interactionTable {
		it := &interactionTable[i]
		idx[newPairKey(it.DrugA, it.DrugB)] = it
	}
	return idx
}()

func normalizeDrug(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// CheckInteractions returns the known interactions between any two of the
// given drugs, most severe first. Matching ignores case, surrounding
// space and the order of the pair. A drug listed twice is reported as
// duplicate therapy.
func CheckInteractions(drugs []string) []*Interaction {
	var names []string
	seen := make(map[string]bool)
	var findings []*Interaction
	for _, d := range drugs {
		n := normalizeDrug(d)
		if n == "" {
			continue
		}
		if seen[n] {
			findings = append(findings, &Interaction{
				DrugA: n, DrugB: n, Severity: SeverityModerate,
				Description: "Duplicate therapy: the drug is prescribed more than once.",
			})
			continue
		}
		seen[n] = true
		names = append(names, n)
	}

	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if it, ok := interactionIndex[newPairKey(names[i], names[j])]; ok {
				cp := *it
				findings = append(findings, &cp)
			}
		}
	}
	sort.SliceStable(findings, func(i, j int) bool {
		return severityRank[findings[i].Severity] > severityRank[findings[j].Severity]
	})
	return findings
}
