package normalizer

import "strings"

// unitAliases maps a folded unit spelling to its canonical form.
// Keys are lowercased, space-free and use the Greek mu.
var unitAliases = map[string]string{
	"mg/dl":      "mg/dL",
	"mg%":        "mg/dL",
	"mgs/dl":     "mg/dL",
	"mg/100ml":   "mg/dL",
	"mgm%":       "mg/dL",
	"g/dl":       "g/dL",
	"gm/dl":      "g/dL",
	"gms/dl":     "g/dL",
	"gm%":        "g/dL",
	"g%":         "g/dL",
	"g/l":        "g/L",
	"mg/l":       "mg/L",
	"mmol/l":     "mmol/L",
	"umol/l":     "μmol/L",
	"μmol/l":     "μmol/L",
	"meq/l":      "mEq/L",
	"iu/l":       "U/L",
	"u/l":        "U/L",
	"units/l":    "U/L",
	"miu/l":      "mIU/L",
	"uiu/ml":     "μIU/mL",
	"μiu/ml":     "μIU/mL",
	"miu/ml":     "μIU/mL",
	"ng/ml":      "ng/mL",
	"ng/dl":      "ng/dL",
	"pg/ml":      "pg/mL",
	"%":          "%",
	"10^3/ul":    "10^3/μL",
	"10^3/μl":    "10^3/μL",
	"x10^3/ul":   "10^3/μL",
	"x10^3/μl":   "10^3/μL",
	"10^9/l":     "10^3/μL",
	"thou/ul":    "10^3/μL",
	"thou/μl":    "10^3/μL",
	"thou/mm3":   "10^3/μL",
	"k/ul":       "10^3/μL",
	"k/μl":       "10^3/μL",
	"10^6/ul":    "10^6/μL",
	"10^6/μl":    "10^6/μL",
	"x10^6/ul":   "10^6/μL",
	"x10^6/μl":   "10^6/μL",
	"mill/mm3":   "10^6/μL",
	"million/ul": "10^6/μL",
	"million/μl": "10^6/μL",
	"10^12/l":    "10^6/μL",
}

var unitFolder = strings.NewReplacer(
	" ", "",
	"\t", "",
	"µ", "μ", // micro sign
	"³", "^3",
	"⁶", "^6",
	"×", "x",
)

// CanonicalUnit maps a unit spelling to its canonical form.
// The second return value is false when the unit is not recognized.
// Canonical units map to themselves.
func CanonicalUnit(unit string) (string, bool) {
	key := strings.ToLower(unitFolder.Replace(strings.TrimSpace(unit)))
	key = strings.TrimSuffix(key, ".")
	if key == "" {
		return "", false
	}
	canonical, ok := unitAliases[key]
	return canonical, ok
}
