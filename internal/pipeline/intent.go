package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

type IntentKind string

const (
	IntentDefault    IntentKind = "default"
	IntentGenderSwap IntentKind = "gender_swap"
	IntentBreakdown  IntentKind = "breakdown"
)

const defaultGroupColumn = "usergender"

// breakdownPattern accepts "break down" and "break <word> down".
var breakdownPattern = regexp.MustCompile(`\bbreak\b(\s+\w+)?\s+down\b`)

// Intent is the follow-up pattern recognized in a query. Filters carries the
// WHERE body the deterministic SQL should use.
type Intent struct {
	Kind        IntentKind
	GroupColumn string
	Filters     string
}

// Classify matches phrases in the lower-cased query. Both follow-up
// patterns need filters from an earlier turn; without them every query goes
// to the model.
func Classify(query string, state State) Intent {
	text := strings.ToLower(query)
	if state.Filters == "" {
		return Intent{Kind: IntentDefault}
	}

	switch {
	case strings.Contains(text, "male"):
		swapped := strings.ReplaceAll(state.Filters, "Female", "Male")
		swapped = strings.ReplaceAll(swapped, "'female'", "'male'")
		return Intent{Kind: IntentGenderSwap, Filters: swapped}
	case breakdownPattern.MatchString(text):
		group := state.LastGroup
		switch {
		case strings.Contains(text, "usergender"):
			group = "usergender"
		case strings.Contains(text, "userage"):
			group = "userage"
		}
		if group == "" {
			group = defaultGroupColumn
		}
		return Intent{Kind: IntentBreakdown, GroupColumn: group, Filters: state.Filters}
	}
	return Intent{Kind: IntentDefault}
}

// BuildIntentSQL returns the fixed statement for a heuristic intent. It
// returns "" for IntentDefault.
func BuildIntentSQL(table string, intent Intent) string {
	switch intent.Kind {
	case IntentGenderSwap:
		return fmt.Sprintf("SELECT * FROM %s WHERE %s;", table, intent.Filters)
	case IntentBreakdown:
		return fmt.Sprintf(`SELECT %[1]s,
       COUNT(*) AS review_count,
       AVG(reviewrating) AS avg_rating,
       MIN(reviewrating) AS min_rating,
       MAX(reviewrating) AS max_rating
FROM %[2]s
WHERE %[3]s
GROUP BY %[1]s
ORDER BY review_count DESC;`, intent.GroupColumn, table, intent.Filters)
	}
	return ""
}
