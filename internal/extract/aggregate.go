package extract

// Aggregate composes per-mode outcomes into one result keyed by mode name,
// preserving the order outcomes were requested in. Pure: no I/O, inputs are
// not mutated. Two outcomes for the same mode violate the result invariant
// and abort the whole aggregation.
func Aggregate(outcomes []Outcome) (AggregatedResult, error) {
	result := AggregatedResult{
		order:    make([]string, 0, len(outcomes)),
		outcomes: make(map[string]Outcome, len(outcomes)),
	}
	for _, outcome := range outcomes {
		if _, dup := result.outcomes[outcome.Mode]; dup {
			return AggregatedResult{}, &AggregationInvariantError{Mode: outcome.Mode}
		}
		result.order = append(result.order, outcome.Mode)
		result.outcomes[outcome.Mode] = outcome
	}
	return result, nil
}
