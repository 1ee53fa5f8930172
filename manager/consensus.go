package manager

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/BaSui01/humanflow/types"
)

// consensusOutcome is the verdict of one consensus evaluation pass.
type consensusOutcome struct {
	reached bool
	value   any
}

// evaluateConsensus is a pure function of the interaction and its accumulated
// responses. Duplicate respondents are rejected before this point, so every
// response counts as one vote.
func evaluateConsensus(in *types.Interaction, responses []*types.Response) consensusOutcome {
	if len(responses) == 0 {
		return consensusOutcome{}
	}

	switch in.ConsensusMode {
	case types.ConsensusFirstResponse:
		return consensusOutcome{reached: true, value: responses[0].Value}

	case types.ConsensusAllRequired:
		if len(responses) < len(in.TargetHumans) {
			return consensusOutcome{}
		}
		first := voteKey(responses[0].Value)
		unanimous := true
		for _, r := range responses[1:] {
			if voteKey(r.Value) != first {
				unanimous = false
				break
			}
		}
		if unanimous {
			return consensusOutcome{reached: true, value: responses[0].Value}
		}
		values := make(map[string]any, len(responses))
		for _, r := range responses {
			values[r.Respondent] = r.Value
		}
		return consensusOutcome{reached: true, value: types.NewConflict(values)}

	case types.ConsensusMajority:
		// Reached once some value holds more than half of the TARGET count.
		threshold := len(in.TargetHumans)/2 + 1
		value, count := pluralityVote(responses)
		if count >= threshold {
			return consensusOutcome{reached: true, value: value}
		}
		return consensusOutcome{}

	case types.ConsensusQuorum:
		// Two distinct half-thresholds, deliberately not unified with
		// MAJORITY: the quorum gate counts RESPONSES against the target
		// count, while the agreement gate wants a strict majority among the
		// responses actually received.
		quorum := len(in.TargetHumans) / 2
		if quorum < 1 {
			quorum = 1
		}
		if len(responses) < quorum {
			return consensusOutcome{}
		}
		value, count := pluralityVote(responses)
		if count*2 > len(responses) {
			return consensusOutcome{reached: true, value: value}
		}
		return consensusOutcome{}
	}

	return consensusOutcome{}
}

// pluralityVote tallies votes by canonical key and returns the most common
// value (the original typed value, not its key) with its count. Ties go to
// the earliest response holding the winning count.
func pluralityVote(responses []*types.Response) (any, int) {
	counts := make(map[string]int, len(responses))
	firstValue := make(map[string]any, len(responses))
	order := make([]string, 0, len(responses))

	for _, r := range responses {
		key := voteKey(r.Value)
		if counts[key] == 0 {
			firstValue[key] = r.Value
			order = append(order, key)
		}
		counts[key]++
	}

	bestKey, bestCount := "", 0
	for _, key := range order {
		if counts[key] > bestCount {
			bestKey, bestCount = key, counts[key]
		}
	}
	return firstValue[bestKey], bestCount
}

// voteKey produces a stable, order-independent key for vote counting, so
// structurally-equal map and list values from different respondents count as
// the same vote. Map keys are sorted by encoding/json; list elements are
// sorted by their own canonical encoding.
func voteKey(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%#v", value)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	canonical, err := json.Marshal(canonicalize(decoded))
	if err != nil {
		return string(raw)
	}
	return string(canonical)
}

func canonicalize(value any) any {
	switch v := value.(type) {
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = canonicalize(item)
		}
		sort.Slice(items, func(i, j int) bool {
			a, _ := json.Marshal(items[i])
			b, _ := json.Marshal(items[j])
			return bytes.Compare(a, b) < 0
		})
		return items
	case map[string]any:
		for k, item := range v {
			v[k] = canonicalize(item)
		}
		return v
	default:
		return value
	}
}
