package manager

import (
	"context"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/BaSui01/humanflow/channel"
	"github.com/BaSui01/humanflow/store"
	"github.com/BaSui01/humanflow/types"
)

// Every respondent holds at most one vote no matter how many times or in what
// order they answer, and the first accepted value always wins.
func TestIngestion_OneVotePerRespondent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		st := store.NewMemoryStore()
		m := New(st, nil)
		ch := channel.NewMemoryChannel("memory", nil)
		m.RegisterChannel(ch)
		defer func() {
			_ = m.Close()
			_ = st.Close()
		}()

		targets := []string{"u0", "u1", "u2", "u3", "u4", "u5", "u6", "u7"}
		in := types.NewInteraction("q", types.InteractionFreeText, targets)
		in.ConsensusMode = types.ConsensusAllRequired

		_, err := m.RegisterAndSend(context.Background(), in, "memory")
		if err != nil {
			t.Fatalf("register: %v", err)
		}

		n := rapid.IntRange(1, 20).Draw(t, "n")
		firstValue := make(map[string]string)
		for i := 0; i < n; i++ {
			respondent := fmt.Sprintf("u%d", rapid.IntRange(0, 5).Draw(t, "respondent"))
			value := rapid.SampledFrom([]string{"a", "b", "c"}).Draw(t, "value")
			if err := ch.Respond(context.Background(),
				types.NewResponse(in.ID, respondent, types.InteractionFreeText, value)); err != nil {
				t.Fatalf("respond: %v", err)
			}
			if _, seen := firstValue[respondent]; !seen {
				firstValue[respondent] = value
			}
		}

		responses, err := st.GetResponses(context.Background(), in.ID)
		if err != nil {
			t.Fatalf("load responses: %v", err)
		}
		if len(responses) != len(firstValue) {
			t.Fatalf("got %d stored responses for %d distinct respondents", len(responses), len(firstValue))
		}
		seen := make(map[string]bool, len(responses))
		for _, r := range responses {
			if seen[r.Respondent] {
				t.Fatalf("respondent %s stored twice", r.Respondent)
			}
			seen[r.Respondent] = true
			if r.Value != firstValue[r.Respondent] {
				t.Fatalf("respondent %s: stored %v, first answer was %q", r.Respondent, r.Value, firstValue[r.Respondent])
			}
		}
	})
}

// MAJORITY is reached exactly when some value holds more than half of the
// target count, no earlier and no later.
func TestConsensus_MajorityThresholdExact(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 7).Draw(t, "targets")
		targets := make([]string, n)
		for i := range targets {
			targets[i] = fmt.Sprintf("u%d", i)
		}
		in := types.NewInteraction("q", types.InteractionFreeText, targets)
		in.ConsensusMode = types.ConsensusMajority

		k := rapid.IntRange(0, n).Draw(t, "responses")
		counts := make(map[string]int)
		responses := make([]*types.Response, 0, k)
		for i := 0; i < k; i++ {
			value := rapid.SampledFrom([]string{"a", "b", "c"}).Draw(t, "value")
			counts[value]++
			responses = append(responses, types.NewResponse(in.ID, targets[i], types.InteractionFreeText, value))
		}

		top := 0
		for _, c := range counts {
			if c > top {
				top = c
			}
		}

		out := evaluateConsensus(in, responses)
		want := top >= n/2+1
		if out.reached != want {
			t.Fatalf("n=%d counts=%v: reached=%v, want %v", n, counts, out.reached, want)
		}
		if out.reached && counts[out.value.(string)] != top {
			t.Fatalf("winner %v does not hold the top count in %v", out.value, counts)
		}
	})
}

// QUORUM is reached exactly when enough responses arrived and a strict
// majority of them agree.
func TestConsensus_QuorumThresholdExact(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 7).Draw(t, "targets")
		targets := make([]string, n)
		for i := range targets {
			targets[i] = fmt.Sprintf("u%d", i)
		}
		in := types.NewInteraction("q", types.InteractionFreeText, targets)
		in.ConsensusMode = types.ConsensusQuorum

		k := rapid.IntRange(0, n).Draw(t, "responses")
		counts := make(map[string]int)
		responses := make([]*types.Response, 0, k)
		for i := 0; i < k; i++ {
			value := rapid.SampledFrom([]string{"a", "b"}).Draw(t, "value")
			counts[value]++
			responses = append(responses, types.NewResponse(in.ID, targets[i], types.InteractionFreeText, value))
		}

		top := 0
		for _, c := range counts {
			if c > top {
				top = c
			}
		}

		quorum := n / 2
		if quorum < 1 {
			quorum = 1
		}
		want := k >= quorum && top*2 > k

		out := evaluateConsensus(in, responses)
		if out.reached != want {
			t.Fatalf("n=%d k=%d counts=%v: reached=%v, want %v", n, k, counts, out.reached, want)
		}
	})
}

// voteKey is invariant under permutation of list elements and map ordering.
func TestVoteKey_PermutationInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		items := rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c", "d"}), 0, 6).Draw(t, "items")

		shuffled := make([]string, len(items))
		copy(shuffled, items)
		for i := len(shuffled) - 1; i > 0; i-- {
			j := rapid.IntRange(0, i).Draw(t, "swap")
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		}

		if voteKey(items) != voteKey(shuffled) {
			t.Fatalf("key differs for %v and %v", items, shuffled)
		}
	})
}
