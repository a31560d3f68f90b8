package quiz

import "testing"

func TestSignificantWords(t *testing.T) {
	words := SignificantWords("What best describes the process of cellular respiration?")
	for _, dropped := range []string{"what", "best", "describes", "the", "of"} {
		if words[dropped] {
			t.Errorf("scaffolding word %q kept", dropped)
		}
	}
	for _, want := range []string{"process", "cellular", "respiration"} {
		if !words[want] {
			t.Errorf("missing significant word %q", want)
		}
	}
}

func TestJaccard(t *testing.T) {
	a := map[string]bool{"mitosis": true, "phase": true, "cell": true}
	b := map[string]bool{"mitosis": true, "phase": true, "division": true}
	got := Jaccard(a, b)
	if got != 0.5 {
		t.Errorf("Jaccard = %v, want 0.5", got)
	}
	if Jaccard(a, a) != 1.0 {
		t.Error("identical sets should score 1.0")
	}
	if Jaccard(nil, nil) != 1.0 {
		t.Error("two empty sets count as identical")
	}
	if Jaccard(a, nil) != 0 {
		t.Error("empty against non-empty should score 0")
	}
}

func TestFilterDuplicatesAgainstStored(t *testing.T) {
	stored := []string{"During which phase of mitosis do chromosomes align at the cell equator?"}
	candidates := []Candidate{
		{Prompt: "During which mitosis phase do the chromosomes align at the equator of the cell?"},
		{Prompt: "What role does the spindle apparatus play during anaphase?"},
	}
	kept := FilterDuplicates(candidates, stored)
	if len(kept) != 1 {
		t.Fatalf("kept %d candidates, want 1", len(kept))
	}
	if kept[0].Prompt != candidates[1].Prompt {
		t.Errorf("wrong survivor: %q", kept[0].Prompt)
	}
}

func TestFilterDuplicatesWithinBatch(t *testing.T) {
	candidates := []Candidate{
		{Prompt: "Which organelle synthesizes proteins inside eukaryotic cells?"},
		{Prompt: "Which organelle synthesizes proteins within eukaryotic cells?"},
		{Prompt: "How does the Golgi apparatus modify newly formed proteins?"},
	}
	kept := FilterDuplicates(candidates, nil)
	if len(kept) != 2 {
		t.Fatalf("kept %d candidates, want 2", len(kept))
	}
	if kept[0].Prompt != candidates[0].Prompt {
		t.Error("first occurrence should survive, later duplicate dropped")
	}
}

func TestFilterDuplicatesKeepsDistinct(t *testing.T) {
	candidates := []Candidate{
		{Prompt: "What triggered the stock market crash of 1929?"},
		{Prompt: "Which policy response defined the New Deal era?"},
	}
	kept := FilterDuplicates(candidates, []string{"Name the general who crossed the Alps with elephants."})
	if len(kept) != 2 {
		t.Errorf("distinct candidates dropped: kept %d", len(kept))
	}
}
