package search

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeRollout(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rollout-test.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func userMsg(text string) string {
	return fmt.Sprintf(`{"timestamp":"t","type":"event_msg","payload":{"type":"UserMessage","message":%q}}`, text)
}

func agentMsg(text string) string {
	return fmt.Sprintf(`{"timestamp":"t","type":"event_msg","payload":{"type":"AgentMessage","message":%q}}`, text)
}

func TestSearchMatchesCaseInsensitiveByDefault(t *testing.T) {
	path := writeRollout(t, userMsg("Fix the LOGIN page"), agentMsg("done"))

	res, err := File(path, Options{Query: "login"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Matched || res.MatchCount != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.ScannedEvents != 2 {
		t.Fatalf("scannedEvents = %d, want 2", res.ScannedEvents)
	}
}

func TestSearchCaseSensitive(t *testing.T) {
	path := writeRollout(t, userMsg("Fix the LOGIN page"))

	res, err := File(path, Options{Query: "login", CaseSensitive: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Matched {
		t.Fatalf("result = %+v, want no match", res)
	}
}

func TestSearchRoleFilter(t *testing.T) {
	path := writeRollout(t, userMsg("needle in user"), agentMsg("needle in assistant"))

	user, err := File(path, Options{Query: "needle", Role: RoleUser})
	if err != nil {
		t.Fatal(err)
	}
	if user.MatchCount != 1 {
		t.Fatalf("user matches = %d, want 1", user.MatchCount)
	}

	asst, err := File(path, Options{Query: "needle", Role: RoleAssistant})
	if err != nil {
		t.Fatal(err)
	}
	if asst.MatchCount != 1 {
		t.Fatalf("assistant matches = %d, want 1", asst.MatchCount)
	}

	both, err := File(path, Options{Query: "needle"})
	if err != nil {
		t.Fatal(err)
	}
	if both.MatchCount != 2 {
		t.Fatalf("both matches = %d, want 2", both.MatchCount)
	}
}

func TestSearchResponseItemTexts(t *testing.T) {
	path := writeRollout(t,
		`{"timestamp":"t","type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"needle here"}]}}`,
		`{"timestamp":"t","type":"response_item","payload":{"type":"reasoning","summary":[{"text":"thinking about the needle"}]}}`,
	)

	res, err := File(path, Options{Query: "needle"})
	if err != nil {
		t.Fatal(err)
	}
	if res.MatchCount != 2 {
		t.Fatalf("matches = %d, want 2", res.MatchCount)
	}
}

func TestSearchEventBudgetTruncation(t *testing.T) {
	var lines []string
	for i := 0; i < 2000; i++ {
		lines = append(lines, agentMsg(fmt.Sprintf("filler message %d", i)))
	}
	lines[1990] = agentMsg("the needle is here")
	path := writeRollout(t, lines...)

	capped, err := File(path, Options{Query: "needle", Budget: Budget{MaxEvents: 200}})
	if err != nil {
		t.Fatal(err)
	}
	if capped.Matched || !capped.Truncated || capped.ScannedEvents != 200 {
		t.Fatalf("capped result = %+v", capped)
	}

	full, err := File(path, Options{Query: "needle"})
	if err != nil {
		t.Fatal(err)
	}
	if !full.Matched || full.ScannedEvents < 1990 {
		t.Fatalf("full result = %+v", full)
	}
}

func TestSearchByteBudgetTruncation(t *testing.T) {
	path := writeRollout(t,
		agentMsg(strings.Repeat("a", 100)),
		agentMsg(strings.Repeat("b", 100)+" needle"),
	)

	res, err := File(path, Options{Query: "needle", Budget: Budget{MaxBytes: 150}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Matched || !res.Truncated || res.ScannedEvents != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	path := writeRollout(t, userMsg("anything"))
	if _, err := File(path, Options{Query: "   "}); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("err = %v, want ErrEmptyQuery", err)
	}
}
