package nodes

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/orchestrator"
)

func TestDecodeModelJSON(t *testing.T) {
	var out struct {
		Tier int `json:"tier"`
	}

	require.NoError(t, decodeModelJSON("tier-decide", `{"tier": 2}`, &out))
	assert.Equal(t, 2, out.Tier)

	out.Tier = 0
	require.NoError(t, decodeModelJSON("tier-decide",
		"Sigur, iată răspunsul:\n```json\n{\"tier\": 3}\n```\nSpor!", &out),
		"fences and prose around the object are tolerated")
	assert.Equal(t, 3, out.Tier)

	err := decodeModelJSON("tier-decide", "nu pot răspunde în format JSON", &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errModelContract))

	err = decodeModelJSON("tier-decide", `{"tier": `, &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errModelContract))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "# Titlu", stripFences("# Titlu"))
	assert.Equal(t, "# Titlu\n\nText.", stripFences("```markdown\n# Titlu\n\nText.\n```"))
	assert.Equal(t, "text", stripFences("```\ntext\n```"))
	assert.Equal(t, "", stripFences("```"), "a fence with no body yields nothing")
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "scurt", truncateText("scurt", 100))
	assert.Equal(t, "scurt", truncateText("scurt", 0), "zero budget means no cap")

	long := strings.Repeat("ă", 6)
	cut := truncateText(long, 11)
	assert.Equal(t, strings.Repeat("ă", 5)+"\n\n[text trunchiat]", cut,
		"the cut lands on a rune boundary")
}

func TestIntFromAny(t *testing.T) {
	for _, v := range []any{2, int64(2), float64(2), json.Number("2")} {
		n, ok := intFromAny(v)
		assert.True(t, ok)
		assert.Equal(t, 2, n)
	}
	_, ok := intFromAny("2")
	assert.False(t, ok)
	_, ok = intFromAny(json.Number("doi"))
	assert.False(t, ok)
}

func TestFmtSummary(t *testing.T) {
	assert.Equal(t, "linia1 linia2", fmtSummary("linia1\nlinia2"))

	long := fmtSummary("%s", strings.Repeat("a", 400))
	assert.Equal(t, strings.Repeat("a", 300)+"...", long)
}

func TestJournalEntryShape(t *testing.T) {
	e := journalEntry("node_run", "plan", "", "done", nil)
	assert.NotContains(t, e, "tool")
	assert.NotContains(t, e, "payload")

	e = journalEntry("tool_call", "research", "research_query", "ok",
		map[string]any{"source": "legislation"})
	assert.Equal(t, "research_query", e["tool"])
	assert.NotNil(t, e["payload"])
}

func TestWaitSuspendsIdle(t *testing.T) {
	e := newEnv(t, fakeAssistant(), fakeReasoner())
	e.seed(casefile.StatusActive)

	res, err := wait{}.Run(context.Background(), e.turn(orchestrator.UserMessage("pauză"), nil))
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ResultSuspend, res.Kind)
	assert.Equal(t, orchestrator.SuspendIdle, res.Reason)
	assert.Equal(t, orchestrator.NodePlan, res.Resume)
	assert.Empty(t, res.Message)
}
