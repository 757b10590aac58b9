package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/orchestrator"
	"github.com/causahq/causa/pkg/partystore"
)

func attachTxt(e *env, docID, name, text string) func(*casefile.Case) {
	e.t.Helper()
	path := "cases/case-1/attachments/" + name
	require.NoError(e.t, e.objects.Put(context.Background(), path, []byte(text), "text/plain"))
	return func(c *casefile.Case) {
		c.AttachedDocuments = append(c.AttachedDocuments, casefile.AttachedDocument{
			DocumentID:  docID,
			Name:        name,
			ObjectPath:  path,
			ContentType: "text/plain",
		})
	}
}

func TestAnalyzeDocsRecordsAnalysis(t *testing.T) {
	e := newEnv(t, fakeAssistant(jsonResp(t, map[string]any{
		"summary":    "Contract de închiriere pe 12 luni.",
		"key_points": []string{"chirie 2000 lei", "garanție o chirie"},
	})), fakeReasoner())
	e.seed(casefile.StatusActive,
		attachTxt(e, "doc-1", "contract.txt", "Contract de inchiriere. Chirie lunara: 2000 lei."))

	res, err := analyzeDocs{}.Run(context.Background(),
		e.turn(orchestrator.UserMessage("am urcat contractul"),
			map[string]any{"document_id": "doc-1"}))
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ResultContinue, res.Kind)
	assert.Equal(t, orchestrator.NodePlan, res.Next, "no more attachments, back to planning")

	d := e.details()
	analysis, ok := d.DocumentsAnalysis["doc-1"]
	require.True(t, ok)
	assert.Equal(t, "contract.txt", analysis.Name)
	assert.Equal(t, "Contract de închiriere pe 12 luni.", analysis.Summary)
	assert.Equal(t, []string{"chirie 2000 lei", "garanție o chirie"}, analysis.KeyPoints)
	assert.False(t, analysis.AnalyzedAt.IsZero())

	entry := journalWithKind(d, "node_run")
	require.NotNil(t, entry)
	assert.Contains(t, entry.Summary, "contract.txt")
}

func TestAnalyzeDocsChainsThroughAttachments(t *testing.T) {
	e := newEnv(t, fakeAssistant(jsonResp(t, map[string]any{
		"summary": "Prima notificare trimisă proprietarului.",
	})), fakeReasoner())
	e.seed(casefile.StatusActive,
		attachTxt(e, "doc-1", "notificare.txt", "Notificare."),
		attachTxt(e, "doc-2", "raspuns.txt", "Raspuns."))

	res, err := analyzeDocs{}.Run(context.Background(),
		e.turn(orchestrator.UserMessage("documentele"), nil))
	require.NoError(t, err)
	assert.Equal(t, orchestrator.NodeAnalyzeDocs, res.Next)
	assert.Equal(t, "doc-2", res.Inputs["document_id"],
		"with no explicit target the first unanalyzed doc is picked and the next one chained")

	_, ok := e.details().DocumentsAnalysis["doc-1"]
	assert.True(t, ok)
}

func TestAnalyzeDocsMasksIdentifiersBeforePrompting(t *testing.T) {
	e := newEnv(t, fakeAssistant(jsonResp(t, map[string]any{
		"summary": "Contract semnat de client.",
	})), fakeReasoner())
	require.NoError(t, e.parties.Put(context.Background(), partystore.Party{
		PartyID:    "party-1",
		Kind:       partystore.KindIndividual,
		FirstName:  "Ion",
		LastName:   "Popescu",
		NationalID: "1960512123456",
	}))
	e.seed(casefile.StatusActive,
		func(c *casefile.Case) {
			c.AttachedParties = []casefile.AttachedParty{{PartyID: "party-1", Role: "client"}}
		},
		attachTxt(e, "doc-1", "contract.txt",
			"Contract semnat de Ion Popescu, CNP 1960512123456, strada Lunga 12."))

	_, err := analyzeDocs{}.Run(context.Background(),
		e.turn(orchestrator.UserMessage("contractul"), map[string]any{"document_id": "doc-1"}))
	require.NoError(t, err, "a document full of the client's own identifiers must still be analyzable")

	require.Len(t, e.assistant.Requests, 1)
	sent := e.assistant.Requests[0].Messages[0].Content
	assert.NotContains(t, sent, "1960512123456")
	assert.NotContains(t, sent, "Popescu")
	assert.Contains(t, sent, "Contract semnat de", "non-personal text survives masking")

	_, ok := e.details().DocumentsAnalysis["doc-1"]
	assert.True(t, ok)
}

func TestAnalyzeDocsRecordsUnreadableUpload(t *testing.T) {
	e := newEnv(t, fakeAssistant(), fakeReasoner())
	e.seed(casefile.StatusActive, func(c *casefile.Case) {
		c.AttachedDocuments = []casefile.AttachedDocument{{
			DocumentID:  "doc-1",
			Name:        "poza.heic",
			ObjectPath:  "cases/case-1/attachments/poza.heic",
			ContentType: "image/heic",
		}}
	})
	require.NoError(t, e.objects.Put(context.Background(),
		"cases/case-1/attachments/poza.heic", []byte{0x00, 0x01}, "image/heic"))

	res, err := analyzeDocs{}.Run(context.Background(),
		e.turn(orchestrator.UserMessage("poza"), map[string]any{"document_id": "doc-1"}))
	require.NoError(t, err, "an unreadable upload is recorded, not fatal")
	assert.Equal(t, orchestrator.NodePlan, res.Next)
	assert.Zero(t, e.assistant.Calls())

	analysis, ok := e.details().DocumentsAnalysis["doc-1"]
	require.True(t, ok)
	assert.Contains(t, analysis.Summary, "nu a putut fi citit")

	entry := journalWithKind(e.details(), "node_run")
	require.NotNil(t, entry)
	assert.Contains(t, entry.Summary, "unreadable")
}

func TestAnalyzeDocsUnknownDocumentFails(t *testing.T) {
	e := newEnv(t, fakeAssistant(), fakeReasoner())
	e.seed(casefile.StatusActive)

	_, err := analyzeDocs{}.Run(context.Background(),
		e.turn(orchestrator.UserMessage("documentul"), map[string]any{"document_id": "ghost"}))
	require.Error(t, err)
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
}

func TestAnalyzeDocsNothingToDo(t *testing.T) {
	e := newEnv(t, fakeAssistant(), fakeReasoner())
	e.seed(casefile.StatusActive)

	res, err := analyzeDocs{}.Run(context.Background(),
		e.turn(orchestrator.UserMessage("continuați"), nil))
	require.NoError(t, err)
	assert.Equal(t, orchestrator.NodePlan, res.Next)
}
