package nodes

import (
	"context"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/llms"
	"github.com/causahq/causa/pkg/objectstore"
	"github.com/causahq/causa/pkg/orchestrator"
	"github.com/causahq/causa/pkg/prompt"
	"github.com/causahq/causa/pkg/tools"
)

// draft writes one document revision: the Assistant produces Markdown with
// party placeholders, generate_draft renders and stores the PDF, the context
// tree gets the draft entry and the user gets a signed link.
type draft struct{}

func (draft) Name() string { return orchestrator.NodeDraft }

func (n draft) Run(ctx context.Context, t *orchestrator.Turn) (orchestrator.NodeResult, error) {
	requested := stringInput(t, "draft_name")
	if requested == "" {
		return orchestrator.NodeResult{}, fault.New(fault.PermanentBackend, component, n.Name(),
			"draft requested without a name", nil)
	}
	name := objectstore.SanitizeName(requested)

	revision, err := n.nextRevision(ctx, t, name)
	if err != nil {
		return orchestrator.NodeResult{}, err
	}
	feedback := draftFeedback(&t.Details, name)

	digest, err := t.Digest()
	if err != nil {
		return orchestrator.NodeResult{}, err
	}
	session, err := t.AssistantSessionID(ctx)
	if err != nil {
		return orchestrator.NodeResult{}, err
	}
	guard, err := t.Guard(ctx)
	if err != nil {
		return orchestrator.NodeResult{}, err
	}

	resp, err := t.Services.LLM.Assistant.Generate(ctx, guard, llms.Request{
		System:    prompt.SystemDraft,
		Messages:  []llms.Message{{Role: llms.MessageRoleUser, Content: prompt.DraftUser(digest, name, feedback)}},
		SessionID: session,
	})
	if err != nil {
		return orchestrator.NodeResult{}, err
	}
	markdown := stripFences(resp.Text)
	if markdown == "" {
		return orchestrator.NodeResult{}, fault.New(fault.PermanentBackend, component, n.Name(),
			"model returned an empty document", errModelContract)
	}

	res := callTool(ctx, t, tools.NameGenerateDraft, map[string]any{
		"case_id":    t.Case.ID,
		"draft_name": name,
		"markdown":   markdown,
		"revision":   revision,
	})
	if !res.OK {
		return orchestrator.NodeResult{}, resultFault(tools.NameGenerateDraft, res)
	}
	objectPath, _ := res.Value["object_path"].(string)
	draftID, _ := res.Value["draft_id"].(string)

	if err := t.Apply(ctx, map[string]any{
		"drafts": []any{map[string]any{
			"draft_id":          draftID,
			"name":              name,
			"revision":          revision,
			"object_store_path": objectPath,
		}},
		"agent_interactions.log": journal(journalEntry("tool_call", n.Name(), tools.NameGenerateDraft,
			fmtSummary("draft %s rev %d stored", name, revision),
			map[string]any{"object_path": objectPath, "revision": revision})),
	}); err != nil {
		return orchestrator.NodeResult{}, err
	}

	url, err := t.Services.Objects.SignedURL(ctx, objectPath)
	if err != nil {
		return orchestrator.NodeResult{}, err
	}
	return orchestrator.Reply(
		prompt.Canned(t.Lang(), prompt.MsgDraftReady, name, revision, url),
		map[string]any{"draft_id": draftID, "object_path": objectPath, "revision": revision},
	), nil
}

// nextRevision reconciles the next revision number against both the context
// tree and the object store, so a crash between upload and journal cannot
// cause an overwrite.
func (n draft) nextRevision(ctx context.Context, t *orchestrator.Turn, name string) (int, error) {
	next := t.Details.NextRevision(name)
	paths, err := t.Services.Objects.List(ctx, objectstore.DraftPrefix(t.Case.ID))
	if err != nil {
		return 0, err
	}
	for _, p := range paths {
		_, stored, rev, ok := objectstore.ParseDraftPath(p)
		if ok && stored == name && rev >= next {
			next = rev + 1
		}
	}
	return next, nil
}

// draftFeedback gathers reviewer notes from rejected revisions of the same
// document so the next revision addresses them.
func draftFeedback(d *casefile.Details, name string) []string {
	var fb []string
	for _, dr := range d.Drafts {
		if dr.Name == name && dr.Status == casefile.DraftRejected {
			fb = append(fb, dr.Feedback...)
		}
	}
	return fb
}
