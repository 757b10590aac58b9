package casefile

import "time"

// Objective statuses. A case is ready for closure only when no objective is
// left pending.
const (
	ObjectivePending   = "pending"
	ObjectiveAchieved  = "achieved"
	ObjectiveAbandoned = "abandoned"
)

// Research entry statuses. New citations land as considered; a reasoner
// prune promotes them to applied or demotes them to irrelevant.
const (
	ResearchConsidered = "considered"
	ResearchApplied    = "applied"
	ResearchIrrelevant = "irrelevant"
)

// Draft statuses across the review cycle. Orphaned marks a revision whose
// PDF reached the object store but whose recording update never ran; the
// maintenance reconciler adopts such objects so revision numbering stays
// monotonic.
const (
	DraftGenerated = "generated"
	DraftAccepted  = "accepted"
	DraftRejected  = "rejected"
	DraftOrphaned  = "orphaned"
)

// SummaryRevision is one superseded summary, retained forever in
// summary.history.
type SummaryRevision struct {
	Text       string    `json:"text"`
	ReplacedAt time.Time `json:"replaced_at"`
}

// Summary carries the current case summary plus the append-only history of
// everything it replaced.
type Summary struct {
	Current string            `json:"current,omitempty"`
	History []SummaryRevision `json:"history,omitempty"`
}

// Fact is one timestamped, sourced statement about the case. Facts are never
// edited or removed; a correction is a new fact.
type Fact struct {
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
	Fact       string    `json:"fact"`
	Confidence string    `json:"confidence,omitempty"`
}

// Objective is a goal the user wants reached. Status moves through the
// Objective* constants; anything else is rejected by the update engine.
type Objective struct {
	Objective string `json:"objective"`
	Status    string `json:"status"`
}

// PartyRef names a party inside the context tree by id and role only. PII
// stays in the party store.
type PartyRef struct {
	PartyID    string `json:"party_id"`
	RoleInCase string `json:"role_in_case"`
}

// DocumentAnalysis is the structured extraction produced for one attached
// document, keyed by document id under documents_analysis.
type DocumentAnalysis struct {
	Name       string    `json:"name,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	KeyPoints  []string  `json:"key_points,omitempty"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// ResearchEntry is one knowledge-base citation: an act or a decision, with
// the summary that made it relevant and its disposition status.
type ResearchEntry struct {
	DocID     string    `json:"doc_id"`
	Title     string    `json:"title,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Relevance string    `json:"relevance,omitempty"`
	Status    string    `json:"status"`
	FetchedAt time.Time `json:"fetched_at"`
}

// LegalResearch splits captured citations into legislation and
// jurisprudence.
type LegalResearch struct {
	Legislation   []ResearchEntry `json:"legislation,omitempty"`
	Jurisprudence []ResearchEntry `json:"jurisprudence,omitempty"`
}

// ConsideredLegislation counts legislation entries still awaiting a prune
// decision. The orchestrator forces a reasoner prune once this crosses the
// configured threshold.
func (lr *LegalResearch) ConsideredLegislation() int {
	n := 0
	for i := range lr.Legislation {
		if lr.Legislation[i].Status == ResearchConsidered {
			n++
		}
	}
	return n
}

// LogEntry is one journal record in agent_interactions.log: a node run, a
// tool call, an applied update batch, an escalation. The journal is
// append-only and is the audit trail for the case.
type LogEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      string         `json:"kind"`
	Node      string         `json:"node,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Summary   string         `json:"summary,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// AgentInteractions holds the journal plus the one pending question to the
// user, if any. An empty ActiveInfoRequestToUser means nothing is pending.
type AgentInteractions struct {
	Log                     []LogEntry `json:"log,omitempty"`
	ActiveInfoRequestToUser string     `json:"active_info_request_to_user,omitempty"`
}

// Draft tracks one generated document name across revisions. Revision starts
// at 1 and only grows; feedback on rejection drives the next revision.
type Draft struct {
	DraftID         string    `json:"draft_id"`
	Name            string    `json:"name"`
	Revision        int       `json:"revision"`
	ObjectStorePath string    `json:"object_store_path"`
	GeneratedAt     time.Time `json:"generated_at"`
	Status          string    `json:"status"`
	Feedback        []string  `json:"feedback,omitempty"`
}

// TimelineEvent is one dated event in the case chronology.
type TimelineEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor,omitempty"`
	Event     string    `json:"event"`
}

// Note is an internal annotation, never surfaced to the user. Author names
// the writer: a node, the reasoner, maintenance.
type Note struct {
	Timestamp time.Time `json:"timestamp"`
	Author    string    `json:"author,omitempty"`
	Text      string    `json:"text"`
}

// Details is the case_details context tree: everything the agent knows about
// the case. All mutation goes through Apply; fields marked append-only in
// appendOnlyPaths never lose elements.
type Details struct {
	Summary           Summary                     `json:"summary,omitempty"`
	Facts             []Fact                      `json:"facts,omitempty"`
	Objectives        []Objective                 `json:"objectives,omitempty"`
	Parties           []PartyRef                  `json:"parties_involved,omitempty"`
	DocumentsAnalysis map[string]DocumentAnalysis `json:"documents_analysis,omitempty"`
	LegalResearch     LegalResearch               `json:"legal_research,omitempty"`
	AgentInteractions AgentInteractions           `json:"agent_interactions,omitempty"`
	Drafts            []Draft                     `json:"drafts,omitempty"`
	Timeline          []TimelineEvent             `json:"timeline,omitempty"`
	InternalNotes     []Note                      `json:"internal_notes,omitempty"`
	LastUpdated       time.Time                   `json:"last_updated,omitempty"`
}

// PendingObjectives reports whether any objective still has status pending.
func (d *Details) PendingObjectives() bool {
	for i := range d.Objectives {
		if d.Objectives[i].Status == ObjectivePending {
			return true
		}
	}
	return false
}

// DraftByName returns the newest draft with the given name, or nil.
func (d *Details) DraftByName(name string) *Draft {
	var found *Draft
	for i := range d.Drafts {
		if d.Drafts[i].Name != name {
			continue
		}
		if found == nil || d.Drafts[i].Revision > found.Revision {
			found = &d.Drafts[i]
		}
	}
	return found
}

// NextRevision returns max(existing revisions for name)+1.
func (d *Details) NextRevision(name string) int {
	max := 0
	for i := range d.Drafts {
		if d.Drafts[i].Name == name && d.Drafts[i].Revision > max {
			max = d.Drafts[i].Revision
		}
	}
	return max + 1
}

// AppendLog appends a journal entry. This is the only journal writer; the
// update engine routes agent_interactions.log appends here as well.
func (d *Details) AppendLog(e LogEntry) {
	d.AgentInteractions.Log = append(d.AgentInteractions.Log, e)
}
