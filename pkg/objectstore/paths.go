package objectstore

import (
	"fmt"
	"strconv"
	"strings"
)

// DraftPath builds the canonical object path for one draft revision.
func DraftPath(caseID, draftName string, revision int) string {
	return fmt.Sprintf("cases/%s/drafts/%s/rev-%d.pdf", caseID, SanitizeName(draftName), revision)
}

// DraftPrefix is the listing prefix covering every draft of a case.
func DraftPrefix(caseID string) string {
	return "cases/" + caseID + "/drafts/"
}

// AttachmentPath builds the object path for an uploaded attachment.
func AttachmentPath(caseID, fileName string) string {
	return "cases/" + caseID + "/attachments/" + SanitizeName(fileName)
}

// AttachmentPrefix is the listing prefix covering a case's attachments.
func AttachmentPrefix(caseID string) string {
	return "cases/" + caseID + "/attachments/"
}

// ParseDraftPath inverts DraftPath. The reconciler uses it to adopt objects
// that exist in storage but are missing from the case record.
func ParseDraftPath(path string) (caseID, draftName string, revision int, ok bool) {
	rest, found := strings.CutPrefix(path, "cases/")
	if !found {
		return "", "", 0, false
	}
	caseID, rest, found = strings.Cut(rest, "/drafts/")
	if !found || caseID == "" || strings.Contains(caseID, "/") {
		return "", "", 0, false
	}
	draftName, rev, found := strings.Cut(rest, "/rev-")
	if !found || draftName == "" || strings.Contains(draftName, "/") {
		return "", "", 0, false
	}
	rev, found = strings.CutSuffix(rev, ".pdf")
	if !found {
		return "", "", 0, false
	}
	n, err := strconv.Atoi(rev)
	if err != nil || n < 1 {
		return "", "", 0, false
	}
	return caseID, draftName, n, true
}

// SanitizeName maps a human-supplied name onto a safe path segment:
// lowercase, spaces to hyphens, anything outside [a-z0-9._-] dropped.
// Draft names come from model output and must never traverse paths.
func SanitizeName(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		case r == ' ':
			sb.WriteRune('-')
		}
	}
	out := strings.Trim(sb.String(), ".")
	if out == "" {
		return "document"
	}
	return out
}
