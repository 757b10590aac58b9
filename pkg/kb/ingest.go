package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/causahq/causa/pkg/fault"
)

// The corpus directory holds legal texts under one subdirectory per source:
//
//	corpus/
//	  legislation/oug-195-2002.md
//	  jurisprudence/iccj-1234-2019.txt
//	  legislation/codul-civil.json
//
// Markdown and plain text files become one document each, identified by
// their relative path. JSON files carry one document or an array of
// documents with explicit ids, and may override the inferred source.

const (
	ingestTimeout  = time.Minute
	summaryMaxLen  = 500
	watchDebounce  = 500 * time.Millisecond
	maxCorpusBytes = 4 * 1024 * 1024
)

func corpusFileEligible(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".txt", ".json":
		return true
	}
	return false
}

// ingestDir indexes every eligible file under dir and returns the document
// ids contributed by each file, keyed by absolute path.
func ingestDir(ctx context.Context, ingester Ingester, dir string) (map[string][]string, error) {
	fileDocs := make(map[string][]string)
	var docs []Document

	err := filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !corpusFileEligible(path) {
			return nil
		}
		fileEntries, err := loadCorpusFile(dir, path)
		if err != nil {
			slog.Warn("Skipping corpus file", "path", path, "error", err)
			return nil
		}
		ids := make([]string, len(fileEntries))
		for i, doc := range fileEntries {
			ids[i] = doc.DocID
		}
		fileDocs[path] = ids
		docs = append(docs, fileEntries...)
		return nil
	})
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, "kb", "ingest",
			"walking corpus directory failed", err)
	}

	if err := ingester.Ingest(ctx, docs); err != nil {
		return nil, err
	}
	slog.Info("Indexed legal corpus", "dir", dir, "files", len(fileDocs), "documents", len(docs))
	return fileDocs, nil
}

// loadCorpusFile parses one corpus file into documents.
func loadCorpusFile(dir, path string) ([]Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxCorpusBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxCorpusBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	relPath, err := filepath.Rel(dir, path)
	if err != nil {
		return nil, err
	}
	relPath = filepath.ToSlash(relPath)
	inferred := inferSource(relPath)

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return parseJSONCorpus(data, inferred)
	}

	if inferred == "" {
		return nil, fmt.Errorf("cannot infer source from path %q (expected a legislation/ or jurisprudence/ subdirectory)", relPath)
	}
	doc := textDocument(relPath, inferred, string(data))
	return []Document{doc}, nil
}

// inferSource reads the corpus source from the first path element.
func inferSource(relPath string) Source {
	first := relPath
	if idx := strings.IndexByte(relPath, '/'); idx >= 0 {
		first = relPath[:idx]
	}
	switch first {
	case string(SourceLegislation):
		return SourceLegislation
	case string(SourceJurisprudence):
		return SourceJurisprudence
	}
	return ""
}

func parseJSONCorpus(data []byte, inferred Source) ([]Document, error) {
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		var single Document
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("not a document or document array: %w", err)
		}
		docs = []Document{single}
	}

	for i := range docs {
		if docs[i].Source == "" {
			docs[i].Source = inferred
		}
		if docs[i].DocID == "" {
			return nil, fmt.Errorf("document %d has no doc_id", i)
		}
		switch docs[i].Source {
		case SourceLegislation, SourceJurisprudence:
		default:
			return nil, fmt.Errorf("document %q has unknown source %q", docs[i].DocID, docs[i].Source)
		}
	}
	return docs, nil
}

// textDocument builds a document from a markdown or plain text file. The
// first non-empty line is the title, the following paragraph the summary.
func textDocument(relPath string, source Source, text string) Document {
	docID := strings.TrimSuffix(relPath, filepath.Ext(relPath))

	var title, summary string
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		title = strings.TrimSpace(strings.TrimLeft(line, "# "))
		summary = firstParagraph(lines[i+1:])
		break
	}
	if title == "" {
		title = docID
	}
	return Document{
		DocID:   docID,
		Source:  source,
		Title:   title,
		Summary: summary,
		Text:    text,
	}
}

func firstParagraph(lines []string) string {
	var para []string
	started := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if started {
				break
			}
			continue
		}
		started = true
		para = append(para, line)
	}
	summary := strings.Join(para, " ")
	if len(summary) > summaryMaxLen {
		summary = summary[:summaryMaxLen]
	}
	return summary
}

// corpusIndex is what the watcher needs from the knowledge base.
type corpusIndex interface {
	Ingester
	deleteDocs(ctx context.Context, ids []string) error
}

// corpusWatcher re-indexes corpus files as they change on disk.
type corpusWatcher struct {
	watcher *fsnotify.Watcher
	index   corpusIndex
	dir     string

	mu       sync.Mutex
	fileDocs map[string][]string

	stopOnce sync.Once
	done     chan struct{}
}

func watchCorpus(index corpusIndex, dir string, fileDocs map[string][]string) (*corpusWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, "kb", "watch",
			"creating watcher failed", err)
	}

	cw := &corpusWatcher{
		watcher:  watcher,
		index:    index,
		dir:      dir,
		fileDocs: fileDocs,
		done:     make(chan struct{}),
	}

	err = filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return nil, fault.New(fault.PermanentBackend, "kb", "watch",
			"watching corpus directory failed", err)
	}

	go cw.run()
	slog.Info("Watching legal corpus", "dir", dir)
	return cw, nil
}

func (cw *corpusWatcher) Stop() {
	cw.stopOnce.Do(func() {
		close(cw.done)
		cw.watcher.Close()
	})
}

func (cw *corpusWatcher) run() {
	pending := make(map[string]fsnotify.Event)
	var pendingMu sync.Mutex
	var debounce *time.Timer

	process := func() {
		pendingMu.Lock()
		events := pending
		pending = make(map[string]fsnotify.Event)
		pendingMu.Unlock()

		select {
		case <-cw.done:
			return
		default:
		}
		for _, event := range events {
			cw.handleEvent(event)
		}
	}

	for {
		select {
		case <-cw.done:
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			pendingMu.Lock()
			pending[event.Name] = event
			pendingMu.Unlock()

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, process)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Corpus watcher error", "dir", cw.dir, "error", err)
		}
	}
}

func (cw *corpusWatcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := cw.watcher.Add(path); err != nil {
				slog.Warn("Failed to watch new corpus directory", "path", path, "error", err)
			}
			return
		}
		cw.reindexFile(path)

	case event.Op&fsnotify.Write == fsnotify.Write:
		cw.reindexFile(path)

	case event.Op&fsnotify.Remove == fsnotify.Remove,
		event.Op&fsnotify.Rename == fsnotify.Rename:
		cw.dropFile(path)
	}
}

func (cw *corpusWatcher) reindexFile(path string) {
	if !corpusFileEligible(path) {
		return
	}

	docs, err := loadCorpusFile(cw.dir, path)
	if err != nil {
		slog.Warn("Skipping changed corpus file", "path", path, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	newIDs := make(map[string]bool, len(docs))
	ids := make([]string, len(docs))
	for i, doc := range docs {
		newIDs[doc.DocID] = true
		ids[i] = doc.DocID
	}

	// Documents that vanished from the file are removed from the index.
	cw.mu.Lock()
	var stale []string
	for _, id := range cw.fileDocs[path] {
		if !newIDs[id] {
			stale = append(stale, id)
		}
	}
	cw.mu.Unlock()

	if len(stale) > 0 {
		if err := cw.index.deleteDocs(ctx, stale); err != nil {
			slog.Warn("Failed to remove stale corpus documents", "path", path, "error", err)
		}
	}
	if err := cw.index.Ingest(ctx, docs); err != nil {
		slog.Warn("Failed to re-index corpus file", "path", path, "error", err)
		return
	}

	cw.mu.Lock()
	cw.fileDocs[path] = ids
	cw.mu.Unlock()
	slog.Info("Re-indexed corpus file", "path", path, "documents", len(docs))
}

func (cw *corpusWatcher) dropFile(path string) {
	cw.mu.Lock()
	ids := cw.fileDocs[path]
	delete(cw.fileDocs, path)
	cw.mu.Unlock()

	if len(ids) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()
	if err := cw.index.deleteDocs(ctx, ids); err != nil {
		slog.Warn("Failed to remove deleted corpus documents", "path", path, "error", err)
		return
	}
	slog.Info("Removed corpus file from index", "path", path, "documents", len(ids))
}
