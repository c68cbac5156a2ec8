package memory

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/kairoslabs/delegate/internal/errs"
)

// appendProgressLocked records one ProgressEntry on the in-memory document
// and appends it as one JSON line to progress.log. Every mutation calls this
// exactly once (I5: every persisted mutation produces a progress log entry).
// Callers must hold s.mu and call persistLocked afterward.
func (s *Store) appendProgressLocked(entry ProgressEntry) error {
	s.doc.Progress = append(s.doc.Progress, entry)

	f, err := os.OpenFile(s.progressLogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.Wrap(errs.KindInvariantViolation, "memory.log_progress", err)
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return errs.Wrap(errs.KindInvariantViolation, "memory.log_progress", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return errs.Wrap(errs.KindInvariantViolation, "memory.log_progress", err)
	}
	return nil
}

func progressEntry(agent, action, outcome, featureID string, now time.Time) ProgressEntry {
	return ProgressEntry{
		Timestamp: now,
		Agent:     agent,
		Action:    action,
		Outcome:   outcome,
		FeatureID: featureID,
	}
}

// ReplayProgress rebuilds an in-memory timeline from progress.log alone,
// independent of memory.json's embedded progress array — useful for
// audit/debugging when the JSON document has since been rotated or trimmed.
func ReplayProgress(root, domain, sessionID string) ([]ProgressEntry, error) {
	const op = "memory.replay_progress"
	dir := layout(root, domain, sessionID)
	f, err := os.Open(filepath.Join(dir, "progress.log"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.KindInvariantViolation, op, err)
	}
	defer f.Close()

	var out []ProgressEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry ProgressEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, errs.Errorf(errs.KindInvariantViolation, op, "corrupt progress.log line: %w", err)
		}
		out = append(out, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(errs.KindInvariantViolation, op, err)
	}
	return out, nil
}
