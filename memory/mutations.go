package memory

import (
	"fmt"
	"time"

	"github.com/kairoslabs/delegate/internal/errs"
)

// combine folds a short title and an optional longer description into the
// single Description field Goal/Feature model (§3 only names "description").
func combine(title, description string) string {
	if description == "" {
		return title
	}
	return fmt.Sprintf("%s — %s", title, description)
}

// AddGoal creates a new top-level Goal and returns its assigned id.
func (s *Store) AddGoal(title, description string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	g := &Goal{
		ID:          s.nextGoalID(),
		Description: combine(title, description),
		Status:      GoalStatusOpen,
		Features:    []*Feature{},
		CreatedAt:   now,
	}
	s.doc.Goals = append(s.doc.Goals, g)
	s.doc.reindex()

	if err := s.appendProgressLocked(progressEntry("", "add_goal", g.ID, "", now)); err != nil {
		return "", err
	}
	if err := s.persistLocked(); err != nil {
		return "", err
	}
	return g.ID, nil
}

// AddFeature creates a new Feature under the given Goal and returns its
// assigned id.
func (s *Store) AddFeature(goalID, title, description string) (string, error) {
	const op = "memory.add_feature"
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.doc.goal(goalID)
	if !ok {
		return "", errs.Errorf(errs.KindInvariantViolation, op, "goal %q not found", goalID)
	}

	now := time.Now()
	f := &Feature{
		ID:          s.nextFeatureID(),
		GoalID:      goalID,
		Description: combine(title, description),
		Status:      FeatureStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	g.Features = append(g.Features, f)
	s.doc.reindex()

	if err := s.appendProgressLocked(progressEntry("", "add_feature", f.ID, f.ID, now)); err != nil {
		return "", err
	}
	if err := s.persistLocked(); err != nil {
		return "", err
	}
	return f.ID, nil
}

func validFeatureStatus(status string) (FeatureStatus, bool) {
	switch FeatureStatus(status) {
	case FeatureStatusPending, FeatureStatusInProgress, FeatureStatusCompleted, FeatureStatusFailed, FeatureStatusBlocked:
		return FeatureStatus(status), true
	default:
		return "", false
	}
}

// UpdateFeatureStatus transitions a Feature's status. Transitioning to
// completed is rejected with InvariantViolation (I3) if any attached test
// result is a failure; there is no override for this, for agents or for
// any other caller.
func (s *Store) UpdateFeatureStatus(featureID, status, notes string) error {
	const op = "memory.update_feature_status"
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, ok := s.doc.feature(featureID)
	if !ok {
		return errs.Errorf(errs.KindInvariantViolation, op, "feature %q not found", featureID)
	}
	newStatus, ok := validFeatureStatus(status)
	if !ok {
		return errs.Errorf(errs.KindToolArgError, op, "unrecognized feature status %q", status)
	}

	if newStatus == FeatureStatusCompleted && hasFailingResult(loc.feature.TestResults) {
		return errs.New(errs.KindInvariantViolation, op, "cannot complete feature with a failing test result attached")
	}

	now := time.Now()
	loc.feature.Status = newStatus
	loc.feature.UpdatedAt = now
	if notes != "" {
		loc.feature.Notes = append(loc.feature.Notes, notes)
	}

	if err := s.appendProgressLocked(progressEntry("", "update_feature_status", string(newStatus), featureID, now)); err != nil {
		return err
	}
	return s.persistLocked()
}

func hasFailingResult(results []TestResult) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}

// RemoveGoal removes a Goal and cascades to its Features. With confirm=false
// it performs a dry run, reporting how many Features would be removed
// without mutating anything.
func (s *Store) RemoveGoal(goalID string, confirm bool) (int, error) {
	const op = "memory.remove_goal"
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.doc.goal(goalID)
	if !ok {
		return 0, errs.Errorf(errs.KindInvariantViolation, op, "goal %q not found", goalID)
	}
	count := len(g.Features)
	if !confirm {
		return count, nil
	}

	filtered := s.doc.Goals[:0]
	for _, existing := range s.doc.Goals {
		if existing.ID != goalID {
			filtered = append(filtered, existing)
		}
	}
	s.doc.Goals = filtered
	s.doc.reindex()

	now := time.Now()
	if err := s.appendProgressLocked(progressEntry("", "remove_goal", fmt.Sprintf("removed %d feature(s)", count), "", now)); err != nil {
		return 0, err
	}
	if err := s.persistLocked(); err != nil {
		return 0, err
	}
	return count, nil
}

// MoveFeature re-parents a Feature to a different Goal: it is unlinked from
// its current Goal's slice and appended to the target Goal's, and the id
// index is then rebuilt. The cost grows with the source Goal's Feature count
// and the document's size; it is not constant-time.
func (s *Store) MoveFeature(featureID, targetGoalID string) error {
	const op = "memory.move_feature"
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, ok := s.doc.feature(featureID)
	if !ok {
		return errs.Errorf(errs.KindInvariantViolation, op, "feature %q not found", featureID)
	}
	target, ok := s.doc.goal(targetGoalID)
	if !ok {
		return errs.Errorf(errs.KindInvariantViolation, op, "goal %q not found", targetGoalID)
	}
	if loc.goal.ID == targetGoalID {
		return nil
	}

	source := loc.goal
	for i, f := range source.Features {
		if f.ID == featureID {
			source.Features = append(source.Features[:i], source.Features[i+1:]...)
			break
		}
	}
	loc.feature.GoalID = targetGoalID
	target.Features = append(target.Features, loc.feature)
	s.doc.reindex()

	now := time.Now()
	if err := s.appendProgressLocked(progressEntry("", "move_feature", targetGoalID, featureID, now)); err != nil {
		return err
	}
	return s.persistLocked()
}

// AddTestResult appends a test result to a Feature and derives its new
// status from the full set of latest-per-test results (I3): any failure
// forces failed or in_progress; all passing forces in_progress, never the
// agent-only completed transition.
func (s *Store) AddTestResult(featureID, testID string, passed bool, notes string) (string, error) {
	const op = "memory.add_test_result"
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, ok := s.doc.feature(featureID)
	if !ok {
		return "", errs.Errorf(errs.KindInvariantViolation, op, "feature %q not found", featureID)
	}

	now := time.Now()
	loc.feature.TestResults = append(loc.feature.TestResults, TestResult{
		TestID:    testID,
		Passed:    passed,
		Notes:     notes,
		Timestamp: now,
	})

	newStatus := deriveFeatureStatus(loc.feature.TestResults)
	loc.feature.Status = newStatus
	loc.feature.UpdatedAt = now

	outcome := "pass"
	if !passed {
		outcome = "fail"
	}
	if err := s.appendProgressLocked(progressEntry("", "add_test_result", outcome, featureID, now)); err != nil {
		return "", err
	}
	if err := s.persistLocked(); err != nil {
		return "", err
	}
	return string(newStatus), nil
}

// deriveFeatureStatus folds the latest recorded outcome per test id into a
// status: any failing latest result yields failed if every latest result
// fails, in_progress if results are mixed; all-passing yields in_progress.
func deriveFeatureStatus(results []TestResult) FeatureStatus {
	latest := map[string]bool{}
	order := make([]string, 0, len(results))
	for _, r := range results {
		if _, seen := latest[r.TestID]; !seen {
			order = append(order, r.TestID)
		}
		latest[r.TestID] = r.Passed
	}

	anyFail, anyPass := false, false
	for _, id := range order {
		if latest[id] {
			anyPass = true
		} else {
			anyFail = true
		}
	}
	switch {
	case anyFail && !anyPass:
		return FeatureStatusFailed
	default:
		return FeatureStatusInProgress
	}
}

// LogProgress appends a free-form progress entry not tied to any particular
// mutation, e.g. an Executor's narration of what it attempted.
func (s *Store) LogProgress(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if err := s.appendProgressLocked(progressEntry("", "log", message, "", now)); err != nil {
		return err
	}
	return s.persistLocked()
}
