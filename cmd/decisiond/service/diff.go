package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/atelierhq/decisions/cmd/decisiond/models"
	"github.com/atelierhq/decisions/common/apperrors"
	"github.com/atelierhq/decisions/common/cache"
	"github.com/atelierhq/decisions/common/logger"
	"github.com/atelierhq/decisions/common/telemetry"
)

// DiffService computes field-level diffs between two immutable snapshots.
// The computation is a pure function of its inputs, so results are memoized
// by (from_version_id, to_version_id).
type DiffService struct {
	cache   cache.Cache
	ttl     time.Duration
	metrics *telemetry.Metrics
	log     *logger.Logger
}

// NewDiffService creates a new diff service. cache may be nil to disable
// memoization.
func NewDiffService(memo cache.Cache, ttl time.Duration, metrics *telemetry.Metrics, log *logger.Logger) *DiffService {
	return &DiffService{
		cache:   memo,
		ttl:     ttl,
		metrics: metrics,
		log:     log,
	}
}

// Diff compares two versions of the same decision. Comparing a version
// against itself is rejected rather than returning an empty diff, to surface
// caller bugs early.
func (s *DiffService) Diff(ctx context.Context, from, to *models.DecisionVersion) (*models.VersionDiff, error) {
	if from.ID == to.ID {
		return nil, apperrors.InvalidArgument("cannot diff version %s against itself", from.ID)
	}
	if from.DecisionID != to.DecisionID {
		return nil, apperrors.InvalidArgument("versions belong to different decisions")
	}

	key := fmt.Sprintf("diff:%s:%s", from.ID, to.ID)
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			diff := &models.VersionDiff{}
			if err := json.Unmarshal(data, diff); err == nil {
				s.metrics.DiffCacheHits.Inc()
				return diff, nil
			}
		}
	}

	start := time.Now()
	diff := computeDiff(from, to)
	s.metrics.DiffDuration.Observe(time.Since(start).Seconds())
	s.metrics.DiffsComputed.Inc()

	if s.cache != nil {
		if data, err := json.Marshal(diff); err == nil {
			_ = s.cache.Set(ctx, key, data, s.ttl)
		}
	}

	return diff, nil
}

// MergePatch renders the difference between two snapshots as an RFC 7386
// JSON merge patch, for the export surface.
func (s *DiffService) MergePatch(from, to *models.DecisionVersion) ([]byte, error) {
	if from.ID == to.ID {
		return nil, apperrors.InvalidArgument("cannot diff version %s against itself", from.ID)
	}

	fromJSON, err := json.Marshal(from.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal from snapshot: %w", err)
	}
	toJSON, err := json.Marshal(to.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal to snapshot: %w", err)
	}

	patch, err := jsonpatch.CreateMergePatch(fromJSON, toJSON)
	if err != nil {
		return nil, fmt.Errorf("create merge patch: %w", err)
	}

	return patch, nil
}

// computeDiff walks both snapshots as trees of named fields: scalar fields
// first in a fixed declared order, then collections keyed by stable entity
// id in order_index traversal order. Deterministic for a given input pair.
func computeDiff(from, to *models.DecisionVersion) *models.VersionDiff {
	diff := &models.VersionDiff{
		FromVersionID:   from.ID,
		ToVersionID:     to.ID,
		Changes:         []models.FieldChange{},
		MetadataChanges: []models.FieldChange{},
		OptionChanges:   []models.FieldChange{},
		MediaChanges:    []models.FieldChange{},
		CommentChanges:  []models.FieldChange{},
	}

	a, b := &from.Snapshot, &to.Snapshot

	// Scalar top-level fields, declared order.
	scalars := []struct {
		field    string
		oldValue any
		newValue any
	}{
		{"title", a.Title, b.Title},
		{"description", a.Description, b.Description},
		{"category", a.Category, b.Category},
		{"due_date", a.DueDate, b.DueDate},
		{"tags", a.Tags, b.Tags},
	}
	for _, sc := range scalars {
		if !valueEqual(sc.oldValue, sc.newValue) {
			diff.Changes = append(diff.Changes, models.FieldChange{
				Field:      sc.field,
				Path:       sc.field,
				OldValue:   sc.oldValue,
				NewValue:   sc.newValue,
				ChangeType: models.ChangeModified,
			})
		}
	}

	diff.MetadataChanges = diffMap("metadata", a.Metadata, b.Metadata)
	diffObjects(diff, a.Objects, b.Objects)
	diff.MediaChanges = diffMedia(a.Media, b.Media)
	diff.CommentChanges = diffComments(a.Comments, b.Comments)

	return diff
}

// valueEqual compares two values by deep JSON equality, not reference
func valueEqual(a, b any) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return jsonpatch.Equal(aj, bj)
}

// diffMap diffs a free-form map key by key, keys in sorted order so the
// output is deterministic
func diffMap(prefix string, from, to map[string]any) []models.FieldChange {
	changes := []models.FieldChange{}

	keys := make(map[string]bool, len(from)+len(to))
	for k := range from {
		keys[k] = true
	}
	for k := range to {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		oldValue, inFrom := from[k]
		newValue, inTo := to[k]
		path := prefix + "." + k

		switch {
		case inFrom && !inTo:
			changes = append(changes, models.FieldChange{
				Field: k, Path: path, OldValue: oldValue, ChangeType: models.ChangeRemoved,
			})
		case !inFrom && inTo:
			changes = append(changes, models.FieldChange{
				Field: k, Path: path, NewValue: newValue, ChangeType: models.ChangeAdded,
			})
		case !valueEqual(oldValue, newValue):
			changes = append(changes, models.FieldChange{
				Field: k, Path: path, OldValue: oldValue, NewValue: newValue, ChangeType: models.ChangeModified,
			})
		}
	}

	return changes
}

// diffObjects compares decision objects keyed by id, not array position, so
// reordering alone never produces spurious added/removed pairs. Removed
// objects surface in from-side traversal order, added ones in to-side order.
func diffObjects(diff *models.VersionDiff, from, to []models.ObjectSnapshot) {
	fromByID := make(map[string]models.ObjectSnapshot, len(from))
	for _, o := range from {
		fromByID[o.ID.String()] = o
	}
	toByID := make(map[string]models.ObjectSnapshot, len(to))
	for _, o := range to {
		toByID[o.ID.String()] = o
	}

	for _, o := range from {
		path := "decision_objects." + o.ID.String()
		other, ok := toByID[o.ID.String()]
		if !ok {
			diff.Changes = append(diff.Changes, models.FieldChange{
				Field: "decision_objects", Path: path, OldValue: o, ChangeType: models.ChangeRemoved,
			})
			continue
		}

		subfields := []struct {
			field    string
			oldValue any
			newValue any
		}{
			{"name", o.Name, other.Name},
			{"status", o.Status, other.Status},
			{"order_index", o.OrderIndex, other.OrderIndex},
		}
		for _, sf := range subfields {
			if !valueEqual(sf.oldValue, sf.newValue) {
				diff.Changes = append(diff.Changes, models.FieldChange{
					Field:      sf.field,
					Path:       path + "." + sf.field,
					OldValue:   sf.oldValue,
					NewValue:   sf.newValue,
					ChangeType: models.ChangeModified,
				})
			}
		}

		diff.OptionChanges = append(diff.OptionChanges, diffOptions(path, o.Options, other.Options)...)
	}

	for _, o := range to {
		if _, ok := fromByID[o.ID.String()]; !ok {
			diff.Changes = append(diff.Changes, models.FieldChange{
				Field:      "decision_objects",
				Path:       "decision_objects." + o.ID.String(),
				NewValue:   o,
				ChangeType: models.ChangeAdded,
			})
		}
	}
}

func diffOptions(objectPath string, from, to []models.OptionSnapshot) []models.FieldChange {
	changes := []models.FieldChange{}

	fromByID := make(map[string]models.OptionSnapshot, len(from))
	for _, o := range from {
		fromByID[o.ID.String()] = o
	}
	toByID := make(map[string]models.OptionSnapshot, len(to))
	for _, o := range to {
		toByID[o.ID.String()] = o
	}

	for _, o := range from {
		path := objectPath + ".options." + o.ID.String()
		other, ok := toByID[o.ID.String()]
		if !ok {
			changes = append(changes, models.FieldChange{
				Field: "options", Path: path, OldValue: o, ChangeType: models.ChangeRemoved,
			})
			continue
		}

		subfields := []struct {
			field    string
			oldValue any
			newValue any
		}{
			{"label", o.Label, other.Label},
			{"cost", o.Cost, other.Cost},
			{"dependencies", o.Dependencies, other.Dependencies},
			{"order_index", o.OrderIndex, other.OrderIndex},
		}
		for _, sf := range subfields {
			if !valueEqual(sf.oldValue, sf.newValue) {
				changes = append(changes, models.FieldChange{
					Field:      sf.field,
					Path:       path + "." + sf.field,
					OldValue:   sf.oldValue,
					NewValue:   sf.newValue,
					ChangeType: models.ChangeModified,
				})
			}
		}
	}

	for _, o := range to {
		if _, ok := fromByID[o.ID.String()]; !ok {
			changes = append(changes, models.FieldChange{
				Field:      "options",
				Path:       objectPath + ".options." + o.ID.String(),
				NewValue:   o,
				ChangeType: models.ChangeAdded,
			})
		}
	}

	return changes
}

func diffMedia(from, to []models.MediaSnapshot) []models.FieldChange {
	changes := []models.FieldChange{}

	fromByID := make(map[string]models.MediaSnapshot, len(from))
	for _, m := range from {
		fromByID[m.ID.String()] = m
	}
	toByID := make(map[string]models.MediaSnapshot, len(to))
	for _, m := range to {
		toByID[m.ID.String()] = m
	}

	for _, m := range from {
		path := "media." + m.ID.String()
		other, ok := toByID[m.ID.String()]
		if !ok {
			changes = append(changes, models.FieldChange{
				Field: "media", Path: path, OldValue: m, ChangeType: models.ChangeRemoved,
			})
			continue
		}
		if !valueEqual(m, other) {
			changes = append(changes, models.FieldChange{
				Field: "media", Path: path, OldValue: m, NewValue: other, ChangeType: models.ChangeModified,
			})
		}
	}

	for _, m := range to {
		if _, ok := fromByID[m.ID.String()]; !ok {
			changes = append(changes, models.FieldChange{
				Field: "media", Path: "media." + m.ID.String(), NewValue: m, ChangeType: models.ChangeAdded,
			})
		}
	}

	return changes
}

func diffComments(from, to []models.CommentSnapshot) []models.FieldChange {
	changes := []models.FieldChange{}

	fromByID := make(map[string]models.CommentSnapshot, len(from))
	for _, c := range from {
		fromByID[c.ID.String()] = c
	}
	toByID := make(map[string]models.CommentSnapshot, len(to))
	for _, c := range to {
		toByID[c.ID.String()] = c
	}

	for _, c := range from {
		path := "comments." + c.ID.String()
		other, ok := toByID[c.ID.String()]
		if !ok {
			changes = append(changes, models.FieldChange{
				Field: "comments", Path: path, OldValue: c, ChangeType: models.ChangeRemoved,
			})
			continue
		}
		if !valueEqual(c, other) {
			changes = append(changes, models.FieldChange{
				Field: "comments", Path: path, OldValue: c, NewValue: other, ChangeType: models.ChangeModified,
			})
		}
	}

	for _, c := range to {
		if _, ok := fromByID[c.ID.String()]; !ok {
			changes = append(changes, models.FieldChange{
				Field: "comments", Path: "comments." + c.ID.String(), NewValue: c, ChangeType: models.ChangeAdded,
			})
		}
	}

	return changes
}
