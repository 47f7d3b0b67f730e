// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package anomaly

import (
	"sort"

	"github.com/tomtom215/insiderwatch/internal/models"
)

// ExtractFeatures aggregates events into one vector per subject, ordered by
// subject id. Events without an actor are skipped and subjects without
// events are absent.
func ExtractFeatures(events []models.AuditEvent) []models.FeatureVector {
	counts := make(map[string]map[string]float64)
	resources := make(map[string]map[string]struct{})

	for i := range events {
		e := &events[i]
		actor, ok := e.Actor()
		if !ok {
			continue
		}
		c, seen := counts[actor]
		if !seen {
			c = make(map[string]float64)
			counts[actor] = c
			resources[actor] = make(map[string]struct{})
		}
		c[e.Action]++
		if res, ok := e.Resource(); ok {
			resources[actor][res] = struct{}{}
		}
	}

	subjects := make([]string, 0, len(counts))
	for s := range counts {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)

	out := make([]models.FeatureVector, 0, len(subjects))
	for _, s := range subjects {
		c := counts[s]
		var total float64
		for _, n := range c {
			total += n
		}
		// Derived columns overwrite an action literally named like them.
		c[models.FeatureUniqueResources] = float64(len(resources[s]))
		c[models.FeatureTotalActions] = total
		out = append(out, models.FeatureVector{SubjectID: s, Counts: c})
	}
	return out
}
