// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

/*
Package anomaly scores per-subject activity with a pre-fitted isolation
forest and raises ml_anomaly alerts.

# Feature Contract

ExtractFeatures turns the events of a window into one FeatureVector per
subject: a count per action plus unique_resources and total_actions. Subjects
with no events are absent. Model.Reindex lines a vector up with the training
columns; columns the vector lacks are zero and columns the model never saw are
dropped, so scoring never fails on shape.

# Model Artifact

The artifact is JSON produced by the offline trainer:

	{
	  "feature_cols": ["login", "downloaded", "unique_resources", "total_actions"],
	  "scaler": {"mean": [...], "scale": [...]},
	  "forest": {
	    "max_samples": 256,
	    "offset": -0.5,
	    "trees": [{"nodes": [{"feature": 3, "threshold": 1.2, "left": 1, "right": 2, "n_samples": 256}, ...]}]
	  }
	}

A node with a negative left index is a leaf. The score is
2^(-E[h(x)]/c(max_samples)) + offset, so the model's own decision flags
scores above zero.

FileSource reads a local file, CachedSource reloads it when its modification
time changes, and S3Source fetches an object with a conditional GET on its
ETag. A missing artifact is models.ErrModelUnavailable; Scorer.Run logs it
and skips the run.
*/
package anomaly
