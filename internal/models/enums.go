// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package models

// SourcePlatform identifies where a saved URL originated.
type SourcePlatform string

const (
	PlatformInstagram SourcePlatform = "instagram"
	PlatformYouTube   SourcePlatform = "youtube"
	PlatformUnknown   SourcePlatform = "unknown"
)

// ItemStatus is the processing lifecycle state of a SharedContent.
//
// Transitions: PENDING -> PROCESSING -> READY | FAILED. READY and FAILED are
// terminal from the pipeline's perspective; a READY item is never reprocessed
// and FAILED items are only re-enqueued by an operator.
type ItemStatus string

const (
	StatusPending    ItemStatus = "PENDING"
	StatusProcessing ItemStatus = "PROCESSING"
	StatusReady      ItemStatus = "READY"
	StatusFailed     ItemStatus = "FAILED"
)

// ContentCategory is the authoritative classification for content.
//
// Assigned exactly once by the analysis stage, on the transition to READY,
// and immutable thereafter. Clusters group items WITHIN a category, never
// across categories.
type ContentCategory string

const (
	CategoryTravel        ContentCategory = "Travel"
	CategoryFood          ContentCategory = "Food"
	CategoryLearning      ContentCategory = "Learning"
	CategoryCareer        ContentCategory = "Career"
	CategoryFitness       ContentCategory = "Fitness"
	CategoryEntertainment ContentCategory = "Entertainment"
	CategoryShopping      ContentCategory = "Shopping"
	CategoryTech          ContentCategory = "Tech"
	CategoryLifestyle     ContentCategory = "Lifestyle"
	CategoryMisc          ContentCategory = "Misc"
)

// AllCategories lists every valid content category in declaration order.
var AllCategories = []ContentCategory{
	CategoryTravel,
	CategoryFood,
	CategoryLearning,
	CategoryCareer,
	CategoryFitness,
	CategoryEntertainment,
	CategoryShopping,
	CategoryTech,
	CategoryLifestyle,
	CategoryMisc,
}

// ParseCategory validates a category string against the closed set.
func ParseCategory(s string) (ContentCategory, bool) {
	for _, c := range AllCategories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// ParseStatus validates a status string against the closed set.
func ParseStatus(s string) (ItemStatus, bool) {
	switch ItemStatus(s) {
	case StatusPending, StatusProcessing, StatusReady, StatusFailed:
		return ItemStatus(s), true
	}
	return "", false
}

// IntentType is the likely user intent behind a piece of content.
type IntentType string

const (
	IntentLearn IntentType = "learn"
	IntentVisit IntentType = "visit"
	IntentBuy   IntentType = "buy"
	IntentTry   IntentType = "try"
	IntentWatch IntentType = "watch"
	IntentMisc  IntentType = "misc"
)

// ParseIntent validates an intent string; unknown values collapse to misc.
func ParseIntent(s string) IntentType {
	switch IntentType(s) {
	case IntentLearn, IntentVisit, IntentBuy, IntentTry, IntentWatch, IntentMisc:
		return IntentType(s)
	}
	return IntentMisc
}

// JobType identifies the kind of work a ProcessingJob records.
type JobType string

const (
	JobTypeIngestContent JobType = "ingest_content"
	JobTypeClusterUser   JobType = "cluster_user"
)

// JobStatus is the audit status of a ProcessingJob row. The queue, not this
// column, is the scheduling authority.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)
