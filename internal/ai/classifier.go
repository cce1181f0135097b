// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/logging"
	"github.com/keepstack/keepstack/internal/models"
)

// ClassifyInput carries everything the classifier may consider.
type ClassifyInput struct {
	URL         string
	Platform    models.SourcePlatform
	Title       string
	Caption     string
	Description string
	ContentText string
}

// Classification is the validated analysis result.
type Classification struct {
	Category          models.ContentCategory
	TopicMain         string
	Subcategories     models.StringList
	Locations         models.StringList
	Entities          models.StringList
	Intent            models.IntentType
	VisualDescription string
	VisualTags        models.StringList
}

// rawClassification mirrors the JSON shape the model is asked for; values
// are validated before they become a Classification.
type rawClassification struct {
	Category          string   `json:"category"`
	TopicMain         string   `json:"topic_main"`
	Subcategories     []string `json:"subcategories"`
	Locations         []string `json:"locations"`
	Entities          []string `json:"entities"`
	Intent            string   `json:"intent"`
	VisualDescription string   `json:"visual_description"`
	VisualTags        []string `json:"visual_tags"`
}

// Classifier assigns content to the closed category set.
type Classifier struct {
	client *Client
}

// NewClassifier wraps the provider client.
func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

func categoryList() string {
	names := make([]string, len(models.AllCategories))
	for i, c := range models.AllCategories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

const classifySystemPrompt = `You are a content classifier for a personal knowledge manager.
Analyze the saved content and respond with ONLY a JSON object, no prose, with keys:
  "category": exactly one of the allowed categories
  "topic_main": a short phrase naming the main topic
  "subcategories": up to 5 short tags
  "locations": place names mentioned, if any
  "entities": notable people, brands, or products mentioned
  "intent": one of learn, visit, buy, try, watch, misc
  "visual_description": one sentence describing likely visuals, or ""
  "visual_tags": up to 5 visual tags`

// Classify runs the analysis. A reply that is not valid JSON, or that uses
// an out-of-set category, triggers exactly one corrective retry; a second
// miss fails the call.
func (cl *Classifier) Classify(ctx context.Context, in ClassifyInput) (*Classification, error) {
	userPrompt := buildClassifyPrompt(in)

	raw, err := cl.classifyOnce(ctx, userPrompt)
	if err != nil {
		// Parse failures are worth one re-ask; transport and rate-limit
		// errors go straight back to the caller's stage retry.
		if !errs.Is(err, errs.Validation) {
			return nil, err
		}
		logging.Ctx(ctx).Warn().Err(err).
			Msg("Classifier reply was not valid json, retrying once")
		retryPrompt := userPrompt +
			"\n\nYour previous answer was not a valid JSON object. " +
			"Respond with ONLY the JSON object, no prose, no code fences."
		raw, err = cl.classifyOnce(ctx, retryPrompt)
		if err != nil {
			if errs.Is(err, errs.Validation) {
				return nil, errs.Wrap(errs.Internal,
					"classifier returned unparseable reply after retry", err)
			}
			return nil, err
		}
	}

	category, ok := models.ParseCategory(raw.Category)
	if !ok {
		logging.Ctx(ctx).Warn().Str("category", raw.Category).
			Msg("Classifier returned out-of-set category, retrying once")
		retryPrompt := userPrompt + fmt.Sprintf(
			"\n\nYour previous answer used the invalid category %q. "+
				"The category MUST be exactly one of: %s.", raw.Category, categoryList())
		raw, err = cl.classifyOnce(ctx, retryPrompt)
		if err != nil {
			return nil, err
		}
		category, ok = models.ParseCategory(raw.Category)
		if !ok {
			return nil, errs.Ef(errs.Validation,
				"classifier returned invalid category %q after retry", raw.Category)
		}
	}

	return &Classification{
		Category:          category,
		TopicMain:         strings.TrimSpace(raw.TopicMain),
		Subcategories:     models.StringList(raw.Subcategories).Dedup().Head(5),
		Locations:         models.StringList(raw.Locations).Dedup(),
		Entities:          models.StringList(raw.Entities).Dedup(),
		Intent:            models.ParseIntent(raw.Intent),
		VisualDescription: strings.TrimSpace(raw.VisualDescription),
		VisualTags:        models.StringList(raw.VisualTags).Dedup().Head(5),
	}, nil
}

func (cl *Classifier) classifyOnce(ctx context.Context, userPrompt string) (*rawClassification, error) {
	system := classifySystemPrompt + "\nAllowed categories: " + categoryList() + "."
	raw := &rawClassification{}
	if err := cl.client.CompleteJSON(ctx, system, userPrompt, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func buildClassifyPrompt(in ClassifyInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\nPlatform: %s\n", in.URL, in.Platform)
	if in.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", in.Title)
	}
	if in.Caption != "" {
		fmt.Fprintf(&b, "Caption: %s\n", in.Caption)
	}
	if in.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", in.Description)
	}
	if in.ContentText != "" {
		fmt.Fprintf(&b, "Content: %s\n", in.ContentText)
	}
	return b.String()
}
