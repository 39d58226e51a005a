package folio

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/genai"
	"k8s.io/klog/v2"
)

// DescribeThumb specifies which thumbnail to send for AI descriptions.
var DescribeThumb = "Column"

// ErrRemoteImage is returned when asked to describe an image we do not host.
var ErrRemoteImage = errors.New("remote image")

var describePrompt = "You are cataloging an illustrator's portfolio. " +
	"Look at this illustration and reply with JSON of the form " +
	`{"title": "...", "description": "..."}. ` +
	"The title should be two to five words, in title case, without quotes or a trailing period. " +
	"The description should be one or two sentences describing the subject, mood and medium, " +
	"written for a gallery caption and usable as alt text. Do not speculate about the artist."

// Suggestion is a generated title and description.
type Suggestion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Describe asks a generative model for a title and description of il.
func Describe(ctx context.Context, client *genai.Client, model string, il *Illustration) (*Suggestion, error) {
	if il.Remote() {
		return nil, fmt.Errorf("%s: %w", il.ImageURL, ErrRemoteImage)
	}

	path := il.InPath
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if t, ok := il.Resize[DescribeThumb]; ok && t.Path != "" {
		path = t.Path
		mimeType = "image/jpeg"
	}
	if mimeType == "" {
		mimeType = "image/png"
	}

	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("describing %s (%s, %d bytes) with %s", il.ImageURL, mimeType, len(bs), model)

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(bs, mimeType),
			genai.NewPartFromText(describePrompt),
		}, genai.RoleUser),
	}
	resp, err := client.Models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	return parseSuggestion(resp.Text())
}

func parseSuggestion(text string) (*Suggestion, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	s := &Suggestion{}
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(strings.TrimSpace(text), s); err != nil {
		return nil, fmt.Errorf("parse %q: %w", text, err)
	}
	s.Title = strings.TrimSuffix(strings.TrimSpace(s.Title), ".")
	s.Description = strings.TrimSpace(s.Description)
	if s.Title == "" && s.Description == "" {
		return nil, fmt.Errorf("empty suggestion: %q", text)
	}
	return s, nil
}

// Apply fills in the blank fields of il from s. It reports whether anything changed.
func (s *Suggestion) Apply(il *Illustration, overwrite bool) bool {
	changed := false
	if s.Title != "" && (overwrite || il.Title == "") {
		il.Title = s.Title
		changed = true
	}
	if s.Description != "" && (overwrite || il.Description == "") {
		il.Description = s.Description
		changed = true
	}
	return changed
}
