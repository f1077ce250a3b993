package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/suPer8Hu/video-factory/internal/content"
)

// spoken narration runs at roughly 150 words per minute
const wordsPerMinute = 150

// ScriptWriter produces and adapts narration scripts with an LLM provider.
type ScriptWriter struct {
	provider Provider
}

func NewScriptWriter(p Provider) *ScriptWriter {
	return &ScriptWriter{provider: p}
}

type scriptReply struct {
	Script      string `json:"script"`
	Description string `json:"description"`
}

func (w *ScriptWriter) WriteScript(ctx context.Context, idea *content.Idea) (content.ScriptDraft, error) {
	duration := idea.DurationSeconds
	if duration <= 0 {
		duration = 60
	}
	targetWords := duration * wordsPerMinute / 60

	var b strings.Builder
	fmt.Fprintf(&b, "Write a narration script for a YouTube %s video.\n", videoKind(idea.VideoType))
	fmt.Fprintf(&b, "Title: %s\n", idea.Title)
	if len(idea.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(idea.Keywords, ", "))
	}
	if idea.Description != "" {
		fmt.Fprintf(&b, "Notes: %s\n", idea.Description)
	}
	fmt.Fprintf(&b, "Length: %d seconds, about %d words.\n", duration, targetWords)
	b.WriteString("Open with a strong hook in the first sentence, keep sentences short and spoken, ")
	b.WriteString("and end with a call to action.\n")
	b.WriteString(`Reply with a JSON object: {"script": "<narration only>", "description": "<YouTube description, max 3 short paragraphs, with hashtags>"}`)

	reply, err := w.provider.Chat(ctx, ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "You are a scriptwriter for short educational videos."},
			{Role: RoleUser, Content: b.String()},
		},
		JSON:        true,
		Temperature: 0.8,
	})
	if err != nil {
		return content.ScriptDraft{}, fmt.Errorf("write script: %w", err)
	}

	var parsed scriptReply
	if err := json.Unmarshal([]byte(extractJSON(reply)), &parsed); err != nil || strings.TrimSpace(parsed.Script) == "" {
		// some models ignore the format request; take the text as the script
		parsed = scriptReply{Script: reply}
	}
	draft := content.ScriptDraft{
		Script:      strings.TrimSpace(parsed.Script),
		Description: strings.TrimSpace(parsed.Description),
	}
	if draft.Script == "" {
		return content.ScriptDraft{}, errors.New("write script: model returned an empty script")
	}
	return draft, nil
}

// AdaptScript adds delivery cues for the narration voice and splits the
// result into phrases that are synthesized one by one.
func (w *ScriptWriter) AdaptScript(ctx context.Context, script string) (string, []string, error) {
	prompt := "Adapt this narration script for expressive text-to-speech. " +
		"Add at most one bracketed delivery cue every two or three sentences, " +
		"for example [whispers], [excited], [sighs] or [curious]. " +
		"Do not change the wording otherwise. Reply with the adapted script only.\n\n" + script

	reply, err := w.provider.Chat(ctx, ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "You prepare scripts for voice synthesis."},
			{Role: RoleUser, Content: prompt},
		},
		Temperature: 0.5,
	})
	if err != nil {
		return "", nil, fmt.Errorf("adapt script: %w", err)
	}
	adapted := strings.TrimSpace(reply)
	if adapted == "" {
		adapted = script
	}
	phrases := SplitPhrases(adapted)
	if len(phrases) == 0 {
		return "", nil, errors.New("adapt script: no phrases in adapted script")
	}
	return adapted, phrases, nil
}

// SplitPhrases splits text after ., ! or ? when the next word starts with an
// upper-case letter or a bracketed cue. Text without such breaks is split by line.
func SplitPhrases(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = cleanPhrase(l)
	}
	text = strings.TrimSpace(strings.Join(lines, "\n"))
	runes := []rune(text)

	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !strings.ContainsRune(".!?", runes[i]) {
			continue
		}
		j := i + 1
		if j >= len(runes) || !unicode.IsSpace(runes[j]) {
			continue
		}
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j < len(runes) && (unicode.IsUpper(runes[j]) || runes[j] == '[') {
			if p := cleanPhrase(string(runes[start : i+1])); p != "" {
				out = append(out, p)
			}
			start = j
			i = j - 1
		}
	}
	if p := cleanPhrase(string(runes[start:])); p != "" {
		out = append(out, p)
	}

	if len(out) <= 1 && strings.Contains(text, "\n") {
		out = out[:0]
		for _, line := range strings.Split(text, "\n") {
			if p := cleanPhrase(line); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func cleanPhrase(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func videoKind(t string) string {
	if t == content.VideoTypeShort {
		return "Shorts (vertical, under 60 seconds)"
	}
	return "long-form"
}
