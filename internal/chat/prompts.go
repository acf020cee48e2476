package chat

import (
	"fmt"
	"strings"

	"github.com/docbase/docbase/internal/store"
	"github.com/docbase/docbase/internal/vector"
)

// systemPrompt builds the generation system prompt: bot persona, the
// project's custom instructions, and the stuffed document context.
func systemPrompt(project *store.Project, context string) string {
	botName := project.BotName
	if botName == "" {
		botName = "Assistant"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, a helpful assistant answering questions using the provided documentation.\n", botName)
	if project.Prompt != "" {
		sb.WriteString(project.Prompt)
		sb.WriteString("\n")
	}
	sb.WriteString("\nAnswer using only the context below. If the context does not contain the answer, say you don't know rather than guessing.\n")
	sb.WriteString("\nContext:\n")
	sb.WriteString(context)
	return sb.String()
}

// stuffContext formats retrieved chunks for the prompt, one block per
// chunk with its source.
func stuffContext(hits []vector.Result) string {
	if len(hits) == 0 {
		return "(no matching documentation found)"
	}
	blocks := make([]string, len(hits))
	for i, hit := range hits {
		blocks[i] = fmt.Sprintf("Content: %s\nSource: %s", hit.Content, hit.Metadata.Source)
	}
	return strings.Join(blocks, "\n\n")
}

// condensePrompt asks the model to rewrite a follow-up into a standalone
// question using the conversation so far.
func condensePrompt(history []Turn, question string) string {
	var sb strings.Builder
	sb.WriteString("Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question.\n\nChat History:\n")
	for _, t := range history {
		fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Content)
	}
	fmt.Fprintf(&sb, "Follow Up Input: %s\nStandalone question:", question)
	return sb.String()
}

// summaryPrompt asks for a strict-JSON conversation summary with
// sentiment, few-shot to pin the format.
func summaryPrompt(conv *store.Conversation) string {
	var sb strings.Builder
	sb.WriteString(`Summarize the conversation below and classify its overall sentiment.
Respond with JSON only, no prose, in exactly this shape:
{"summary": "<one or two sentences>", "sentiment": "POSITIVE" | "NEUTRAL" | "NEGATIVE"}

Example:
Conversation:
user: How do I reset my password?
assistant: Go to Settings > Security and click "Reset password".
user: Worked, thanks!
Response:
{"summary": "The user asked how to reset their password and confirmed the provided steps worked.", "sentiment": "POSITIVE"}

Conversation:
`)
	for _, m := range conv.Messages {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Text)
	}
	sb.WriteString("Response:")
	return sb.String()
}
