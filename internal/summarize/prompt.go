package summarize

import (
	"fmt"
	"strings"
)

// BuildSystemPrompt generates the system prompt for structured summaries.
func BuildSystemPrompt(keywords []string) string {
	prompt := "You are a clinical documentation assistant. You turn doctor-patient consultation transcripts into structured summaries.\n\n"
	prompt += "Respond with a single JSON object with these keys:\n"
	prompt += "- chief_complaint: string\n"
	prompt += "- symptoms: array of strings\n"
	prompt += "- diagnosis: string\n"
	prompt += "- medications: array of strings (name, dose and frequency when stated)\n"
	prompt += "- advice: string\n"
	prompt += "- follow_up: string\n"

	prompt += "\nRules:\n"
	prompt += "- Use only information stated in the transcript\n"
	prompt += "- Use an empty string or empty array when something is not mentioned\n"
	prompt += "- Keep the same language as the transcript\n"
	prompt += "- Output ONLY the JSON object, nothing else\n"

	if len(keywords) > 0 {
		prompt += fmt.Sprintf("\nContext keywords (use correct spelling for these terms): %s\n", strings.Join(keywords, ", "))
	}

	return prompt
}

// BuildUserPrompt wraps the transcript with an optional custom instruction.
func BuildUserPrompt(transcript, customPrompt string) string {
	if customPrompt != "" {
		return fmt.Sprintf("%s\n\nTranscript:\n%s", customPrompt, transcript)
	}
	return "Transcript:\n" + transcript
}
