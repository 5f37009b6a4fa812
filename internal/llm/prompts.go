package llm

import "fmt"

// ImportancePrompt asks the model to rate how worth-remembering a piece of
// conversational content is. The scorer caches the result by content hash.
func ImportancePrompt(text string) string {
	return fmt.Sprintf(`Rate how important the following message is to remember about the user,
on a scale from 0.0 (small talk, filler) to 1.0 (durable personal fact or preference).

MESSAGE:
%s

Consider: personal facts (name, location, work), stated preferences, explicit
requests to remember, significant events. Greetings and acknowledgements rate 0.0.

Return ONLY the number, e.g. 0.7`, text)
}

// ReplyPrompt builds the generation prompt from an assembled context payload.
// The sections arrive pre-rendered; this package never inspects memory state.
func ReplyPrompt(personality, memories, recent, message string) string {
	return fmt.Sprintf(`You are an assistant with persistent memory of past conversations.

User profile:
%s

Relevant memories:
%s

Recent context:
%s

Instructions:
- Reference past conversations when relevant
- Adapt your communication style to the user's preferences
- If you remember something about the user, mention it naturally

User message:
%s`, personality, memories, recent, message)
}
