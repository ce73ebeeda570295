// Package prompts builds the chat requests sent to the language model for
// entity extraction, term refinement, and match rating.
//
// Every builder returns a fresh Prompt. Templates are constants and the
// few-shot examples are copied into each result, so concurrent callers never
// observe each other's parameters.
package prompts

import "fmt"

// Message roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is an immutable chat request. MaxTokens of zero means "use the
// backend default".
type Prompt struct {
	Kind      Kind      `json:"kind"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// Kind names the purpose of a prompt for logs and metrics.
type Kind string

const (
	KindExtract    Kind = "extract"
	KindSimplify   Kind = "simplify"
	KindGeneralize Kind = "generalize"
	KindRating     Kind = "rating"
)

// RatingMaxTokens bounds the rating reply to a single digit.
const RatingMaxTokens = 2

// System returns the concatenated system messages.
func (p Prompt) System() string {
	var out string
	for _, m := range p.Messages {
		if m.Role != RoleSystem {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += m.Content
	}
	return out
}

// Conversation returns the non-system messages in order.
func (p Prompt) Conversation() []Message {
	out := make([]Message, 0, len(p.Messages))
	for _, m := range p.Messages {
		if m.Role != RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

// Last returns the final message, which always carries the dynamic field.
func (p Prompt) Last() Message {
	if len(p.Messages) == 0 {
		return Message{}
	}
	return p.Messages[len(p.Messages)-1]
}

// ─────────────────────────────────────────────────────────────────────────────
// templates
// ─────────────────────────────────────────────────────────────────────────────

const extractInstruction = `You identify clinical entities in short clinical notes written by clinicians.
Return a JSON array of objects, one per entity, each with a single "text" field holding the entity exactly as written.
Include diagnoses, findings, symptoms, procedures and body structures. Expand nothing and invent nothing.
If the note has no clinical entities return [].`

const simplifyInstruction = `Rewrite the clinician's term as the plainest standard clinical phrase with the same meaning.
Expand abbreviations and remove qualifiers that are not part of the concept.
Reply with the rewritten term only.`

const generalizeInstruction = `Rewrite the clinician's term as the closest more general clinical concept that a terminology would contain.
Reply with the general term only.`

const ratingInstruction = `Rate how accurately the SNOMED term captures the clinician's term, using the context to disambiguate.
5 means the same concept, 4 a close synonym, 3 a related but broader or narrower concept, 2 loosely related, 1 unrelated.
Reply with a single digit from 1 to 5.`

// RatingContentFormat is the shape of the final rating message.
const RatingContentFormat = "Clinician's term: %s\nSNOMED term: %s\nContext: %s"

var extractShots = []Message{
	{Role: RoleUser, Content: "Pt c/o SOB and chest pain radiating to L arm. Hx of T2DM."},
	{Role: RoleAssistant, Content: `[{"text":"SOB"},{"text":"chest pain radiating to L arm"},{"text":"T2DM"}]`},
	{Role: RoleUser, Content: "Reviewed today, plan to follow up in two weeks."},
	{Role: RoleAssistant, Content: `[]`},
}

var simplifyShots = []Message{
	{Role: RoleUser, Content: "severe crushing central chest pain"},
	{Role: RoleAssistant, Content: "chest pain"},
	{Role: RoleUser, Content: "T2DM"},
	{Role: RoleAssistant, Content: "type 2 diabetes mellitus"},
}

var generalizeShots = []Message{
	{Role: RoleUser, Content: "fracture of left distal radius"},
	{Role: RoleAssistant, Content: "fracture of radius"},
	{Role: RoleUser, Content: "tummy ache"},
	{Role: RoleAssistant, Content: "abdominal pain"},
}

var ratingShots = []Message{
	{Role: RoleUser, Content: fmt.Sprintf(RatingContentFormat, "heart attack", "Myocardial infarction", "Admitted with heart attack last year.")},
	{Role: RoleAssistant, Content: "5"},
	{Role: RoleUser, Content: fmt.Sprintf(RatingContentFormat, "knee pain", "Pain", "Complains of knee pain after running.")},
	{Role: RoleAssistant, Content: "3"},
}

// ─────────────────────────────────────────────────────────────────────────────
// builders
// ─────────────────────────────────────────────────────────────────────────────

func build(kind Kind, instruction string, shots []Message, final string, maxTokens int) Prompt {
	msgs := make([]Message, 0, len(shots)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: instruction})
	msgs = append(msgs, shots...)
	msgs = append(msgs, Message{Role: RoleUser, Content: final})
	return Prompt{Kind: kind, Messages: msgs, MaxTokens: maxTokens}
}

// Extract asks for the clinical entities in one line of text.
func Extract(text string) Prompt {
	return build(KindExtract, extractInstruction, extractShots, text, 0)
}

// Simplify asks for a plainer phrasing of term.
func Simplify(term string) Prompt {
	return build(KindSimplify, simplifyInstruction, simplifyShots, term, 0)
}

// Generalize asks for a broader concept than term.
func Generalize(term string) Prompt {
	return build(KindGeneralize, generalizeInstruction, generalizeShots, term, 0)
}

// Rating asks for a 1..5 score of label against term in context.
func Rating(term, label, context string) Prompt {
	return build(KindRating, ratingInstruction, ratingShots,
		fmt.Sprintf(RatingContentFormat, term, label, context), RatingMaxTokens)
}

// Flatten renders p as a single text prompt for completion-style backends.
func Flatten(p Prompt) string {
	var out string
	if sys := p.System(); sys != "" {
		out = sys + "\n\n"
	}
	for _, m := range p.Conversation() {
		switch m.Role {
		case RoleAssistant:
			out += "Assistant: " + m.Content + "\n\n"
		default:
			out += "User: " + m.Content + "\n\n"
		}
	}
	return out + "Assistant:"
}
