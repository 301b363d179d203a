package generation

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Limits on a generation request.
const (
	MaxProblemStatementLength = 5000
	MaxChannels               = 7
)

// Channels content can be generated for.
var ValidChannels = []string{
	"linkedin",
	"instagram",
	"twitter",
	"email",
	"blog",
	"facebook",
	"tiktok",
}

// Funnel stages content can be generated for.
var ValidStages = []string{"awareness", "consideration", "conversion"}

// Persona describes the brand voice content is written in.
type Persona struct {
	Name            string   `json:"name"`
	Type            string   `json:"type,omitempty"`
	Mission         string   `json:"mission,omitempty"`
	Tone            []string `json:"tone,omitempty"`
	Audience        []string `json:"audience,omitempty"`
	Values          []string `json:"values,omitempty"`
	Vocabulary      []string `json:"vocabulary,omitempty"`
	VoiceSamples    []string `json:"voiceSamples,omitempty"`
	Differentiators []string `json:"differentiators,omitempty"`
	ContentPatterns []string `json:"contentPatterns,omitempty"`
}

// ContentPiece is one ready-to-publish item.
type ContentPiece struct {
	Headline   string   `json:"headline"`
	Body       string   `json:"body"`
	CTA        string   `json:"cta"`
	Format     string   `json:"format"`
	Hashtags   []string `json:"hashtags"`
	PostingTip string   `json:"posting_tip"`
}

// ChannelContent holds the pieces for one channel, by funnel stage.
type ChannelContent struct {
	Awareness     []ContentPiece `json:"awareness,omitempty"`
	Consideration []ContentPiece `json:"consideration,omitempty"`
	Conversion    []ContentPiece `json:"conversion,omitempty"`
}

// Plan maps a channel name to its content.
type Plan map[string]ChannelContent

// Request is the input of Service.Generate.
type Request struct {
	PersonaID        string   `json:"personaId"`
	Persona          *Persona `json:"persona"`
	ProblemStatement string   `json:"problemStatement"`
	Channels         []string `json:"channels"`
	Stage            string   `json:"stage"`
}

// Generation is a completed generation as returned to the client.
type Generation struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	PersonaID        string    `json:"persona_id"`
	ProblemStatement string    `json:"problem_statement"`
	Channels         []string  `json:"channels"`
	Stage            string    `json:"stage"`
	Content          Plan      `json:"generated_content"`
	CreatedAt        time.Time `json:"created_at"`
}

// Validate checks the request and normalizes the problem statement.
// It returns a *ValidationError describing the first problem found.
func (r *Request) Validate() error {
	if r.PersonaID == "" {
		return &ValidationError{Field: "personaId", Message: "personaId is required and must be a string"}
	}
	// uuid.Parse also accepts braced and urn forms; only the canonical
	// 36 character form is allowed here.
	if _, err := uuid.Parse(r.PersonaID); err != nil || len(r.PersonaID) != 36 {
		return &ValidationError{Field: "personaId", Message: "Invalid personaId format"}
	}

	r.ProblemStatement = strings.TrimSpace(r.ProblemStatement)
	if r.ProblemStatement == "" {
		return &ValidationError{Field: "problemStatement", Message: "problemStatement is required"}
	}
	if utf8.RuneCountInString(r.ProblemStatement) > MaxProblemStatementLength {
		return &ValidationError{
			Field:   "problemStatement",
			Message: fmt.Sprintf("problemStatement must be under %d characters", MaxProblemStatementLength),
		}
	}

	if len(r.Channels) == 0 {
		return &ValidationError{Field: "channels", Message: "channels must be a non-empty array"}
	}
	if len(r.Channels) > MaxChannels {
		return &ValidationError{Field: "channels", Message: fmt.Sprintf("Maximum %d channels allowed", MaxChannels)}
	}
	var invalid []string
	for _, ch := range r.Channels {
		if !slices.Contains(ValidChannels, ch) {
			invalid = append(invalid, ch)
		}
	}
	if len(invalid) > 0 {
		return &ValidationError{
			Field: "channels",
			Message: fmt.Sprintf("Invalid channels: %s. Valid: %s",
				strings.Join(invalid, ", "), strings.Join(ValidChannels, ", ")),
		}
	}

	if !slices.Contains(ValidStages, r.Stage) {
		return &ValidationError{
			Field:   "stage",
			Message: fmt.Sprintf("stage is required and must be one of: %s", strings.Join(ValidStages, ", ")),
		}
	}

	if r.Persona == nil || strings.TrimSpace(r.Persona.Name) == "" {
		return &ValidationError{
			Field:   "persona",
			Message: "Persona has not been analyzed yet. Please analyze it first.",
		}
	}

	return nil
}
