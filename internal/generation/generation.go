// Package generation composes replies with a language model when no rule
// produced a definitive text.
package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/triage/internal/anthropic"
	"github.com/MikeSquared-Agency/triage/internal/transcript"
)

// Completer is the model call the composer needs.
type Completer interface {
	Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int) (string, error)
}

// Request is everything known about a deferred turn.
type Request struct {
	SessionID     string
	Message       string
	History       []transcript.Turn
	Label         string
	NeedsGreeting bool
	IsFollowUp    bool
}

const defaultMaxTokens = 400

// Composer builds prompts from knowledge facts and the transcript.
type Composer struct {
	llm       Completer
	maxTokens int
	logger    *slog.Logger
}

func New(llm Completer, logger *slog.Logger) *Composer {
	return &Composer{llm: llm, maxTokens: defaultMaxTokens, logger: logger}
}

// Compose returns the generated reply for req.
func (c *Composer) Compose(ctx context.Context, req Request) (string, error) {
	msgs := Messages(req.History, req.Message)
	text, err := c.llm.Complete(ctx, SystemPrompt(req), msgs, c.maxTokens)
	if err != nil {
		return "", fmt.Errorf("compose reply: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("compose reply: %w", anthropic.ErrEmptyContent)
	}
	c.logger.Debug("reply generated", "session_id", req.SessionID, "label", req.Label, "chars", len(text))
	return text, nil
}

// Messages maps a transcript plus the current message to alternating
// user/assistant messages starting with a user message.
func Messages(history []transcript.Turn, current string) []anthropic.Message {
	var out []anthropic.Message
	add := func(role, text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + text
			return
		}
		if len(out) == 0 && role == "assistant" {
			return
		}
		out = append(out, anthropic.Message{Role: role, Content: text})
	}
	for _, t := range history {
		role := "user"
		if t.Role == transcript.RoleAgent {
			role = "assistant"
		}
		add(role, t.Text)
	}
	add("user", current)
	return out
}

const knowledge = `Règles de paiement selon le financement :
- CPF : délai minimum de 45 jours après réception des feuilles d'émargement signées. Depuis février 2025, moins de 50 dossiers sur 2500 sont bloqués par la réforme de la Caisse des Dépôts.
- OPCO : délai moyen de 2 mois, jusqu'à 6 mois selon l'organisme.
- Financement direct : 7 jours après la fin de la formation et la réception du dossier complet.

Programme ambassadeur :
1. S'abonner à Instagram (https://hi.switchy.io/InstagramWeiWei) et Snapchat (https://hi.switchy.io/SnapChatWeiWei).
2. Créer son code d'affiliation sur https://swiy.co/jakpro.
3. Envoyer ses contacts via https://mrqz.to/AffiliationPromotion (nom, prénom, téléphone, SIRET si entreprise).
4. Commission jusqu'à 60% si le dossier est validé. Paiement possible sur compte perso jusqu'à 3000€/an et 3 virements.

Formations : plus de 100 formations (bureautique, informatique, développement web et 3D, langues, vente et marketing digital, développement personnel, numérique responsable, bilan de compétences). Plus de formations CPF depuis février 2025.

Support : l'équipe est disponible du lundi au vendredi de 9h à 17h (hors pause déjeuner).`

// SystemPrompt builds the instructions for one request.
func SystemPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("Tu es l'assistant du support client. Tu réponds en français, en tutoyant, avec des messages courts et chaleureux et quelques emojis.\n")
	sb.WriteString("Tu ne promets jamais de date de paiement et tu n'inventes aucune information absente des faits ci-dessous. Si tu ne sais pas, dis que tu transmets à l'équipe.\n\n")
	sb.WriteString(knowledge)
	sb.WriteString("\n\n")
	switch {
	case req.NeedsGreeting:
		sb.WriteString("C'est le premier message de la conversation : commence par « Salut 👋 ».\n")
	case req.IsFollowUp:
		sb.WriteString("Le message poursuit l'échange précédent : réponds dans sa continuité sans saluer à nouveau.\n")
	}
	if req.Label != "" {
		fmt.Fprintf(&sb, "Situation détectée : %s.\n", req.Label)
	}
	return sb.String()
}
