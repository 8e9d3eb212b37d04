// Copyright 2026 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// DefaultProvider creates a provider from environment variables.
// Checks in order: OLLAMA_HOST, OPENAI_API_KEY, ANTHROPIC_API_KEY.
// Falls back to mock if nothing is configured.
func DefaultProvider() (Provider, error) {
	// Check for Ollama first (local, free)
	if os.Getenv("OLLAMA_HOST") != "" || os.Getenv("OLLAMA_BASE_URL") != "" || os.Getenv("OLLAMA_MODEL") != "" {
		return NewProvider(ProviderConfig{Type: "ollama"})
	}

	if os.Getenv("OPENAI_API_KEY") != "" {
		return NewProvider(ProviderConfig{Type: "openai"})
	}

	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		return NewProvider(ProviderConfig{Type: "anthropic"})
	}

	// Default to mock for development
	return NewProvider(ProviderConfig{Type: "mock"})
}

// ProviderFromEnv creates a provider from a specific environment variable.
// Example: PYLORE_LLM_PROVIDER=ollama will use Ollama.
func ProviderFromEnv(envVar string) (Provider, error) {
	providerType := os.Getenv(envVar)
	if providerType == "" {
		return DefaultProvider()
	}
	return NewProvider(ProviderConfig{Type: providerType})
}

// QuickGenerate is a convenience function for simple text generation.
func QuickGenerate(ctx context.Context, prompt string) (string, error) {
	provider, err := DefaultProvider()
	if err != nil {
		return "", err
	}
	resp, err := provider.Generate(ctx, GenerateRequest{Prompt: prompt})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// AnswerSystemPrompt instructs the model to answer strictly from the
// provided excerpts, which is what keeps query answers grounded in the
// index rather than in the model's priors.
const AnswerSystemPrompt = `You answer questions about a codebase using only the knowledge excerpts provided.
Each excerpt begins with its source identifier (a module path or module:Symbol).
Cite sources by their identifier when they support a claim.
If the excerpts do not contain the answer, say so plainly instead of guessing.
Keep answers short and concrete.`

// AnswerPrompt builds the grounded question prompt fed to a provider.
type AnswerPrompt struct {
	Question string
	Excerpts []string

	// MaxExcerptChars caps each excerpt; 0 means 1500.
	MaxExcerptChars int
}

// Build renders the prompt with numbered excerpts.
func (ap AnswerPrompt) Build() string {
	limit := ap.MaxExcerptChars
	if limit <= 0 {
		limit = 1500
	}

	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(strings.TrimSpace(ap.Question))
	sb.WriteString("\n\nKnowledge excerpts:\n")
	for i, excerpt := range ap.Excerpts {
		excerpt = strings.TrimSpace(excerpt)
		if len(excerpt) > limit {
			excerpt = excerpt[:limit] + "\n... (truncated)"
		}
		fmt.Fprintf(&sb, "\n[%d] %s\n", i+1, excerpt)
	}
	sb.WriteString("\nAnswer the question using only the excerpts above.")
	return sb.String()
}
