package engine

import (
	"fmt"
	"strings"

	"github.com/fin360/financial-analyzer/internal/domain"
	"github.com/fin360/financial-analyzer/internal/llm"
)

// analysisSystemPrompt frames the model as a financial due diligence analyst.
const analysisSystemPrompt = `You are a senior financial analyst preparing a due diligence report from an extracted company document. Be precise with figures, cite the page where a number appears when possible, and present tabular data as markdown pipe tables.`

// analysisSections is the fixed report structure. Every analysis carries
// exactly these sections in this order.
var analysisSections = []string{
	"BUSINESS OVERVIEW",
	"KEY FINDINGS, FINANCIAL DUE DILIGENCE",
	"INCOME STATEMENT OVERVIEW",
	"BALANCE SHEET OVERVIEW",
	"ADJ EBITDA",
	"ADJ WORKING CAPITAL",
}

// buildAnalysisPrompt assembles the report-generation prompt over the full
// extracted text.
func buildAnalysisPrompt(extractedText string) string {
	var b strings.Builder
	b.WriteString("Analyze the following financial document and produce a markdown report with exactly these sections, each as a '## ' heading:\n\n")
	for _, s := range analysisSections {
		b.WriteString("## ")
		b.WriteString(s)
		b.WriteString("\n")
	}
	b.WriteString("\nUse markdown pipe tables for all figures. If a section cannot be derived from the document, state what is missing.\n\n")
	b.WriteString("Document text (page markers are **Page N**):\n\n")
	b.WriteString(extractedText)
	return b.String()
}

// chatSystemPrompt frames follow-up question answering.
const chatSystemPrompt = `You are a financial analyst answering questions about a previously analyzed document. Ground every answer in the provided document context. If the context does not contain the answer, say so rather than guessing.`

// noContextAnswer is returned without calling the model when a document has
// no usable context text.
const noContextAnswer = "No document context is available to answer this question. The document produced no extractable text."

// maxHistoryTurns caps how many prior turns are replayed into the prompt.
const maxHistoryTurns = 10

// buildChatPrompt assembles the question prompt from the full context,
// retrieved excerpts, recent conversation, and the new question. Excerpts
// never replace the context; a retrieval answer sees both, with the
// excerpts highlighting where to look.
func buildChatPrompt(contextText string, excerpts []string, history []domain.ChatTurn, question string) string {
	var b strings.Builder

	b.WriteString("Full document context:\n\n")
	b.WriteString(contextText)
	b.WriteString("\n\n")

	if len(excerpts) > 0 {
		b.WriteString("Most relevant sections for this question:\n")
		for i, c := range excerpts {
			b.WriteString(fmt.Sprintf("\n[Excerpt %d]\n%s\n", i+1, c))
		}
		b.WriteString("\n")
	}

	if len(history) > 0 {
		start := 0
		if len(history) > maxHistoryTurns {
			start = len(history) - maxHistoryTurns
		}
		b.WriteString("Conversation so far:\n")
		for _, turn := range history[start:] {
			b.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, turn.Content))
		}
		b.WriteString("\n")
	}

	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

// fitChatPrompt builds the chat prompt, trimming the context block when
// the assembled prompt would overflow the model's window. Excerpts,
// history, and the question are never trimmed; the full context absorbs
// the cut.
func (e *Engine) fitChatPrompt(contextText string, excerpts []string, history []domain.ChatTurn, question string) string {
	model := e.provider.Model()
	limit := e.cfg.ContextTokens

	prompt := buildChatPrompt(contextText, excerpts, history, question)
	if limit <= 0 || llm.FitsContext(model, prompt, e.cfg.MaxTokens, limit) {
		return prompt
	}

	fixed := llm.CountTokens(model, buildChatPrompt("", excerpts, history, question))
	budget := limit - e.cfg.MaxTokens - fixed
	trimmed := llm.TruncateTokens(model, contextText, budget)
	e.log.Debug("chat context trimmed to model window",
		"limit", limit,
		"context_tokens", llm.CountTokens(model, trimmed),
	)
	return buildChatPrompt(trimmed, excerpts, history, question)
}

// fitAnalysisPrompt builds the report prompt, trimming the document text
// when it would overflow the model's window.
func (e *Engine) fitAnalysisPrompt(extractedText string) string {
	model := e.provider.Model()
	limit := e.cfg.ContextTokens

	prompt := buildAnalysisPrompt(extractedText)
	if limit <= 0 || llm.FitsContext(model, prompt, e.cfg.MaxTokens, limit) {
		return prompt
	}

	fixed := llm.CountTokens(model, buildAnalysisPrompt(""))
	budget := limit - e.cfg.MaxTokens - fixed
	trimmed := llm.TruncateTokens(model, extractedText, budget)
	e.log.Warn("document text trimmed to model window",
		"limit", limit,
		"original_tokens", llm.CountTokens(model, extractedText),
	)
	return buildAnalysisPrompt(trimmed)
}

// pageTag formats the page marker inserted between extracted pages.
func pageTag(pageNum int) string {
	return fmt.Sprintf("\n**Page %d**\n", pageNum)
}
