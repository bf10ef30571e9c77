package rag

import (
	"strconv"
	"strings"
)

// DefaultAnswerPrompt is the synthesis template used when the request
// carries no custom prompt. {context} and {question} are substituted.
const DefaultAnswerPrompt = `Context information is below.
---------------------
{context}
---------------------
Given the context information and not prior knowledge, answer the query.
Query: {question}
Answer:`

const keywordPromptTemplate = `Extract the most relevant entity keywords from the question below for a knowledge graph lookup. Keep each keyword short (a name, a term, a phrase of a few words). Extract at most {max} keywords.
Respond with one line in exactly this form:
KEYWORDS: keyword1, keyword2, keyword3

Question: {question}`

// keywordPrompt renders the extraction prompt for a question.
func keywordPrompt(question string, maxKeywords int) string {
	p := strings.ReplaceAll(keywordPromptTemplate, "{max}", strconv.Itoa(maxKeywords))
	return strings.ReplaceAll(p, "{question}", question)
}

// answerPrompt renders the synthesis prompt. An empty template falls back
// to DefaultAnswerPrompt; an empty context list produces the bare question.
func answerPrompt(template, question string, contexts []string) string {
	if len(contexts) == 0 {
		return question
	}
	if template == "" {
		template = DefaultAnswerPrompt
	}
	p := strings.ReplaceAll(template, "{context}", strings.Join(contexts, "\n"))
	return strings.ReplaceAll(p, "{question}", question)
}

// parseKeywords pulls the comma-separated list off the KEYWORDS: line.
// Order is preserved, duplicates dropped, the list capped at max. No
// KEYWORDS line means no keywords.
func parseKeywords(output string, max int) []string {
	var rest string
	found := false
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if len(line) >= 9 && strings.EqualFold(line[:9], "KEYWORDS:") {
			rest = line[9:]
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	parts := strings.FieldsFunc(rest, func(r rune) bool {
		return r == ',' || r == '，'
	})
	seen := make(map[string]struct{}, len(parts))
	keywords := make([]string, 0, len(parts))
	for _, part := range parts {
		kw := strings.TrimSpace(part)
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		keywords = append(keywords, kw)
		if max > 0 && len(keywords) >= max {
			break
		}
	}
	return keywords
}
