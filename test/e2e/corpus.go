// Package e2e exercises the full build-then-answer flow against an
// in-memory graph, scripted LLM replies, and deterministic embeddings.
package e2e

import (
	"fmt"
	"strings"

	"github.com/hyperjump/tsunagu/internal/kg"
	"github.com/hyperjump/tsunagu/internal/llm"
	"github.com/hyperjump/tsunagu/internal/models"
)

// Document is one corpus entry together with the triples the scripted
// generator claims to extract from it.
type Document struct {
	Title   string
	Content string
	Triples []kg.Triple
}

// AnswerCase is a question whose graph evidence is known in advance.
type AnswerCase struct {
	About        string
	Question     string
	Keywords     []string
	WantEvidence []string
}

// GroundedAnswer is returned by the scripted generator whenever the
// synthesis prompt carries retrieved context.
const GroundedAnswer = "Answer grounded in the retrieved context."

// UngroundedAnswer is returned for the raw variant, which sends the
// bare question without any context.
const UngroundedAnswer = "Answer from prior knowledge only."

// ScriptedKeywords maps a question to the keyword reply the generator
// gives for it. Questions missing from the map fall back to an empty
// keyword list.
var ScriptedKeywords = map[string][]string{}

// Corpus returns the documents the e2e tests build from. Entity names
// avoid punctuation that the triple parser treats as structure, and
// their tokens stay more than two edits apart so fuzzy vertex lookup
// cannot drift to a neighbouring name.
func Corpus() []Document {
	return []Document{
		{
			Title:   "Ada Lovelace",
			Content: "Ada Lovelace wrote the first published computer program while annotating a lecture on the Analytical Engine. She worked closely with Charles Babbage in London.",
			Triples: []kg.Triple{
				{Subject: "Ada Lovelace", Predicate: "Collaborated with", Object: "Charles Babbage"},
				{Subject: "Charles Babbage", Predicate: "Designed", Object: "Analytical Engine"},
				{Subject: "Ada Lovelace", Predicate: "Wrote", Object: "First published program"},
			},
		},
		{
			Title:   "Grace Hopper",
			Content: "Grace Hopper created the first working compiler and led the committee work behind COBOL. She served in the United States Navy and popularized the term debugging.",
			Triples: []kg.Triple{
				{Subject: "Grace Hopper", Predicate: "Created", Object: "First compiler"},
				{Subject: "Grace Hopper", Predicate: "Led design of", Object: "COBOL"},
				{Subject: "Grace Hopper", Predicate: "Served in", Object: "United States Navy"},
			},
		},
		{
			Title:   "Golang",
			Content: "Golang was created at Google by Rob Pike and Ken Thompson as a language for networked servers. It ships goroutines and channels as concurrency primitives.",
			Triples: []kg.Triple{
				{Subject: "Golang", Predicate: "Created at", Object: "Google"},
				{Subject: "Rob Pike", Predicate: "Designed", Object: "Golang"},
				{Subject: "Ken Thompson", Predicate: "Designed", Object: "Golang"},
			},
		},
		{
			Title:   "Kubernetes",
			Content: "Kubernetes is a container orchestration platform that Google released as open source in 2014. It was later donated to the Cloud Native Computing Foundation.",
			Triples: []kg.Triple{
				{Subject: "Kubernetes", Predicate: "Released by", Object: "Google"},
				{Subject: "Kubernetes", Predicate: "Donated to", Object: "Cloud Native Computing Foundation"},
			},
		},
		{
			Title:   "Unix",
			Content: "Ken Thompson and Dennis Ritchie created the Unix operating system at Bell Labs. Dennis Ritchie also designed the C language that Unix was rewritten in.",
			Triples: []kg.Triple{
				{Subject: "Ken Thompson", Predicate: "Created", Object: "Unix"},
				{Subject: "Dennis Ritchie", Predicate: "Created", Object: "Unix"},
				{Subject: "Unix", Predicate: "Developed at", Object: "Bell Labs"},
				{Subject: "Dennis Ritchie", Predicate: "Designed", Object: "C language"},
			},
		},
		{
			Title:   "Linus Torvalds",
			Content: "Linus Torvalds started the Linux kernel in 1991 as a hobby project. He later created the Git version control system to manage kernel development.",
			Triples: []kg.Triple{
				{Subject: "Linus Torvalds", Predicate: "Created", Object: "Linux kernel"},
				{Subject: "Linus Torvalds", Predicate: "Created", Object: "Git"},
			},
		},
		{
			Title:   "PostgreSQL",
			Content: "PostgreSQL is a relational database that grew out of the POSTGRES project at Berkeley. It supports transactional DDL and multiversion concurrency control.",
			Triples: []kg.Triple{
				{Subject: "PostgreSQL", Predicate: "Descended from", Object: "POSTGRES project"},
				{Subject: "PostgreSQL", Predicate: "Developed at", Object: "Berkeley"},
			},
		},
		{
			Title:   "Redis",
			Content: "Redis is an in-memory data structure store created by Salvatore Sanfilippo. It serves caching and session workloads with optional persistence.",
			Triples: []kg.Triple{
				{Subject: "Redis", Predicate: "Created by", Object: "Salvatore Sanfilippo"},
				{Subject: "Redis", Predicate: "Serves", Object: "Caching workloads"},
			},
		},
		{
			Title:   "Bleve",
			Content: "Bleve is a text indexing library written in Golang that supports fuzzy matching and faceted search. It keeps its indexes either in memory or on disk.",
			Triples: []kg.Triple{
				{Subject: "Bleve", Predicate: "Written in", Object: "Golang"},
				{Subject: "Bleve", Predicate: "Supports", Object: "Fuzzy matching"},
			},
		},
		{
			Title:   "SQLite",
			Content: "SQLite is an embedded relational database engine that Richard Hipp released in 2000. The entire database lives in a single file on disk.",
			Triples: []kg.Triple{
				{Subject: "SQLite", Predicate: "Created by", Object: "Richard Hipp"},
				{Subject: "SQLite", Predicate: "Stores data in", Object: "Single file"},
			},
		},
	}
}

// AnswerCases returns questions whose expected graph evidence sits
// within one or two hops of the seed entity, so every listed entity is
// guaranteed a slot in the merged candidate list.
func AnswerCases() []AnswerCase {
	return []AnswerCase{
		{
			About:        "Ada Lovelace",
			Question:     "Who collaborated with Ada Lovelace on the Analytical Engine?",
			Keywords:     []string{"Ada Lovelace"},
			WantEvidence: []string{"Charles Babbage"},
		},
		{
			About:        "Grace Hopper",
			Question:     "Which language standard did Grace Hopper help create?",
			Keywords:     []string{"Grace Hopper"},
			WantEvidence: []string{"COBOL"},
		},
		{
			About:        "Golang",
			Question:     "Which projects started inside Google?",
			Keywords:     []string{"Google"},
			WantEvidence: []string{"Golang", "Kubernetes"},
		},
		{
			About:        "Unix",
			Question:     "Who built Unix and where?",
			Keywords:     []string{"Unix"},
			WantEvidence: []string{"Bell Labs", "Ken Thompson"},
		},
		{
			About:        "Linus Torvalds",
			Question:     "What did Linus Torvalds create?",
			Keywords:     []string{"Linus Torvalds"},
			WantEvidence: []string{"Linux kernel", "Git"},
		},
		{
			About:        "Linus Torvalds",
			Question:     "Who wrote Git and what else do they maintain?",
			Keywords:     []string{"Git"},
			WantEvidence: []string{"Linus Torvalds", "Linux kernel"},
		},
		{
			About:        "PostgreSQL",
			Question:     "Where did PostgreSQL originate?",
			Keywords:     []string{"PostgreSQL"},
			WantEvidence: []string{"Berkeley"},
		},
	}
}

// ToDocumentInputs converts the corpus into append-mode build requests.
func ToDocumentInputs(docs []Document) []models.BuildRequest {
	reqs := make([]models.BuildRequest, 0, len(docs))
	for _, d := range docs {
		reqs = append(reqs, models.BuildRequest{
			Mode:       string(kg.ModeAppend),
			SourceText: d.Content,
			Title:      d.Title,
		})
	}
	return reqs
}

// Generator builds a MockGenerator scripted for the corpus. Extraction
// prompts get the triples of the document they quote, keyword prompts
// get the keywords registered for the question, synthesis prompts get a
// fixed grounded answer, and anything else is treated as the raw
// variant.
func Generator(docs []Document) *llm.MockGenerator {
	return &llm.MockGenerator{
		RespondFunc: func(prompt string) (string, error) {
			switch {
			case strings.Contains(prompt, "The extracted text is:"):
				for _, d := range docs {
					if strings.Contains(prompt, normalizeSpace(d.Content)) {
						return renderTriples(d.Triples), nil
					}
				}
				return "[]", nil
			case strings.Contains(prompt, "entity keywords"):
				for q, kws := range ScriptedKeywords {
					if strings.Contains(prompt, q) {
						return "KEYWORDS: " + strings.Join(kws, ", "), nil
					}
				}
				return "KEYWORDS:", nil
			case strings.Contains(prompt, "Given the context information"):
				return GroundedAnswer, nil
			default:
				return UngroundedAnswer, nil
			}
		},
	}
}

// RegisterKeywords installs the scripted keyword reply for each case.
func RegisterKeywords(cases []AnswerCase) {
	for _, c := range cases {
		ScriptedKeywords[c.Question] = c.Keywords
	}
}

func renderTriples(triples []kg.Triple) string {
	parts := make([]string, 0, len(triples))
	for _, t := range triples {
		parts = append(parts, fmt.Sprintf("(%q, %q, %q)", t.Subject, t.Predicate, t.Object))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// normalizeSpace collapses runs of whitespace the same way the chunk
// splitter does, so prompt matching works on chunked content.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
