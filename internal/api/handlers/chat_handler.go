package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	middleware "github.com/clauselens/clauselens/internal/api/middlewares"
	"github.com/clauselens/clauselens/internal/core"
	"github.com/clauselens/clauselens/internal/core/retrieval"
)

const cannedAnswer = "Based on the documents, here are the most relevant clauses:"

type ChatHandler struct {
	engine *retrieval.Engine
	llm    core.LLMProvider // optional; nil falls back to the canned answer
}

func NewChatHandler(engine *retrieval.Engine, llm core.LLMProvider) *ChatHandler {
	return &ChatHandler{engine: engine, llm: llm}
}

type queryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

type queryResponse struct {
	AIAnswer string             `json:"ai_answer"`
	Results  []retrieval.Result `json:"results"`
}

// AskQuestion answers a natural-language question with the most relevant
// chunks from the caller's own documents.
func (h *ChatHandler) AskQuestion(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}
	k := req.TopK
	if k == 0 {
		k = retrieval.DefaultTopK
	}

	results, err := h.engine.Retrieve(r.Context(), userID, req.Question, k)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	answer := cannedAnswer
	if h.llm != nil && len(results) > 0 {
		if generated, err := h.generateAnswer(r, req.Question, results); err != nil {
			log.Printf("chat: answer generation failed, using canned answer: %v", err)
		} else if generated != "" {
			answer = generated
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(queryResponse{AIAnswer: answer, Results: results})
}

func (h *ChatHandler) generateAnswer(r *http.Request, question string, results []retrieval.Result) (string, error) {
	var sb strings.Builder
	for _, res := range results {
		sb.WriteString(res.Text)
		sb.WriteString("\n---\n")
	}

	systemPrompt := "You are an intelligent assistant answering based only on the given contract excerpts. If unsure, say 'I cannot find this in the documents.'"
	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", sb.String(), question)

	return h.llm.Generate(r.Context(), systemPrompt, userPrompt)
}
