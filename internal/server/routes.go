package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lazypower/recall/internal/llm"
	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/store"
)

type memoryJSON struct {
	ID           string  `json:"id"`
	Owner        string  `json:"owner"`
	Kind         string  `json:"kind"`
	Title        string  `json:"title,omitempty"`
	Content      string  `json:"content"`
	Importance   float64 `json:"importance"`
	AccessCount  int     `json:"access_count"`
	CreatedAt    int64   `json:"created_at"`
	LastAccessed int64   `json:"last_accessed"`
	ExpiresAt    *int64  `json:"expires_at,omitempty"`
}

func toMemoryJSON(m *store.Memory) memoryJSON {
	return memoryJSON{
		ID:           m.ID,
		Owner:        m.Owner,
		Kind:         m.Kind,
		Title:        m.Title,
		Content:      m.Content,
		Importance:   m.Importance,
		AccessCount:  m.AccessCount,
		CreatedAt:    m.CreatedAt,
		LastAccessed: m.LastAccessed,
		ExpiresAt:    m.ExpiresAt,
	}
}

func (s *Server) handleStoreShortTerm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner   string `json:"owner"`
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	mem, err := s.manager.StoreShortTerm(r.Context(), req.Owner, req.Title, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemoryJSON(mem))
}

func (s *Server) handleStoreLongTerm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner      string  `json:"owner"`
		Title      string  `json:"title"`
		Content    string  `json:"content"`
		Importance float64 `json:"importance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	mem, err := s.manager.StoreLongTerm(r.Context(), req.Owner, req.Title, req.Content, req.Importance)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemoryJSON(mem))
}

func (s *Server) handleStoreEpisodic(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner      string  `json:"owner"`
		Title      string  `json:"title"`
		Content    string  `json:"content"`
		Importance float64 `json:"importance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	mem, err := s.manager.StoreEpisodic(r.Context(), req.Owner, req.Title, req.Content, req.Importance)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemoryJSON(mem))
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	memoryID := chi.URLParam(r, "memoryID")

	var req struct {
		Owner string `json:"owner"`
		Force bool   `json:"force"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.Owner == "" {
		http.Error(w, `{"error":"owner required"}`, http.StatusBadRequest)
		return
	}

	mem, err := s.manager.Promote(req.Owner, memoryID, req.Force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemoryJSON(mem))
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	memoryID := chi.URLParam(r, "memoryID")
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, `{"error":"owner parameter required"}`, http.StatusBadRequest)
		return
	}

	mem, err := s.db.GetMemory(owner, memoryID)
	if err != nil {
		writeError(w, err)
		return
	}
	if mem == nil {
		writeError(w, fmt.Errorf("%w: %s", memory.ErrNotFound, memoryID))
		return
	}

	if err := s.db.DeleteMemory(owner, memoryID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": memoryID})
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, `{"error":"owner parameter required"}`, http.StatusBadRequest)
		return
	}

	total, err := s.db.CountMemories(owner)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now().UnixMilli()
	counts := map[string]int{}
	for _, kind := range []string{store.KindShortTerm, store.KindLongTerm, store.KindEpisodic, store.KindSemantic} {
		memories, err := s.db.ListMemories(owner, []string{kind}, now, 0)
		if err != nil {
			writeError(w, err)
			return
		}
		counts[kind] = len(memories)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"owner":  owner,
		"total":  total,
		"active": counts,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, `{"error":"owner parameter required"}`, http.StatusBadRequest)
		return
	}
	query := r.URL.Query().Get("q")

	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	var kinds []string
	if k := r.URL.Query().Get("kind"); k != "" {
		kinds = strings.Split(k, ",")
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	results, err := s.manager.Search(ctx, owner, query, kinds, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	type resultJSON struct {
		memoryJSON
		Score      float64 `json:"score"`
		Similarity float64 `json:"similarity,omitempty"`
	}
	out := make([]resultJSON, len(results))
	for i, res := range results {
		out[i] = resultJSON{
			memoryJSON: toMemoryJSON(&res.Memory),
			Score:      res.Score,
			Similarity: res.Similarity,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"count":   len(out),
		"results": out,
	})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	stats, err := s.manager.Sweep(time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req struct {
		Owner      string   `json:"owner"`
		Message    string   `json:"message"`
		Topic      string   `json:"topic"`
		Mood       string   `json:"mood"`
		MemoryRefs []string `json:"memory_refs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	if err := s.tracker.Observe(conversationID, req.Owner, req.Message, req.Topic, req.Mood, req.MemoryRefs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, `{"error":"owner parameter required"}`, http.StatusBadRequest)
		return
	}

	snap, err := s.tracker.Snapshot(conversationID, owner)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id":    snap.ConversationID,
		"owner":              snap.Owner,
		"current_topic":      snap.CurrentTopic,
		"user_mood":          snap.UserMood,
		"conversation_flow":  snap.ConversationFlow,
		"active_memory_refs": snap.ActiveRefs,
		"updated_at":         snap.UpdatedAt,
	})
}

func (s *Server) handleBuildContext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner          string `json:"owner"`
		ConversationID string `json:"conversation_id"`
		Message        string `json:"message"`
		MaxItems       int    `json:"max_items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	payload, err := s.assembler.BuildContext(ctx, req.Owner, req.ConversationID, req.Message, req.MaxItems)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner          string `json:"owner"`
		ConversationID string `json:"conversation_id"`
		Message        string `json:"message"`
		MaxItems       int    `json:"max_items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	if s.llm == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no LLM configured"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 120*time.Second)
	defer cancel()

	payload, err := s.assembler.BuildContext(ctx, req.Owner, req.ConversationID, req.Message, req.MaxItems)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.llm.Complete(ctx, llm.ReplyPrompt(renderPersonality(payload), renderMemories(payload.Memories), renderMemories(payload.ShortTerm), req.Message))
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reply":   resp.Content,
		"context": payload,
	})
}

func (s *Server) handleGetPersonality(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, `{"error":"owner parameter required"}`, http.StatusBadRequest)
		return
	}

	p, err := s.db.GetOrCreatePersonality(owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, personalityJSON(p))
}

func (s *Server) handleUpdatePersonality(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner              string         `json:"owner"`
		CommunicationStyle string         `json:"communication_style"`
		Interests          []string       `json:"interests"`
		Preferences        map[string]any `json:"preferences"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.Owner == "" {
		http.Error(w, `{"error":"owner required"}`, http.StatusBadRequest)
		return
	}

	p, err := s.db.UpdatePersonality(req.Owner, req.CommunicationStyle, req.Interests, req.Preferences, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, personalityJSON(p))
}

func personalityJSON(p *store.Personality) map[string]any {
	return map[string]any{
		"owner":                 p.Owner,
		"communication_style":   p.CommunicationStyle,
		"interests":             p.Interests,
		"preferences":           p.Preferences,
		"conversation_patterns": p.ConversationPatterns,
		"updated_at":            p.UpdatedAt,
	}
}

func renderPersonality(p *memory.ContextPayload) string {
	if p.Personality == nil {
		return "(none)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "- Communication style: %s\n", p.Personality.CommunicationStyle)
	if len(p.Personality.Interests) > 0 {
		fmt.Fprintf(&b, "- Interests: %s\n", strings.Join(p.Personality.Interests, ", "))
	}
	if p.CurrentTopic != "" {
		fmt.Fprintf(&b, "- Current topic: %s\n", p.CurrentTopic)
	}
	if p.UserMood != "" {
		fmt.Fprintf(&b, "- Mood: %s\n", p.UserMood)
	}
	return b.String()
}

func renderMemories(items []memory.ContextMemory) string {
	if len(items) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, m := range items {
		fmt.Fprintf(&b, "- %s\n", m.Content)
	}
	return b.String()
}
