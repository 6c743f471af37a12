package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/umeet/scribe/pkg/wiki"
)

// Suffixes the wiki workflow hangs off page labels: "<label>회의록" marks
// the parent page notes are filed under, "<label>완료" marks reviewed
// pages that feed retrieval and the comment feed.
const (
	labelNotesSuffix = "회의록"
	labelDoneSuffix  = "완료"
)

type noteRequest struct {
	Text  string `json:"text"`
	Title string `json:"title"`
}

// handleSummary produces a digest of the posted notes and feeds them to
// the retrieval index so they are immediately searchable.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Summarizer == nil {
		http.Error(w, "summarizer not configured", http.StatusServiceUnavailable)
		return
	}
	var req noteRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	digest, err := s.cfg.Summarizer.Digest(r.Context(), req.Text)
	if err != nil {
		s.logger.Warn("summary failed", "error", err)
		http.Error(w, "summary failed", http.StatusBadGateway)
		return
	}
	s.indexNotes(r, req.Title, req.Text)
	s.writeAnswer(w, digest)
}

// handleSummaryAll produces the full meeting report with action items.
func (s *Server) handleSummaryAll(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Summarizer == nil {
		http.Error(w, "summarizer not configured", http.StatusServiceUnavailable)
		return
	}
	var req noteRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	report, err := s.cfg.Summarizer.Report(r.Context(), req.Title, req.Text)
	if err != nil {
		s.logger.Warn("report failed", "error", err)
		http.Error(w, "report failed", http.StatusBadGateway)
		return
	}
	s.indexNotes(r, req.Title, req.Text)
	s.writeAnswer(w, report)
}

// indexNotes adds posted notes to the retrieval store. Indexing failures
// do not fail the request.
func (s *Server) indexNotes(r *http.Request, title, text string) {
	if s.cfg.Store == nil || strings.TrimSpace(text) == "" {
		return
	}
	if _, err := s.cfg.Store.AddDocument(r.Context(), title, text); err != nil {
		s.logger.Warn("note indexing failed", "title", title, "error", err)
	}
}

type shareRequest struct {
	Label        string   `json:"label"`
	Participants []string `json:"participants"`
	Content      string   `json:"content"`
	Title        string   `json:"title"`
}

// handleShare publishes notes as a child page of the label's notes page
// and mails the page link to the participants.
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Wiki == nil || s.cfg.Graph == nil {
		http.Error(w, "wiki or mail not configured", http.StatusServiceUnavailable)
		return
	}
	var req shareRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	pages, err := s.cfg.Wiki.SearchByLabel(r.Context(), req.Label+labelNotesSuffix, 1)
	if err != nil || len(pages) == 0 {
		s.logger.Warn("notes parent page lookup failed", "label", req.Label, "error", err)
		http.Error(w, "notes page not found for label", http.StatusNotFound)
		return
	}

	pageID, err := s.cfg.Wiki.CreatePage(r.Context(), pages[0].ID, req.Title, req.Content)
	if err != nil {
		s.logger.Warn("page create failed", "title", req.Title, "error", err)
		http.Error(w, "page create failed", http.StatusBadGateway)
		return
	}
	page, err := s.cfg.Wiki.GetPage(r.Context(), pageID)
	if err != nil {
		http.Error(w, "page fetch failed", http.StatusBadGateway)
		return
	}

	body := fmt.Sprintf(`<p>오늘 회의록 정리 내용입니다.</p><p><a href="%s">%s</a></p>`, page.URL, page.Title)
	if err := s.cfg.Graph.SendMail(r.Context(), req.Participants, req.Title, body); err != nil {
		s.logger.Warn("mail send failed", "error", err)
		http.Error(w, "mail send failed", http.StatusBadGateway)
		return
	}
	s.writeAnswer(w, page.URL)
}

type ragUploadRequest struct {
	Label string `json:"label"`
}

// handleRagUpload indexes every reviewed page under a label into the
// retrieval store.
func (s *Server) handleRagUpload(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Wiki == nil || s.cfg.Store == nil {
		http.Error(w, "wiki or retrieval store not configured", http.StatusServiceUnavailable)
		return
	}
	var req ragUploadRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	pages, err := s.cfg.Wiki.SearchByLabel(r.Context(), req.Label+labelDoneSuffix, 0)
	if err != nil {
		http.Error(w, "label search failed", http.StatusBadGateway)
		return
	}
	indexed := 0
	for _, p := range pages {
		content, err := s.cfg.Wiki.GetPage(r.Context(), p.ID)
		if err != nil {
			s.logger.Warn("page fetch failed", "page", p.ID, "error", err)
			continue
		}
		// wiki storage format is HTML; index plain text.
		if _, err := s.cfg.Store.AddDocument(r.Context(), content.Title, wiki.ToText(content.Body)); err != nil {
			s.logger.Warn("page indexing failed", "page", p.ID, "error", err)
			continue
		}
		indexed++
	}
	s.writeAnswer(w, fmt.Sprintf("업로드 완료 (%d/%d 페이지)", indexed, len(pages)))
}

type chatRequest struct {
	Question string `json:"question"`
	ThreadID string `json:"threadId"`
}

// handleRagChat answers one question via the retrieval agent.
func (s *Server) handleRagChat(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Agent == nil {
		http.Error(w, "chat agent not configured", http.StatusServiceUnavailable)
		return
	}
	var req chatRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "question is empty", http.StatusBadRequest)
		return
	}
	thread := req.ThreadID
	if thread == "" {
		thread = "1"
	}
	reply, err := s.cfg.Agent.Chat(r.Context(), thread, req.Question)
	if err != nil {
		s.logger.Warn("chat failed", "thread", thread, "error", err)
		http.Error(w, "chat failed", http.StatusBadGateway)
		return
	}
	s.writeAnswer(w, reply)
}

// pageComments is one page's comment feed entry.
type pageComments struct {
	PageID   string   `json:"page_id"`
	Title    string   `json:"title"`
	URL      string   `json:"url"`
	Comments []string `json:"comments"`
}

// handleComments lists the comments on every reviewed page under a label.
func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Wiki == nil {
		http.Error(w, "wiki not configured", http.StatusServiceUnavailable)
		return
	}
	label := r.PathValue("label")

	pages, err := s.cfg.Wiki.SearchByLabel(r.Context(), label+labelDoneSuffix, 0)
	if err != nil {
		http.Error(w, "label search failed", http.StatusBadGateway)
		return
	}
	out := make([]pageComments, 0, len(pages))
	for _, p := range pages {
		comments, err := s.cfg.Wiki.Comments(r.Context(), p.ID)
		if err != nil {
			s.logger.Warn("comment fetch failed", "page", p.ID, "error", err)
			continue
		}
		if comments == nil {
			comments = []string{}
		}
		out = append(out, pageComments{
			PageID:   p.ID,
			Title:    p.Title,
			URL:      p.URL,
			Comments: comments,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleUserInfo looks up directory users whose display name starts with
// the given prefix.
func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Graph == nil {
		http.Error(w, "directory not configured", http.StatusServiceUnavailable)
		return
	}
	users, err := s.cfg.Graph.UserByName(r.Context(), r.PathValue("name"))
	if err != nil {
		s.logger.Warn("user lookup failed", "error", err)
		http.Error(w, "user lookup failed", http.StatusBadGateway)
		return
	}
	s.writeJSON(w, http.StatusOK, users)
}
