package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/repository"
	"github.com/Kerhoff/ChoreBoT/internal/service"
)

// ---------------------------------------------------------------------------
// Chores
// ---------------------------------------------------------------------------

type createChoreRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Points      int     `json:"points"`
	AssignedTo  *string `json:"assignedTo"`
	DueDate     string  `json:"dueDate"` // RFC 3339, optional
}

func (s *Server) handleGetChores(w http.ResponseWriter, r *http.Request) {
	member := s.actor(w, r)
	if member == nil {
		return
	}

	q := r.URL.Query()
	var filters repository.ChoreFilters
	if status := q.Get("status"); status != "" {
		st := models.ChoreStatus(status)
		filters.Status = &st
	}
	if assignee := q.Get("assignedTo"); assignee != "" {
		filters.AssignedTo = &assignee
	}
	if limit := q.Get("limit"); limit != "" {
		if v, err := strconv.Atoi(limit); err == nil {
			filters.Limit = v
		}
	}

	chores, err := s.svc.ListChores(r.Context(), member.FamilyID, filters)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	if chores == nil {
		chores = []*models.Chore{}
	}
	s.respondJSON(w, http.StatusOK, chores)
}

func (s *Server) handleCreateChore(w http.ResponseWriter, r *http.Request) {
	var req createChoreRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	in := service.ChoreInput{
		Title:       req.Title,
		Description: req.Description,
		Points:      req.Points,
		AssignedTo:  req.AssignedTo,
	}
	if req.DueDate != "" {
		t, err := time.Parse(time.RFC3339, req.DueDate)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "dueDate must be RFC 3339 format")
			return
		}
		in.DueDate = &t
	}

	member := s.actor(w, r)
	if member == nil {
		return
	}
	chore, err := s.svc.CreateChore(r.Context(), member, in)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, chore)
}

type completeChoreRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) handleCompleteChore(w http.ResponseWriter, r *http.Request) {
	var req completeChoreRequest
	if r.ContentLength > 0 {
		if ok, msg := s.decodeJSON(r, &req); !ok {
			s.respondError(w, http.StatusBadRequest, msg)
			return
		}
	}

	member := s.actor(w, r)
	if member == nil {
		return
	}
	completion, err := s.svc.CompleteChore(r.Context(), member, r.PathValue("id"), req.Notes)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, completion)
}

type verifyResponse struct {
	Completion *models.ChoreCompletion `json:"completion"`
	Balance    int                     `json:"balance"`
}

func (s *Server) handleVerifyChore(w http.ResponseWriter, r *http.Request) {
	member := s.actor(w, r)
	if member == nil {
		return
	}
	completion, balance, err := s.svc.VerifyChore(r.Context(), member, r.PathValue("id"))
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, verifyResponse{Completion: completion, Balance: balance})
}

// ---------------------------------------------------------------------------
// Rewards
// ---------------------------------------------------------------------------

type createRewardRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Cost        int    `json:"cost"`
}

func (s *Server) handleGetRewards(w http.ResponseWriter, r *http.Request) {
	member := s.actor(w, r)
	if member == nil {
		return
	}
	rewards, err := s.svc.ListRewards(r.Context(), member.FamilyID)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	if rewards == nil {
		rewards = []*models.Reward{}
	}
	s.respondJSON(w, http.StatusOK, rewards)
}

func (s *Server) handleCreateReward(w http.ResponseWriter, r *http.Request) {
	var req createRewardRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	member := s.actor(w, r)
	if member == nil {
		return
	}
	reward, err := s.svc.CreateReward(r.Context(), member, req.Title, req.Description, req.Cost)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, reward)
}

type redeemResponse struct {
	Redemption *models.RewardRedemption `json:"redemption"`
	Balance    int                      `json:"balance"`
}

func (s *Server) handleRedeemReward(w http.ResponseWriter, r *http.Request) {
	member := s.actor(w, r)
	if member == nil {
		return
	}
	redemption, balance, err := s.svc.RedeemReward(r.Context(), member, r.PathValue("id"))
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, redeemResponse{Redemption: redemption, Balance: balance})
}

func (s *Server) handleApproveRedemption(w http.ResponseWriter, r *http.Request) {
	member := s.actor(w, r)
	if member == nil {
		return
	}
	if err := s.svc.ApproveRedemption(r.Context(), member, r.PathValue("id")); err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}
