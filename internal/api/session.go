package api

import (
	"net/http"
	"strconv"

	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/session"
	"github.com/Kerhoff/ChoreBoT/internal/validation"
)

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

type stateResponse struct {
	LoggedIn bool                   `json:"loggedIn"`
	User     *models.StoredUser     `json:"user"`
	Family   *models.Family         `json:"family"`
	Members  []*models.FamilyMember `json:"members"`
	Loading  bool                   `json:"loading"`
	Error    string                 `json:"error,omitempty"`
}

func newStateResponse(st session.State) stateResponse {
	resp := stateResponse{
		LoggedIn: st.LoggedIn(),
		Family:   st.Family,
		Members:  st.Members,
		Loading:  st.Loading,
		Error:    st.Error,
	}
	if resp.Members == nil {
		resp.Members = []*models.FamilyMember{}
	}
	if st.User != nil {
		u := models.EncodeUser(st.User)
		resp.User = &u
	}
	return resp
}

// respondState writes the session snapshot after a successful operation
func (s *Server) respondState(w http.ResponseWriter, status int, m *session.Manager) {
	s.respondJSON(w, status, newStateResponse(m.State()))
}

// handleGetSession returns the session state. The first request of a
// device restores its previous session.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	m := s.manager(w, r)
	if m == nil {
		return
	}
	s.respondState(w, http.StatusOK, m)
}

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	FamilyName      string `json:"familyName"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	if err := validation.Registration(req.Email, req.Password, req.ConfirmPassword, req.FamilyName); err != nil {
		s.respondFailure(w, r, err)
		return
	}

	m := s.manager(w, r)
	if m == nil {
		return
	}
	if err := m.RegisterParent(r.Context(), req.Email, req.Password, req.FamilyName); err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondState(w, http.StatusCreated, m)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	if err := validation.Login(req.Email, req.Password); err != nil {
		s.respondFailure(w, r, err)
		return
	}

	m := s.manager(w, r)
	if m == nil {
		return
	}
	if err := m.LoginParent(r.Context(), req.Email, req.Password); err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondState(w, http.StatusOK, m)
}

type childLoginRequest struct {
	FamilyCode string `json:"familyCode"`
	MemberID   string `json:"memberId"`
}

func (s *Server) handleLoginChild(w http.ResponseWriter, r *http.Request) {
	var req childLoginRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	code, err := validation.FamilyCode(req.FamilyCode)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	if req.MemberID == "" {
		s.respondError(w, http.StatusBadRequest, "memberId is required")
		return
	}

	m := s.manager(w, r)
	if m == nil {
		return
	}
	if err := m.LoginChild(r.Context(), code, req.MemberID); err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondState(w, http.StatusOK, m)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	m := s.manager(w, r)
	if m == nil {
		return
	}
	if err := m.Logout(r.Context()); err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.sessions.Forget(s.sessionKey(w, r))
	s.respondState(w, http.StatusOK, m)
}

func (s *Server) handleRefreshMembers(w http.ResponseWriter, r *http.Request) {
	m := s.manager(w, r)
	if m == nil {
		return
	}
	if err := m.RefreshMembers(r.Context()); err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondState(w, http.StatusOK, m)
}

func (s *Server) handleClearError(w http.ResponseWriter, r *http.Request) {
	m := s.manager(w, r)
	if m == nil {
		return
	}
	m.ClearError()
	s.respondJSON(w, http.StatusNoContent, nil)
}

// ---------------------------------------------------------------------------
// Family
// ---------------------------------------------------------------------------

type createFamilyRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateFamily(w http.ResponseWriter, r *http.Request) {
	var req createFamilyRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	if err := validation.FamilyName(req.Name); err != nil {
		s.respondFailure(w, r, err)
		return
	}

	m := s.manager(w, r)
	if m == nil {
		return
	}
	family, err := m.CreateFamily(r.Context(), req.Name)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, family)
}

type addMemberRequest struct {
	Name   string  `json:"name"`
	Age    *int    `json:"age"`
	Avatar *string `json:"avatar"`
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	var ageText, avatar string
	if req.Age != nil {
		ageText = strconv.Itoa(*req.Age)
	}
	if req.Avatar != nil {
		avatar = *req.Avatar
	}
	age, err := validation.Child(req.Name, ageText, avatar)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}

	m := s.manager(w, r)
	if m == nil {
		return
	}
	if st := m.State(); st.LoggedIn() && st.User.UserRole() != models.RoleParent {
		s.respondError(w, http.StatusForbidden, "Only parents can add children")
		return
	}
	member, err := m.AddFamilyMember(r.Context(), req.Name, age, req.Avatar)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, member)
}

type familyLookupResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// handleGetFamilyByCode backs the child login picker. A miss is a 404, not
// a failure of the session.
func (s *Server) handleGetFamilyByCode(w http.ResponseWriter, r *http.Request) {
	code, err := validation.FamilyCode(r.PathValue("code"))
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}

	m := s.manager(w, r)
	if m == nil {
		return
	}
	family, err := m.GetFamilyByCode(r.Context(), code)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	if family == nil {
		s.respondError(w, http.StatusNotFound, "No family found with that code")
		return
	}
	s.respondJSON(w, http.StatusOK, familyLookupResponse{ID: family.ID, Name: family.Name, Code: family.Code})
}

func (s *Server) handleGetFamilyMembers(w http.ResponseWriter, r *http.Request) {
	m := s.manager(w, r)
	if m == nil {
		return
	}
	s.respondJSON(w, http.StatusOK, m.GetFamilyMembers(r.Context(), r.PathValue("id")))
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	member := s.actor(w, r)
	if member == nil {
		return
	}
	overview, err := s.svc.Overview(r.Context(), member.FamilyID)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, overview)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	member := s.actor(w, r)
	if member == nil {
		return
	}
	children, err := s.svc.Leaderboard(r.Context(), member.FamilyID)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, children)
}
