package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/tbuckley/go-chat-gateway/internal/database"
	"github.com/tbuckley/go-chat-gateway/internal/types"
	"golang.org/x/crypto/bcrypt"
)

const defaultSessionExpiration = time.Hour * 24

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

type CreateRoomRequest struct {
	Name           string   `json:"name"`
	IsGroup        bool     `json:"is_group"`
	ParticipantIds []string `json:"participant_ids"`
}

func (s *ChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *ChatApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.CreateAccountParams{
		Username:     req.Username,
		EmailAddress: req.Email,
		PasswordHash: pwdHash,
		FullName:     req.FullName,
	}

	newAccount, err := s.db.CreateAccount(params)
	if err != nil {
		var errResp *ApiError
		if database.IsUniqueViolation(err) {
			errResp = NewConflictError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, types.User{
		Id:           newAccount.Id,
		Username:     newAccount.Username,
		EmailAddress: newAccount.EmailAddress,
		CreatedAt:    newAccount.CreatedAt,
		UpdatedAt:    newAccount.UpdatedAt,
	})
}

func (s *ChatApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Email == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	account, err := s.db.GetAccountByEmail(lr.Email)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(account.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	u := types.User{
		Id:           account.Id,
		Username:     account.Username,
		EmailAddress: account.EmailAddress,
		CreatedAt:    account.CreatedAt,
		UpdatedAt:    account.UpdatedAt,
	}

	// the token doubles as the gateway's connection credential, so it is
	// returned in the body rather than set as a cookie
	token, err := s.sessions.Issue(u, defaultSessionExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, LoginResponse{Token: token, User: u})
}

func (s *ChatApp) session(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	account, err := s.db.GetAccountById(user.Id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, types.User{
		Id:           account.Id,
		Username:     account.Username,
		EmailAddress: account.EmailAddress,
		CreatedAt:    account.CreatedAt,
		UpdatedAt:    account.UpdatedAt,
	})
}

func (s *ChatApp) listRooms(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbRooms, err := s.db.ListRoomsForAccount(user.Id)
	if err != nil {
		s.log.Println("list rooms:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rooms := make([]types.Room, 0, len(dbRooms))
	for _, dbRoom := range dbRooms {
		rooms = append(rooms, types.Room{
			Id:        dbRoom.Id,
			Name:      dbRoom.Name,
			IsGroup:   dbRoom.IsGroup,
			CreatedBy: dbRoom.CreatedBy,
			CreatedAt: dbRoom.CreatedAt,
		})
	}

	s.writeJson(w, http.StatusOK, rooms)
}

// createRoom sets up a conversation scope out-of-band from the gateway,
// which only ever reads the resulting membership rows.
func (s *ChatApp) createRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if len(req.ParticipantIds) == 0 || (!req.IsGroup && len(req.ParticipantIds) != 1) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	participants := req.ParticipantIds
	if !slices.Contains(participants, user.Id) {
		participants = append(participants, user.Id)
	}

	newRoom, err := s.db.CreateRoom(database.CreateRoomParams{
		Id:           sid,
		Name:         req.Name,
		IsGroup:      req.IsGroup,
		CreatedBy:    user.Id,
		Participants: participants,
	})
	if err != nil {
		s.log.Println("create room:", err)
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, types.Room{
		Id:        newRoom.Id,
		Name:      newRoom.Name,
		IsGroup:   newRoom.IsGroup,
		CreatedBy: newRoom.CreatedBy,
		CreatedAt: newRoom.CreatedAt,
	})
}

// getMessages serves persisted history with sender display fields joined
// in, the fallback read path for clients that are not connected live.
func (s *ChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomId := r.URL.Query().Get("room_id")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	member, err := s.db.IsParticipant(roomId, user.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if !member {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var before time.Time
	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		before, err = time.Parse(time.RFC3339, beforeStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	var limit int
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	dbMessages, err := s.db.GetMessages(roomId, before, limit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages := make([]types.Message, 0, len(dbMessages))
	for _, msg := range dbMessages {
		messages = append(messages, types.Message{
			Id:          msg.Id,
			RoomId:      msg.RoomId,
			SenderId:    msg.SenderId,
			Content:     msg.Content,
			MessageType: msg.MessageType,
			CreatedAt:   msg.CreatedAt,
			Sender: types.Profile{
				FullName:  msg.Sender.FullName,
				Username:  msg.Sender.Username,
				AvatarUrl: msg.Sender.AvatarUrl,
			},
		})
	}

	s.writeJson(w, http.StatusOK, messages)
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}
