package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/SphrGhfri/roomchat/internal/domain"
	"github.com/SphrGhfri/roomchat/internal/port"
	"github.com/SphrGhfri/roomchat/pkg/logger"
)

type createRoomRequest struct {
	RoomType string `json:"room_type"`
	RoomID   string `json:"room_id"`
	Name     string `json:"name"`
	Password string `json:"password,omitempty"`
}

type createRoomResponse struct {
	Room    domain.RoomInfo `json:"room"`
	Type    domain.RoomType `json:"room_type"`
	Created bool            `json:"created"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrNotConnected):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRoomType),
		errors.Is(err, domain.ErrInvalidRoomID),
		errors.Is(err, domain.ErrMalformedPayload):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func HandleListRooms(chat port.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, chat.ListRooms())
	}
}

func HandleCreateRoom(chat port.ChatService, auth *Authenticator, logg logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, err := auth.Authenticate(r)
		if err != nil {
			writeError(w, err)
			return
		}

		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errors.Join(domain.ErrMalformedPayload, err))
			return
		}
		roomType, err := domain.ParseRoomType(req.RoomType)
		if err != nil {
			writeError(w, err)
			return
		}
		key := domain.NewRoomKey(roomType, strings.TrimSpace(req.RoomID))

		info, created, err := chat.CreateRoom(r.Context(), key, req.Name, req.Password)
		if err != nil {
			writeError(w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
			logg.WithFields(map[string]interface{}{
				"room":       key.String(),
				"created_by": who.ID,
			}).Infof("Room created over HTTP")
		}
		writeJSON(w, status, createRoomResponse{Room: info, Type: roomType, Created: created})
	}
}

func HandleDeleteRoom(chat port.ChatService, auth *Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := auth.Authenticate(r); err != nil {
			writeError(w, err)
			return
		}
		roomType, err := domain.ParseRoomType(r.PathValue("type"))
		if err != nil {
			writeError(w, err)
			return
		}
		if err := chat.DeleteRoom(r.Context(), domain.NewRoomKey(roomType, r.PathValue("id"))); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleKick(chat port.ChatService, auth *Authenticator, logg logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, err := auth.Authenticate(r)
		if err != nil {
			writeError(w, err)
			return
		}
		id := r.PathValue("id")
		if err := chat.Kick(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		logg.WithFields(map[string]interface{}{
			"participant_id": id,
			"kicked_by":      who.ID,
		}).Infof("Participant kicked over HTTP")
		w.WriteHeader(http.StatusNoContent)
	}
}
