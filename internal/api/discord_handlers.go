package api

import (
	"encoding/json"
	"fmt"
	"meet-backend/internal/logger"
	"meet-backend/internal/metrics"
	"meet-backend/internal/webhook"
	"net/http"

	"go.uber.org/zap"
)

const (
	interactionPing               = 1
	interactionApplicationCommand = 2

	responsePong                     = 1
	responseChannelMessageWithSource = 4
)

type interactionOption struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

type Interaction struct {
	Type int `json:"type"`
	Data struct {
		Name    string              `json:"name"`
		Options []interactionOption `json:"options"`
	} `json:"data"`
}

type InteractionResponse struct {
	Type int                      `json:"type"`
	Data *InteractionResponseData `json:"data,omitempty"`
}

type InteractionResponseData struct {
	Content string `json:"content"`
	Flags   int    `json:"flags,omitempty"`
}

func (i Interaction) option(name string) string {
	for _, o := range i.Data.Options {
		if o.Name != name {
			continue
		}
		var v string
		if json.Unmarshal(o.Value, &v) == nil {
			return v
		}
	}
	return ""
}

func message(content string) InteractionResponse {
	return InteractionResponse{
		Type: responseChannelMessageWithSource,
		Data: &InteractionResponseData{Content: content, Flags: 1 << 6},
	}
}

// @Summary      Chat bot interactions
// @Description  Ed25519-verified interactions endpoint. Answers PING and the room-status command.
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Success      200  {object}  InteractionResponse
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Router       /discord-interactions [post]
func (s *Server) DiscordInteractionsHandler(w http.ResponseWriter, r *http.Request) {
	body, err := readRawBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read body")
		return
	}

	ok := webhook.VerifyDiscordSignature(body,
		r.Header.Get(webhook.HeaderDiscordSignature),
		r.Header.Get(webhook.HeaderDiscordTimestamp),
		s.config.Discord.PublicKey)
	metrics.WebhookVerified("discord", ok)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid request signature")
		return
	}

	var interaction Interaction
	if err := json.Unmarshal(body, &interaction); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid interaction")
		return
	}

	switch interaction.Type {
	case interactionPing:
		writeJSON(w, http.StatusOK, InteractionResponse{Type: responsePong})
	case interactionApplicationCommand:
		writeJSON(w, http.StatusOK, s.runCommand(r, interaction))
	default:
		writeError(w, http.StatusBadRequest, "Unsupported interaction type")
	}
}

func (s *Server) runCommand(r *http.Request, interaction Interaction) InteractionResponse {
	if interaction.Data.Name != "room-status" {
		return message("Unknown command.")
	}

	room := normalizeRoomName(interaction.option("room"))
	if room == "" {
		return message("Please provide a room name.")
	}

	exists, err := s.store.RoomExists(r.Context(), room)
	if err != nil {
		logger.Error(r.Context(), "room status lookup failed", zap.Error(err))
		return message("Could not look up the room right now.")
	}
	if exists {
		return message(fmt.Sprintf("Room %q is booked.", room))
	}
	return message(fmt.Sprintf("Room %q is available.", room))
}
