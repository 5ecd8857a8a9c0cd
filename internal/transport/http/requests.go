package httptransport

import (
	"time"

	"rosterd/internal/audit"
	"rosterd/internal/participant"
)

type createRequest struct {
	Fields map[string]any `json:"fields"`
}

type updateRequest struct {
	Fields map[string]any `json:"fields"`
}

type idResponse struct {
	ID string `json:"id"`
}

type statisticsResponse struct {
	NumOfNew int64 `json:"numOfNew"`
}

type auditResponse struct {
	Events []audit.Event `json:"events"`
}

type historyEntryResponse struct {
	Actor     string    `json:"actor"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

type participantResponse struct {
	ID        string                 `json:"id"`
	Status    string                 `json:"status"`
	CreatedAt time.Time              `json:"createdAt"`
	History   []historyEntryResponse `json:"history"`
	Fields    map[string]any         `json:"fields"`
}

func renderParticipant(p participant.Participant) participantResponse {
	history := make([]historyEntryResponse, 0, len(p.History))
	for _, entry := range p.History {
		history = append(history, historyEntryResponse{
			Actor:     entry.Actor,
			Event:     entry.Event,
			Timestamp: entry.Timestamp,
		})
	}
	return participantResponse{
		ID:        p.ID,
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt,
		History:   history,
		Fields:    p.Fields,
	}
}
