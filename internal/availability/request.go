package availability

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/flow"
)

// Classification is the result of matching a provider's reply status.
type Classification int

const (
	// ClassUnknown marks a status outside both vocabularies; dropped.
	ClassUnknown Classification = iota
	// ClassAccepted marks a provider confirming availability.
	ClassAccepted
	// ClassDeclined marks a provider declining the request.
	ClassDeclined
)

// Reply vocabularies. These lists are the contract with the provider-side
// bot; extend them deliberately, never by guessing at runtime.
var (
	acceptedStatuses = []string{
		"si", "sí", "yes", "1",
		"disponible", "available",
		"acepto", "aceptado", "accepted",
	}
	declinedStatuses = []string{
		"no", "2",
		"ocupado", "busy",
		"no disponible", "not available",
		"rechazado", "declined",
	}
)

// ClassifyStatus matches a raw reply status against the accepted and
// declined vocabularies.
func ClassifyStatus(raw string) Classification {
	status := strings.ToLower(strings.TrimSpace(raw))
	status = strings.Join(strings.Fields(status), " ")

	for _, s := range acceptedStatuses {
		if status == s {
			return ClassAccepted
		}
	}
	for _, s := range declinedStatuses {
		if status == s {
			return ClassDeclined
		}
	}

	return ClassUnknown
}

// NormalizePhone reduces a provider phone to bare digits: channel suffixes
// (anything after '@' or ':'), plus signs, and spaces are stripped.
func NormalizePhone(raw string) string {
	phone := raw
	if at := strings.IndexByte(phone, '@'); at >= 0 {
		phone = phone[:at]
	}
	if colon := strings.IndexByte(phone, ':'); colon >= 0 {
		phone = phone[:colon]
	}

	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	return b.String()
}

// DedupeKey is the composite identity used to collapse duplicate records
// referring to the same provider.
func DedupeKey(providerID, phone string) string {
	return providerID + "|" + NormalizePhone(phone)
}

// DedupeCandidates normalizes and deduplicates the candidate list, first by
// provider id, then by normalized phone. Original order is preserved.
func DedupeCandidates(candidates []flow.ProviderCandidate) []flow.ProviderCandidate {
	seenIDs := make(map[string]struct{}, len(candidates))
	seenPhones := make(map[string]struct{}, len(candidates))

	result := make([]flow.ProviderCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		phone := NormalizePhone(candidate.Phone)
		if candidate.ID == "" && phone == "" {
			continue
		}

		if candidate.ID != "" {
			if _, dup := seenIDs[candidate.ID]; dup {
				continue
			}
		}
		if phone != "" {
			if _, dup := seenPhones[phone]; dup {
				continue
			}
		}

		if candidate.ID != "" {
			seenIDs[candidate.ID] = struct{}{}
		}
		if phone != "" {
			seenPhones[phone] = struct{}{}
		}

		result = append(result, flow.ProviderCandidate{
			ID:    candidate.ID,
			Phone: phone,
			Name:  candidate.Name,
		})
	}

	return result
}

// RequestMessage is the payload broadcast on the request topic.
type RequestMessage struct {
	ReqID       string                   `json:"req_id"`
	Service     string                   `json:"service"`
	City        string                   `json:"city"`
	Candidates  []flow.ProviderCandidate `json:"candidates"`
	WaitSeconds int                      `json:"wait_seconds"`
}

// ResponseRecord is one classified provider reply stored in the document.
type ResponseRecord struct {
	ProviderID string    `json:"provider_id"`
	Phone      string    `json:"phone"`
	Status     string    `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
}

// RequestDocument is the KV state of one coordination window. The listener
// is its sole writer after creation; requesters only read it.
type RequestDocument struct {
	ReqID     string                   `json:"req_id"`
	Providers []flow.ProviderCandidate `json:"providers"`
	Accepted  []ResponseRecord         `json:"accepted"`
	Declined  []ResponseRecord         `json:"declined"`
	Phone     string                   `json:"phone"`
	Service   string                   `json:"service"`
	City      string                   `json:"city"`
	CreatedAt time.Time                `json:"created_at"`
}

// Contains reports whether a reply from the given provider identity was
// already recorded, in either list.
func (d *RequestDocument) Contains(key string) bool {
	for _, record := range d.Accepted {
		if DedupeKey(record.ProviderID, record.Phone) == key {
			return true
		}
	}
	for _, record := range d.Declined {
		if DedupeKey(record.ProviderID, record.Phone) == key {
			return true
		}
	}

	return false
}

// responsePayload tolerates the alternate key spellings used by different
// provider-side bot versions.
type responsePayload struct {
	ReqID         string `json:"req_id"`
	RequestID     string `json:"request_id"`
	ProviderID    string `json:"provider_id"`
	ID            string `json:"id"`
	ProviderPhone string `json:"provider_phone"`
	Phone         string `json:"phone"`
	Estado        string `json:"estado"`
	Status        string `json:"status"`
}

// parseResponse extracts the request id, provider identity and raw status
// from an inbound response payload.
func parseResponse(data []byte) (reqID, providerID, phone, status string, err error) {
	var payload responsePayload
	if err = json.Unmarshal(data, &payload); err != nil {
		return "", "", "", "", err
	}

	reqID = payload.ReqID
	if reqID == "" {
		reqID = payload.RequestID
	}

	providerID = payload.ProviderID
	if providerID == "" {
		providerID = payload.ID
	}

	phone = payload.ProviderPhone
	if phone == "" {
		phone = payload.Phone
	}

	status = payload.Estado
	if status == "" {
		status = payload.Status
	}

	return reqID, providerID, phone, status, nil
}
