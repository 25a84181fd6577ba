package availability

import (
	"context"
	"log/slog"
	"time"

	"github.com/devtinkubot/tinkubot-microservices-sub001/pkg/metrics"
)

// runListener consumes provider replies for the lifetime of the process. It
// is the sole writer of the accept/decline lists, which keeps the
// read-modify-write on each document race-free by construction.
func (c *Coordinator) runListener(ctx context.Context, messages <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			c.handleResponse(ctx, msg.Payload)
		}
	}
}

// handleResponse classifies one provider reply and records it in the request
// document. Replies for unknown or expired requests, duplicate identities,
// and unrecognized statuses are dropped without mutating state.
func (c *Coordinator) handleResponse(ctx context.Context, payload []byte) {
	reqID, providerID, phone, status, err := parseResponse(payload)
	if err != nil {
		c.log.Warn("discarding malformed availability response", slog.Any("error", err))
		return
	}
	if reqID == "" || (providerID == "" && phone == "") {
		c.log.Warn("discarding availability response without identity")
		return
	}

	classification := ClassifyStatus(status)
	if classification == ClassUnknown {
		c.log.Debug("discarding unrecognized availability status",
			slog.String("req_id", reqID), slog.String("status", status))
		return
	}

	doc, err := c.readDocument(ctx, reqID)
	if err != nil {
		c.log.Error("failed to read availability document",
			slog.String("req_id", reqID), slog.Any("error", err))
		return
	}
	if doc == nil {
		// Window already expired; a late reply is of no use.
		return
	}

	key := DedupeKey(providerID, phone)
	if doc.Contains(key) {
		// First classification wins: a later conflicting status for the
		// same provider never moves it between lists.
		return
	}

	record := ResponseRecord{
		ProviderID: providerID,
		Phone:      NormalizePhone(phone),
		Status:     status,
		ReceivedAt: time.Now().UTC(),
	}

	switch classification {
	case ClassAccepted:
		doc.Accepted = append(doc.Accepted, record)
		metrics.RecordAvailabilityResponse("accepted")
	case ClassDeclined:
		doc.Declined = append(doc.Declined, record)
		metrics.RecordAvailabilityResponse("declined")
	}

	if err := c.writeDocument(ctx, doc, c.tunables().DocumentTTL); err != nil {
		c.log.Error("failed to update availability document",
			slog.String("req_id", reqID), slog.Any("error", err))
		return
	}

	c.log.Info("recorded availability response",
		slog.String("req_id", reqID),
		slog.String("provider_id", providerID),
		slog.String("status", status))
}
