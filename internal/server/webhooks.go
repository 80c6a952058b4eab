package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/slack-go/slack"
)

// contextWithoutCancel detaches background work from the request's
// lifetime; webhook processing continues after the response is sent.
func contextWithoutCancel(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// plaidWebhookPayload is the subset of the webhook body we act on.
type plaidWebhookPayload struct {
	WebhookType string `json:"webhook_type"`
	WebhookCode string `json:"webhook_code"`
	ItemID      string `json:"item_id"`
}

// handlePlaidWebhook acknowledges immediately and syncs in the
// background; the sender's delivery timeout never waits on our work.
func (s *Server) handlePlaidWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read webhook body")
		return
	}

	// Deliveries carry a Plaid-Verification JWT in production; sandbox
	// deliveries without one are let through.
	if sig := r.Header.Get("Plaid-Verification"); sig != "" {
		if err := s.feed.VerifyWebhook(r.Context(), body, sig); err != nil {
			s.logger.Warn("webhook verification failed", "error", err)
			writeError(w, http.StatusUnauthorized, "webhook verification failed")
			return
		}
	} else {
		s.logger.Debug("unsigned webhook delivery accepted")
	}

	var payload plaidWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook body")
		return
	}

	w.WriteHeader(http.StatusOK)

	if payload.WebhookType != "TRANSACTIONS" {
		s.logger.Debug("ignoring webhook", "type", payload.WebhookType, "code", payload.WebhookCode)
		return
	}

	ctx := contextWithoutCancel(r)
	go func() {
		item, err := s.store.GetItemByPlaidID(ctx, payload.ItemID)
		if err != nil {
			s.logger.Error("webhook for unknown item", "plaid_item_id", payload.ItemID, "error", err)
			return
		}
		if _, err := s.engine.Sync(ctx, item); err != nil {
			s.logger.Error("webhook sync failed", "item_id", item.ID, "error", err)
		}
	}()
}

// handleSlackInteraction routes interactive callbacks. Signature
// verification happens upstream; payloads here are already trusted.
// Block actions are acknowledged immediately and processed in the
// background; view submissions must answer synchronously because the
// response body drives the modal.
func (s *Server) handleSlackInteraction(w http.ResponseWriter, r *http.Request) {
	if s.workflow == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	var callback slack.InteractionCallback
	if err := json.Unmarshal([]byte(r.FormValue("payload")), &callback); err != nil {
		writeError(w, http.StatusBadRequest, "invalid interaction payload")
		return
	}

	switch callback.Type {
	case slack.InteractionTypeBlockActions:
		w.WriteHeader(http.StatusOK)
		ctx := contextWithoutCancel(r)
		go func() {
			if err := s.workflow.HandleBlockAction(ctx, callback); err != nil {
				s.logger.Error("block action failed", "error", err)
			}
		}()

	case slack.InteractionTypeViewSubmission:
		resp, err := s.workflow.HandleViewSubmission(r.Context(), callback)
		if err != nil {
			s.logger.Error("view submission failed", "error", err)
			writeError(w, http.StatusInternalServerError, "submission failed")
			return
		}
		if resp == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		writeJSON(w, http.StatusOK, resp)

	default:
		w.WriteHeader(http.StatusOK)
	}
}
