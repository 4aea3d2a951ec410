package recorder

import (
	"context"

	"parity/internal/access"
	"parity/internal/audit/models"
	"parity/pkg/requestcontext"
)

// EntityAuditLog is the entity type of entries describing the audit log itself.
const EntityAuditLog = "audit_log"

// DraftFor starts a draft for an action performed by actor. The metadata
// carries the request id and client details observed by the edge middleware,
// merged with extra.
func DraftFor(ctx context.Context, actor access.Actor, action models.Action, entityType string, extra map[string]any) (models.Draft, error) {
	meta := make(map[string]any, len(extra)+5)
	if reqID := requestcontext.RequestID(ctx); reqID != "" {
		meta["request_id"] = reqID
	}
	client := requestcontext.Client(ctx)
	if client.IP != "" {
		meta["ip"] = client.IP
	}
	if client.Browser != "" {
		meta["browser"] = client.Browser
	}
	if client.OS != "" {
		meta["os"] = client.OS
	}
	if client.UserAgent != "" {
		meta["mobile"] = client.Mobile
	}
	for k, v := range extra {
		meta[k] = v
	}

	var metadata []byte
	if len(meta) > 0 {
		var err error
		if metadata, err = models.Values(meta); err != nil {
			return models.Draft{}, err
		}
	}
	return models.Draft{
		CompanyID: actor.CompanyID,
		Actor: models.Actor{
			UserID: actor.UserID,
			Email:  actor.Email,
			Role:   string(actor.Role),
		},
		Action:     action,
		EntityType: entityType,
		Metadata:   metadata,
	}, nil
}
