package notification

import (
	"context"
	"encoding/json"

	"github.com/pawhaven/sustainer/internal/models"
	"github.com/pawhaven/sustainer/pkg/logctx"
	"github.com/pawhaven/sustainer/pkg/tool"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event is what the billing core hands to the downstream delivery system.
// Actual email/SMS delivery is a separate collaborator; this package only
// records the fact durably.
type Event struct {
	Kind           models.NotificationKind `json:"kind"`
	SubscriptionID string                  `json:"subscription_id"`
	DonorID        string                  `json:"donor_id"`
	Payload        map[string]any          `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, ev *Event)
}

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Publish asynchronously persists the event for downstream delivery.
// Nil input is ignored.
func (s *Service) Publish(ctx context.Context, ev *Event) {
	go func() {
		if ev == nil {
			return
		}
		var traceID string
		if v, ok := ctx.Value("traceID").(string); ok {
			traceID = v
		}
		payload, _ := json.Marshal(ev.Payload)
		row := &models.NotificationLog{
			ID:             tool.GenerateUUIDV7(),
			Kind:           ev.Kind,
			SubscriptionID: ev.SubscriptionID,
			DonorID:        ev.DonorID,
			TraceID:        traceID,
			Payload:        datatypes.JSON(payload),
			Status:         models.NotificationLogStatusPending,
		}
		if err := s.db.Save(row).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save notification log: %v", err)
		}
	}()
}
