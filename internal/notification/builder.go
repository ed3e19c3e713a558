package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"

	"owl-notify/internal/metrics"
	"owl-notify/internal/models"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"go.uber.org/zap"
)

const (
	inlineTitleName = "title_template"
	inlineBodyName  = "body_template"
)

// TemplateRef names a library template or carries an inline template source
type TemplateRef struct {
	Name   string
	Source string
}

// Named refers to a template in the Library
func Named(name string) *TemplateRef { return &TemplateRef{Name: name} }

// Inline carries template source private to one request
func Inline(source string) *TemplateRef { return &TemplateRef{Source: source} }

// NotificationContext one render request. Title is optional, Body is required.
// Data must encode to a JSON object; each recipient is added to it as "recipient".
type NotificationContext struct {
	Title      *TemplateRef
	Body       *TemplateRef
	Recipients []models.NotificationTarget
	Data       interface{}
}

// EventWriter persists notification event rows
type EventWriter interface {
	Insert(ctx context.Context, event *models.NotificationEvent) error
}

// Announcer tells delivery workers a row was written
type Announcer interface {
	Announce(ctx context.Context, event *models.NotificationEvent) error
}

// Builder renders notification requests into event rows
type Builder struct {
	library   *Library
	events    EventWriter
	announcer Announcer
	logger    *zap.Logger
	now       func() time.Time
}

// NewBuilder creates the builder. announcer may be nil.
func NewBuilder(library *Library, events EventWriter, announcer Announcer, logger *zap.Logger) *Builder {
	return &Builder{
		library:   library,
		events:    events,
		announcer: announcer,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// DedupeRecipients sorts by address and keeps the first target per address
func DedupeRecipients(recipients []models.NotificationTarget) []models.NotificationTarget {
	sorted := make([]models.NotificationTarget, len(recipients))
	copy(sorted, recipients)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ToAddress < sorted[j].ToAddress
	})

	out := sorted[:0]
	for i, r := range sorted {
		if i > 0 && r.ToAddress == sorted[i-1].ToAddress {
			continue
		}
		out = append(out, r)
	}
	return out
}

// CreateEvents writes one row per distinct recipient address. A recipient whose title
// or body fails to render gets a Failed row and the rest continue. When the render
// environment cannot be built a single Failed row with no address is written and the
// setup error is returned. Returns the number of rows written.
func (b *Builder) CreateEvents(ctx context.Context, configID null.String, req NotificationContext) (int, error) {
	log := b.logger.With(zap.String("config_id", configID.String))

	recipients := DedupeRecipients(req.Recipients)

	set, titleName, bodyName, data, err := b.prepare(req)
	if err != nil {
		log.Error("Failed to prepare notification templates", zap.Error(err))
		return b.writeSetupFailure(ctx, configID, err)
	}

	written := 0
	for _, recipient := range recipients {
		renderCtx := make(map[string]interface{}, len(data)+1)
		for k, v := range data {
			renderCtx[k] = v
		}
		renderCtx["recipient"] = map[string]interface{}{
			"name":              recipient.Name,
			"to_address":        recipient.ToAddress,
			"notification_type": string(recipient.NotificationType),
		}

		now := b.now()
		event := &models.NotificationEvent{
			ID:                   uuid.New().String(),
			ToAddress:            recipient.ToAddress,
			NotificationType:     recipient.NotificationType,
			Status:               models.EventQueued,
			CreatedAt:            now,
			UpdatedAt:            now,
			NotificationConfigID: configID,
		}

		if encoded, err := json.Marshal(renderCtx); err != nil {
			log.Error("Failed to serialize render context", zap.Error(err))
		} else {
			event.Context = null.StringFrom(string(encoded))
		}

		var renderErrs []error
		title, err := execute(set, titleName, renderCtx)
		if err != nil {
			log.Error("Failed to render notification title",
				zap.String("to_address", recipient.ToAddress),
				zap.Error(err),
			)
			renderErrs = append(renderErrs, fmt.Errorf("title: %w", err))
		} else {
			event.Title = null.StringFrom(strings.TrimSpace(title))
		}

		body, err := execute(set, bodyName, renderCtx)
		if err != nil {
			log.Error("Failed to render notification body",
				zap.String("to_address", recipient.ToAddress),
				zap.Error(err),
			)
			renderErrs = append(renderErrs, fmt.Errorf("body: %w", err))
		} else {
			event.Message = body
		}

		if len(renderErrs) > 0 {
			event.Status = models.EventFailed
			event.ErrorMessage = null.StringFrom(errors.Join(renderErrs...).Error())
		}

		if err := b.insert(ctx, event); err != nil {
			return written, err
		}
		written++
	}

	log.Info("Notification events created",
		zap.Int("recipients", len(req.Recipients)),
		zap.Int("events", written),
	)
	return written, nil
}

// prepare clones the library, registers inline templates and normalizes Data
func (b *Builder) prepare(req NotificationContext) (*template.Template, string, string, map[string]interface{}, error) {
	if req.Body == nil {
		return nil, "", "", nil, fmt.Errorf("body template is required")
	}

	set, err := b.library.Clone()
	if err != nil {
		return nil, "", "", nil, err
	}

	titleName := DefaultTitleTemplate
	if req.Title != nil {
		if titleName, err = register(set, inlineTitleName, req.Title); err != nil {
			return nil, "", "", nil, err
		}
	}

	bodyName, err := register(set, inlineBodyName, req.Body)
	if err != nil {
		return nil, "", "", nil, err
	}

	data, err := toObject(req.Data)
	if err != nil {
		return nil, "", "", nil, err
	}

	return set, titleName, bodyName, data, nil
}

func register(set *template.Template, inlineName string, ref *TemplateRef) (string, error) {
	if ref.Source == "" {
		if ref.Name == "" {
			return "", fmt.Errorf("%s: template reference is empty", inlineName)
		}
		return ref.Name, nil
	}
	if _, err := set.New(inlineName).Parse(ref.Source); err != nil {
		return "", fmt.Errorf("failed to register %s: %w", inlineName, err)
	}
	return inlineName, nil
}

// toObject round-trips data through JSON so templates see plain maps and slices
func toObject(data interface{}) (map[string]interface{}, error) {
	if data == nil {
		return map[string]interface{}{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode template data: %w", err)
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("template data must be a JSON object: %w", err)
	}
	if obj == nil {
		obj = map[string]interface{}{}
	}
	return obj, nil
}

func execute(set *template.Template, name string, data map[string]interface{}) (string, error) {
	var sb strings.Builder
	if err := set.ExecuteTemplate(&sb, name, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (b *Builder) writeSetupFailure(ctx context.Context, configID null.String, setupErr error) (int, error) {
	now := b.now()
	event := &models.NotificationEvent{
		ID:                   uuid.New().String(),
		NotificationType:     models.NotificationTypeUnknown,
		Status:               models.EventFailed,
		ErrorMessage:         null.StringFrom(setupErr.Error()),
		CreatedAt:            now,
		UpdatedAt:            now,
		NotificationConfigID: configID,
	}
	if err := b.insert(ctx, event); err != nil {
		return 0, err
	}
	return 1, fmt.Errorf("failed to create notification: %w", setupErr)
}

func (b *Builder) insert(ctx context.Context, event *models.NotificationEvent) error {
	if err := b.events.Insert(ctx, event); err != nil {
		return err
	}
	metrics.EventsCreatedTotal.WithLabelValues(string(event.Status), string(event.NotificationType)).Inc()

	if b.announcer == nil {
		return nil
	}
	if err := b.announcer.Announce(ctx, event); err != nil {
		metrics.AnnounceErrorsTotal.Inc()
		b.logger.Warn("Failed to announce notification event",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
	}
	return nil
}
