// file: internals/features/finance/payments/model/payment_gateway_events_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type GatewayEventStatus string

const (
	GatewayEventReceived  GatewayEventStatus = "received"
	GatewayEventProcessed GatewayEventStatus = "processed"
	GatewayEventIgnored   GatewayEventStatus = "ignored"
	GatewayEventRejected  GatewayEventStatus = "rejected"
)

/*
  payment_gateway_events = raw webhook / callback log
  - one row per delivery, duplicates included
  - kept for audit and replay; never drives balance changes by itself
*/

type PaymentGatewayEventModel struct {
	GatewayEventID       uuid.UUID  `gorm:"column:gateway_event_id;type:uuid;primaryKey" json:"gateway_event_id"`
	GatewayEventSchoolID *uuid.UUID `gorm:"column:gateway_event_school_id;type:uuid;index" json:"gateway_event_school_id,omitempty"`

	GatewayEventGateway    string  `gorm:"column:gateway_event_gateway;size:30;not null" json:"gateway_event_gateway"`
	GatewayEventGatewayRef *string `gorm:"column:gateway_event_gateway_ref;size:120;index" json:"gateway_event_gateway_ref,omitempty"`
	GatewayEventType       string  `gorm:"column:gateway_event_type;size:30;not null" json:"gateway_event_type"`

	GatewayEventPayload   datatypes.JSON `gorm:"column:gateway_event_payload" json:"gateway_event_payload"`
	GatewayEventHeaders   datatypes.JSON `gorm:"column:gateway_event_headers" json:"gateway_event_headers,omitempty"`
	GatewayEventSignature *string        `gorm:"column:gateway_event_signature" json:"gateway_event_signature,omitempty"`

	GatewayEventStatus      GatewayEventStatus `gorm:"column:gateway_event_status;size:20;not null" json:"gateway_event_status"`
	GatewayEventError       *string            `gorm:"column:gateway_event_error" json:"gateway_event_error,omitempty"`
	GatewayEventReceivedAt  time.Time          `gorm:"column:gateway_event_received_at;not null" json:"gateway_event_received_at"`
	GatewayEventProcessedAt *time.Time         `gorm:"column:gateway_event_processed_at" json:"gateway_event_processed_at,omitempty"`
}

func (PaymentGatewayEventModel) TableName() string {
	return "payment_gateway_events"
}

func (m *PaymentGatewayEventModel) BeforeCreate(tx *gorm.DB) error {
	if m.GatewayEventID == uuid.Nil {
		m.GatewayEventID = uuid.New()
	}
	return nil
}
