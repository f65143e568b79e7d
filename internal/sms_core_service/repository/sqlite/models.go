package sqlite

import (
	"time"

	"github.com/walletsms/golang_services/internal/core_sms/domain"
)

type sendRequestRow struct {
	RequestID        string `gorm:"primaryKey"`
	PhoneNumber      string `gorm:"not null"`
	Body             string `gorm:"not null"`
	State            string `gorm:"not null;index"`
	Attempt          int    `gorm:"not null;default:1"`
	ReasonClass      *string
	ReasonCode       *int
	ReasonName       *string
	CreatedAt        time.Time
	LastTransitionAt time.Time
	Segments         []segmentRow `gorm:"foreignKey:RequestID;references:RequestID;constraint:OnDelete:CASCADE"`
}

func (sendRequestRow) TableName() string { return "sms_send_requests" }

type segmentRow struct {
	RequestID     string `gorm:"primaryKey"`
	SegmentIndex  int    `gorm:"primaryKey;autoIncrement:false"`
	Body          string `gorm:"not null"`
	Attempt       int    `gorm:"not null;default:1"`
	SentKind      string `gorm:"not null"`
	SentCode      int
	DeliveredKind string `gorm:"not null"`
	DeliveredCode int
}

func (segmentRow) TableName() string { return "sms_send_segments" }

func toRow(req *domain.SendRequest) *sendRequestRow {
	row := &sendRequestRow{
		RequestID:        req.RequestID,
		PhoneNumber:      req.PhoneNumber,
		Body:             req.Body,
		State:            string(req.State),
		Attempt:          req.Attempt,
		CreatedAt:        req.CreatedAt,
		LastTransitionAt: req.LastTransitionAt,
	}
	row.ReasonClass, row.ReasonCode, row.ReasonName = reasonColumns(req.LastReason)
	for _, seg := range req.Segments {
		row.Segments = append(row.Segments, toSegmentRow(req.RequestID, seg))
	}
	return row
}

func toSegmentRow(requestID string, seg domain.Segment) segmentRow {
	return segmentRow{
		RequestID:     requestID,
		SegmentIndex:  seg.Index,
		Body:          seg.Body,
		Attempt:       seg.Attempt,
		SentKind:      outcomeKind(seg.SentOutcome),
		SentCode:      seg.SentOutcome.Code,
		DeliveredKind: outcomeKind(seg.DeliveredOutcome),
		DeliveredCode: seg.DeliveredOutcome.Code,
	}
}

func outcomeKind(o domain.Outcome) string {
	if o.IsPending() {
		return string(domain.OutcomePending)
	}
	return string(o.Kind)
}

func (row *sendRequestRow) toDomain() (*domain.SendRequest, error) {
	state, err := domain.ParseState(row.State)
	if err != nil {
		return nil, err
	}
	req := &domain.SendRequest{
		RequestID:        row.RequestID,
		PhoneNumber:      row.PhoneNumber,
		Body:             row.Body,
		State:            state,
		Attempt:          row.Attempt,
		CreatedAt:        row.CreatedAt.UTC(),
		LastTransitionAt: row.LastTransitionAt.UTC(),
		Segments:         make([]domain.Segment, 0, len(row.Segments)),
	}
	if row.ReasonClass != nil {
		req.LastReason = &domain.FailureReason{Class: domain.FailureClass(*row.ReasonClass)}
		if row.ReasonCode != nil {
			req.LastReason.Code = *row.ReasonCode
		}
		if row.ReasonName != nil {
			req.LastReason.Name = *row.ReasonName
		}
	}
	for _, s := range row.Segments {
		sent, err := domain.ParseOutcome(s.SentKind, s.SentCode)
		if err != nil {
			return nil, err
		}
		delivered, err := domain.ParseOutcome(s.DeliveredKind, s.DeliveredCode)
		if err != nil {
			return nil, err
		}
		req.Segments = append(req.Segments, domain.Segment{
			Index:            s.SegmentIndex,
			Body:             s.Body,
			Attempt:          s.Attempt,
			SentOutcome:      sent,
			DeliveredOutcome: delivered,
		})
	}
	return req, nil
}

func reasonColumns(reason *domain.FailureReason) (*string, *int, *string) {
	if reason == nil {
		return nil, nil, nil
	}
	class := string(reason.Class)
	code := reason.Code
	name := reason.Name
	return &class, &code, &name
}
