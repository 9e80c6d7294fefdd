package service

import (
	"time"

	"github.com/driveshare/rental-booking/internal/session"
	"github.com/driveshare/rental-booking/internal/workflow"
)

// PhotoSlot is one entry of the check-in photo checklist.
type PhotoSlot struct {
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

// DraftView is the draft as returned to the client.
type DraftView struct {
	ID          string         `json:"id"`
	Stage       workflow.Stage `json:"stage"`
	StageName   string         `json:"stage_name"`
	TotalStages int            `json:"total_stages"`
	Progress    int            `json:"progress"`
	Draft       workflow.Draft `json:"draft"`
	RentalDays  int            `json:"rental_days"`
	TotalPrice  float64        `json:"total_price"`
	Photos      []PhotoSlot    `json:"photos"`
	Finished    bool           `json:"finished"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func newDraftView(rec session.Record) DraftView {
	slots := make([]PhotoSlot, len(workflow.RequiredPhotos))
	for i, label := range workflow.RequiredPhotos {
		slots[i] = PhotoSlot{Label: label, Done: i < len(rec.Draft.CheckinPhotos)}
	}
	d := rec.Draft
	if d.CheckinPhotos == nil {
		d.CheckinPhotos = []string{}
	}
	return DraftView{
		ID:          rec.ID,
		Stage:       rec.Stage,
		StageName:   rec.Stage.String(),
		TotalStages: workflow.TotalStages,
		Progress:    rec.Stage.Progress(),
		Draft:       d,
		RentalDays:  d.RentalDays(),
		TotalPrice:  d.TotalPrice(),
		Photos:      slots,
		UpdatedAt:   rec.UpdatedAt,
	}
}
