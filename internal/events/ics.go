package events

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"

	"github.com/eventplanner/backend/internal/models"
)

// DefaultDuration is the length given to calendar entries; events only record a start.
const DefaultDuration = 2 * time.Hour

const productID = "-//eventplanner//events//EN"

// Calendar builds a VCALENDAR with one VEVENT per event. Start times are read in loc.
func Calendar(events []models.EventView, loc *time.Location, now time.Time) (*ical.Calendar, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	for i := range events {
		ve, err := vevent(&events[i], loc, now)
		if err != nil {
			return nil, err
		}
		cal.Children = append(cal.Children, ve)
	}
	return cal, nil
}

// WriteCalendar encodes events as iCalendar to w.
func WriteCalendar(w io.Writer, events []models.EventView, loc *time.Location, now time.Time) error {
	cal, err := Calendar(events, loc, now)
	if err != nil {
		return err
	}
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}

func vevent(e *models.EventView, loc *time.Location, now time.Time) (*ical.Component, error) {
	start, err := e.StartsAt(loc)
	if err != nil {
		return nil, fmt.Errorf("event %s start: %w", e.ID, err)
	}
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, e.ID.String()+"@eventplanner")
	ve.Props.SetText(ical.PropSummary, e.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(DefaultDuration).UTC())
	if e.Description != "" {
		ve.Props.SetText(ical.PropDescription, e.Description)
	}
	ve.Props.SetText(ical.PropLocation, e.Location)
	if e.Category != "" {
		ve.Props.SetText(ical.PropCategories, e.Category)
	}
	if e.Organizer != nil && e.Organizer.Email != "" {
		p := ical.NewProp(ical.PropOrganizer)
		p.SetText("mailto:" + e.Organizer.Email)
		if e.Organizer.Name != "" {
			p.Params.Set(ical.ParamCommonName, e.Organizer.Name)
		}
		ve.Props.Set(p)
	}
	return ve, nil
}
