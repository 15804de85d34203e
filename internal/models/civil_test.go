package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCivilDate_UsesLocation(t *testing.T) {
	bkk := time.FixedZone("ICT", 7*3600)
	// 20:00 UTC on the 18th is already the 19th in Bangkok
	at := time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), CivilDate(at, bkk))
	assert.Equal(t, time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC), CivilDate(at, time.UTC))
	assert.Equal(t, "2026-10-19", DateKey(CivilDate(at, bkk)))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	b := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 7, DaysBetween(a, b))
	assert.Equal(t, -7, DaysBetween(b, a))
	assert.Equal(t, 0, DaysBetween(a, a))
}
