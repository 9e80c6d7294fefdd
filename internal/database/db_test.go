package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigCountsMatchedRows(t *testing.T) {
	mc := Config("app", "pw", "db", "3306", "rental")
	assert.True(t, mc.ClientFoundRows)
	assert.Equal(t, time.UTC, mc.Loc)

	dsn := mc.FormatDSN()
	assert.Contains(t, dsn, "app:pw@tcp(db:3306)/rental")
	assert.Contains(t, dsn, "clientFoundRows=true")
	assert.Contains(t, dsn, "parseTime=true")
}
